/*
 *
 * Copyright 2023 FeatDB authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# FeatDB: an online feature serving layer

## What it is

A network-facing service that stores the latest feature values per entity
and serves them to inference-time callers with millisecond lookups,
plus a push ingestion path keeping those values current from streams.

## Data Model

* Entity, a named business object dimension (e.g. driver), carrying a
typed join key (e.g. driver_id int64)

* Feature View, a named group of typed feature columns sharing an entity
key shape and a freshness TTL

* Feature Row, entity key --> {feature name --> value, event timestamp,
created timestamp}, resolved last-write-wins by event timestamp

* Push Source, an ingestion stream mapped onto the feature views it feeds

## Architecture

A single server role:

* Feature Server - serves GetOnlineFeatures and Push over a JSON HTTP API,
gated per feature view by role-based permissions

Callers use the client proxy for location-transparent access: the same
operations, same errors, forwarded over the wire.

### Storage

memory engine for tests and small deployments, rocksdb for persistence

### Authorization

an ordered permission rule set evaluated per feature view per action,
default deny

## Building Blocks

* Rocksdb
* Prometheus
* CubeFS blobstore common (rpc, trace, config, logging)

*/

package featdb
