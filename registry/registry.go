// Copyright 2023 The FeatDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package registry answers metadata lookups for feature views, entities
// and push sources. The serving path treats the registry as a
// collaborator behind this interface; deployments may plug a remote one
// and wrap it with Cached.
package registry

import (
	"context"

	"github.com/featdb/featdb/proto"
)

type Registry interface {
	// GetFeatureView returns the view by name, or a FeatureViewNotFound
	// coded error.
	GetFeatureView(ctx context.Context, name string) (*proto.FeatureView, error)
	// GetEntity returns the entity by name, or an EntityNotFound coded error.
	GetEntity(ctx context.Context, name string) (*proto.Entity, error)
	// GetPushSource returns the push source by name, or a
	// PushSourceNotFound coded error.
	GetPushSource(ctx context.Context, name string) (*proto.PushSource, error)
}
