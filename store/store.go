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

// Package store is the online store engine: a key-value backend holding the
// current feature values per entity key per feature view, with
// last-write-wins conflict resolution by event timestamp.
package store

import (
	"context"
	"hash/crc32"
	"sync"
	"time"

	"github.com/featdb/featdb/common/kvstore"
	"github.com/featdb/featdb/proto"
	"github.com/featdb/featdb/util"
)

const (
	MemoryDriver  = "memory"
	RocksdbDriver = "rocksdb"
)

type Config struct {
	Driver   string         `json:"driver"`
	Path     string         `json:"path"`
	KVOption kvstore.Option `json:"kv_option"`
}

// FeatureValue is the stored state of one feature for one entity key.
type FeatureValue struct {
	Value proto.Value
	// EventTS is when the value became true in the source system.
	EventTS time.Time
	// CreatedTS is when the value was ingested.
	CreatedTS time.Time
}

// FeatureRow is the read result for one entity key. A missing key yields
// Found=false, never an error.
type FeatureRow struct {
	Values map[string]FeatureValue
	Found  bool
}

type Stats struct {
	Driver    string            `json:"driver"`
	Keys      map[string]uint64 `json:"keys,omitempty"`
	UsedBytes uint64            `json:"used_bytes,omitempty"`
}

type Store interface {
	// Read returns one FeatureRow per key, in key order.
	Read(ctx context.Context, fv *proto.FeatureView, keys [][]byte) ([]FeatureRow, error)
	// Write applies values under last-write-wins: a feature is updated only
	// if it has no stored value, or the incoming event timestamp is newer,
	// or equal with a newer-or-equal write timestamp. An older write is a
	// silent no-op. Visible to reads once Write returns.
	Write(ctx context.Context, fv *proto.FeatureView, key []byte, values map[string]proto.Value, eventTS, writeTS time.Time) error
	Stats(ctx context.Context) (Stats, error)
	Close()
}

func NewStore(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Driver {
	case "", MemoryDriver:
		return NewMemStore(), nil
	case RocksdbDriver:
		return NewRocksStore(ctx, cfg)
	default:
		return nil, kvstore.ErrKVTypeNotFound
	}
}

const keyLocksNum = 1024

// keyLocker serializes writes per (feature view, entity key) so concurrent
// writes to the same key resolve by timestamp, never as a torn mix.
type keyLocker struct {
	locks [keyLocksNum]sync.Mutex
}

func (l *keyLocker) keyLock(viewName string, key []byte) *sync.Mutex {
	h := crc32.NewIEEE()
	h.Write(util.StringsToBytes(viewName))
	h.Write(key)
	return &l.locks[h.Sum32()%keyLocksNum]
}

// applyWrite merges values into row under last-write-wins and reports
// whether anything changed.
func applyWrite(row map[string]FeatureValue, values map[string]proto.Value, eventTS, writeTS time.Time) bool {
	changed := false
	for name, v := range values {
		stored, ok := row[name]
		if ok {
			if eventTS.Before(stored.EventTS) {
				continue
			}
			if eventTS.Equal(stored.EventTS) && writeTS.Before(stored.CreatedTS) {
				continue
			}
		}
		row[name] = FeatureValue{Value: v, EventTS: eventTS, CreatedTS: writeTS}
		changed = true
	}
	return changed
}
