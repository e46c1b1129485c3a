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

package registry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/featdb/featdb/proto"
)

type cacheEntry struct {
	val      interface{}
	expireAt time.Time
}

// Cached wraps a Registry with a TTL'd lookup cache. Concurrent misses for
// the same name collapse into one inner lookup via singleflight, so a cold
// hot-key never stampedes the backing registry. Only hits are cached;
// not-found propagates uncached and is retried on the next call.
type Cached struct {
	inner Registry
	ttl   time.Duration
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry

	// nowFunc is swapped in tests to drive expiry.
	nowFunc func() time.Time
}

func NewCached(inner Registry, ttl time.Duration) *Cached {
	return &Cached{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		nowFunc: time.Now,
	}
}

func (c *Cached) lookup(ctx context.Context, key string, load func() (interface{}, error)) (interface{}, error) {
	now := c.nowFunc()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(e.expireAt) {
		return e.val, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{val: v, expireAt: c.nowFunc().Add(c.ttl)}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *Cached) GetFeatureView(ctx context.Context, name string) (*proto.FeatureView, error) {
	v, err := c.lookup(ctx, "fv/"+name, func() (interface{}, error) {
		return c.inner.GetFeatureView(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*proto.FeatureView), nil
}

func (c *Cached) GetEntity(ctx context.Context, name string) (*proto.Entity, error) {
	v, err := c.lookup(ctx, "en/"+name, func() (interface{}, error) {
		return c.inner.GetEntity(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*proto.Entity), nil
}

func (c *Cached) GetPushSource(ctx context.Context, name string) (*proto.PushSource, error) {
	v, err := c.lookup(ctx, "ps/"+name, func() (interface{}, error) {
		return c.inner.GetPushSource(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*proto.PushSource), nil
}

// Invalidate drops every cached entry. Call after the backing registry
// changes out of band.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
