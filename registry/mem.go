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

	apierrors "github.com/featdb/featdb/errors"
	"github.com/featdb/featdb/proto"
)

// Mem is the in-memory registry. Apply methods replace by name, so
// re-applying updated definitions is how configuration reloads land.
type Mem struct {
	mu          sync.RWMutex
	entities    map[string]*proto.Entity
	views       map[string]*proto.FeatureView
	pushSources map[string]*proto.PushSource
}

func NewMem() *Mem {
	return &Mem{
		entities:    make(map[string]*proto.Entity),
		views:       make(map[string]*proto.FeatureView),
		pushSources: make(map[string]*proto.PushSource),
	}
}

func (m *Mem) ApplyEntity(e *proto.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.Name] = e
}

func (m *Mem) ApplyFeatureView(fv *proto.FeatureView) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[fv.Name] = fv
}

func (m *Mem) ApplyPushSource(ps *proto.PushSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushSources[ps.Name] = ps
}

func (m *Mem) GetFeatureView(ctx context.Context, name string) (*proto.FeatureView, error) {
	m.mu.RLock()
	fv, ok := m.views[name]
	m.mu.RUnlock()
	if !ok {
		return nil, apierrors.NewFeatureViewNotFound(name)
	}
	return fv, nil
}

func (m *Mem) GetEntity(ctx context.Context, name string) (*proto.Entity, error) {
	m.mu.RLock()
	e, ok := m.entities[name]
	m.mu.RUnlock()
	if !ok {
		return nil, apierrors.NewEntityNotFound(name)
	}
	return e, nil
}

func (m *Mem) GetPushSource(ctx context.Context, name string) (*proto.PushSource, error) {
	m.mu.RLock()
	ps, ok := m.pushSources[name]
	m.mu.RUnlock()
	if !ok {
		return nil, apierrors.NewPushSourceNotFound(name)
	}
	return ps, nil
}
