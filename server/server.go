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

package server

import (
	"context"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/taskpool"

	"github.com/featdb/featdb/auth"
	apierrors "github.com/featdb/featdb/errors"
	"github.com/featdb/featdb/proto"
	"github.com/featdb/featdb/registry"
	"github.com/featdb/featdb/store"
	"github.com/featdb/featdb/util/limiter"
)

const defaultReadPoolSize = 16

// FeatureViewConfig declares a feature view in configuration. TTL does not
// round-trip through proto.FeatureView json, so it rides separately in
// seconds.
type FeatureViewConfig struct {
	proto.FeatureView
	TTLSeconds int64 `json:"ttl_seconds"`
}

// PermissionConfig declares one authorization rule. Policy selects the
// policy kind: "role_based" guarded by Roles, "allow_all" open to every
// principal.
type PermissionConfig struct {
	Name     string                  `json:"name"`
	Kinds    []proto.FeatureViewKind `json:"kinds"`
	Resource string                  `json:"resource,omitempty"`
	Policy   string                  `json:"policy"`
	Roles    []string                `json:"roles,omitempty"`
	Actions  []auth.Action           `json:"actions"`
}

type Config struct {
	StoreConfig store.Config        `json:"store_config"`
	LimitConfig limiter.LimitConfig `json:"limit_config"`

	// ReadPoolSize bounds the per-view read fan-out workers.
	ReadPoolSize int `json:"read_pool_size"`

	// Registry bootstrap. A production deployment may instead inject a
	// remote registry through NewServerWithDeps.
	Entities     []*proto.Entity     `json:"entities"`
	FeatureViews []FeatureViewConfig `json:"feature_views"`
	PushSources  []*proto.PushSource `json:"push_sources"`

	Permissions []PermissionConfig `json:"permissions"`
	// Tokens maps static bearer tokens to principals. Empty disables
	// authentication: every request runs as the anonymous principal.
	Tokens map[string]auth.Principal `json:"tokens"`
}

// Server is the feature serving service: registry lookups, authorization,
// entity key encoding and online store access behind two operations,
// GetOnlineFeatures and Push.
type Server struct {
	registry registry.Registry
	store    store.Store
	enforcer *auth.Enforcer
	resolver auth.PrincipalResolver
	limiter  limiter.Limiter
	readPool taskpool.TaskPool
}

func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	st, err := store.NewStore(ctx, &cfg.StoreConfig)
	if err != nil {
		return nil, err
	}

	reg := registry.NewMem()
	for _, e := range cfg.Entities {
		reg.ApplyEntity(e)
	}
	for i := range cfg.FeatureViews {
		fvc := cfg.FeatureViews[i]
		fv := fvc.FeatureView
		if fvc.TTLSeconds > 0 {
			fv.TTL = time.Duration(fvc.TTLSeconds) * time.Second
		}
		if fv.Kind == "" {
			fv.Kind = proto.FeatureViewKindStandard
		}
		reg.ApplyFeatureView(&fv)
	}
	for _, ps := range cfg.PushSources {
		reg.ApplyPushSource(ps)
	}

	rules, err := buildPermissions(cfg.Permissions)
	if err != nil {
		st.Close()
		return nil, err
	}

	return NewServerWithDeps(cfg, reg, st, auth.NewEnforcer(rules), resolverFor(cfg)), nil
}

// NewServerWithDeps wires explicit collaborators, for deployments with a
// remote registry or a custom principal resolver, and for tests.
func NewServerWithDeps(cfg *Config, reg registry.Registry, st store.Store, enforcer *auth.Enforcer, resolver auth.PrincipalResolver) *Server {
	poolSize := cfg.ReadPoolSize
	if poolSize <= 0 {
		poolSize = defaultReadPoolSize
	}
	return &Server{
		registry: reg,
		store:    st,
		enforcer: enforcer,
		resolver: resolver,
		limiter:  limiter.NewLimiter(cfg.LimitConfig),
		readPool: taskpool.New(poolSize, poolSize),
	}
}

func buildPermissions(configs []PermissionConfig) ([]*auth.Permission, error) {
	rules := make([]*auth.Permission, 0, len(configs))
	for _, pc := range configs {
		var policy auth.Policy
		switch pc.Policy {
		case auth.PolicyKindRoleBased, "":
			policy = auth.RoleBasedPolicy{Roles: pc.Roles}
		case auth.PolicyKindAllowAll:
			policy = auth.AllowAll{}
		default:
			return nil, apierrors.ErrUnknownPolicyKind
		}
		rules = append(rules, &auth.Permission{
			Name:     pc.Name,
			Kinds:    pc.Kinds,
			Resource: pc.Resource,
			Policy:   policy,
			Actions:  pc.Actions,
		})
	}
	return rules, nil
}

func resolverFor(cfg *Config) auth.PrincipalResolver {
	if len(cfg.Tokens) == 0 {
		return auth.AllowAllResolver{P: auth.Anonymous}
	}
	return auth.NewStaticTokenResolver(cfg.Tokens)
}

// Reload swaps the active permission rules.
func (s *Server) Reload(configs []PermissionConfig) error {
	rules, err := buildPermissions(configs)
	if err != nil {
		return err
	}
	s.enforcer.Reload(rules)
	return nil
}

func (s *Server) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *Server) Close() {
	s.readPool.Close()
	s.store.Close()
}
