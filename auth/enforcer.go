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

package auth

import (
	"context"
	"sync/atomic"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/featdb/featdb/errors"
)

// Enforcer holds the active permission rules and answers authorization
// checks for them. The rule set is a copy-on-write snapshot: Reload swaps
// the whole slice atomically so checks never observe a half-applied update.
//
// A resource covered by no rule is denied. A deployment with zero rules
// denies everything.
type Enforcer struct {
	rules atomic.Value // []*Permission
}

func NewEnforcer(rules []*Permission) *Enforcer {
	e := &Enforcer{}
	e.Reload(rules)
	return e
}

// Reload replaces the active rule set.
func (e *Enforcer) Reload(rules []*Permission) {
	snapshot := make([]*Permission, len(rules))
	copy(snapshot, rules)
	e.rules.Store(snapshot)
}

func (e *Enforcer) snapshot() []*Permission {
	return e.rules.Load().([]*Permission)
}

// Authorize checks the principal against every resource for the action.
// All-or-nothing: the first denial fails the whole call, identifying the
// denied resource and action. Callers must authorize before touching any
// state so a mixed request leaves nothing behind.
func (e *Enforcer) Authorize(ctx context.Context, p Principal, action Action, resources ...Resource) error {
	span := trace.SpanFromContextSafe(ctx)
	rules := e.snapshot()
	for _, r := range resources {
		if !authorized(rules, p, action, r) {
			span.Warnf("deny principal[%s] action[%s] on %s[%s]", p.Name, action, r.Kind, r.Name)
			return apierrors.NewPermissionDenied(r.Name, string(action))
		}
	}
	return nil
}

// authorized grants only on an explicit matching rule; a resource covered
// by no rule, or only by rules the principal fails, is denied.
func authorized(rules []*Permission, p Principal, action Action, r Resource) bool {
	for _, rule := range rules {
		if !rule.appliesTo(r) || !rule.allows(action) {
			continue
		}
		if rule.Policy != nil && rule.Policy.Matches(p) {
			return true
		}
	}
	return false
}
