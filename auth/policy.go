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

// Package auth evaluates permission rules against the calling principal,
// per resource per action. Decisions are deterministic: principal roles,
// resource and action against the current rule set, nothing else.
package auth

import "github.com/featdb/featdb/proto"

type Action string

const (
	ActionReadOnline  Action = "read_online"
	ActionWriteOnline Action = "write_online"
)

// Principal is the authenticated caller. Only the resolved role set is
// consumed here; raw credentials never reach this package.
type Principal struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

const (
	PolicyKindRoleBased = "role_based"
	PolicyKindAllowAll  = "allow_all"
	PolicyKindCustom    = "custom"
)

type Policy interface {
	// Matches reports whether the principal satisfies the policy.
	Matches(p Principal) bool
	Kind() string
}

// RoleBasedPolicy matches iff the principal holds at least one of the
// listed roles.
type RoleBasedPolicy struct {
	Roles []string
}

func (rp RoleBasedPolicy) Matches(p Principal) bool {
	for _, role := range rp.Roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

func (rp RoleBasedPolicy) Kind() string { return PolicyKindRoleBased }

type AllowAll struct{}

func (AllowAll) Matches(Principal) bool { return true }
func (AllowAll) Kind() string           { return PolicyKindAllowAll }

// PolicyFunc adapts a predicate into a Policy.
type PolicyFunc func(p Principal) bool

func (f PolicyFunc) Matches(p Principal) bool { return f(p) }
func (PolicyFunc) Kind() string               { return PolicyKindCustom }

// Resource is one authorization target: a feature view of some kind.
type Resource struct {
	Kind proto.FeatureViewKind
	Name string
}

// Permission grants Actions on resources of the listed kinds to principals
// matching Policy. Resource scopes the rule to one named resource; empty or
// "*" covers every resource of a listed kind. Immutable after registration.
type Permission struct {
	Name     string
	Kinds    []proto.FeatureViewKind
	Resource string
	Policy   Policy
	Actions  []Action
}

func (pm *Permission) appliesTo(r Resource) bool {
	matched := false
	for _, k := range pm.Kinds {
		if k == r.Kind {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	return pm.Resource == "" || pm.Resource == "*" || pm.Resource == r.Name
}

func (pm *Permission) allows(a Action) bool {
	for _, action := range pm.Actions {
		if action == a {
			return true
		}
	}
	return false
}
