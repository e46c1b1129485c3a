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
	"net/http"
	"strings"
)

// PrincipalResolver maps an incoming request to the calling principal.
// Resolution failure is not an error: an unresolvable request becomes the
// anonymous principal and the rule set decides what that may do.
type PrincipalResolver interface {
	Resolve(r *http.Request) Principal
}

// Anonymous is the principal of requests carrying no usable credentials.
var Anonymous = Principal{Name: "anonymous"}

// StaticTokenResolver resolves bearer tokens against a fixed token table.
// Suited to single-tenant deployments where tokens are provisioned out of
// band through configuration.
type StaticTokenResolver struct {
	tokens map[string]Principal
}

func NewStaticTokenResolver(tokens map[string]Principal) *StaticTokenResolver {
	cloned := make(map[string]Principal, len(tokens))
	for t, p := range tokens {
		cloned[t] = p
	}
	return &StaticTokenResolver{tokens: cloned}
}

func (sr *StaticTokenResolver) Resolve(r *http.Request) Principal {
	token := bearerToken(r)
	if token == "" {
		return Anonymous
	}
	if p, ok := sr.tokens[token]; ok {
		return p
	}
	return Anonymous
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// AllowAllResolver grants every request the same principal. Used when
// authorization is disabled in configuration.
type AllowAllResolver struct {
	P Principal
}

func (ar AllowAllResolver) Resolve(*http.Request) Principal { return ar.P }
