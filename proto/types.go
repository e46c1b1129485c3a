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

package proto

import "time"

// Entity identifies one dimension of an entity key. JoinKey is the column
// name rows use to carry the entity value.
type Entity struct {
	Name        string    `json:"name"`
	JoinKey     string    `json:"join_key"`
	ValueType   ValueType `json:"value_type"`
	Description string    `json:"description,omitempty"`
}

// Field is one typed feature column of a feature view.
type Field struct {
	Name  string    `json:"name"`
	Dtype ValueType `json:"dtype"`
}

type FeatureViewKind string

const (
	FeatureViewKindStandard FeatureViewKind = "feature_view"
	FeatureViewKindOnDemand FeatureViewKind = "on_demand_feature_view"
	FeatureViewKindStream   FeatureViewKind = "stream_feature_view"
)

// FeatureView groups features sharing an entity key shape and TTL.
// Identity is Name, unique within a deployment.
type FeatureView struct {
	Name     string          `json:"name"`
	Kind     FeatureViewKind `json:"kind"`
	Entities []string        `json:"entities"`
	Fields   []Field         `json:"fields"`
	// TTL bounds value freshness on read; zero disables the check.
	TTL    time.Duration `json:"-"`
	Source string        `json:"source,omitempty"`
}

func (fv *FeatureView) Field(name string) (Field, bool) {
	for _, f := range fv.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (fv *FeatureView) HasEntity(name string) bool {
	for _, e := range fv.Entities {
		if e == name {
			return true
		}
	}
	return false
}

// PushSource maps an ingestion stream onto the feature views it feeds.
type PushSource struct {
	Name         string   `json:"name"`
	FeatureViews []string `json:"feature_views"`
}
