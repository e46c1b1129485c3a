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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/featdb/featdb/auth"
	"github.com/featdb/featdb/codec"
	apierrors "github.com/featdb/featdb/errors"
	"github.com/featdb/featdb/metrics"
	"github.com/featdb/featdb/proto"
	"github.com/featdb/featdb/store"
)

// viewRequest is one feature view's slice of a read request: the resolved
// view plus the features referenced from it, request order kept.
type viewRequest struct {
	fv       *proto.FeatureView
	features []string
}

// GetOnlineFeatures serves the read path. Feature references are resolved
// and authorized as a whole before any store access; one unknown view or one
// denied view fails the complete request.
func (s *Server) GetOnlineFeatures(ctx context.Context, principal auth.Principal, req *proto.GetOnlineFeaturesRequest) (*proto.GetOnlineFeaturesResponse, error) {
	if err := s.limiter.AcquireRead(); err != nil {
		return nil, apierrors.NewTooManyRequests(err)
	}
	defer s.limiter.ReleaseRead()

	span := trace.SpanFromContextSafe(ctx)

	if len(req.Features) == 0 {
		return nil, apierrors.NewInvalidArgument("no features requested")
	}
	if len(req.EntityRows) == 0 {
		return nil, apierrors.NewInvalidArgument("no entity rows")
	}

	viewReqs, err := s.resolveFeatureRefs(ctx, req.Features)
	if err != nil {
		return nil, err
	}

	resources := make([]auth.Resource, 0, len(viewReqs))
	for _, vr := range viewReqs {
		resources = append(resources, auth.Resource{Kind: vr.fv.Kind, Name: vr.fv.Name})
	}
	if err = s.enforcer.Authorize(ctx, principal, auth.ActionReadOnline, resources...); err != nil {
		return nil, err
	}

	// Encode entity keys per view, then fan the per-view batch reads out on
	// the shared pool. Rows from unrelated requests never serialize here.
	rows := make([][]store.FeatureRow, len(viewReqs))
	keysPerView := make([][][]byte, len(viewReqs))
	for i, vr := range viewReqs {
		keys, kerr := s.encodeRequestKeys(ctx, vr.fv, req.EntityRows)
		if kerr != nil {
			return nil, kerr
		}
		keysPerView[i] = keys
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range viewReqs {
		i := i
		wg.Add(1)
		s.readPool.Run(func() {
			defer wg.Done()
			viewRows, rerr := s.store.Read(ctx, viewReqs[i].fv, keysPerView[i])
			mu.Lock()
			if rerr != nil && firstErr == nil {
				firstErr = rerr
			}
			rows[i] = viewRows
			mu.Unlock()
		})
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	resp := s.assembleColumns(ctx, viewReqs, req.EntityRows, rows)
	span.Debugf("served %d features over %d rows", len(req.Features), len(req.EntityRows))
	return resp, nil
}

// resolveFeatureRefs parses "featureview:feature" references and resolves
// every named view, grouping features by view in first-reference order.
func (s *Server) resolveFeatureRefs(ctx context.Context, refs []string) ([]*viewRequest, error) {
	var ordered []*viewRequest
	byView := make(map[string]*viewRequest)
	for _, ref := range refs {
		viewName, feature, ok := splitFeatureRef(ref)
		if !ok {
			return nil, apierrors.NewInvalidFeatureReference(ref)
		}
		vr := byView[viewName]
		if vr == nil {
			fv, err := s.registry.GetFeatureView(ctx, viewName)
			if err != nil {
				return nil, err
			}
			vr = &viewRequest{fv: fv}
			byView[viewName] = vr
			ordered = append(ordered, vr)
		}
		if _, found := vr.fv.Field(feature); !found {
			return nil, apierrors.NewInvalidArgument("feature %s not part of feature view %s", feature, viewName)
		}
		vr.features = append(vr.features, feature)
	}
	return ordered, nil
}

func splitFeatureRef(ref string) (view, feature string, ok bool) {
	idx := strings.IndexByte(ref, ':')
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", false
	}
	return ref[:idx], ref[idx+1:], true
}

// encodeRequestKeys coerces each entity row against the view's entity
// definitions and encodes the canonical key over the view's entity subset.
func (s *Server) encodeRequestKeys(ctx context.Context, fv *proto.FeatureView, entityRows []map[string]interface{}) ([][]byte, error) {
	entities := make([]*proto.Entity, 0, len(fv.Entities))
	for _, name := range fv.Entities {
		e, err := s.registry.GetEntity(ctx, name)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	keys := make([][]byte, 0, len(entityRows))
	for i, row := range entityRows {
		pairs := make([]codec.EntityPair, 0, len(entities))
		for _, e := range entities {
			raw, ok := row[e.JoinKey]
			if !ok {
				return nil, apierrors.NewInvalidEntityValue("row %d misses entity value %s", i, e.JoinKey)
			}
			v, err := proto.ValueFromJSON(raw, e.ValueType)
			if err != nil {
				return nil, apierrors.NewInvalidEntityValue("row %d entity %s: %v", i, e.JoinKey, err)
			}
			pairs = append(pairs, codec.EntityPair{JoinKey: e.JoinKey, Value: v})
		}
		key, err := codec.Encode(pairs)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// assembleColumns builds the columnar response: one echoed column per entity
// join key seen in the request rows, one column per requested feature. A
// missing key, a feature never written, or a value staler than the view TTL
// yields null.
func (s *Server) assembleColumns(ctx context.Context, viewReqs []*viewRequest, entityRows []map[string]interface{}, rows [][]store.FeatureRow) *proto.GetOnlineFeaturesResponse {
	now := time.Now()
	results := make(map[string][]interface{})

	joinKeys := make(map[string]bool)
	for _, vr := range viewReqs {
		for _, name := range vr.fv.Entities {
			if e, err := s.registry.GetEntity(ctx, name); err == nil {
				joinKeys[e.JoinKey] = true
			}
		}
	}
	for jk := range joinKeys {
		col := make([]interface{}, len(entityRows))
		for i, row := range entityRows {
			col[i] = row[jk]
		}
		results[jk] = col
	}

	for vi, vr := range viewReqs {
		for _, feature := range vr.features {
			col := make([]interface{}, len(entityRows))
			for ri := range entityRows {
				col[ri] = featureCell(vr.fv, rows[vi][ri], feature, now)
			}
			results[feature] = col
		}
	}
	return &proto.GetOnlineFeaturesResponse{Results: results}
}

func featureCell(fv *proto.FeatureView, row store.FeatureRow, feature string, now time.Time) interface{} {
	if !row.Found {
		return nil
	}
	fval, ok := row.Values[feature]
	if !ok {
		return nil
	}
	if fv.TTL > 0 && now.Sub(fval.EventTS) > fv.TTL {
		return nil
	}
	return fval.Value.GoValue()
}

// rowWrite is one validated store write, staged so a row mutates nothing
// until every view's slice of it passed validation.
type rowWrite struct {
	fv     *proto.FeatureView
	key    []byte
	values map[string]proto.Value
}

// Push serves the write path. Push source and target views resolve and
// authorize before any store mutation; row-level validation failures are
// collected per row while the remaining rows proceed.
func (s *Server) Push(ctx context.Context, principal auth.Principal, req *proto.PushRequest) (*proto.PushResponse, error) {
	if err := s.limiter.AcquireWrite(); err != nil {
		return nil, apierrors.NewTooManyRequests(err)
	}
	defer s.limiter.ReleaseWrite()

	span := trace.SpanFromContextSafe(ctx)

	ps, err := s.registry.GetPushSource(ctx, req.PushSource)
	if err != nil {
		return nil, err
	}
	views := make([]*proto.FeatureView, 0, len(ps.FeatureViews))
	resources := make([]auth.Resource, 0, len(ps.FeatureViews))
	for _, name := range ps.FeatureViews {
		fv, verr := s.registry.GetFeatureView(ctx, name)
		if verr != nil {
			return nil, verr
		}
		views = append(views, fv)
		resources = append(resources, auth.Resource{Kind: fv.Kind, Name: fv.Name})
	}
	if err = s.enforcer.Authorize(ctx, principal, auth.ActionWriteOnline, resources...); err != nil {
		return nil, err
	}

	resp := &proto.PushResponse{}
	writeTS := time.Now()
	for i, row := range req.Rows {
		writes, eventTS, rerr := s.stageRow(ctx, views, row)
		if rerr != nil {
			resp.Failures = append(resp.Failures, proto.RowFailure{Row: i, Reason: rerr.Error()})
			continue
		}
		for _, w := range writes {
			if werr := s.store.Write(ctx, w.fv, w.key, w.values, eventTS, writeTS); werr != nil {
				// Backend failure aborts the request; validation failed rows
				// already reported stay reported.
				return nil, werr
			}
		}
		resp.RowsWritten++
	}

	metrics.AddRowsWritten(req.PushSource, resp.RowsWritten)
	metrics.AddRowsFailed(req.PushSource, len(resp.Failures))
	span.Infof("push source[%s] rows written[%d] failed[%d]",
		req.PushSource, resp.RowsWritten, len(resp.Failures))
	return resp, nil
}

// stageRow validates one incoming row against every target view and returns
// the staged writes plus the parsed event timestamp. Any defect fails the
// whole row before it touches the store.
func (s *Server) stageRow(ctx context.Context, views []*proto.FeatureView, row map[string]interface{}) ([]rowWrite, time.Time, error) {
	rawTS, ok := row[proto.EventTimestampColumn]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("missing %s column", proto.EventTimestampColumn)
	}
	tsVal, err := proto.ValueFromJSON(rawTS, proto.ValueTypeUnixTimestamp)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("invalid %s: %v", proto.EventTimestampColumn, err)
	}
	eventTS := time.UnixMilli(tsVal.UnixMilli).UTC()

	var writes []rowWrite
	for _, fv := range views {
		pairs := make([]codec.EntityPair, 0, len(fv.Entities))
		for _, name := range fv.Entities {
			e, gerr := s.registry.GetEntity(ctx, name)
			if gerr != nil {
				return nil, time.Time{}, gerr
			}
			raw, found := row[e.JoinKey]
			if !found {
				return nil, time.Time{}, fmt.Errorf("missing entity value %s", e.JoinKey)
			}
			v, verr := proto.ValueFromJSON(raw, e.ValueType)
			if verr != nil {
				return nil, time.Time{}, fmt.Errorf("entity %s: %v", e.JoinKey, verr)
			}
			pairs = append(pairs, codec.EntityPair{JoinKey: e.JoinKey, Value: v})
		}
		key, kerr := codec.Encode(pairs)
		if kerr != nil {
			return nil, time.Time{}, kerr
		}

		values := make(map[string]proto.Value)
		for _, f := range fv.Fields {
			raw, found := row[f.Name]
			if !found {
				continue
			}
			v, verr := proto.ValueFromJSON(raw, f.Dtype)
			if verr != nil {
				return nil, time.Time{}, fmt.Errorf("feature %s: %v", f.Name, verr)
			}
			values[f.Name] = v
		}
		if len(values) == 0 {
			continue
		}
		writes = append(writes, rowWrite{fv: fv, key: key, values: values})
	}
	return writes, eventTS, nil
}
