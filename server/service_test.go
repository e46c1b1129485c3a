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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/featdb/featdb/auth"
	apierrors "github.com/featdb/featdb/errors"
	"github.com/featdb/featdb/proto"
	"github.com/featdb/featdb/store"
)

var (
	readerPrincipal = auth.Principal{Name: "reader", Roles: []string{"reader"}}
	writerPrincipal = auth.Principal{Name: "writer", Roles: []string{"writer"}}
	adminPrincipal  = auth.Principal{Name: "admin", Roles: []string{"reader", "writer"}}
)

func testConfig() *Config {
	return &Config{
		StoreConfig: store.Config{Driver: store.MemoryDriver},
		Entities: []*proto.Entity{
			{Name: "driver", JoinKey: "driver_id", ValueType: proto.ValueTypeInt64},
		},
		FeatureViews: []FeatureViewConfig{
			{
				FeatureView: proto.FeatureView{
					Name:     "driver_hourly_stats",
					Kind:     proto.FeatureViewKindStandard,
					Entities: []string{"driver"},
					Fields: []proto.Field{
						{Name: "conv_rate", Dtype: proto.ValueTypeFloat32},
						{Name: "acc_rate", Dtype: proto.ValueTypeFloat32},
						{Name: "avg_daily_trips", Dtype: proto.ValueTypeInt64},
					},
				},
				TTLSeconds: 86400,
			},
		},
		PushSources: []*proto.PushSource{
			{Name: "driver_stats_push_source", FeatureViews: []string{"driver_hourly_stats"}},
		},
		Permissions: []PermissionConfig{
			{
				Name:    "read_online",
				Kinds:   []proto.FeatureViewKind{proto.FeatureViewKindStandard, proto.FeatureViewKindStream},
				Policy:  auth.PolicyKindRoleBased,
				Roles:   []string{"reader"},
				Actions: []auth.Action{auth.ActionReadOnline},
			},
			{
				Name:    "write_online",
				Kinds:   []proto.FeatureViewKind{proto.FeatureViewKindStandard, proto.FeatureViewKindStream},
				Policy:  auth.PolicyKindRoleBased,
				Roles:   []string{"writer"},
				Actions: []auth.Action{auth.ActionWriteOnline},
			},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	s, err := NewServer(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func driverRows(ts string) []map[string]interface{} {
	return []map[string]interface{}{
		{
			"driver_id":       float64(1000),
			"conv_rate":       0.56,
			"acc_rate":        0.95,
			"avg_daily_trips": float64(50),
			"event_timestamp": ts,
		},
		{
			"driver_id":       float64(1001),
			"conv_rate":       0.74,
			"acc_rate":        0.93,
			"avg_daily_trips": float64(45),
			"event_timestamp": ts,
		},
	}
}

func pushDriverStats(t *testing.T, s *Server, ts string) {
	resp, err := s.Push(context.Background(), writerPrincipal, &proto.PushRequest{
		PushSource: "driver_stats_push_source",
		Rows:       driverRows(ts),
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.RowsWritten)
	require.Empty(t, resp.Failures)
}

func TestReadAfterWriteDriverScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	pushDriverStats(t, s, time.Now().UTC().Format(time.RFC3339Nano))

	resp, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features: []string{
			"driver_hourly_stats:conv_rate",
			"driver_hourly_stats:acc_rate",
			"driver_hourly_stats:avg_daily_trips",
		},
		EntityRows: []map[string]interface{}{
			{"driver_id": float64(1000)},
			{"driver_id": float64(1001)},
		},
	})
	require.NoError(t, err)

	require.Equal(t, []interface{}{float64(1000), float64(1001)}, resp.Results["driver_id"])
	require.Equal(t, []interface{}{float32(0.56), float32(0.74)}, resp.Results["conv_rate"])
	require.Equal(t, []interface{}{float32(0.95), float32(0.93)}, resp.Results["acc_rate"])
	require.Equal(t, []interface{}{int64(50), int64(45)}, resp.Results["avg_daily_trips"])
}

func TestReadMissingKeyYieldsNulls(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	pushDriverStats(t, s, time.Now().UTC().Format(time.RFC3339Nano))

	resp, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(9999)}},
	})
	require.NoError(t, err)
	require.Equal(t, []interface{}{nil}, resp.Results["conv_rate"])
	require.Equal(t, []interface{}{float64(9999)}, resp.Results["driver_id"])
}

func TestUnknownFeatureViewOnRead(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"customer_profile:age"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodeFeatureViewNotFound))
	require.Contains(t, err.Error(), "Feature view customer_profile does not exist")
}

func TestUnknownFeatureViewOnWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	// Push source exists but one of its targets does not.
	s.registry.(interface {
		ApplyPushSource(*proto.PushSource)
	}).ApplyPushSource(&proto.PushSource{
		Name:         "broken_push_source",
		FeatureViews: []string{"vanished_view"},
	})

	_, err := s.Push(ctx, writerPrincipal, &proto.PushRequest{
		PushSource: "broken_push_source",
		Rows:       driverRows(time.Now().UTC().Format(time.RFC3339Nano)),
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodeFeatureViewNotFound))
	require.Contains(t, err.Error(), "Feature view vanished_view does not exist")
}

func TestUnknownPushSource(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.Push(ctx, writerPrincipal, &proto.PushRequest{
		PushSource: "no_such_source",
		Rows:       driverRows(time.Now().UTC().Format(time.RFC3339Nano)),
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodePushSourceNotFound))
	require.Contains(t, err.Error(), "no_such_source")
}

func TestMalformedFeatureReference(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	for _, ref := range []string{"conv_rate", ":conv_rate", "driver_hourly_stats:"} {
		_, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
			Features:   []string{ref},
			EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
		})
		require.True(t, apierrors.IsCode(err, apierrors.CodeInvalidFeatureReference), "ref %q", ref)
	}
}

func TestFeatureNotInView(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:no_such_feature"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodeInvalidArgument))
	require.Contains(t, err.Error(), "no_such_feature")
}

func TestMissingEntityValue(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"customer_id": float64(7)}},
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodeInvalidEntityValue))
	require.Contains(t, err.Error(), "driver_id")
}

func TestRoleSplitReadWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	pushDriverStats(t, s, time.Now().UTC().Format(time.RFC3339Nano))

	// Writer may not read.
	_, err := s.GetOnlineFeatures(ctx, writerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodePermissionDenied))
	require.Contains(t, err.Error(), "driver_hourly_stats")
	require.Contains(t, err.Error(), "read_online")

	// Reader may not write, and the denied push leaves no trace.
	_, err = s.Push(ctx, readerPrincipal, &proto.PushRequest{
		PushSource: "driver_stats_push_source",
		Rows: []map[string]interface{}{{
			"driver_id":       float64(1000),
			"conv_rate":       0.99,
			"event_timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}},
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodePermissionDenied))

	resp, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.NoError(t, err)
	require.Equal(t, float32(0.56), resp.Results["conv_rate"][0])

	// Admin holds both roles.
	_, err = s.GetOnlineFeatures(ctx, adminPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.NoError(t, err)
}

func TestLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	now := time.Now().UTC()
	pushDriverStats(t, s, now.Format(time.RFC3339Nano))

	// An older event is a silent no-op.
	_, err := s.Push(ctx, writerPrincipal, &proto.PushRequest{
		PushSource: "driver_stats_push_source",
		Rows: []map[string]interface{}{{
			"driver_id":       float64(1000),
			"conv_rate":       0.11,
			"event_timestamp": now.Add(-time.Hour).Format(time.RFC3339Nano),
		}},
	})
	require.NoError(t, err)

	// A newer one lands.
	_, err = s.Push(ctx, writerPrincipal, &proto.PushRequest{
		PushSource: "driver_stats_push_source",
		Rows: []map[string]interface{}{{
			"driver_id":       float64(1000),
			"conv_rate":       0.61,
			"event_timestamp": now.Add(time.Minute).Format(time.RFC3339Nano),
		}},
	})
	require.NoError(t, err)

	resp, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate", "driver_hourly_stats:acc_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.NoError(t, err)
	require.Equal(t, float32(0.61), resp.Results["conv_rate"][0])
	// Untouched features keep their values.
	require.Equal(t, float32(0.95), resp.Results["acc_rate"][0])
}

func TestTTLStaleYieldsNull(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	// Older than the view's 24h TTL.
	pushDriverStats(t, s, time.Now().UTC().Add(-48*time.Hour).Format(time.RFC3339Nano))

	resp, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.NoError(t, err)
	require.Equal(t, []interface{}{nil}, resp.Results["conv_rate"])
}

func TestPushPartialRowFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	resp, err := s.Push(ctx, writerPrincipal, &proto.PushRequest{
		PushSource: "driver_stats_push_source",
		Rows: []map[string]interface{}{
			{"driver_id": float64(1000), "conv_rate": 0.5, "event_timestamp": now},
			{"driver_id": float64(1001), "conv_rate": 0.6}, // no event_timestamp
			{"conv_rate": 0.7, "event_timestamp": now},     // no entity value
			{"driver_id": float64(1002), "conv_rate": "not a number", "event_timestamp": now},
			{"driver_id": float64(1003), "conv_rate": 0.8, "event_timestamp": "yesterday-ish"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.RowsWritten)
	require.Len(t, resp.Failures, 4)
	require.Equal(t, 1, resp.Failures[0].Row)
	require.Contains(t, resp.Failures[0].Reason, "event_timestamp")
	require.Equal(t, 2, resp.Failures[1].Row)
	require.Contains(t, resp.Failures[1].Reason, "driver_id")
	require.Equal(t, 3, resp.Failures[2].Row)
	require.Contains(t, resp.Failures[2].Reason, "conv_rate")
	require.Equal(t, 4, resp.Failures[3].Row)

	// The good row is visible.
	got, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.NoError(t, err)
	require.Equal(t, float32(0.5), got.Results["conv_rate"][0])
}

func TestIdempotentRewrite(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	ts := time.Now().UTC().Format(time.RFC3339Nano)

	pushDriverStats(t, s, ts)
	pushDriverStats(t, s, ts)

	resp, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.NoError(t, err)
	require.Equal(t, float32(0.56), resp.Results["conv_rate"][0])
}

func TestEmptyRequests(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodeInvalidArgument))

	_, err = s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features: []string{"driver_hourly_stats:conv_rate"},
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodeInvalidArgument))
}

func TestServerStats(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	pushDriverStats(t, s, time.Now().UTC().Format(time.RFC3339Nano))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, store.MemoryDriver, stats.Driver)
	require.EqualValues(t, 2, stats.Keys["driver_hourly_stats"])
}

func TestReloadPermissions(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	require.NoError(t, s.Reload(nil))
	_, err := s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.True(t, apierrors.IsCode(err, apierrors.CodePermissionDenied))

	require.NoError(t, s.Reload(testConfig().Permissions))
	_, err = s.GetOnlineFeatures(ctx, readerPrincipal, &proto.GetOnlineFeaturesRequest{
		Features:   []string{"driver_hourly_stats:conv_rate"},
		EntityRows: []map[string]interface{}{{"driver_id": float64(1000)}},
	})
	require.NoError(t, err)
}

func TestUnknownPolicyKind(t *testing.T) {
	cfg := testConfig()
	cfg.Permissions[0].Policy = "rbac-v2"
	_, err := NewServer(context.Background(), cfg)
	require.ErrorIs(t, err, apierrors.ErrUnknownPolicyKind)
}
