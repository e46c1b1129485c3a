package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/featdb/featdb/codec"
	"github.com/featdb/featdb/proto"
	"github.com/stretchr/testify/require"
)

var driverStatsView = &proto.FeatureView{
	Name:     "driver_hourly_stats",
	Kind:     proto.FeatureViewKindStandard,
	Entities: []string{"driver"},
	Fields: []proto.Field{
		{Name: "conv_rate", Dtype: proto.ValueTypeFloat32},
		{Name: "acc_rate", Dtype: proto.ValueTypeFloat32},
		{Name: "avg_daily_trips", Dtype: proto.ValueTypeInt64},
	},
	TTL: 24 * time.Hour,
}

func driverKey(t *testing.T, id int64) []byte {
	key, err := codec.Encode([]codec.EntityPair{{JoinKey: "driver_id", Value: proto.Int64Value(id)}})
	require.NoError(t, err)
	return key
}

func TestMemStoreReadAfterWrite(t *testing.T) {
	s := NewMemStore()
	defer s.Close()
	ctx := context.TODO()

	now := time.Now().UTC()
	key := driverKey(t, 1000)
	err := s.Write(ctx, driverStatsView, key, map[string]proto.Value{
		"conv_rate":       proto.Float32Value(0.56),
		"avg_daily_trips": proto.Int64Value(50),
	}, now, now)
	require.NoError(t, err)

	rows, err := s.Read(ctx, driverStatsView, [][]byte{key})
	require.NoError(t, err)
	require.Equal(t, 1, len(rows))
	require.True(t, rows[0].Found)
	require.True(t, rows[0].Values["conv_rate"].Value.Equal(proto.Float32Value(0.56)))
	require.True(t, rows[0].Values["avg_daily_trips"].Value.Equal(proto.Int64Value(50)))
}

func TestMemStoreMissingKey(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	rows, err := s.Read(context.TODO(), driverStatsView, [][]byte{driverKey(t, 9999)})
	require.NoError(t, err)
	require.Equal(t, 1, len(rows))
	require.False(t, rows[0].Found)
}

func TestMemStoreLastWriteWins(t *testing.T) {
	s := NewMemStore()
	defer s.Close()
	ctx := context.TODO()

	key := driverKey(t, 1000)
	t1 := time.Now().UTC()
	t2 := t1.Add(time.Minute)

	require.NoError(t, s.Write(ctx, driverStatsView, key,
		map[string]proto.Value{"conv_rate": proto.Float32Value(0.9)}, t2, t2))
	// an older event timestamp must not overwrite
	require.NoError(t, s.Write(ctx, driverStatsView, key,
		map[string]proto.Value{"conv_rate": proto.Float32Value(0.1)}, t1, t2))

	rows, err := s.Read(ctx, driverStatsView, [][]byte{key})
	require.NoError(t, err)
	require.True(t, rows[0].Values["conv_rate"].Value.Equal(proto.Float32Value(0.9)))
}

func TestMemStoreIdempotentRewrite(t *testing.T) {
	s := NewMemStore()
	defer s.Close()
	ctx := context.TODO()

	key := driverKey(t, 1001)
	ts := time.Now().UTC()
	values := map[string]proto.Value{
		"conv_rate": proto.Float32Value(0.74),
		"acc_rate":  proto.Float32Value(0.93),
	}
	require.NoError(t, s.Write(ctx, driverStatsView, key, values, ts, ts))

	rows1, err := s.Read(ctx, driverStatsView, [][]byte{key})
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, driverStatsView, key, values, ts, ts))
	rows2, err := s.Read(ctx, driverStatsView, [][]byte{key})
	require.NoError(t, err)
	require.Equal(t, rows1, rows2)
}

func TestMemStorePartialFeatureUpdate(t *testing.T) {
	s := NewMemStore()
	defer s.Close()
	ctx := context.TODO()

	key := driverKey(t, 1000)
	t1 := time.Now().UTC()
	t2 := t1.Add(time.Minute)

	require.NoError(t, s.Write(ctx, driverStatsView, key, map[string]proto.Value{
		"conv_rate": proto.Float32Value(0.5),
		"acc_rate":  proto.Float32Value(0.8),
	}, t1, t1))
	require.NoError(t, s.Write(ctx, driverStatsView, key, map[string]proto.Value{
		"conv_rate": proto.Float32Value(0.6),
	}, t2, t2))

	rows, err := s.Read(ctx, driverStatsView, [][]byte{key})
	require.NoError(t, err)
	require.True(t, rows[0].Values["conv_rate"].Value.Equal(proto.Float32Value(0.6)))
	// untouched feature keeps the earlier value
	require.True(t, rows[0].Values["acc_rate"].Value.Equal(proto.Float32Value(0.8)))
}

func TestMemStoreConcurrentWrites(t *testing.T) {
	s := NewMemStore()
	defer s.Close()
	ctx := context.TODO()

	key := driverKey(t, 1000)
	base := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := base.Add(time.Duration(i) * time.Millisecond)
			_ = s.Write(ctx, driverStatsView, key, map[string]proto.Value{
				"avg_daily_trips": proto.Int64Value(int64(i)),
			}, ts, ts)
		}(i)
	}
	wg.Wait()

	rows, err := s.Read(ctx, driverStatsView, [][]byte{key})
	require.NoError(t, err)
	// the write with the newest event timestamp must win
	require.True(t, rows[0].Values["avg_daily_trips"].Value.Equal(proto.Int64Value(63)))
}

func TestMemStoreStatsAndKeys(t *testing.T) {
	s := NewMemStore()
	defer s.Close()
	ctx := context.TODO()

	ts := time.Now().UTC()
	for _, id := range []int64{1002, 1000, 1001} {
		require.NoError(t, s.Write(ctx, driverStatsView, driverKey(t, id),
			map[string]proto.Value{"conv_rate": proto.Float32Value(0.5)}, ts, ts))
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, MemoryDriver, stats.Driver)
	require.Equal(t, uint64(3), stats.Keys[driverStatsView.Name])

	keys := s.(*memStore).ListKeys(driverStatsView.Name)
	require.Equal(t, 3, len(keys))
}
