package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/featdb/featdb/common/kvstore"
	apierrors "github.com/featdb/featdb/errors"
	"github.com/featdb/featdb/proto"
	"github.com/featdb/featdb/util"
)

const dataCF = kvstore.CF("data")

// rocksStore persists feature rows in rocksdb, one row per
// (feature view, entity key) under a length-prefixed view key.
type rocksStore struct {
	kvStore kvstore.Store
	locks   keyLocker
}

type valueEnvelope struct {
	Type      proto.ValueType `json:"type"`
	Value     interface{}     `json:"value"`
	EventTS   time.Time       `json:"event_ts"`
	CreatedTS time.Time       `json:"created_ts"`
}

type rowEnvelope struct {
	Features map[string]valueEnvelope `json:"features"`
}

func NewRocksStore(ctx context.Context, cfg *Config) (Store, error) {
	opt := cfg.KVOption
	opt.CreateIfMissing = true
	opt.ColumnFamily = append(opt.ColumnFamily, dataCF)

	kvStore, err := kvstore.NewKVStore(ctx, cfg.Path+"/kv", kvstore.RocksdbLsmKVType, &opt)
	if err != nil {
		return nil, errors.Info(err, "open kvstore failed")
	}
	return &rocksStore{kvStore: kvStore}, nil
}

func (r *rocksStore) Read(ctx context.Context, fv *proto.FeatureView, keys [][]byte) ([]FeatureRow, error) {
	storeKeys := make([][]byte, len(keys))
	for i, key := range keys {
		storeKeys[i] = encodeStoreKey(fv.Name, key)
	}

	values, err := r.kvStore.MultiGetRaw(ctx, dataCF, storeKeys)
	if err != nil {
		return nil, apierrors.NewStoreUnavailable(err)
	}

	ret := make([]FeatureRow, len(keys))
	for i, data := range values {
		if data == nil {
			continue
		}
		row, err := decodeRow(data)
		if err != nil {
			return nil, errors.Info(err, "decode stored row failed")
		}
		ret[i] = FeatureRow{Values: row, Found: true}
	}
	return ret, nil
}

func (r *rocksStore) Write(ctx context.Context, fv *proto.FeatureView, key []byte, values map[string]proto.Value, eventTS, writeTS time.Time) error {
	lock := r.locks.keyLock(fv.Name, key)
	lock.Lock()
	defer lock.Unlock()

	storeKey := encodeStoreKey(fv.Name, key)

	row := make(map[string]FeatureValue)
	data, err := r.kvStore.GetRaw(ctx, dataCF, storeKey)
	if err != nil && err != kvstore.ErrNotFound {
		return apierrors.NewStoreUnavailable(err)
	}
	if err == nil {
		if row, err = decodeRow(data); err != nil {
			return errors.Info(err, "decode stored row failed")
		}
	}

	if !applyWrite(row, values, eventTS, writeTS) {
		return nil
	}

	encoded, err := encodeRow(row)
	if err != nil {
		return err
	}
	if err := r.kvStore.SetRaw(ctx, dataCF, storeKey, encoded); err != nil {
		return apierrors.NewStoreUnavailable(err)
	}
	return nil
}

func (r *rocksStore) Stats(ctx context.Context) (Stats, error) {
	kvStats, err := r.kvStore.Stats(ctx)
	if err != nil {
		return Stats{}, apierrors.NewStoreUnavailable(err)
	}
	return Stats{Driver: RocksdbDriver, UsedBytes: kvStats.Used}, nil
}

func (r *rocksStore) Close() {
	r.kvStore.Close()
}

func encodeStoreKey(viewName string, entityKey []byte) []byte {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(viewName)))

	key := make([]byte, 0, n+len(viewName)+len(entityKey))
	key = append(key, scratch[:n]...)
	key = append(key, util.StringsToBytes(viewName)...)
	key = append(key, entityKey...)
	return key
}

func encodeRow(row map[string]FeatureValue) ([]byte, error) {
	env := rowEnvelope{Features: make(map[string]valueEnvelope, len(row))}
	for name, v := range row {
		env.Features[name] = valueEnvelope{
			Type:      v.Value.Type,
			Value:     v.Value.GoValue(),
			EventTS:   v.EventTS,
			CreatedTS: v.CreatedTS,
		}
	}
	return json.Marshal(env)
}

func decodeRow(data []byte) (map[string]FeatureValue, error) {
	env := rowEnvelope{}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	row := make(map[string]FeatureValue, len(env.Features))
	for name, v := range env.Features {
		value, err := proto.ValueFromJSON(v.Value, v.Type)
		if err != nil {
			return nil, err
		}
		row[name] = FeatureValue{Value: value, EventTS: v.EventTS, CreatedTS: v.CreatedTS}
	}
	return row, nil
}
