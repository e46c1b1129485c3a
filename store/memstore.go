package store

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cubefs/cubefs/util/btree"
	"github.com/featdb/featdb/proto"
	"github.com/featdb/featdb/util"
)

const memKeyTreeDegree = 32

// memStore keeps rows in per-view maps. Rows are replaced wholesale on
// write (copy-on-write), so readers observe either the pre-write or the
// post-write row, never a partial update.
type memStore struct {
	lock  sync.RWMutex
	views map[string]*memView
	locks keyLocker
}

type memView struct {
	lock sync.RWMutex
	rows map[string]map[string]FeatureValue
	keys *btree.BTree
}

type keyItem []byte

func (k keyItem) Less(than btree.Item) bool {
	return bytes.Compare(k, than.(keyItem)) < 0
}

func (k keyItem) Copy() btree.Item {
	return k
}

func NewMemStore() Store {
	return &memStore{views: make(map[string]*memView)}
}

func (m *memStore) Read(ctx context.Context, fv *proto.FeatureView, keys [][]byte) ([]FeatureRow, error) {
	ret := make([]FeatureRow, len(keys))

	m.lock.RLock()
	view := m.views[fv.Name]
	m.lock.RUnlock()
	if view == nil {
		return ret, nil
	}

	view.lock.RLock()
	for i, key := range keys {
		row, ok := view.rows[util.BytesToString(key)]
		if !ok {
			continue
		}
		values := make(map[string]FeatureValue, len(row))
		for name, v := range row {
			values[name] = v
		}
		ret[i] = FeatureRow{Values: values, Found: true}
	}
	view.lock.RUnlock()
	return ret, nil
}

func (m *memStore) Write(ctx context.Context, fv *proto.FeatureView, key []byte, values map[string]proto.Value, eventTS, writeTS time.Time) error {
	view := m.getOrCreateView(fv.Name)

	lock := m.locks.keyLock(fv.Name, key)
	lock.Lock()
	defer lock.Unlock()

	k := string(key)
	view.lock.RLock()
	cur := view.rows[k]
	view.lock.RUnlock()

	next := make(map[string]FeatureValue, len(cur)+len(values))
	for name, v := range cur {
		next[name] = v
	}
	if !applyWrite(next, values, eventTS, writeTS) {
		return nil
	}

	view.lock.Lock()
	view.rows[k] = next
	view.keys.ReplaceOrInsert(keyItem(key))
	view.lock.Unlock()
	return nil
}

func (m *memStore) Stats(ctx context.Context) (Stats, error) {
	keys := make(map[string]uint64)
	m.lock.RLock()
	for name, view := range m.views {
		view.lock.RLock()
		keys[name] = uint64(view.keys.Len())
		view.lock.RUnlock()
	}
	m.lock.RUnlock()
	return Stats{Driver: MemoryDriver, Keys: keys}, nil
}

func (m *memStore) Close() {}

// ListKeys returns the entity keys of a view in canonical byte order.
func (m *memStore) ListKeys(viewName string) [][]byte {
	m.lock.RLock()
	view := m.views[viewName]
	m.lock.RUnlock()
	if view == nil {
		return nil
	}

	var keys [][]byte
	view.lock.RLock()
	view.keys.Ascend(func(i btree.Item) bool {
		keys = append(keys, []byte(i.(keyItem)))
		return true
	})
	view.lock.RUnlock()
	return keys
}

func (m *memStore) getOrCreateView(name string) *memView {
	m.lock.RLock()
	view := m.views[name]
	m.lock.RUnlock()
	if view != nil {
		return view
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if view = m.views[name]; view != nil {
		return view
	}
	view = &memView{
		rows: make(map[string]map[string]FeatureValue),
		keys: btree.New(memKeyTreeDegree),
	}
	m.views[name] = view
	return view
}
