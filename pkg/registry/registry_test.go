package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/nimburion/adapter-registry/pkg/adaptertype"
	"github.com/nimburion/adapter-registry/pkg/store"
	"github.com/nimburion/adapter-registry/pkg/testutil"
)

type mockObjectStore struct {
	mu      sync.Mutex
	objects map[string]string
	puts    int

	listKeysFn  func(ctx context.Context, bucket, prefix string) store.Result[[]string]
	getObjectFn func(ctx context.Context, bucket, key string) store.Result[*string]
	putObjectFn func(ctx context.Context, bucket, key string, body []byte) store.Result[bool]
}

func newMockObjectStore(objects map[string]string) *mockObjectStore {
	if objects == nil {
		objects = map[string]string{}
	}
	return &mockObjectStore{objects: objects}
}

func (m *mockObjectStore) ListKeys(ctx context.Context, bucket, prefix string) store.Result[[]string] {
	if m.listKeysFn != nil {
		return m.listKeysFn(ctx, bucket, prefix)
	}
	return store.Fail[[]string](errors.New("unexpected list"))
}

func (m *mockObjectStore) GetObject(ctx context.Context, bucket, key string) store.Result[*string] {
	if m.getObjectFn != nil {
		return m.getObjectFn(ctx, bucket, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	if !ok {
		return store.Fail[*string](errors.New("NoSuchKey"))
	}
	return store.OK(&body)
}

func (m *mockObjectStore) PutObject(ctx context.Context, bucket, key string, body []byte) store.Result[bool] {
	m.mu.Lock()
	m.puts++
	m.mu.Unlock()
	if m.putObjectFn != nil {
		return m.putObjectFn(ctx, bucket, key, body)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(body)
	return store.OK(true)
}

// memoryIndex is an in-memory Index honoring the conditional write contract.
type memoryIndex struct {
	mu      sync.Mutex
	entries map[string]adaptertype.Descriptor
	writes  int

	listFn        func(ctx context.Context, table string) store.Result[[]adaptertype.Descriptor]
	queryFn       func(ctx context.Context, table, name string) store.Result[*adaptertype.Descriptor]
	upsertFn      func(ctx context.Context, table string, d adaptertype.Descriptor, expected *string) store.Result[bool]
	deleteByNameF func(ctx context.Context, table, name string) store.Result[bool]
	deleteAllFn   func(ctx context.Context, table string) store.Result[[]adaptertype.Key]
}

func newMemoryIndex(entries ...adaptertype.Descriptor) *memoryIndex {
	idx := &memoryIndex{entries: map[string]adaptertype.Descriptor{}}
	for _, e := range entries {
		idx.entries[e.Name] = e
	}
	return idx
}

func (m *memoryIndex) List(ctx context.Context, table string) store.Result[[]adaptertype.Descriptor] {
	if m.listFn != nil {
		return m.listFn(ctx, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]adaptertype.Descriptor, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return store.OK(out)
}

func (m *memoryIndex) QueryByName(ctx context.Context, table, name string) store.Result[*adaptertype.Descriptor] {
	if m.queryFn != nil {
		return m.queryFn(ctx, table, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return store.OK[*adaptertype.Descriptor](nil)
	}
	return store.OK(&e)
}

func (m *memoryIndex) UpsertIfUnchanged(ctx context.Context, table string, d adaptertype.Descriptor, expected *string) store.Result[bool] {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, table, d, expected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.entries[d.Name]
	if exists && (expected == nil || current.Version != *expected) {
		return store.Fail[bool](store.ErrVersionConflict)
	}
	m.entries[d.Name] = d
	m.writes++
	return store.OK(true)
}

func (m *memoryIndex) DeleteByName(ctx context.Context, table, name string) store.Result[bool] {
	if m.deleteByNameF != nil {
		return m.deleteByNameF(ctx, table, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return store.OK(true)
}

func (m *memoryIndex) DeleteAll(ctx context.Context, table string) store.Result[[]adaptertype.Key] {
	if m.deleteAllFn != nil {
		return m.deleteAllFn(ctx, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]adaptertype.Key, 0, len(m.entries))
	for name := range m.entries {
		keys = append(keys, adaptertype.Key{Name: name})
	}
	m.entries = map[string]adaptertype.Descriptor{}
	return store.OK(keys)
}

func (m *memoryIndex) get(name string) (adaptertype.Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	return e, ok
}

func newTestService(objects ObjectStore, index Index) (*Service, *testutil.RecordingLogger) {
	log := testutil.NewRecordingLogger()
	return NewService(objects, index, log), log
}
