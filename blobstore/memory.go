package blobstore

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps blobs in a map. It backs tests and the memory storage
// backend, where media and indexes live only as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	baseURL string
}

// NewMemoryStore creates an empty store whose URLs look like "mem://<name>".
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreURL("mem://")
}

// NewMemoryStoreURL creates an empty store that prefixes names with baseURL.
func NewMemoryStoreURL(baseURL string) *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte), baseURL: baseURL}
}

// Open returns a snapshot of the blob; later Puts do not affect it.
func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	data, ok := m.blobs[name]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return memoryBlob{bytes.NewReader(data)}, nil
}

// Put stores a copy of data.
func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	data = bytes.Clone(data)
	if data == nil {
		data = []byte{}
	}

	m.mu.Lock()
	m.blobs[name] = data
	m.mu.Unlock()

	return nil
}

// Delete removes a blob.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.blobs, name)
	m.mu.Unlock()

	return nil
}

// List returns the sorted names starting with prefix.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := slices.Sorted(maps.Keys(m.blobs))
	return slices.DeleteFunc(names, func(n string) bool {
		return !strings.HasPrefix(n, prefix)
	}), nil
}

// URL implements BlobStore.
func (m *MemoryStore) URL(name string) string {
	if strings.HasSuffix(m.baseURL, "://") {
		return m.baseURL + name
	}
	return joinURL(m.baseURL, name)
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.blobs)
}

// Bytes returns the total size of the stored blobs.
func (m *MemoryStore) Bytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, b := range m.blobs {
		n += int64(len(b))
	}
	return n
}

// memoryBlob never mutates its slice, so readers may share it.
type memoryBlob struct {
	r *bytes.Reader
}

func (b memoryBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.r.ReadAt(p, off)
}

func (b memoryBlob) Close() error { return nil }

func (b memoryBlob) Size() int64 { return b.r.Size() }
