package cache

import (
	"slices"
	"sync"
)

type memBucket struct {
	name    string
	storage *MemStorage
}

type memEntries struct {
	order   []string
	entries map[string]CacheEntry
}

// MemStorage keeps buckets in process memory.
type MemStorage struct {
	mutex   *sync.RWMutex
	order   []string
	buckets map[string]*memEntries
	closed  bool
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		mutex:   &sync.RWMutex{},
		buckets: make(map[string]*memEntries),
	}
}

func (m *MemStorage) Open(name string) (Bucket, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.ensure(name)
	return memBucket{name: name, storage: m}, nil
}

func (m *MemStorage) Has(name string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.buckets[name]
	return ok, nil
}

func (m *MemStorage) Delete(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.buckets[name]; !ok {
		return false, nil
	}
	delete(m.buckets, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	return true, nil
}

func (m *MemStorage) Keys() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Clone(m.order), nil
}

func (m *MemStorage) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	m.buckets = nil
	m.order = nil
	return nil
}

// ensure creates the bucket if needed. The caller must hold the write lock.
func (m *MemStorage) ensure(name string) *memEntries {
	b, ok := m.buckets[name]
	if !ok {
		b = &memEntries{entries: make(map[string]CacheEntry)}
		m.buckets[name] = b
		m.order = append(m.order, name)
	}
	return b
}

func (b memBucket) Name() string {
	return b.name
}

func (b memBucket) Get(key string) (CacheEntry, bool, error) {
	b.storage.mutex.RLock()
	defer b.storage.mutex.RUnlock()
	if b.storage.closed {
		return CacheEntry{}, false, ErrClosed
	}
	bucket, ok := b.storage.buckets[b.name]
	if !ok {
		return CacheEntry{}, false, nil
	}
	entry, ok := bucket.entries[key]
	return entry, ok, nil
}

func (b memBucket) Put(entry CacheEntry) error {
	return b.PutAll([]CacheEntry{entry})
}

func (b memBucket) PutAll(entries []CacheEntry) error {
	b.storage.mutex.Lock()
	defer b.storage.mutex.Unlock()
	if b.storage.closed {
		return ErrClosed
	}
	bucket := b.storage.ensure(b.name)
	for _, entry := range entries {
		if _, ok := bucket.entries[entry.Key]; !ok {
			bucket.order = append(bucket.order, entry.Key)
		}
		entry.Bytes = slices.Clone(entry.Bytes)
		bucket.entries[entry.Key] = entry
	}
	return nil
}

func (b memBucket) Delete(key string) (bool, error) {
	b.storage.mutex.Lock()
	defer b.storage.mutex.Unlock()
	if b.storage.closed {
		return false, ErrClosed
	}
	bucket, ok := b.storage.buckets[b.name]
	if !ok {
		return false, nil
	}
	if _, ok := bucket.entries[key]; !ok {
		return false, nil
	}
	delete(bucket.entries, key)
	bucket.order = slices.DeleteFunc(bucket.order, func(k string) bool { return k == key })
	return true, nil
}

func (b memBucket) Keys() ([]string, error) {
	b.storage.mutex.RLock()
	defer b.storage.mutex.RUnlock()
	if b.storage.closed {
		return nil, ErrClosed
	}
	bucket, ok := b.storage.buckets[b.name]
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(bucket.order), nil
}
