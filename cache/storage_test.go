package cache

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storages(t *testing.T) map[string]Storage {
	t.Helper()
	mem := NewMemStorage()
	sqlMem, err := NewSQLiteStorage("")
	require.NoError(t, err)
	sqlFile, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlMem.Close()
		sqlFile.Close()
	})
	return map[string]Storage{
		"memory":        mem,
		"sqlite-memory": sqlMem,
		"sqlite-file":   sqlFile,
	}
}

func entry(key, body string) CacheEntry {
	return CacheEntry{Key: key, StoredAt: time.UnixMilli(1700000000000), Bytes: []byte(body)}
}

func TestOpenCreatesBucket(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			has, err := s.Has("v1")
			require.NoError(t, err)
			assert.False(t, has)

			b, err := s.Open("v1")
			require.NoError(t, err)
			assert.Equal(t, "v1", b.Name())

			has, err = s.Has("v1")
			require.NoError(t, err)
			assert.True(t, has)

			// opening again must not create a second bucket
			_, err = s.Open("v1")
			require.NoError(t, err)
			keys, err := s.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"v1"}, keys)
		})
	}
}

func TestPutGetOverwrite(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			b, err := s.Open("v1")
			require.NoError(t, err)

			_, ok, err := b.Get("GET:/")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.Put(entry("GET:/", "first")))
			require.NoError(t, b.Put(entry("GET:/style.css", "css")))
			require.NoError(t, b.Put(entry("GET:/", "second")))

			got, ok, err := b.Get("GET:/")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "second", string(got.Bytes))
			assert.True(t, got.StoredAt.Equal(time.UnixMilli(1700000000000)))

			keys, err := b.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"GET:/", "GET:/style.css"}, keys)
		})
	}
}

func TestPutAll(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			b, err := s.Open("v1")
			require.NoError(t, err)
			require.NoError(t, b.PutAll([]CacheEntry{
				entry("GET:/index.html", "html"),
				entry("GET:/style.css", "css"),
			}))
			keys, err := b.Keys()
			require.NoError(t, err)
			assert.Len(t, keys, 2)
		})
	}
}

func TestDeleteBucketRemovesEntries(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			old, err := s.Open("v0")
			require.NoError(t, err)
			require.NoError(t, old.Put(entry("GET:/", "old")))
			current, err := s.Open("v1")
			require.NoError(t, err)
			require.NoError(t, current.Put(entry("GET:/", "new")))

			deleted, err := s.Delete("v0")
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = s.Delete("v0")
			require.NoError(t, err)
			assert.False(t, deleted)

			keys, err := s.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"v1"}, keys)

			// a new bucket with the old name starts out empty
			reopened, err := s.Open("v0")
			require.NoError(t, err)
			entries, err := reopened.Keys()
			require.NoError(t, err)
			assert.Empty(t, entries)

			got, ok, err := current.Get("GET:/")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "new", string(got.Bytes))
		})
	}
}

func TestDeleteEntry(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			b, err := s.Open("v1")
			require.NoError(t, err)
			require.NoError(t, b.Put(entry("GET:/", "x")))

			deleted, err := b.Delete("GET:/")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = b.Delete("GET:/")
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestConcurrentPutsLastWriteWins(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			b, err := s.Open("v1")
			require.NoError(t, err)
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, b.Put(entry("GET:/", "body")))
				}()
			}
			wg.Wait()
			keys, err := b.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"GET:/"}, keys)
		})
	}
}

func TestMemStorageClosed(t *testing.T) {
	s := NewMemStorage()
	b, err := s.Open("v1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Open("v1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Put(entry("GET:/", "x")), ErrClosed)
}
