package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyDB = `{"actors":[{"id":1,"name":"Player","is_player":true}],"conversations":[{"id":1,"title":"One","entries":[{"id":0}]}]}`

func TestDatabaseCacheReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(tinyDB), 0o644))

	cache := NewDatabaseCache(2)
	first, err := cache.Load(path)
	require.NoError(t, err)
	again, err := cache.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, again)

	changed := `{"actors":[],"conversations":[{"id":1,"title":"Changed","entries":[{"id":0}]},{"id":2,"title":"Two","entries":[{"id":0}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	reloaded, err := cache.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Len(t, reloaded.Conversations, 2)

	cache.Invalidate(path)
	assert.Zero(t, cache.Len())
}

func TestDatabaseCacheErrors(t *testing.T) {
	dir := t.TempDir()
	cache := NewDatabaseCache(0)

	_, err := cache.Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = cache.Load(bad)
	assert.Error(t, err)
	assert.Zero(t, cache.Len())
}

func TestDatabaseCacheEvictsLeastRecentlyRead(t *testing.T) {
	dir := t.TempDir()
	cache := NewDatabaseCache(1)
	for _, name := range []string{"a.json", "b.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(tinyDB), 0o644))
		_, err := cache.Load(path)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cache.Len())
}
