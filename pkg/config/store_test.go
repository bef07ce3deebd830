package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestNewStoreWritesDefaultWhenFileAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ntripstation.json")

	store, err := NewStore(path, testLogger())
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
	assert.Equal(t, Default().Port, store.Get().Port)
}

func TestStoreReloadPublishesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ntripstation.json")

	cfg := Default()
	cfg.Stations = []Station{{MountPoint: "A", Host: "h", Port: 2101, Latitude: 1, Longitude: 1}}
	writeJSON(t, path, cfg)

	store, err := NewStore(path, testLogger())
	require.NoError(t, err)

	cfg.MountPoint = "NEWMOUNT"
	writeJSON(t, path, cfg)

	require.NoError(t, store.Reload())
	assert.Equal(t, "NEWMOUNT", store.Get().MountPoint)
}

func TestStoreReloadRetainsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ntripstation.json")
	writeJSON(t, path, Default())

	store, err := NewStore(path, testLogger())
	require.NoError(t, err)
	before := store.Get()

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	assert.Error(t, store.Reload())
	assert.Equal(t, before, store.Get())
}

func TestStoreWatchFiresAfterReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ntripstation.json")
	writeJSON(t, path, Default())

	store, err := NewStore(path, testLogger())
	require.NoError(t, err)

	fired := make(chan ServerConfig, 1)
	store.Watch(func(cfg ServerConfig) { fired <- cfg })

	cfg := Default()
	cfg.MountPoint = "WATCHED"
	writeJSON(t, path, cfg)
	require.NoError(t, store.Reload())

	select {
	case got := <-fired:
		assert.Equal(t, "WATCHED", got.MountPoint)
	default:
		t.Fatal("watcher callback did not fire")
	}
}

func TestStoreReplacePublishesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ntripstation.json")
	writeJSON(t, path, Default())

	store, err := NewStore(path, testLogger())
	require.NoError(t, err)

	next := Default()
	next.MountPoint = "REPLACED"
	require.NoError(t, store.Replace(next))

	assert.Equal(t, "REPLACED", store.Get().MountPoint)

	reloaded, err := NewStore(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "REPLACED", reloaded.Get().MountPoint)
}

func TestStoreReplaceRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ntripstation.json")
	writeJSON(t, path, Default())

	store, err := NewStore(path, testLogger())
	require.NoError(t, err)
	before := store.Get()

	bad := Default()
	bad.Port = 0
	assert.Error(t, store.Replace(bad))
	assert.Equal(t, before, store.Get())
}

func writeJSON(t *testing.T, path string, cfg ServerConfig) {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
