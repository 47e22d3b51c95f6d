// 配置热重载测试。
package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "memflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReloadManager_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "data_dir: /v1\n")

	initial := MustLoad(path)
	m := NewReloadManager(initial, path)
	assert.Equal(t, "/v1", m.Config().DataDir)
	assert.Equal(t, 1, m.Version())

	writeConfigFile(t, dir, "data_dir: /v2\n")
	require.NoError(t, m.Reload())

	assert.Equal(t, "/v2", m.Config().DataDir)
	assert.Equal(t, 2, m.Version())
}

func TestReloadManager_InvalidConfigKept(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "data_dir: /v1\n")

	m := NewReloadManager(MustLoad(path), path)

	// top_k 0 无法通过校验,旧配置保留
	writeConfigFile(t, dir, "data_dir: /v2\npipeline:\n  top_k: 0\n")
	err := m.Reload()
	require.Error(t, err)
	assert.Equal(t, "/v1", m.Config().DataDir)
	assert.Equal(t, 1, m.Version())
}

func TestReloadManager_Callbacks(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "data_dir: /v1\n")

	m := NewReloadManager(MustLoad(path), path)

	var mu sync.Mutex
	var gotOld, gotNew string
	m.OnReload(func(oldCfg, newCfg *Config) {
		mu.Lock()
		gotOld, gotNew = oldCfg.DataDir, newCfg.DataDir
		mu.Unlock()
	})

	writeConfigFile(t, dir, "data_dir: /v2\n")
	require.NoError(t, m.Reload())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/v1", gotOld)
	assert.Equal(t, "/v2", gotNew)
}

func TestReloadManager_History(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "data_dir: /v1\n")

	m := NewReloadManager(MustLoad(path), path, WithMaxHistory(2))

	writeConfigFile(t, dir, "data_dir: /v2\n")
	require.NoError(t, m.Reload())
	writeConfigFile(t, dir, "data_dir: /v3\n")
	require.NoError(t, m.Reload())

	hist := m.History()
	require.Len(t, hist, 2)
	assert.Equal(t, 2, hist[0].Version)
	assert.Equal(t, 3, hist[1].Version)
}

func TestReloadManager_WatcherTriggersReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "data_dir: /v1\n")

	m := NewReloadManager(MustLoad(path), path)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { _ = m.Stop() })

	// Double start should error.
	require.Error(t, m.Start(ctx))

	// Poll interval is one second; back-date nothing, just rewrite and wait.
	time.Sleep(100 * time.Millisecond)
	writeConfigFile(t, dir, "data_dir: /v2\n")

	require.Eventually(t, func() bool {
		return m.Config().DataDir == "/v2"
	}, 5*time.Second, 100*time.Millisecond)
}

func TestReloadManager_StartWithoutPath(t *testing.T) {
	m := NewReloadManager(DefaultConfig(), "")
	require.Error(t, m.Start(context.Background()))
}
