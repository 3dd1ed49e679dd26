package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampling_interval: 20\nwindow_size: 15\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(20), cfg.SamplingInterval)
	require.Equal(t, uint16(15), cfg.WindowSize)
	require.Equal(t, Default().MaxTrackedObjects, cfg.MaxTrackedObjects)
}

func TestWatcher_HotReloadsRuntimeMutableFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampling_interval: 10\n"), 0o600))

	initial, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(path, initial)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("sampling_interval: 42\n"), 0o600))

	require.Eventually(t, func() bool {
		return w.Current().SamplingInterval == 42
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoadDotEnv_MissingFileIsNotAnError(t *testing.T) {
	err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}
