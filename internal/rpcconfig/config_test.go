package rpcconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "librpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  workers: 4\n  default_serializer: msgpack\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Server.Workers)
	require.Equal(t, "msgpack", cfg.Server.DefaultSerializer)
	require.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadSerializer(t *testing.T) {
	cfg := Defaults()
	cfg.Server.DefaultSerializer = "xml"
	require.Error(t, Validate(cfg))
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "librpc.yaml")
	cfg := Defaults()
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Server.DefaultSerializer, loaded.Server.DefaultSerializer)
}
