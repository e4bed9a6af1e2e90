package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/coincount/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigShow_YAML(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "config", "show")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	d := config.DefaultConfig()
	assert.Equal(t, d.Segmentation, cfg.Segmentation)
	assert.Equal(t, d.Annotation, cfg.Annotation)
	assert.Equal(t, d.Server.Port, cfg.Server.Port)
}

func TestConfigShow_JSONWithFileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segmentation:\n  area_min: 4000\nserver:\n  port: 9090\n"), 0o600))
	t.Setenv("COINCOUNT_SERVER_PORT", "9191")

	out, _, err := execute(t, "--config", path, "config", "show", "--format", "json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.InDelta(t, 4000, cfg.Segmentation.AreaMin, 0)
	assert.Equal(t, 9191, cfg.Server.Port, "environment beats the file")
	assert.InDelta(t, 35000, cfg.Segmentation.AreaMax, 0)
}

func TestConfigShow_BadFormat(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "config", "show", "--format", "toml")
	require.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "coincount.yaml")
	mustExist(t, filepath.Join(dir, "coincount.yaml"))

	_, _, err = execute(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, _, err = execute(t, "config", "init", "--force")
	require.NoError(t, err)

	nested := filepath.Join(dir, "etc", "custom.yaml")
	_, _, err = execute(t, "config", "init", nested)
	require.NoError(t, err)

	// The generated file is picked up from the working directory.
	out, _, err = execute(t, "config", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "coincount.yaml")

	loaded, err := config.NewLoaderWithViper(viper.New()).LoadWithFile(nested)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Segmentation, loaded.Segmentation)
}

func TestConfigInfo_NoFile(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "config", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "(none, defaults and environment only)")
	assert.Contains(t, out, "COINCOUNT_")
}
