package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every search path at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)
	return dir
}

func newTestLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewLoader(t *testing.T) {
	assert.Same(t, viper.GetViper(), NewLoader().GetViper())
	assert.NotNil(t, NewLoaderWithViper(nil).GetViper())
}

func TestLoad_NoConfigFile(t *testing.T) {
	isolate(t)

	loader := newTestLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Segmentation, cfg.Segmentation)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
	assert.Empty(t, loader.GetConfigFileUsed())
}

func TestLoad_FromWorkingDirectory(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "coincount.yaml"), `
log_level: debug
segmentation:
  area_min: 1000
  area_max: 20000
annotation:
  ellipse_color: "#ff0000"
batch:
  include: ["*.png"]
  recursive: true
`)

	loader := newTestLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 1000.0, cfg.Segmentation.AreaMin, 0)
	assert.InDelta(t, 20000.0, cfg.Segmentation.AreaMax, 0)
	assert.Equal(t, "#ff0000", cfg.Annotation.EllipseColor)
	assert.Equal(t, []string{"*.png"}, cfg.Batch.Include)
	assert.True(t, cfg.Batch.Recursive)
	// untouched keys keep their defaults
	assert.Equal(t, 15, cfg.Segmentation.BlurKernelSize)
	assert.Contains(t, loader.GetConfigFileUsed(), "coincount.yaml")
}

func TestLoad_XDGConfigHome(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "xdg", "coincount", "coincount.yaml"), "server:\n  port: 9191\n")

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("COINCOUNT_SEGMENTATION_AREA_MIN", "6000")
	t.Setenv("COINCOUNT_SERVER_PORT", "9090")
	t.Setenv("COINCOUNT_OUTPUT_FORMAT", "json")
	t.Setenv("COINCOUNT_SERVER_RATE_LIMIT_ENABLED", "true")

	cfg, err := newTestLoader().Load()
	require.NoError(t, err)
	assert.InDelta(t, 6000.0, cfg.Segmentation.AreaMin, 0)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.True(t, cfg.Server.RateLimit.Enabled)
}

func TestLoad_InvalidValueFailsValidation(t *testing.T) {
	isolate(t)
	t.Setenv("COINCOUNT_LOG_LEVEL", "loud")

	_, err := newTestLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")

	cfg, err := newTestLoader().LoadWithoutValidation()
	require.NoError(t, err)
	assert.Equal(t, "loud", cfg.LogLevel)
}

func TestLoadWithFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "output:\n  format: csv\n  jpeg_quality: 70\n")

	cfg, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, 70, cfg.Output.JPEGQuality)

	_, err = newTestLoader().LoadWithFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "segmentation:\n  blur_kernel_size: 4\n")
	_, err = newTestLoader().LoadWithFile(bad)
	require.Error(t, err)

	cfg, err = newTestLoader().LoadWithFileWithoutValidation(bad)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Segmentation.BlurKernelSize)
}

func TestLoadWithFile_Malformed(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "broken.yaml")
	writeFile(t, path, "segmentation: [unterminated\n")

	_, err := newTestLoader().LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "generated.yaml")
	require.NoError(t, GenerateDefaultConfigFile(path))

	cfg, err := newTestLoader().LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Segmentation, cfg.Segmentation)
	assert.Equal(t, DefaultConfig().Annotation, cfg.Annotation)
}

func TestLoader_SetGetAndUnmarshal(t *testing.T) {
	isolate(t)
	loader := newTestLoader()
	_, err := loader.Load()
	require.NoError(t, err)

	loader.Set("segmentation.area_max", 12345.0)
	assert.InDelta(t, 12345.0, loader.Get("segmentation.area_max"), 0)

	cfg, err := loader.Unmarshal()
	require.NoError(t, err)
	assert.InDelta(t, 12345.0, cfg.Segmentation.AreaMax, 0)
	assert.Contains(t, loader.GetResolvedConfig(), "segmentation")
}

func TestGetConfigSearchPaths(t *testing.T) {
	dir := isolate(t)
	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, dir)
	assert.Contains(t, paths, filepath.Join(dir, "xdg", "coincount"))
	assert.Equal(t, "/etc/coincount", paths[len(paths)-1])
}

func TestPrintConfigInfo(t *testing.T) {
	isolate(t)
	var sb strings.Builder
	newTestLoader().PrintConfigInfo(&sb)
	assert.Contains(t, sb.String(), "Environment prefix: COINCOUNT_")
	assert.Contains(t, sb.String(), "defaults and environment only")
}
