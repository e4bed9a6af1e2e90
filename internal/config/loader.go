package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "coincount"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "COINCOUNT"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that cobra flag
// bindings are honoured.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on a private viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{v: v}
}

// Load reads configuration from the search paths, environment variables and
// defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the final validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is LoadWithFile without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No file in the search paths: defaults and env vars only
	}

	cfg, err := l.Unmarshal()
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return cfg, nil
}

// Unmarshal decodes the current viper state, including flags bound after the
// initial load.
func (l *Loader) Unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// COINCOUNT_SEGMENTATION_AREA_MIN -> segmentation.area_min
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("segmentation.blur_kernel_size", d.Segmentation.BlurKernelSize)
	l.v.SetDefault("segmentation.blur_sigma", d.Segmentation.BlurSigma)
	l.v.SetDefault("segmentation.adaptive_window", d.Segmentation.AdaptiveWindow)
	l.v.SetDefault("segmentation.adaptive_bias", d.Segmentation.AdaptiveBias)
	l.v.SetDefault("segmentation.invert", d.Segmentation.Invert)
	l.v.SetDefault("segmentation.morph_operation", d.Segmentation.MorphOperation)
	l.v.SetDefault("segmentation.closing_kernel_shape", d.Segmentation.ClosingKernelShape)
	l.v.SetDefault("segmentation.closing_kernel_size", d.Segmentation.ClosingKernelSize)
	l.v.SetDefault("segmentation.closing_iterations", d.Segmentation.ClosingIterations)
	l.v.SetDefault("segmentation.area_min", d.Segmentation.AreaMin)
	l.v.SetDefault("segmentation.area_max", d.Segmentation.AreaMax)

	l.v.SetDefault("annotation.enabled", d.Annotation.Enabled)
	l.v.SetDefault("annotation.ellipse_color", d.Annotation.EllipseColor)
	l.v.SetDefault("annotation.ellipse_thickness", d.Annotation.EllipseThickness)
	l.v.SetDefault("annotation.text_color", d.Annotation.TextColor)
	l.v.SetDefault("annotation.text_anchor_x", d.Annotation.TextAnchorX)
	l.v.SetDefault("annotation.text_anchor_y", d.Annotation.TextAnchorY)
	l.v.SetDefault("annotation.text_scale", d.Annotation.TextScale)
	l.v.SetDefault("annotation.draw_boxes", d.Annotation.DrawBoxes)
	l.v.SetDefault("annotation.box_color", d.Annotation.BoxColor)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.annotated_dir", d.Output.AnnotatedDir)
	l.v.SetDefault("output.mask_dir", d.Output.MaskDir)
	l.v.SetDefault("output.image_format", d.Output.ImageFormat)
	l.v.SetDefault("output.jpeg_quality", d.Output.JPEGQuality)
	l.v.SetDefault("output.locale", d.Output.Locale)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.websocket_enabled", d.Server.WebSocketEnabled)
	l.v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", d.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day_mb", d.Server.RateLimit.MaxDataPerDayMB)

	l.v.SetDefault("fetch.timeout_sec", d.Fetch.TimeoutSec)
	l.v.SetDefault("fetch.max_download_mb", d.Fetch.MaxDownloadMB)
	l.v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)
	l.v.SetDefault("batch.include", []string{})
	l.v.SetDefault("batch.exclude", []string{})
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)
}

// GetResolvedConfig returns the current resolved settings for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a configuration file holding every default.
// An empty filename writes coincount.yaml in the working directory.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}

// PrintConfigInfo describes how configuration was resolved.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	used := l.GetConfigFileUsed()
	if used == "" {
		used = "(none, defaults and environment only)"
	}
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", used)
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s_\n", EnvPrefix)
}
