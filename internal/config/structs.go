//nolint:lll
package config

// Config represents the complete configuration for the coincount application.
// It covers every command (count, batch, serve) and is loaded from configuration
// files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Segmentation stage parameters
	Segmentation SegmentationConfig `mapstructure:"segmentation" yaml:"segmentation" json:"segmentation"`

	// Annotation of the output image
	Annotation AnnotationConfig `mapstructure:"annotation" yaml:"annotation" json:"annotation"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// URL input downloads
	Fetch FetchConfig `mapstructure:"fetch" yaml:"fetch" json:"fetch"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// SegmentationConfig contains the parameters of the binarization and filtering stages.
type SegmentationConfig struct {
	BlurKernelSize     int     `mapstructure:"blur_kernel_size" yaml:"blur_kernel_size" json:"blur_kernel_size"`
	BlurSigma          float64 `mapstructure:"blur_sigma" yaml:"blur_sigma" json:"blur_sigma"`
	AdaptiveWindow     int     `mapstructure:"adaptive_window" yaml:"adaptive_window" json:"adaptive_window"`
	AdaptiveBias       float64 `mapstructure:"adaptive_bias" yaml:"adaptive_bias" json:"adaptive_bias"`
	Invert             bool    `mapstructure:"invert" yaml:"invert" json:"invert"`
	MorphOperation     string  `mapstructure:"morph_operation" yaml:"morph_operation" json:"morph_operation"`
	ClosingKernelShape string  `mapstructure:"closing_kernel_shape" yaml:"closing_kernel_shape" json:"closing_kernel_shape"`
	ClosingKernelSize  int     `mapstructure:"closing_kernel_size" yaml:"closing_kernel_size" json:"closing_kernel_size"`
	ClosingIterations  int     `mapstructure:"closing_iterations" yaml:"closing_iterations" json:"closing_iterations"`
	AreaMin            float64 `mapstructure:"area_min" yaml:"area_min" json:"area_min"`
	AreaMax            float64 `mapstructure:"area_max" yaml:"area_max" json:"area_max"`
}

// AnnotationConfig contains drawing settings for the annotated image.
type AnnotationConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	EllipseColor     string `mapstructure:"ellipse_color" yaml:"ellipse_color" json:"ellipse_color"`
	EllipseThickness int    `mapstructure:"ellipse_thickness" yaml:"ellipse_thickness" json:"ellipse_thickness"`
	TextColor        string `mapstructure:"text_color" yaml:"text_color" json:"text_color"`
	TextAnchorX      int    `mapstructure:"text_anchor_x" yaml:"text_anchor_x" json:"text_anchor_x"`
	TextAnchorY      int    `mapstructure:"text_anchor_y" yaml:"text_anchor_y" json:"text_anchor_y"`
	TextScale        int    `mapstructure:"text_scale" yaml:"text_scale" json:"text_scale"`
	DrawBoxes        bool   `mapstructure:"draw_boxes" yaml:"draw_boxes" json:"draw_boxes"`
	BoxColor         string `mapstructure:"box_color" yaml:"box_color" json:"box_color"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format       string `mapstructure:"format" yaml:"format" json:"format"`
	File         string `mapstructure:"file" yaml:"file" json:"file"`
	AnnotatedDir string `mapstructure:"annotated_dir" yaml:"annotated_dir" json:"annotated_dir"`
	MaskDir      string `mapstructure:"mask_dir" yaml:"mask_dir" json:"mask_dir"`
	ImageFormat  string `mapstructure:"image_format" yaml:"image_format" json:"image_format"`
	JPEGQuality  int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
	Locale       string `mapstructure:"locale" yaml:"locale" json:"locale"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host             string          `mapstructure:"host" yaml:"host" json:"host"`
	Port             int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin       string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB      int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec       int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout  int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	WebSocketEnabled bool            `mapstructure:"websocket_enabled" yaml:"websocket_enabled" json:"websocket_enabled"`
	RateLimit        RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits and daily quotas.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// FetchConfig contains settings for downloading URL inputs.
type FetchConfig struct {
	TimeoutSec    int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxDownloadMB int    `mapstructure:"max_download_mb" yaml:"max_download_mb" json:"max_download_mb"`
	UserAgent     string `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}
