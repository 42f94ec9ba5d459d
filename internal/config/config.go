package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	ferrors "github.com/vango-dev/framepipe/internal/errors"
	"github.com/vango-dev/framepipe/pkg/pipeline"
	"github.com/vango-dev/framepipe/pkg/sched"
)

const (
	// ConfigName is the base name of the default configuration file.
	ConfigName = "framepipe"

	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "FRAMEPIPE"

	// DefaultTargetFPS is the default frame rate.
	DefaultTargetFPS = 60

	// DefaultAddr is the default HTTP listen address when the server is
	// enabled.
	DefaultAddr = ":8080"
)

// Config is the complete run configuration.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline" json:"pipeline"`
	Frame    FrameConfig    `mapstructure:"frame" json:"frame"`
	HitTest  HitTestConfig  `mapstructure:"hit_test" json:"hit_test"`
	Metrics  MetricsConfig  `mapstructure:"metrics" json:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing" json:"tracing"`
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
	Demo     DemoConfig     `mapstructure:"demo" json:"demo"`
	Report   ReportConfig   `mapstructure:"report" json:"report"`

	path string
}

// PipelineConfig configures the layout and paint passes.
type PipelineConfig struct {
	// ParallelLayout is the number of workers per layout level. 1 lays
	// out sequentially.
	ParallelLayout int `mapstructure:"parallel_layout" json:"parallel_layout"`

	// LayerOptimization culls empty and covered layers after paint.
	LayerOptimization bool `mapstructure:"layer_optimization" json:"layer_optimization"`
}

// FrameConfig configures the frame loop.
type FrameConfig struct {
	TargetFPS int `mapstructure:"target_fps" json:"target_fps"`

	// Frames stops the run after this many frames. Zero runs until
	// Duration elapses or the process is interrupted.
	Frames int `mapstructure:"frames" json:"frames"`

	// Duration stops the run after this long. Zero means no limit.
	Duration time.Duration `mapstructure:"duration" json:"duration"`

	// PresentInterval is how often the presenter polls for a new frame.
	// Zero polls at the target frame rate.
	PresentInterval time.Duration `mapstructure:"present_interval" json:"present_interval"`

	// SkipPolicy is one of never, deadline-miss or consecutive-misses.
	SkipPolicy string `mapstructure:"skip_policy" json:"skip_policy"`

	// SkipThreshold is the run of missed deadlines that triggers a skip
	// under the consecutive-misses policy.
	SkipThreshold int `mapstructure:"skip_threshold" json:"skip_threshold"`
}

// Skip returns the parsed skip policy.
func (f FrameConfig) Skip() (sched.SkipPolicy, error) {
	mode, err := sched.ParseSkipMode(f.SkipPolicy)
	if err != nil {
		return sched.SkipPolicy{}, err
	}
	return sched.SkipPolicy{Mode: mode, Threshold: f.SkipThreshold}, nil
}

// HitTestConfig configures the hit-test cache.
type HitTestConfig struct {
	CellSize   float64 `mapstructure:"cell_size" json:"cell_size"`
	MaxEntries int     `mapstructure:"max_entries" json:"max_entries"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled"`
	Namespace string `mapstructure:"namespace" json:"namespace"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool              `mapstructure:"enabled" json:"enabled"`
	ServiceName string            `mapstructure:"service_name" json:"service_name"`
	Endpoint    string            `mapstructure:"endpoint" json:"endpoint"`
	Insecure    bool              `mapstructure:"insecure" json:"insecure"`
	Headers     map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	SampleRatio float64           `mapstructure:"sample_ratio" json:"sample_ratio"`
}

// ServerConfig configures the HTTP server exposing metrics and the frame
// stream.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" json:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"` // text or json
}

// DemoConfig shapes the synthetic tree and the producers driving it.
type DemoConfig struct {
	Nodes     int   `mapstructure:"nodes" json:"nodes"`
	Fanout    int   `mapstructure:"fanout" json:"fanout"`
	Producers int   `mapstructure:"producers" json:"producers"`
	Rate      int   `mapstructure:"rate" json:"rate"` // marks per second per producer
	Seed      int64 `mapstructure:"seed" json:"seed"`
}

// ReportConfig configures the end-of-run report.
type ReportConfig struct {
	// Dest is a file path or s3://bucket/key. Empty disables the report.
	Dest string `mapstructure:"dest" json:"dest"`
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.parallel_layout", 1)
	v.SetDefault("pipeline.layer_optimization", false)

	v.SetDefault("frame.target_fps", DefaultTargetFPS)
	v.SetDefault("frame.frames", 0)
	v.SetDefault("frame.duration", 0)
	v.SetDefault("frame.present_interval", 0)
	v.SetDefault("frame.skip_policy", sched.DefaultSkipPolicy.Mode.String())
	v.SetDefault("frame.skip_threshold", sched.DefaultSkipPolicy.Threshold)

	v.SetDefault("hit_test.cell_size", 0.1)
	v.SetDefault("hit_test.max_entries", 4096)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "framepipe")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "framepipe")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", DefaultAddr)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("demo.nodes", 500)
	v.SetDefault("demo.fanout", 4)
	v.SetDefault("demo.producers", 4)
	v.SetDefault("demo.rate", 200)
	v.SetDefault("demo.seed", 1)

	v.SetDefault("report.dest", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration with every default applied and no file
// or environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// Defaults always decode.
		panic(err)
	}
	return cfg
}

// Load reads configuration from path, or from framepipe.{yaml,json,toml} in
// the working directory when path is empty. A missing default file is not
// an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			slog.Debug("no config file found, using defaults", "component", "config")
		case os.IsNotExist(err):
			return nil, ferrors.New(ferrors.CodeConfigRead).
				WithDetail("Config file " + path + " does not exist.").
				Wrap(err)
		default:
			return nil, ferrors.New(ferrors.CodeConfigRead).Wrap(err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader loads configuration of the given type ("yaml", "json",
// ...) from content. Environment overrides are not applied.
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, ferrors.New(ferrors.CodeConfigRead).Wrap(err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ferrors.New(ferrors.CodeConfigRead).Wrap(err)
	}
	return &cfg, nil
}

// Path returns the file the configuration was loaded from, or "" when only
// defaults and environment were used.
func (c *Config) Path() string {
	return c.path
}

// Validate reports the first invalid setting as a C001 error.
func (c *Config) Validate() error {
	invalid := func(detail string) error {
		return ferrors.New(ferrors.CodeInvalidConfig).WithDetail(detail)
	}

	if c.Frame.TargetFPS <= 0 {
		return invalid("frame.target_fps must be positive")
	}
	if c.Frame.Frames < 0 {
		return invalid("frame.frames must not be negative")
	}
	if c.Frame.Duration < 0 || c.Frame.PresentInterval < 0 {
		return invalid("frame durations must not be negative")
	}
	if _, err := c.Frame.Skip(); err != nil {
		return invalid("frame.skip_policy must be one of never, deadline-miss, consecutive-misses")
	}
	if c.Frame.SkipThreshold < 1 {
		return invalid("frame.skip_threshold must be at least 1")
	}
	if c.Pipeline.ParallelLayout < 1 {
		return invalid("pipeline.parallel_layout must be at least 1")
	}
	if c.HitTest.CellSize <= 0 {
		return invalid("hit_test.cell_size must be positive")
	}
	if c.HitTest.MaxEntries < 0 {
		return invalid("hit_test.max_entries must not be negative")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return invalid("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return invalid("server.addr is required when the server is enabled")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return invalid("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be text or json")
	}
	if c.Demo.Nodes < 1 {
		return invalid("demo.nodes must be at least 1")
	}
	if c.Demo.Fanout < 1 {
		return invalid("demo.fanout must be at least 1")
	}
	if c.Demo.Producers < 0 || c.Demo.Rate < 0 {
		return invalid("demo.producers and demo.rate must not be negative")
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// FrameInterval returns the time between frames at the target frame rate.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Frame.TargetFPS)
}

// PipelineOptions returns the pipeline options these settings imply.
// Callers append their logger, observer and tracer. An unparsable skip
// policy is left at the pipeline default; Validate reports it.
func (c *Config) PipelineOptions() []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithTargetFPS(c.Frame.TargetFPS),
		pipeline.WithParallelLayout(c.Pipeline.ParallelLayout),
		pipeline.WithLayerOptimization(c.Pipeline.LayerOptimization),
	}
	if skip, err := c.Frame.Skip(); err == nil {
		opts = append(opts, pipeline.WithSkipPolicy(skip))
	}
	return opts
}
