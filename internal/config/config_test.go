package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	ferrors "github.com/vango-dev/framepipe/internal/errors"
	"github.com/vango-dev/framepipe/pkg/sched"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Frame.TargetFPS != DefaultTargetFPS {
		t.Errorf("Frame.TargetFPS = %d, want %d", cfg.Frame.TargetFPS, DefaultTargetFPS)
	}
	if cfg.Pipeline.ParallelLayout != 1 {
		t.Errorf("Pipeline.ParallelLayout = %d, want 1", cfg.Pipeline.ParallelLayout)
	}
	if cfg.HitTest.CellSize != 0.1 {
		t.Errorf("HitTest.CellSize = %v, want 0.1", cfg.HitTest.CellSize)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoadFromReader(t *testing.T) {
	yaml := `
pipeline:
  parallel_layout: 4
  layer_optimization: true
frame:
  target_fps: 120
  duration: 5s
demo:
  nodes: 64
log:
  level: debug
  format: json
`
	cfg, err := LoadFromReader("yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Pipeline.ParallelLayout != 4 {
		t.Errorf("Pipeline.ParallelLayout = %d, want 4", cfg.Pipeline.ParallelLayout)
	}
	if !cfg.Pipeline.LayerOptimization {
		t.Error("Pipeline.LayerOptimization = false, want true")
	}
	if cfg.Frame.TargetFPS != 120 {
		t.Errorf("Frame.TargetFPS = %d, want 120", cfg.Frame.TargetFPS)
	}
	if cfg.Frame.Duration != 5*time.Second {
		t.Errorf("Frame.Duration = %v, want 5s", cfg.Frame.Duration)
	}
	if cfg.Demo.Nodes != 64 {
		t.Errorf("Demo.Nodes = %d, want 64", cfg.Demo.Nodes)
	}
	// untouched keys keep their defaults
	if cfg.Demo.Fanout != 4 {
		t.Errorf("Demo.Fanout = %d, want 4", cfg.Demo.Fanout)
	}
	if got := cfg.FrameInterval(); got != time.Second/120 {
		t.Errorf("FrameInterval() = %v, want %v", got, time.Second/120)
	}
	if got := len(cfg.PipelineOptions()); got != 3 {
		t.Errorf("len(PipelineOptions()) = %d, want 3", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framepipe.json")
	content := `{"frame": {"target_fps": 30}, "server": {"enabled": true, "addr": ":9090"}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Frame.TargetFPS != 30 {
		t.Errorf("Frame.TargetFPS = %d, want 30", cfg.Frame.TargetFPS)
	}
	if !cfg.Server.Enabled || cfg.Server.Addr != ":9090" {
		t.Errorf("Server = %+v, want enabled on :9090", cfg.Server)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framepipe.yaml")
	if err := os.WriteFile(path, []byte("frame:\n  target_fps: 30\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRAMEPIPE_FRAME_TARGET_FPS", "144")
	t.Setenv("FRAMEPIPE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Frame.TargetFPS != 144 {
		t.Errorf("Frame.TargetFPS = %d, want 144", cfg.Frame.TargetFPS)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load(missing) error = nil, want error")
	}
	if !errors.Is(err, ferrors.New(ferrors.CodeConfigRead)) {
		t.Errorf("Load(missing) error = %v, want %s", err, ferrors.CodeConfigRead)
	}
}

func TestLoadNoFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty", cfg.Path())
	}
	if cfg.Frame.TargetFPS != DefaultTargetFPS {
		t.Errorf("Frame.TargetFPS = %d, want %d", cfg.Frame.TargetFPS, DefaultTargetFPS)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fps", func(c *Config) { c.Frame.TargetFPS = 0 }},
		{"negative frames", func(c *Config) { c.Frame.Frames = -1 }},
		{"zero parallel", func(c *Config) { c.Pipeline.ParallelLayout = 0 }},
		{"zero cell", func(c *Config) { c.HitTest.CellSize = 0 }},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }},
		{"server addr", func(c *Config) { c.Server.Enabled = true; c.Server.Addr = "" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"no nodes", func(c *Config) { c.Demo.Nodes = 0 }},
		{"no fanout", func(c *Config) { c.Demo.Fanout = 0 }},
		{"skip policy", func(c *Config) { c.Frame.SkipPolicy = "sometimes" }},
		{"skip threshold", func(c *Config) { c.Frame.SkipThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			var fe *ferrors.Error
			if !errors.As(err, &fe) || fe.Code != ferrors.CodeInvalidConfig {
				t.Errorf("Validate() = %v, want %s", err, ferrors.CodeInvalidConfig)
			}
		})
	}
}

func TestFrameSkip(t *testing.T) {
	skip, err := Default().Frame.Skip()
	if err != nil {
		t.Fatalf("Default().Frame.Skip() error = %v", err)
	}
	if skip != sched.DefaultSkipPolicy {
		t.Errorf("Skip() = %+v, want %+v", skip, sched.DefaultSkipPolicy)
	}

	cfg, err := LoadFromReader("yaml", []byte("frame:\n  skip_policy: deadline-miss\n"))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	skip, err = cfg.Frame.Skip()
	if err != nil || skip.Mode != sched.SkipOnDeadlineMiss {
		t.Errorf("Skip() = %+v, %v, want deadline-miss", skip, err)
	}
}

func TestSlogLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error", "INFO"} {
		if _, err := (LogConfig{Level: name}).SlogLevel(); err != nil {
			t.Errorf("SlogLevel(%q) error = %v", name, err)
		}
	}
}
