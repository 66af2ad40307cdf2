// Package config defines the run configuration for the reconstruction
// pipeline. Configuration is loaded from a JSON file, then overlaid with
// RETRACK_* environment variables; the pipeline itself consumes only the
// resolved values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// VideoInput names one camera's movie file plus an optional camera name
// that overrides anything embedded in or derivable from the file.
type VideoInput struct {
	Filename   string `json:"filename"`
	CameraName string `json:"camera_name,omitempty"`
}

// OutputKind enumerates the closed set of output sink variants.
type OutputKind string

const (
	OutputVideo    OutputKind = "video"
	OutputDebugTxt OutputKind = "debug_txt"
	OutputBraidz   OutputKind = "braidz"
)

// Output names one output sink and its destination.
type Output struct {
	Type     OutputKind `json:"type"`
	Filename string     `json:"filename"`
}

// Config is the full run configuration. Optional numeric knobs are
// pointers so "unset" is distinguishable from zero, matching how the
// tuning layer elsewhere in this codebase treats its JSON surface.
type Config struct {
	// InputBraidz is the path of the detection archive, if any.
	InputBraidz string `json:"input_braidz,omitempty" env:"RETRACK_INPUT_BRAIDZ"`
	// InputVideo lists the per-camera movie files, if any.
	InputVideo []VideoInput `json:"input_video,omitempty"`
	Output     []Output     `json:"output,omitempty"`

	// FrameDurationMicrosecs fixes the nominal frame duration; unset
	// means "estimate from the streams".
	FrameDurationMicrosecs *int64 `json:"frame_duration_microsecs,omitempty" env:"RETRACK_FRAME_DURATION_MICROSECS"`
	// SyncThresholdMicrosecs fixes the sync window; unset means half the
	// resolved frame duration.
	SyncThresholdMicrosecs *int64 `json:"sync_threshold_microseconds,omitempty" env:"RETRACK_SYNC_THRESHOLD_MICROSECONDS"`
	// MaxNumFrames caps the number of output moments.
	MaxNumFrames *int `json:"max_num_frames,omitempty" env:"RETRACK_MAX_NUM_FRAMES"`
	// SkipNFirstOutputFrames drops the leading moments from all outputs.
	SkipNFirstOutputFrames *int `json:"skip_n_first_output_frames,omitempty" env:"RETRACK_SKIP_N_FIRST_OUTPUT_FRAMES"`
	// LogIntervalFrames is the progress-log period in moments.
	LogIntervalFrames *int `json:"log_interval_frames,omitempty" env:"RETRACK_LOG_INTERVAL_FRAMES"`

	// SyncReportHTML, when set, names an HTML sync-quality report to
	// write after the run; SyncReportPNG a static plot of the same data.
	SyncReportHTML string `json:"sync_report_html,omitempty" env:"RETRACK_SYNC_REPORT_HTML"`
	SyncReportPNG  string `json:"sync_report_png,omitempty" env:"RETRACK_SYNC_REPORT_PNG"`
}

// DefaultLogInterval is the progress-log period used when the
// configuration does not set one.
const DefaultLogInterval = 100

// Load reads a JSON config file and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overlays RETRACK_* environment variables onto the config.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}
	return nil
}

// Validate rejects configurations the pipeline cannot act on. A config
// with no inputs at all is valid: the run produces no output, which is
// "nothing to do", not an error.
func (c *Config) Validate() error {
	for i, in := range c.InputVideo {
		if in.Filename == "" {
			return fmt.Errorf("input_video[%d]: filename is required", i)
		}
	}
	for i, out := range c.Output {
		switch out.Type {
		case OutputVideo, OutputDebugTxt, OutputBraidz:
		default:
			return fmt.Errorf("output[%d]: unknown type %q", i, out.Type)
		}
		if out.Filename == "" {
			return fmt.Errorf("output[%d]: filename is required", i)
		}
	}
	if c.FrameDurationMicrosecs != nil && *c.FrameDurationMicrosecs <= 0 {
		return fmt.Errorf("frame_duration_microsecs must be positive")
	}
	if c.SyncThresholdMicrosecs != nil && *c.SyncThresholdMicrosecs <= 0 {
		return fmt.Errorf("sync_threshold_microseconds must be positive")
	}
	return nil
}

// FrameDuration returns the configured nominal frame duration, or ok
// false when it must be estimated from the streams.
func (c *Config) FrameDuration() (time.Duration, bool) {
	if c.FrameDurationMicrosecs == nil {
		return 0, false
	}
	return time.Duration(*c.FrameDurationMicrosecs) * time.Microsecond, true
}

// SyncThreshold returns the configured sync window, or ok false when the
// default of half the frame duration applies.
func (c *Config) SyncThreshold() (time.Duration, bool) {
	if c.SyncThresholdMicrosecs == nil {
		return 0, false
	}
	return time.Duration(*c.SyncThresholdMicrosecs) * time.Microsecond, true
}

// LogInterval returns the progress-log period in moments.
func (c *Config) LogInterval() int {
	if c.LogIntervalFrames == nil || *c.LogIntervalFrames <= 0 {
		return DefaultLogInterval
	}
	return *c.LogIntervalFrames
}
