// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the collector's configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen" json:"listen"`
	Liveness LivenessConfig `yaml:"liveness" json:"liveness"`
	Channel  ChannelConfig  `yaml:"channel" json:"channel"`
	Consumer ConsumerConfig `yaml:"consumer" json:"consumer"`
	Window   WindowConfig   `yaml:"window" json:"window"`
	Recorder RecorderConfig `yaml:"recorder" json:"recorder"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// ListenConfig configures the ingest endpoint.
type ListenConfig struct {
	// Network is tcp, tcp4, tcp6, unix, udp, udp4, udp6, or unixgram.
	// Default: udp
	Network string `yaml:"network" json:"network"`

	// Address is host:port for IP networks or a socket path for unix
	// networks.
	// Default: 0.0.0.0:8080
	Address string `yaml:"address" json:"address"`

	// IOTimeout bounds each blocking read.
	// Default: 1s
	IOTimeout Duration `yaml:"io_timeout" json:"io_timeout"`

	// MaxFrameBytes caps a frame's payload.
	// Default: 1048576
	MaxFrameBytes int `yaml:"max_frame_bytes" json:"max_frame_bytes"`

	// ReadBufferBytes sets SO_RCVBUF when positive.
	// Default: 0 (kernel default)
	ReadBufferBytes int `yaml:"read_buffer_bytes" json:"read_buffer_bytes"`
}

// LivenessConfig configures disconnect detection.
type LivenessConfig struct {
	// Timeout is the silence after which the producer is considered
	// disconnected. Silence must exceed it strictly.
	// Default: 1s
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// ChannelConfig configures the ingest-to-consumer hand-off.
type ChannelConfig struct {
	// Capacity is the number of samples held before the oldest is
	// dropped.
	// Default: 1024
	Capacity int `yaml:"capacity" json:"capacity"`
}

// ConsumerConfig configures the consumer loop cadence.
type ConsumerConfig struct {
	// PollInterval bounds each wait for a sample.
	// Default: 1ms
	PollInterval Duration `yaml:"poll_interval" json:"poll_interval"`

	// RefreshInterval is how often a view is published for
	// renderers.
	// Default: 50ms
	RefreshInterval Duration `yaml:"refresh_interval" json:"refresh_interval"`
}

// WindowConfig configures the display windows.
type WindowConfig struct {
	// TimeKey names the sample field used as every group's x axis.
	// Default: time
	TimeKey string `yaml:"time_key" json:"time_key"`

	// Capacity applies to groups that do not set their own.
	// Default: 10000
	Capacity int `yaml:"capacity" json:"capacity"`

	// Groups replaces the default groups when present.
	Groups []GroupConfig `yaml:"groups" json:"groups"`
}

// GroupConfig describes one display group.
type GroupConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Signals  []string `yaml:"signals" json:"signals"`
	Capacity int      `yaml:"capacity,omitempty" json:"capacity,omitempty"`

	Title  string `yaml:"title,omitempty" json:"title,omitempty"`
	XLabel string `yaml:"x_label,omitempty" json:"x_label,omitempty"`
	YLabel string `yaml:"y_label,omitempty" json:"y_label,omitempty"`

	// Limits is the initial y range; [0, 0] autoscales.
	Limits [2]float64 `yaml:"limits,omitempty" json:"limits,omitempty"`

	// Colors holds one colour per signal, or is empty.
	Colors []string `yaml:"colors,omitempty" json:"colors,omitempty"`
}

// RecorderConfig configures session persistence.
type RecorderConfig struct {
	// OutputDir receives session files. Created if absent.
	// Default: ${HOME}/.local/share/plotline/sessions
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Compression is none, zstd, or lz4.
	// Default: none
	Compression string `yaml:"compression" json:"compression"`

	// MaxPending bounds failed sessions held for retry.
	// Default: 4
	MaxPending int `yaml:"max_pending" json:"max_pending"`

	// IndexPath, when set, enables the SQLite session index.
	// Default: "" (disabled)
	IndexPath string `yaml:"index_path" json:"index_path"`
}

// HTTPConfig configures the read-only feed.
type HTTPConfig struct {
	// Address is host:port for the feed. Empty disables it.
	// Default: ""
	Address string `yaml:"address" json:"address"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level" json:"level"`

	// Format is auto, text, or json. Auto picks text on a terminal.
	// Default: auto
	Format string `yaml:"format" json:"format"`
}

// DefaultWindowCapacity is the per-group point count of the stock
// display.
const DefaultWindowCapacity = 10_000

// Colours of the stock display.
const (
	colorRed    = "#cf7171"
	colorGreen  = "#dbe8c1"
	colorBlue   = "#aecdd2"
	colorYellow = "#fadf7f"
	colorPurple = "#c696bc"
	colorBlack  = "#4d5359"
)

// Default returns the stock deployment's configuration.
func Default() *Config {
	cfg := &Config{
		Listen: ListenConfig{
			Network:       "udp",
			Address:       "0.0.0.0:8080",
			IOTimeout:     Duration(time.Second),
			MaxFrameBytes: 1 << 20,
		},
		Liveness: LivenessConfig{Timeout: Duration(time.Second)},
		Channel:  ChannelConfig{Capacity: 1024},
		Consumer: ConsumerConfig{
			PollInterval:    Duration(time.Millisecond),
			RefreshInterval: Duration(50 * time.Millisecond),
		},
		Window: WindowConfig{
			TimeKey:  "time",
			Capacity: DefaultWindowCapacity,
			Groups:   DefaultGroups(),
		},
		Recorder: RecorderConfig{
			OutputDir:   "${HOME}/.local/share/plotline/sessions",
			Compression: "none",
			MaxPending:  4,
		},
		Log: LogConfig{Level: "info", Format: "auto"},
	}
	cfg.expandVariables()
	cfg.applyGroupDefaults()
	return cfg
}

// DefaultGroups returns the stock three-panel layout. Capacities
// are left zero for the window-wide capacity to fill in.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{
			Name:    "control",
			Signals: []string{"master_control", "control"},
			Title:   "Control signal (PWM)",
			XLabel:  "Time (s)",
			YLabel:  "PWM (%)",
			Limits:  [2]float64{0, 101},
			Colors:  []string{colorYellow, colorBlue},
		},
		{
			Name:    "resistance",
			Signals: []string{"resistance"},
			Title:   "Resistance",
			XLabel:  "Time (s)",
			YLabel:  "Resistance (Ohm)",
			Limits:  [2]float64{0, 3.4},
			Colors:  []string{colorPurple},
		},
		{
			Name:    "position",
			Signals: []string{"position", "reference", "model"},
			Title:   "Position",
			XLabel:  "Time (s)",
			YLabel:  "Position (ticks)",
			Limits:  [2]float64{0, 41_000},
			Colors:  []string{colorGreen, colorRed, colorBlack},
		},
	}
}

// Load loads configuration from the PLOTLINE_CONFIG environment
// variable. There is no fallback: if it is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("PLOTLINE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PLOTLINE_CONFIG environment variable not set; " +
			"set it to the path of your plotline.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults, expands
// path variables, and applies group capacity defaults. It does not
// validate; call Validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.expandVariables()
	cfg.applyGroupDefaults()
	return cfg, nil
}

// loadFile decodes path into c. Groups present in the file replace
// the default groups rather than merging element-wise.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c.Window.Groups = nil

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		err = decoder.Decode(c)
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		err = decoder.Decode(c)
		// An empty file decodes to io.EOF; it means "all defaults".
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return err
	}

	if len(c.Window.Groups) == 0 {
		c.Window.Groups = DefaultGroups()
	}
	return nil
}

// applyGroupDefaults gives groups without a capacity the window-wide
// capacity.
func (c *Config) applyGroupDefaults() {
	for i := range c.Window.Groups {
		if c.Window.Groups[i].Capacity == 0 {
			c.Window.Groups[i].Capacity = c.Window.Capacity
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Recorder.OutputDir = expandVars(c.Recorder.OutputDir, vars)
	c.Recorder.IndexPath = expandVars(c.Recorder.IndexPath, vars)
	if c.Listen.Network == "unix" || c.Listen.Network == "unixgram" {
		c.Listen.Address = expandVars(c.Listen.Address, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	networks     = []string{"tcp", "tcp4", "tcp6", "unix", "udp", "udp4", "udp6", "unixgram"}
	compressions = []string{"none", "zstd", "lz4"}
	logLevels    = []string{"debug", "info", "warn", "error"}
	logFormats   = []string{"auto", "text", "json"}
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(networks, c.Listen.Network) {
		errs = append(errs, fmt.Errorf("listen.network must be one of: %v", networks))
	}
	if c.Listen.Address == "" {
		errs = append(errs, errors.New("listen.address is required"))
	}
	if c.Listen.IOTimeout <= 0 {
		errs = append(errs, errors.New("listen.io_timeout must be positive"))
	}
	if c.Listen.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("listen.max_frame_bytes must be positive"))
	}
	if c.Listen.ReadBufferBytes < 0 {
		errs = append(errs, errors.New("listen.read_buffer_bytes must not be negative"))
	}

	if c.Liveness.Timeout <= 0 {
		errs = append(errs, errors.New("liveness.timeout must be positive"))
	}
	if c.Channel.Capacity <= 0 {
		errs = append(errs, errors.New("channel.capacity must be positive"))
	}
	if c.Consumer.PollInterval <= 0 {
		errs = append(errs, errors.New("consumer.poll_interval must be positive"))
	}
	if c.Consumer.RefreshInterval <= 0 {
		errs = append(errs, errors.New("consumer.refresh_interval must be positive"))
	}

	if c.Window.TimeKey == "" {
		errs = append(errs, errors.New("window.time_key is required"))
	}
	if len(c.Window.Groups) == 0 {
		errs = append(errs, errors.New("window.groups must name at least one group"))
	}
	seen := make(map[string]bool)
	for i, group := range c.Window.Groups {
		prefix := fmt.Sprintf("window.groups[%d]", i)
		if group.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if seen[group.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is duplicated", prefix, group.Name))
		}
		seen[group.Name] = true
		if len(group.Signals) == 0 {
			errs = append(errs, fmt.Errorf("%s.signals must not be empty", prefix))
		}
		if group.Capacity <= 0 {
			errs = append(errs, fmt.Errorf("%s.capacity must be positive", prefix))
		}
		if len(group.Colors) != 0 && len(group.Colors) != len(group.Signals) {
			errs = append(errs, fmt.Errorf("%s.colors must have one entry per signal", prefix))
		}
		if group.Limits[0] > group.Limits[1] {
			errs = append(errs, fmt.Errorf("%s.limits must be [low, high]", prefix))
		}
	}

	if c.Recorder.OutputDir == "" {
		errs = append(errs, errors.New("recorder.output_dir is required"))
	}
	if !slices.Contains(compressions, c.Recorder.Compression) {
		errs = append(errs, fmt.Errorf("recorder.compression must be one of: %v", compressions))
	}
	if c.Recorder.MaxPending < 0 {
		errs = append(errs, errors.New("recorder.max_pending must not be negative"))
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	return errors.Join(errs...)
}
