// Package config handles global configuration loading using viper.
package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"firestige.xyz/tanakai/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `tanakai:` root key in YAML.
type GlobalConfig struct {
	Quiet    bool           `mapstructure:"quiet" yaml:"quiet"`
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Photon   PhotonConfig   `mapstructure:"photon" yaml:"photon"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Sink     SinkConfig     `mapstructure:"sink" yaml:"sink"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ─── Capture ───

// CaptureConfig selects and tunes the packet source.
type CaptureConfig struct {
	Driver       string        `mapstructure:"driver" yaml:"driver"`       // pcap / afpacket / file
	Interface    string        `mapstructure:"interface" yaml:"interface"` // Empty = first non-loopback device
	File         string        `mapstructure:"file" yaml:"file"`           // pcap file for the file driver
	Port         uint16        `mapstructure:"port" yaml:"port"`           // Photon UDP port
	BPFFilter    string        `mapstructure:"bpf_filter" yaml:"bpf_filter"`
	SnapLen      int           `mapstructure:"snap_len" yaml:"snap_len"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"` // Read timeout; expiry is not an error
	Promiscuous  bool          `mapstructure:"promiscuous" yaml:"promiscuous"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"` // afpacket ring size
}

// ─── Photon ───

// PhotonConfig bounds the fragment reassembly state.
type PhotonConfig struct {
	FragmentTimeout    time.Duration `mapstructure:"fragment_timeout" yaml:"fragment_timeout"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	MaxFragmentSets    int           `mapstructure:"max_fragment_sets" yaml:"max_fragment_sets"`
	MaxFragmentCount   int           `mapstructure:"max_fragment_count" yaml:"max_fragment_count"`
	MaxReassembledSize int           `mapstructure:"max_reassembled_size" yaml:"max_reassembled_size"`
}

// ─── Pipeline ───

// PipelineConfig configures the bounded hand-off between capture and sink.
type PipelineConfig struct {
	ChannelCapacity int `mapstructure:"channel_capacity" yaml:"channel_capacity"`
}

// ─── Sink ───

// SinkConfig selects the event sink. Options are decoded by the sink itself.
type SinkConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"` // http / kafka / console
	Options map[string]any `mapstructure:"options" yaml:"options"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format     string           `mapstructure:"format" yaml:"format"` // json / text
	Pattern    string           `mapstructure:"pattern" yaml:"pattern"`
	TimeFormat string           `mapstructure:"time_format" yaml:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

const rootKey = "tanakai"

// configRoot is the top-level wrapper matching the YAML structure `tanakai: ...`.
type configRoot struct {
	Tanakai GlobalConfig `mapstructure:"tanakai" yaml:"tanakai"`
}

// Load loads configuration from file. An empty path yields defaults plus
// environment overrides (TANAKAI_ prefix, e.g. TANAKAI_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `tanakai.` key prefix maps to `TANAKAI_` through the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Tanakai

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or env.
func Default() *GlobalConfig {
	v := viper.New()
	setDefaults(v)

	var root configRoot
	// Defaults are all well-typed; Unmarshal cannot fail here.
	_ = v.Unmarshal(&root)
	cfg := root.Tanakai
	_ = cfg.ValidateAndApplyDefaults()
	return &cfg
}

func key(k string) string { return rootKey + "." + k }

// setDefaults sets default values for configuration.
// All keys use the "tanakai." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault(key("quiet"), false)

	// Capture defaults
	v.SetDefault(key("capture.driver"), "pcap")
	v.SetDefault(key("capture.interface"), "")
	v.SetDefault(key("capture.port"), 5056)
	v.SetDefault(key("capture.bpf_filter"), "")
	v.SetDefault(key("capture.snap_len"), 65535)
	v.SetDefault(key("capture.timeout"), "1s")
	v.SetDefault(key("capture.promiscuous"), true)
	v.SetDefault(key("capture.buffer_size_mb"), 8)

	// Photon defaults
	v.SetDefault(key("photon.fragment_timeout"), "5s")
	v.SetDefault(key("photon.sweep_interval"), "1s")
	v.SetDefault(key("photon.max_fragment_sets"), 1024)
	v.SetDefault(key("photon.max_fragment_count"), 4096)
	v.SetDefault(key("photon.max_reassembled_size"), 1<<20)

	// Pipeline defaults
	v.SetDefault(key("pipeline.channel_capacity"), 100)

	// Sink defaults
	v.SetDefault(key("sink.type"), "http")

	// Metrics defaults
	v.SetDefault(key("metrics.enabled"), false)
	v.SetDefault(key("metrics.listen"), ":9091")
	v.SetDefault(key("metrics.path"), "/metrics")

	// Log defaults
	v.SetDefault(key("log.level"), "info")
	v.SetDefault(key("log.format"), "text")
	v.SetDefault(key("log.pattern"), "%time [%level] %field %msg%n")
	v.SetDefault(key("log.time_format"), "2006-01-02 15:04:05.000")
	v.SetDefault(key("log.outputs.file.enabled"), false)
	v.SetDefault(key("log.outputs.file.path"), "/var/log/tanakai/tanakai.log")
	v.SetDefault(key("log.outputs.file.rotation.max_size_mb"), 100)
	v.SetDefault(key("log.outputs.file.rotation.max_age_days"), 30)
	v.SetDefault(key("log.outputs.file.rotation.max_backups"), 5)
	v.SetDefault(key("log.outputs.file.rotation.compress"), true)
}

// ValidateAndApplyDefaults validates configuration and fills runtime defaults
// that depend on other fields.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Capture ──
	switch cfg.Capture.Driver {
	case "pcap", "afpacket":
	case "file":
		if cfg.Capture.File == "" {
			return fmt.Errorf("%w: capture.file is required for the file driver", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported capture.driver: %s (must be pcap/afpacket/file)", core.ErrConfigInvalid, cfg.Capture.Driver)
	}
	if cfg.Capture.Port == 0 {
		return fmt.Errorf("%w: capture.port must be non-zero", core.ErrConfigInvalid)
	}
	if cfg.Capture.BPFFilter == "" {
		cfg.Capture.BPFFilter = fmt.Sprintf("udp port %d", cfg.Capture.Port)
	}
	if cfg.Capture.SnapLen <= 0 {
		cfg.Capture.SnapLen = 65535
	}
	if cfg.Capture.Timeout <= 0 {
		cfg.Capture.Timeout = time.Second
	}

	// ── Photon ──
	if cfg.Photon.FragmentTimeout <= 0 {
		return fmt.Errorf("%w: photon.fragment_timeout must be positive", core.ErrConfigInvalid)
	}
	if cfg.Photon.SweepInterval <= 0 {
		cfg.Photon.SweepInterval = time.Second
	}
	if cfg.Photon.MaxFragmentSets <= 0 || cfg.Photon.MaxFragmentCount <= 0 || cfg.Photon.MaxReassembledSize <= 0 {
		return fmt.Errorf("%w: photon fragment limits must be positive", core.ErrConfigInvalid)
	}

	// ── Pipeline ──
	if cfg.Pipeline.ChannelCapacity <= 0 {
		return fmt.Errorf("%w: pipeline.channel_capacity must be positive", core.ErrConfigInvalid)
	}

	// ── Sink ──
	switch cfg.Sink.Type {
	case "http", "kafka", "console":
	default:
		return fmt.Errorf("%w: unsupported sink.type: %s (must be http/kafka/console)", core.ErrConfigInvalid, cfg.Sink.Type)
	}
	if cfg.Sink.Options == nil {
		cfg.Sink.Options = map[string]any{}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics are enabled", core.ErrConfigInvalid)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}

// Dump renders the configuration as YAML under the `tanakai:` root key.
func (cfg *GlobalConfig) Dump() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(configRoot{Tanakai: *cfg}); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
