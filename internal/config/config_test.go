package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/tanakai/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
tanakai:
  capture:
    driver: afpacket
    interface: eth1
    port: 5055
    timeout: 250ms
  photon:
    fragment_timeout: 10s
  pipeline:
    channel_capacity: 32
  sink:
    type: kafka
    options:
      brokers: ["localhost:9092"]
      topic: photon-events
  log:
    level: debug
    format: json
  metrics:
    enabled: true
    listen: "127.0.0.1:9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "afpacket", cfg.Capture.Driver)
	assert.Equal(t, "eth1", cfg.Capture.Interface)
	assert.Equal(t, uint16(5055), cfg.Capture.Port)
	assert.Equal(t, "udp port 5055", cfg.Capture.BPFFilter)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Photon.FragmentTimeout)
	assert.Equal(t, 32, cfg.Pipeline.ChannelCapacity)
	assert.Equal(t, "kafka", cfg.Sink.Type)
	assert.Equal(t, "photon-events", cfg.Sink.Options["topic"])
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "pcap", cfg.Capture.Driver)
	assert.Equal(t, uint16(5056), cfg.Capture.Port)
	assert.Equal(t, "udp port 5056", cfg.Capture.BPFFilter)
	assert.Equal(t, 65535, cfg.Capture.SnapLen)
	assert.Equal(t, time.Second, cfg.Capture.Timeout)
	assert.True(t, cfg.Capture.Promiscuous)
	assert.Equal(t, 100, cfg.Pipeline.ChannelCapacity)
	assert.Equal(t, 5*time.Second, cfg.Photon.FragmentTimeout)
	assert.Equal(t, time.Second, cfg.Photon.SweepInterval)
	assert.Equal(t, 1024, cfg.Photon.MaxFragmentSets)
	assert.Equal(t, 4096, cfg.Photon.MaxFragmentCount)
	assert.Equal(t, 1<<20, cfg.Photon.MaxReassembledSize)
	assert.Equal(t, "http", cfg.Sink.Type)
	assert.NotNil(t, cfg.Sink.Options)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Capture, cfg.Capture)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "log level",
			content: "tanakai:\n  log:\n    level: verbose\n",
			want:    "invalid log level",
		},
		{
			name:    "log format",
			content: "tanakai:\n  log:\n    format: xml\n",
			want:    "invalid log format",
		},
		{
			name:    "capture driver",
			content: "tanakai:\n  capture:\n    driver: xdp\n",
			want:    "unsupported capture.driver",
		},
		{
			name:    "file driver without file",
			content: "tanakai:\n  capture:\n    driver: file\n",
			want:    "capture.file is required",
		},
		{
			name:    "channel capacity",
			content: "tanakai:\n  pipeline:\n    channel_capacity: 0\n",
			want:    "channel_capacity",
		},
		{
			name:    "sink type",
			content: "tanakai:\n  sink:\n    type: carrier-pigeon\n",
			want:    "unsupported sink.type",
		},
		{
			name:    "file log without path",
			content: "tanakai:\n  log:\n    outputs:\n      file:\n        enabled: true\n        path: \"\"\n",
			want:    "log.outputs.file.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConfigInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "tanakai:\n  log:\n    level: info\n")
	t.Setenv("TANAKAI_LOG_LEVEL", "debug")
	t.Setenv("TANAKAI_CAPTURE_PORT", "5058")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, uint16(5058), cfg.Capture.Port)
}

func TestDump(t *testing.T) {
	cfg := Default()
	cfg.Sink.Options["url"] = "http://collector:8080"

	out, err := cfg.Dump()
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	root, ok := decoded["tanakai"]
	require.True(t, ok)

	capture := root["capture"].(map[string]any)
	assert.Equal(t, 5056, capture["port"])
	assert.Equal(t, "1s", capture["timeout"])

	sink := root["sink"].(map[string]any)
	assert.Equal(t, "http://collector:8080", sink["options"].(map[string]any)["url"])
}
