package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/SRAM-Acquisition/chain"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, `.*USB.?`, cfg.PortPattern)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, 13, cfg.DevicesPerChain)
	assert.Equal(t, 80*1024, cfg.MemorySize)
	assert.Equal(t, "sum8", cfg.Checksum)
	assert.Equal(t, "ykushcmd", cfg.PowerCommand)
	assert.Equal(t, logger.InfoLevel, cfg.Level())
}

func TestParse_OverridesDefaults(t *testing.T) {
	data := []byte(`
ports: [/dev/ttyUSB0, /dev/ttyUSB1]
devices_per_chain: 4
reply_timeout: 750ms
memory_size: 0
checksum: none
store_dir: /var/lib/station
telemetry:
  file: /var/log/station.lp
  log: true
log_level: debug
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, cfg.Ports)
	assert.Equal(t, 4, cfg.DevicesPerChain)
	assert.Equal(t, 750*time.Millisecond, cfg.ReplyTimeout)
	assert.Equal(t, chain.DefaultDrainSilence, cfg.DrainSilence, "missing keys keep defaults")
	assert.Zero(t, cfg.MemorySize)
	assert.Equal(t, "none", cfg.Checksum)
	assert.Equal(t, "/var/lib/station", cfg.StoreDir)
	assert.Equal(t, "/var/log/station.lp", cfg.Telemetry.File)
	assert.True(t, cfg.Telemetry.Log)
	assert.Equal(t, "station", cfg.Telemetry.InfluxDatabase)
	assert.Equal(t, logger.DebugLevel, cfg.Level())

	opts, err := cfg.ChainOptions(nil)
	require.NoError(t, err)

	chainCfg, err := chain.NewConfig(opts...)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, chainCfg.ReplyTimeout())
	assert.Equal(t, 4, chainCfg.DevicesPerChain())
	assert.Equal(t, "none", chainCfg.Checksum().String())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "bad yaml", data: "ports: [unclosed"},
		{name: "bad pattern", data: "port_pattern: '(('"},
		{name: "empty pattern", data: "port_pattern: ''"},
		{name: "baud", data: "baud_rate: 0"},
		{name: "checksum", data: "checksum: crc32"},
		{name: "devices", data: "devices_per_chain: 300"},
		{name: "reply timeout", data: "reply_timeout: 1ms"},
		{name: "memory size", data: "memory_size: 1000"},
		{name: "log level", data: "log_level: verbose"},
		{name: "log format", data: "log_format: xml"},
		{name: "influx database", data: "telemetry: {influx_url: 'http://localhost:8086', influx_database: ''}"},
		{name: "duration", data: "reply_timeout: soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestParse_PatternIgnoredWithPorts(t *testing.T) {
	_, err := Parse([]byte("ports: [COM3]\nport_pattern: '(('"))
	require.NoError(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte("baud_rate: 9600\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.BaudRate)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_NewLogger(t *testing.T) {
	cfg, err := Parse([]byte("log_format: text\nlog_level: warn\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	l := cfg.NewLogger(&buf)
	assert.Equal(t, logger.WarnLevel, l.Level())

	l.Info("hidden")
	l.Warn("shown", "port", "ttyUSB0")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "port=ttyUSB0")
}
