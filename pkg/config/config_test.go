package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, BackendComedi, cfg.Device.Backend)
	assert.Equal(t, "/dev/comedi0", cfg.Device.Path)
	assert.Equal(t, 1, cfg.Device.Channels)
	assert.Equal(t, float64(1000), cfg.Device.SamplingRate)
	assert.Equal(t, "ground", cfg.Device.ARef)
	assert.Equal(t, 0.57, cfg.Measurement.RatioSBP)
	assert.Equal(t, 0.75, cfg.Measurement.RatioDBP)
	assert.Equal(t, 10, cfg.Measurement.MinPeaks)
	assert.Equal(t, float64(180), cfg.Measurement.PumpUp)
	assert.Equal(t, 5000, cfg.Display.PlotPoints)
	assert.Equal(t, 50*time.Millisecond, cfg.Display.UpdateInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/comedi0", cfg.Device.Path)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
device:
  backend: mock
  path: /dev/comedi1
  subdevice: 2
  range_id: 1
  channels: 2
  ad_channel: 1
  sampling_rate: 500

measurement:
  ratio_sbp: 0.5
  ratio_dbp: 0.8
  min_peaks: 7
  pump_up: 160

display:
  plot_points: 2000
  update_interval: 40ms

log:
  level: debug
  format: json

metrics:
  enabled: true
  addr: ":9999"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, BackendMock, cfg.Device.Backend)
	assert.Equal(t, "/dev/comedi1", cfg.Device.Path)
	assert.Equal(t, uint(2), cfg.Device.Subdevice)
	assert.Equal(t, uint(1), cfg.Device.RangeID)
	assert.Equal(t, 2, cfg.Device.Channels)
	assert.Equal(t, 1, cfg.Device.ADChannel)
	assert.Equal(t, float64(500), cfg.Device.SamplingRate)
	assert.Equal(t, 0.5, cfg.Measurement.RatioSBP)
	assert.Equal(t, 0.8, cfg.Measurement.RatioDBP)
	assert.Equal(t, 7, cfg.Measurement.MinPeaks)
	assert.Equal(t, float64(160), cfg.Measurement.PumpUp)
	assert.Equal(t, 2000, cfg.Display.PlotPoints)
	assert.Equal(t, 40*time.Millisecond, cfg.Display.UpdateInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
device:
  path: /dev/comedi3
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/comedi3", cfg.Device.Path)
	assert.Equal(t, BackendComedi, cfg.Device.Backend)               // default
	assert.Equal(t, float64(1000), cfg.Device.SamplingRate)          // default
	assert.Equal(t, 10, cfg.Measurement.MinPeaks)                    // default
	assert.Equal(t, 50*time.Millisecond, cfg.Display.UpdateInterval) // default
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Device.Path = "/dev/comedi2"
	cfg.Measurement.PumpUp = 200

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/comedi2", loaded.Device.Path)
	assert.Equal(t, float64(200), loaded.Measurement.PumpUp)
}

func TestResetMeasurement(t *testing.T) {
	cfg := Default()
	cfg.Measurement.RatioSBP = 0.1
	cfg.Measurement.MinPeaks = 3
	cfg.Device.Path = "/dev/comedi5"

	cfg.ResetMeasurement()

	assert.Equal(t, Default().Measurement, cfg.Measurement)
	assert.Equal(t, "/dev/comedi5", cfg.Device.Path, "device settings are untouched")
}
