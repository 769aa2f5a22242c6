package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in DeviceConfig.Backend.
const (
	BackendComedi = "comedi"
	BackendSerial = "serial"
	BackendMock   = "mock"
)

// Config represents the application configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Serial      SerialConfig      `yaml:"serial"`
	Mock        MockConfig        `yaml:"mock"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Display     DisplayConfig     `yaml:"display"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DeviceConfig describes the analog input subdevice and the acquisition contract.
type DeviceConfig struct {
	Backend      string  `yaml:"backend"`       // comedi, serial or mock
	Path         string  `yaml:"path"`          // Device node, e.g. /dev/comedi0
	Subdevice    uint    `yaml:"subdevice"`     // Analog input subdevice index
	RangeID      uint    `yaml:"range_id"`      // Calibration range selector
	ARef         string  `yaml:"aref"`          // ground, common, diff or other
	Channels     int     `yaml:"channels"`      // Number of channels sampled per scan
	ADChannel    int     `yaml:"ad_channel"`    // Channel decoded by the single-sample readers
	SamplingRate float64 `yaml:"sampling_rate"` // Requested rate in Hz
	// BacklogWarning is the number of queued bytes above which the producer warns.
	BacklogWarning int `yaml:"backlog_warning"`
}

// SerialConfig contains serial ADC bridge configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// MockConfig contains simulated cuff configuration.
type MockConfig struct {
	Channels      int           `yaml:"channels"`        // Channels reported by the simulated hardware
	MaxData       uint32        `yaml:"max_data"`        // Maximum raw code
	LongSamples   bool          `yaml:"long_samples"`    // Report 32-bit samples
	MinPeriod     time.Duration `yaml:"min_period"`      // Fastest supported conversion period
	RestDuration  time.Duration `yaml:"rest_duration"`   // Idle time at 0 mmHg before each cycle
	InflateTime   time.Duration `yaml:"inflate_time"`    // Time to pump up the cuff
	PeakPressure  float64       `yaml:"peak_pressure"`   // mmHg reached after inflation
	DeflateRate   float64       `yaml:"deflate_rate"`    // mmHg/s during deflation
	MAP           float64       `yaml:"map"`             // Simulated mean arterial pressure
	HeartRate     float64       `yaml:"heart_rate"`      // Beats per minute
	Amplitude     float64       `yaml:"amplitude"`       // Peak oscillation amplitude (mmHg)
	NoiseLevel    float64       `yaml:"noise_level"`     // mmHg
	EmptyCuffRate float64       `yaml:"empty_cuff_rate"` // mmHg/s when the valve is opened fully
}

// SensorConfig describes the pressure transducer transfer function.
type SensorConfig struct {
	Offset    float64 `yaml:"offset"`     // Volts at 0 mmHg
	MMHgPerV  float64 `yaml:"mmhg_per_v"` // Sensitivity
	VMin      float64 `yaml:"v_min"`      // Physical range used by the mock and serial backends
	VMax      float64 `yaml:"v_max"`
	Reference float64 `yaml:"reference"`  // Serial bridge ADC reference voltage
}

// MeasurementConfig contains oscillometric processing parameters.
type MeasurementConfig struct {
	RatioSBP          float64 `yaml:"ratio_sbp"`
	RatioDBP          float64 `yaml:"ratio_dbp"`
	MinPeaks          int     `yaml:"min_peaks"`
	PumpUp            float64 `yaml:"pump_up"`            // mmHg to inflate to
	EmptyCuff         float64 `yaml:"empty_cuff"`         // mmHg considered empty
	StopPressure      float64 `yaml:"stop_pressure"`      // mmHg below which deflation ends
	PeakThreshold     float64 `yaml:"peak_threshold"`     // mmHg oscillation amplitude
	PressureCutoff    float64 `yaml:"pressure_cutoff"`    // Hz, low-pass
	OscillationCutoff float64 `yaml:"oscillation_cutoff"` // Hz, high-pass
	SettleTime        float64 `yaml:"settle_time"`        // Seconds before Ready
	HeartRateAverage  int     `yaml:"heart_rate_average"` // Peak intervals averaged
	RefractorySeconds float64 `yaml:"refractory_seconds"` // Minimum time between peaks
}

// DisplayConfig contains display loop parameters.
type DisplayConfig struct {
	PlotPoints     int           `yaml:"plot_points"`     // Plot history length (samples)
	UpdateInterval time.Duration `yaml:"update_interval"` // Render tick period
	QueueSize      int           `yaml:"queue_size"`      // Bridge queue capacity
	DisplayPoints  int           `yaml:"display_points"`  // Points drawn per plot after downsampling
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // text or json
	FilePath string `yaml:"file_path"`
}

// MetricsConfig contains the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Backend:        BackendComedi,
			Path:           "/dev/comedi0",
			Subdevice:      0,
			RangeID:        0,
			ARef:           "ground",
			Channels:       1,
			ADChannel:      0,
			SamplingRate:   1000,
			BacklogWarning: 4096,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 921600,
		},
		Mock: MockConfig{
			Channels:      8,
			MaxData:       0xffffff,
			LongSamples:   true,
			MinPeriod:     10 * time.Microsecond,
			RestDuration:  4 * time.Second,
			InflateTime:   6 * time.Second,
			PeakPressure:  190,
			DeflateRate:   3,
			MAP:           95,
			HeartRate:     70,
			Amplitude:     2.5,
			NoiseLevel:    0.05,
			EmptyCuffRate: 40,
		},
		Sensor: SensorConfig{
			Offset:    0.2,
			MMHgPerV:  80,
			VMin:      0,
			VMax:      5,
			Reference: 3.3,
		},
		Measurement: MeasurementConfig{
			RatioSBP:          0.57,
			RatioDBP:          0.75,
			MinPeaks:          10,
			PumpUp:            180,
			EmptyCuff:         5,
			StopPressure:      40,
			PeakThreshold:     0.2,
			PressureCutoff:    10,
			OscillationCutoff: 0.5,
			SettleTime:        2,
			HeartRateAverage:  5,
			RefractorySeconds: 0.3,
		},
		Display: DisplayConfig{
			PlotPoints:     5000,
			UpdateInterval: 50 * time.Millisecond,
			QueueSize:      1024,
			DisplayPoints:  1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9120",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResetMeasurement restores the user-editable measurement settings to defaults.
func (c *Config) ResetMeasurement() {
	c.Measurement = Default().Measurement
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.Backend == "" {
		c.Device.Backend = def.Device.Backend
	}
	if c.Device.Path == "" {
		c.Device.Path = def.Device.Path
	}
	if c.Device.ARef == "" {
		c.Device.ARef = def.Device.ARef
	}
	if c.Device.Channels == 0 {
		c.Device.Channels = def.Device.Channels
	}
	if c.Device.SamplingRate == 0 {
		c.Device.SamplingRate = def.Device.SamplingRate
	}
	if c.Device.BacklogWarning == 0 {
		c.Device.BacklogWarning = def.Device.BacklogWarning
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Mock.Channels == 0 {
		c.Mock.Channels = def.Mock.Channels
	}
	if c.Mock.MaxData == 0 {
		c.Mock.MaxData = def.Mock.MaxData
	}
	if c.Mock.MinPeriod == 0 {
		c.Mock.MinPeriod = def.Mock.MinPeriod
	}
	if c.Mock.InflateTime == 0 {
		c.Mock.InflateTime = def.Mock.InflateTime
	}
	if c.Mock.PeakPressure == 0 {
		c.Mock.PeakPressure = def.Mock.PeakPressure
	}
	if c.Mock.DeflateRate == 0 {
		c.Mock.DeflateRate = def.Mock.DeflateRate
	}
	if c.Mock.MAP == 0 {
		c.Mock.MAP = def.Mock.MAP
	}
	if c.Mock.HeartRate == 0 {
		c.Mock.HeartRate = def.Mock.HeartRate
	}
	if c.Mock.EmptyCuffRate == 0 {
		c.Mock.EmptyCuffRate = def.Mock.EmptyCuffRate
	}

	if c.Sensor.MMHgPerV == 0 {
		c.Sensor.MMHgPerV = def.Sensor.MMHgPerV
	}
	if c.Sensor.VMax == 0 {
		c.Sensor.VMax = def.Sensor.VMax
	}
	if c.Sensor.Reference == 0 {
		c.Sensor.Reference = def.Sensor.Reference
	}

	if c.Measurement.RatioSBP == 0 {
		c.Measurement.RatioSBP = def.Measurement.RatioSBP
	}
	if c.Measurement.RatioDBP == 0 {
		c.Measurement.RatioDBP = def.Measurement.RatioDBP
	}
	if c.Measurement.MinPeaks == 0 {
		c.Measurement.MinPeaks = def.Measurement.MinPeaks
	}
	if c.Measurement.PumpUp == 0 {
		c.Measurement.PumpUp = def.Measurement.PumpUp
	}
	if c.Measurement.EmptyCuff == 0 {
		c.Measurement.EmptyCuff = def.Measurement.EmptyCuff
	}
	if c.Measurement.StopPressure == 0 {
		c.Measurement.StopPressure = def.Measurement.StopPressure
	}
	if c.Measurement.PeakThreshold == 0 {
		c.Measurement.PeakThreshold = def.Measurement.PeakThreshold
	}
	if c.Measurement.PressureCutoff == 0 {
		c.Measurement.PressureCutoff = def.Measurement.PressureCutoff
	}
	if c.Measurement.OscillationCutoff == 0 {
		c.Measurement.OscillationCutoff = def.Measurement.OscillationCutoff
	}
	if c.Measurement.HeartRateAverage == 0 {
		c.Measurement.HeartRateAverage = def.Measurement.HeartRateAverage
	}
	if c.Measurement.RefractorySeconds == 0 {
		c.Measurement.RefractorySeconds = def.Measurement.RefractorySeconds
	}

	if c.Display.PlotPoints == 0 {
		c.Display.PlotPoints = def.Display.PlotPoints
	}
	if c.Display.UpdateInterval == 0 {
		c.Display.UpdateInterval = def.Display.UpdateInterval
	}
	if c.Display.QueueSize == 0 {
		c.Display.QueueSize = def.Display.QueueSize
	}
	if c.Display.DisplayPoints == 0 {
		c.Display.DisplayPoints = def.Display.DisplayPoints
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = def.Metrics.Addr
	}
}
