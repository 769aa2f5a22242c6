package acquisition

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/daq"
)

// OpenDevice opens the backend selected in cfg.Device.Backend.
func OpenDevice(cfg *config.Config, log logrus.FieldLogger) (daq.Device, error) {
	switch cfg.Device.Backend {
	case config.BackendComedi:
		dev, err := daq.OpenComedi(cfg.Device.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return dev, nil
	case config.BackendSerial:
		dev := daq.NewSerial(&cfg.Serial, &cfg.Sensor, log)
		if err := dev.Connect(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return dev, nil
	case config.BackendMock:
		return daq.NewMock(&cfg.Mock, &cfg.Sensor), nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrDeviceUnavailable, cfg.Device.Backend)
}

// Open opens the configured device and starts the acquisition on it.
func Open(cfg *config.Config, log logrus.FieldLogger) (*Driver, error) {
	dc, err := ConfigFrom(&cfg.Device)
	if err != nil {
		return nil, err
	}
	dev, err := OpenDevice(cfg, log)
	if err != nil {
		return nil, err
	}
	d, err := New(dev, dc, log)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return d, nil
}
