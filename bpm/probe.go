package main

import (
	"fmt"
	"io"

	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/daq"
)

// acquisitionInfo is the part of *acquisition.Driver that probe reports.
type acquisitionInfo interface {
	SamplingRate() float64
	Command() daq.Command
	Range() daq.Range
	MaxData() uint32
	Channels() int
	SampleWidth() int
}

func printProbe(w io.Writer, cfg *config.Config, info acquisitionInfo) {
	cmd := info.Command()
	rng := info.Range()

	fmt.Fprintf(w, "backend:       %s\n", cfg.Device.Backend)
	switch cfg.Device.Backend {
	case config.BackendSerial:
		fmt.Fprintf(w, "port:          %s @ %d baud\n", cfg.Serial.Port, cfg.Serial.BaudRate)
	case config.BackendComedi:
		fmt.Fprintf(w, "device:        %s subdevice %d\n", cfg.Device.Path, cfg.Device.Subdevice)
	}
	fmt.Fprintf(w, "command:       %s\n", cmd.String())
	fmt.Fprintf(w, "sampling rate: %.3f Hz (requested %.3f Hz)\n", info.SamplingRate(), cfg.Device.SamplingRate)
	fmt.Fprintf(w, "channels:      %d\n", info.Channels())
	fmt.Fprintf(w, "range:         %g .. %g\n", rng.Min, rng.Max)
	fmt.Fprintf(w, "maxdata:       %d\n", info.MaxData())
	fmt.Fprintf(w, "sample width:  %d bytes\n", info.SampleWidth())
}
