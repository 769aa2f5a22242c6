// gobpm is an oscillometric blood-pressure meter. It samples the cuff
// pressure transducer through a Comedi board, the serial ADC bridge or a
// simulated cuff and shows the measurement in a fyne window.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/itohio/gobpm/pkg/acquisition"
	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/daq"
)

var (
	configPath string
	useMock    bool
	devicePath string
	rate       float64
	listPorts  bool
)

var rootCmd = &cobra.Command{
	Use:   "gobpm",
	Short: "Oscillometric blood-pressure meter",
	Long: `gobpm watches the cuff pressure while the cuff is pumped up by hand and
slowly deflated, detects the oscillations of the arterial wall and estimates
systolic, diastolic and mean arterial pressure.

Backends (device.backend in the configuration):
  comedi   Comedi analog input board, e.g. /dev/comedi0
  serial   ADC bridge firmware on a microcontroller, e.g. /dev/ttyACM0
  mock     simulated cuff`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the measurement window (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp()
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print the negotiated acquisition parameters and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listPorts {
			return printPorts(cmd)
		}
		return probe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "use the simulated cuff instead of hardware")
	rootCmd.PersistentFlags().StringVarP(&devicePath, "device", "d", "", "device node or serial port override")
	rootCmd.PersistentFlags().Float64VarP(&rate, "rate", "r", 0, "sampling rate override in Hz")
	probeCmd.Flags().BoolVar(&listPorts, "ports", false, "list serial ports instead of probing")

	rootCmd.AddCommand(runCmd, probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configPath and applies the command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, useMock, devicePath, rate)
	return cfg, nil
}

// applyOverrides applies command line flags on top of the loaded file.
func applyOverrides(cfg *config.Config, mock bool, device string, rate float64) {
	if mock {
		cfg.Device.Backend = config.BackendMock
	}
	if device != "" {
		if cfg.Device.Backend == config.BackendSerial {
			cfg.Serial.Port = device
		} else {
			cfg.Device.Path = device
		}
	}
	if rate > 0 {
		cfg.Device.SamplingRate = rate
	}
}

func probe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := setupLogger(cfg.Log)

	drv, err := acquisition.Open(cfg, log)
	if err != nil {
		return err
	}
	defer drv.Close()

	printProbe(cmd.OutOrStdout(), cfg, drv)
	return nil
}

func printPorts(cmd *cobra.Command) error {
	ports, err := daq.Ports()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		if p.Description != "" && p.Description != p.Name {
			fmt.Fprintf(out, "%s (%s)\n", p.Name, p.Description)
			continue
		}
		fmt.Fprintln(out, p.Name)
	}
	return nil
}
