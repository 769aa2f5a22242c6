package main

import (
	"errors"
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/daq"
)

// errSetting reports an unacceptable value typed into the settings dialog.
var errSetting = errors.New("invalid setting")

// showSettingsDialog displays a settings dialog with tabs for the editable
// configuration.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createMeasurementTab(state),
		createDeviceTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(500, 350))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(500, 350))
	d.Show()
}

// saveConfig writes the configuration back to the file it was loaded from.
func saveConfig(state *appState) bool {
	if err := state.cfg.Save(configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// createMeasurementTab creates the Measurement configuration tab. Saved
// values take effect with the next measurement.
func createMeasurementTab(state *appState) *container.TabItem {
	ratioSBPEntry := widget.NewEntry()
	ratioDBPEntry := widget.NewEntry()
	minPeaksEntry := widget.NewEntry()
	pumpUpEntry := widget.NewEntry()

	fill := func(m config.MeasurementConfig) {
		ratioSBPEntry.SetText(fmt.Sprintf("%.2f", m.RatioSBP))
		ratioDBPEntry.SetText(fmt.Sprintf("%.2f", m.RatioDBP))
		minPeaksEntry.SetText(strconv.Itoa(m.MinPeaks))
		pumpUpEntry.SetText(fmt.Sprintf("%.0f", m.PumpUp))
	}
	fill(state.cfg.Measurement)

	apply := func() {
		state.session.Configure(state.cfg.Measurement)
		state.log.WithField("settings", state.cfg.Measurement).Info("Measurement settings saved")
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Systolic ratio", Widget: ratioSBPEntry},
			{Text: "Diastolic ratio", Widget: ratioDBPEntry},
			{Text: "Minimum peaks", Widget: minPeaksEntry},
			{Text: "Pump up (mmHg)", Widget: pumpUpEntry},
		},
		SubmitText: "Save",
		OnSubmit: func() {
			m := state.cfg.Measurement
			err := parseMeasurementSettings(&m, ratioSBPEntry.Text, ratioDBPEntry.Text, minPeaksEntry.Text, pumpUpEntry.Text)
			if err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			state.cfg.Measurement = m
			if saveConfig(state) {
				apply()
			}
		},
	}

	reset := widget.NewButton("Reset to defaults", func() {
		state.cfg.ResetMeasurement()
		fill(state.cfg.Measurement)
		if saveConfig(state) {
			apply()
		}
	})

	return container.NewTabItem("Measurement", container.NewVBox(form, reset))
}

// parseMeasurementSettings validates the dialog fields into m. m is left
// untouched on error.
func parseMeasurementSettings(m *config.MeasurementConfig, ratioSBP, ratioDBP, minPeaks, pumpUp string) error {
	sbp, err := parseRatio("systolic ratio", ratioSBP)
	if err != nil {
		return err
	}
	dbp, err := parseRatio("diastolic ratio", ratioDBP)
	if err != nil {
		return err
	}
	peaks, err := strconv.Atoi(minPeaks)
	if err != nil || peaks < 1 {
		return fmt.Errorf("%w: minimum peaks %q must be a positive integer", errSetting, minPeaks)
	}
	pump, err := strconv.ParseFloat(pumpUp, 64)
	if err != nil || pump <= 0 {
		return fmt.Errorf("%w: pump up %q must be a positive pressure", errSetting, pumpUp)
	}

	m.RatioSBP = sbp
	m.RatioDBP = dbp
	m.MinPeaks = peaks
	m.PumpUp = pump
	return nil
}

func parseRatio(name, text string) (float64, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || v <= 0 || v > 1 {
		return 0, fmt.Errorf("%w: %s %q must be in (0, 1]", errSetting, name, text)
	}
	return v, nil
}

// createDeviceTab creates the Device configuration tab. Device changes are
// saved for the next start of the program.
func createDeviceTab(state *appState) *container.TabItem {
	backendSelect := widget.NewSelect([]string{config.BackendComedi, config.BackendSerial, config.BackendMock}, nil)
	backendSelect.SetSelected(state.cfg.Device.Backend)

	pathEntry := widget.NewEntry()
	pathEntry.SetText(state.cfg.Device.Path)

	ports, err := daq.Ports()
	if err != nil {
		state.log.WithError(err).Warn("Serial ports unavailable")
	}
	portOptions, portMap, currentDisplay := portChoices(ports, state.cfg.Serial.Port)
	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	rateEntry := widget.NewEntry()
	rateEntry.SetText(strconv.FormatFloat(state.cfg.Device.SamplingRate, 'f', -1, 64))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Backend", Widget: backendSelect},
			{Text: "Comedi device", Widget: pathEntry},
			{Text: "Serial port", Widget: portSelect},
			{Text: "Sampling rate (Hz)", Widget: rateEntry},
		},
		SubmitText: "Save",
		OnSubmit: func() {
			r, err := strconv.ParseFloat(rateEntry.Text, 64)
			if err != nil || r <= 0 {
				dialog.ShowError(fmt.Errorf("%w: sampling rate %q", errSetting, rateEntry.Text), state.window)
				return
			}
			if backendSelect.Selected != "" {
				state.cfg.Device.Backend = backendSelect.Selected
			}
			if pathEntry.Text != "" {
				state.cfg.Device.Path = pathEntry.Text
			}
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected
				}
				state.cfg.Serial.Port = selectedPort
			}
			state.cfg.Device.SamplingRate = r
			if saveConfig(state) {
				dialog.ShowInformation("Settings", "Device settings apply after a restart.", state.window)
			}
		},
	}

	return container.NewTabItem("Device", form)
}

// portChoices returns the select options for ports, a map from option to
// port name and the option of the current port. A configured port that is
// not present is kept as an option.
func portChoices(ports []daq.Port, current string) (options []string, byOption map[string]string, selected string) {
	byOption = make(map[string]string)
	for _, port := range ports {
		display := port.Name
		if port.Description != "" && port.Description != port.Name {
			display = fmt.Sprintf("%s (%s)", port.Name, port.Description)
		}
		options = append(options, display)
		byOption[display] = port.Name
		if port.Name == current {
			selected = display
		}
	}

	if selected == "" && current != "" {
		options = append(options, current)
		byOption[current] = current
		selected = current
	}
	return options, byOption, selected
}
