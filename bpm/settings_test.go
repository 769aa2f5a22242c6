package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/daq"
)

func TestParseMeasurementSettings(t *testing.T) {
	tests := []struct {
		name     string
		sbp      string
		dbp      string
		minPeaks string
		pumpUp   string
		wantErr  bool
	}{
		{name: "valid", sbp: "0.55", dbp: "0.8", minPeaks: "12", pumpUp: "200"},
		{name: "ratio of one", sbp: "1", dbp: "1", minPeaks: "1", pumpUp: "150"},
		{name: "sbp not a number", sbp: "abc", dbp: "0.8", minPeaks: "12", pumpUp: "200", wantErr: true},
		{name: "sbp zero", sbp: "0", dbp: "0.8", minPeaks: "12", pumpUp: "200", wantErr: true},
		{name: "dbp above one", sbp: "0.5", dbp: "1.2", minPeaks: "12", pumpUp: "200", wantErr: true},
		{name: "peaks zero", sbp: "0.5", dbp: "0.8", minPeaks: "0", pumpUp: "200", wantErr: true},
		{name: "peaks fractional", sbp: "0.5", dbp: "0.8", minPeaks: "2.5", pumpUp: "200", wantErr: true},
		{name: "pump up negative", sbp: "0.5", dbp: "0.8", minPeaks: "12", pumpUp: "-5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := config.Default().Measurement
			before := m

			err := parseMeasurementSettings(&m, tt.sbp, tt.dbp, tt.minPeaks, tt.pumpUp)
			if tt.wantErr {
				assert.ErrorIs(t, err, errSetting)
				assert.Equal(t, before, m)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, before, m)
			assert.Equal(t, before.StopPressure, m.StopPressure)
		})
	}
}

func TestParseMeasurementSettings_Values(t *testing.T) {
	m := config.Default().Measurement
	require.NoError(t, parseMeasurementSettings(&m, "0.55", "0.8", "12", "200"))

	assert.Equal(t, 0.55, m.RatioSBP)
	assert.Equal(t, 0.8, m.RatioDBP)
	assert.Equal(t, 12, m.MinPeaks)
	assert.Equal(t, 200.0, m.PumpUp)
}

func TestPortChoices(t *testing.T) {
	ports := []daq.Port{
		{Name: "/dev/ttyACM0", Description: "/dev/ttyACM0"},
		{Name: "/dev/ttyUSB0", Description: "FT232R"},
	}

	t.Run("current listed", func(t *testing.T) {
		options, byOption, selected := portChoices(ports, "/dev/ttyUSB0")
		assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB0 (FT232R)"}, options)
		assert.Equal(t, "/dev/ttyUSB0 (FT232R)", selected)
		assert.Equal(t, "/dev/ttyUSB0", byOption[selected])
	})

	t.Run("current missing", func(t *testing.T) {
		options, byOption, selected := portChoices(ports, "/dev/ttyS9")
		assert.Len(t, options, 3)
		assert.Equal(t, "/dev/ttyS9", selected)
		assert.Equal(t, "/dev/ttyS9", byOption[selected])
	})

	t.Run("nothing", func(t *testing.T) {
		options, _, selected := portChoices(nil, "")
		assert.Empty(t, options)
		assert.Empty(t, selected)
	})
}
