package sample

// Point is one plotted sample: seconds since the start of the acquisition and
// the signal value.
type Point struct {
	T float64
	V float64
}

// PressureSensor is the linear transfer function of the cuff pressure
// transducer.
type PressureSensor struct {
	Offset   float64 // Volts at 0 mmHg
	MMHgPerV float64 // Sensitivity
}

// Pressure converts a sensor voltage into mmHg.
func (s PressureSensor) Pressure(volts float64) float64 {
	return (volts - s.Offset) * s.MMHgPerV
}

// Volts converts mmHg into the sensor output voltage.
func (s PressureSensor) Volts(mmHg float64) float64 {
	if s.MMHgPerV == 0 {
		return s.Offset
	}
	return s.Offset + mmHg/s.MMHgPerV
}
