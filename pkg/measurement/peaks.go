package measurement

// peakDetector finds oscillation peaks with hysteresis. A peak is confirmed
// once the signal falls half the threshold below the running maximum, and
// counts only if it rises at least threshold above the preceding trough.
type peakDetector struct {
	threshold  float64
	refractory float64

	seekingPeak bool
	extreme     Peak // Running maximum or minimum, Amplitude holds the signal
	trough      float64
	last        float64 // Time of the last accepted peak
	havePeak    bool
}

func newPeakDetector(threshold, refractory float64) *peakDetector {
	return &peakDetector{threshold: threshold, refractory: refractory}
}

// reset starts looking for a trough at x.
func (d *peakDetector) reset(x, t, pressure float64) {
	d.seekingPeak = false
	d.extreme = Peak{Time: t, Pressure: pressure, Amplitude: x}
	d.trough = x
	d.havePeak = false
}

// add feeds oscillation x at time t with the cuff baseline pressure. When a
// peak is confirmed it is returned with its amplitude above the preceding
// trough.
func (d *peakDetector) add(x, t, pressure float64) (Peak, bool) {
	hysteresis := d.threshold / 2
	sample := Peak{Time: t, Pressure: pressure, Amplitude: x}

	if !d.seekingPeak {
		if x < d.extreme.Amplitude {
			d.extreme = sample
		}
		if x > d.extreme.Amplitude+hysteresis {
			d.trough = d.extreme.Amplitude
			d.seekingPeak = true
			d.extreme = sample
		}
		return Peak{}, false
	}

	if x > d.extreme.Amplitude {
		d.extreme = sample
	}
	if x >= d.extreme.Amplitude-hysteresis {
		return Peak{}, false
	}

	peak := d.extreme
	peak.Amplitude -= d.trough
	d.seekingPeak = false
	d.extreme = sample

	if peak.Amplitude < d.threshold {
		return Peak{}, false
	}
	if d.havePeak && peak.Time-d.last < d.refractory {
		return Peak{}, false
	}
	d.last = peak.Time
	d.havePeak = true
	return peak, true
}
