package measurement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/itohio/gobpm/pkg/workflow"
)

// ErrInsufficientPeaks is returned when too few oscillations were recorded to
// estimate blood pressure.
var ErrInsufficientPeaks = errors.New("measurement: insufficient oscillation peaks")

var _ Processor = (*Oscillometric)(nil)

// Processor turns cuff voltages into pressure, oscillation and results.
// Process is called from the acquisition goroutine. Start and Stop may be
// called from any goroutine.
type Processor interface {
	Process(volts float64)
	Start()
	Stop()
}

// Observer receives processor notifications on the acquisition goroutine.
// Implementations must return quickly and never touch display widgets.
type Observer interface {
	NewData(pressure, oscillation float64) // Every processed sample
	HeartRate(bpm float64)                 // Instantaneous rate on each detected beat
	Results(r Result)                      // Estimated pressures once deflation ends
	SwitchScreen(e workflow.Event)         // Measurement progress
	Ready()                                // Filters settled, a measurement may start
}

// Result is one blood-pressure estimate. Pressures are in mmHg.
type Result struct {
	MAP       float64
	SBP       float64
	DBP       float64
	HeartRate float64 // Averaged beats per minute
	Peaks     int     // Oscillations used
}

func (r Result) String() string {
	return fmt.Sprintf("%.0f/%.0f mmHg (MAP %.0f, %.0f bpm)", r.SBP, r.DBP, r.MAP, r.HeartRate)
}

// Peak is one detected oscillation.
type Peak struct {
	Time      float64 // Seconds since the processor was created
	Pressure  float64 // Cuff baseline pressure at the peak, mmHg
	Amplitude float64 // Peak to preceding trough, mmHg
}

// Estimate derives MAP, SBP and DBP from the oscillation envelope. MAP is the
// cuff pressure at the largest oscillation. SBP is where the envelope above
// MAP falls to ratioSBP of the maximum and DBP where it falls to ratioDBP
// below MAP, interpolated linearly between neighbouring peaks.
func Estimate(peaks []Peak, minPeaks int, ratioSBP, ratioDBP float64) (Result, error) {
	if len(peaks) == 0 || len(peaks) < minPeaks {
		return Result{}, fmt.Errorf("%w: %d < %d", ErrInsufficientPeaks, len(peaks), minPeaks)
	}

	// Highest pressure first, as recorded during deflation.
	sorted := append([]Peak(nil), peaks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Pressure > sorted[j].Pressure
	})

	top := 0
	for i, p := range sorted {
		if p.Amplitude > sorted[top].Amplitude {
			top = i
		}
	}
	maxAmp := sorted[top].Amplitude

	r := Result{
		MAP:   sorted[top].Pressure,
		SBP:   sorted[0].Pressure,
		DBP:   sorted[len(sorted)-1].Pressure,
		Peaks: len(peaks),
	}

	sbpLevel := ratioSBP * maxAmp
	for i := top - 1; i >= 0; i-- {
		if sorted[i].Amplitude < sbpLevel {
			r.SBP = interpolate(sorted[i], sorted[i+1], sbpLevel)
			break
		}
	}

	dbpLevel := ratioDBP * maxAmp
	for i := top + 1; i < len(sorted); i++ {
		if sorted[i].Amplitude < dbpLevel {
			r.DBP = interpolate(sorted[i], sorted[i-1], dbpLevel)
			break
		}
	}

	return r, nil
}

// interpolate returns the pressure where the amplitude crosses level between
// below and above.
func interpolate(below, above Peak, level float64) float64 {
	span := above.Amplitude - below.Amplitude
	if span <= 0 {
		return below.Pressure
	}
	f := (level - below.Amplitude) / span
	return below.Pressure + f*(above.Pressure-below.Pressure)
}
