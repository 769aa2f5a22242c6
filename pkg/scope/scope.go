package scope

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gobpm/pkg/sample"
)

// Trace colors.
var (
	ColorPressure    = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	ColorOscillation = color.RGBA{R: 100, G: 200, B: 255, A: 255} // Light blue
)

// PlotConfig describes one plot.
type PlotConfig struct {
	Title     string
	Unit      string
	YMin      float64
	YMax      float64
	Window    float64 // Seconds of history shown
	MaxPoints int     // Points drawn after downsampling
	Color     color.Color
}

// PressurePlot is the low-pass filtered cuff pressure plot.
func PressurePlot(window float64, maxPoints int) PlotConfig {
	return PlotConfig{
		Title:     "pressure (mmHg)",
		Unit:      "mmHg",
		YMin:      0,
		YMax:      250,
		Window:    window,
		MaxPoints: maxPoints,
		Color:     ColorPressure,
	}
}

// OscillationPlot is the high-pass filtered oscillation plot.
func OscillationPlot(window float64, maxPoints int) PlotConfig {
	return PlotConfig{
		Title:     "oscillations (ΔmmHg)",
		Unit:      "ΔmmHg",
		YMin:      -3,
		YMax:      4,
		Window:    window,
		MaxPoints: maxPoints,
		Color:     ColorOscillation,
	}
}

// Plot is an oscilloscope-style widget that draws one signal of a
// sample.Buffer.
type Plot struct {
	widget.BaseWidget

	cfg    PlotConfig
	buffer *sample.Buffer
	signal string

	// Data (protected by mu)
	mu       sync.RWMutex
	snapshot []sample.Point
	display  []sample.Point
	xMin     float64
	xMax     float64
}

// NewPlot creates a plot of the named signal in buffer.
func NewPlot(buffer *sample.Buffer, signal string, cfg PlotConfig) *Plot {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = 1000 // Limit points for efficient rendering
	}
	if cfg.YMax <= cfg.YMin {
		cfg.YMax = cfg.YMin + 1
	}
	p := &Plot{
		cfg:      cfg,
		buffer:   buffer,
		signal:   signal,
		snapshot: make([]sample.Point, 0, sample.MaxCapacity),
		display:  make([]sample.Point, 0, cfg.MaxPoints),
	}
	p.ExtendBaseWidget(p)
	return p
}

// Render copies the newest points out of the buffer and redraws. It must be
// called on the display goroutine.
func (p *Plot) Render() {
	p.mu.Lock()
	p.snapshot = p.buffer.Snapshot(p.signal, p.snapshot)
	p.display = sample.Downsample(p.display, p.snapshot, p.cfg.MaxPoints)
	p.xMin, p.xMax = timeWindow(p.display, p.cfg.Window)
	p.mu.Unlock()

	// Refresh outside the lock, the renderer takes it again.
	p.Refresh()
}

// Points returns a copy of the points currently drawn.
func (p *Plot) Points() []sample.Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]sample.Point(nil), p.display...)
}

// timeWindow returns the time axis range: the newest window seconds, or
// [0, window] until that much history exists.
func timeWindow(points []sample.Point, window float64) (lo, hi float64) {
	if window <= 0 {
		window = 10
	}
	if len(points) == 0 {
		return 0, window
	}
	hi = points[len(points)-1].T
	if hi < window {
		return 0, window
	}
	return hi - window, hi
}

// CreateRenderer creates the widget renderer.
func (p *Plot) CreateRenderer() fyne.WidgetRenderer {
	background := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &plotRenderer{
		plot:       p,
		background: background,
		objects:    []fyne.CanvasObject{background},
	}
}
