package scope

import (
	"image/color"
	"strconv"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/chewxy/math32"
)

// Dial geometry. Angles are degrees clockwise from six o'clock.
const (
	GaugeStartAngle = 30
	GaugeEndAngle   = 330
)

// Gauge is an analog dial with a needle, like the manometer of a manual
// blood-pressure cuff.
type Gauge struct {
	widget.BaseWidget

	min, max, step float64
	unit           string

	mu    sync.RWMutex
	value float64
}

// NewGauge creates a dial from lo to hi with a labelled tick every step.
func NewGauge(lo, hi, step float64, unit string) *Gauge {
	if hi <= lo {
		hi = lo + 1
	}
	if step <= 0 {
		step = hi - lo
	}
	g := &Gauge{min: lo, max: hi, step: step, unit: unit, value: lo}
	g.ExtendBaseWidget(g)
	return g
}

// NewPressureGauge creates the 0..250 mmHg cuff manometer.
func NewPressureGauge() *Gauge {
	return NewGauge(0, 250, 20, "mmHg")
}

// SetValue moves the needle. It must be called on the display goroutine.
func (g *Gauge) SetValue(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
	g.Refresh()
}

// Value returns the needle position.
func (g *Gauge) Value() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// angle returns the needle angle for v, clamped to the dial.
func (g *Gauge) angle(v float64) float32 {
	f := clamp01((v - g.min) / (g.max - g.min))
	return GaugeStartAngle + float32(f)*(GaugeEndAngle-GaugeStartAngle)
}

// ticks returns the labelled values from min to max.
func (g *Gauge) ticks() []float64 {
	var out []float64
	for v := g.min; v <= g.max+1e-9; v += g.step {
		out = append(out, v)
	}
	return out
}

// polar returns the point at radius r and angle a around center c.
func polar(c fyne.Position, r, a float32) fyne.Position {
	rad := a * math32.Pi / 180
	return fyne.NewPos(c.X-r*math32.Sin(rad), c.Y+r*math32.Cos(rad))
}

// CreateRenderer creates the widget renderer.
func (g *Gauge) CreateRenderer() fyne.WidgetRenderer {
	face := canvas.NewCircle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	face.StrokeColor = labelColor
	face.StrokeWidth = 2
	needle := canvas.NewLine(color.RGBA{R: 220, G: 40, B: 40, A: 255})
	needle.StrokeWidth = 3
	readout := canvas.NewText("", color.White)
	readout.TextSize = 16
	readout.TextStyle = fyne.TextStyle{Bold: true}
	readout.Alignment = fyne.TextAlignCenter

	r := &gaugeRenderer{gauge: g, face: face, needle: needle, readout: readout}
	for _, v := range g.ticks() {
		tick := canvas.NewLine(labelColor)
		tick.StrokeWidth = 2
		label := canvas.NewText(strconv.FormatFloat(v, 'f', 0, 64), labelColor)
		label.TextSize = 10
		label.Alignment = fyne.TextAlignCenter
		r.ticks = append(r.ticks, gaugeTick{value: v, line: tick, label: label})
	}
	return r
}

type gaugeTick struct {
	value float64
	line  *canvas.Line
	label *canvas.Text
}

// gaugeRenderer renders the gauge widget.
type gaugeRenderer struct {
	gauge   *Gauge
	face    *canvas.Circle
	needle  *canvas.Line
	readout *canvas.Text
	ticks   []gaugeTick
}

func (r *gaugeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(160, 160)
}

func (r *gaugeRenderer) Layout(size fyne.Size) {
	radius := min(size.Width, size.Height)/2 - 4
	center := fyne.NewPos(size.Width/2, size.Height/2)

	r.face.Move(fyne.NewPos(center.X-radius, center.Y-radius))
	r.face.Resize(fyne.NewSize(2*radius, 2*radius))

	for _, t := range r.ticks {
		a := r.gauge.angle(t.value)
		t.line.Position1 = polar(center, radius*0.85, a)
		t.line.Position2 = polar(center, radius*0.97, a)
		pos := polar(center, radius*0.7, a)
		t.label.Move(fyne.NewPos(pos.X-12, pos.Y-7))
		t.label.Resize(fyne.NewSize(24, 14))
	}

	r.readout.Move(fyne.NewPos(center.X-50, center.Y+radius*0.35))
	r.readout.Resize(fyne.NewSize(100, 20))

	r.layoutNeedle(center, radius)
}

func (r *gaugeRenderer) layoutNeedle(center fyne.Position, radius float32) {
	a := r.gauge.angle(r.gauge.Value())
	r.needle.Position1 = center
	r.needle.Position2 = polar(center, radius*0.8, a)
}

func (r *gaugeRenderer) Refresh() {
	v := r.gauge.Value()
	r.readout.Text = strconv.FormatFloat(v, 'f', 0, 64) + " " + r.gauge.unit
	r.Layout(r.gauge.Size())
	r.readout.Refresh()
	r.needle.Refresh()
}

func (r *gaugeRenderer) Objects() []fyne.CanvasObject {
	objects := []fyne.CanvasObject{r.face}
	for _, t := range r.ticks {
		objects = append(objects, t.line, t.label)
	}
	return append(objects, r.needle, r.readout)
}

func (r *gaugeRenderer) Destroy() {}
