package scope

import (
	"image/color"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/gobpm/pkg/sample"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
)

// plotRenderer renders the plot widget.
type plotRenderer struct {
	plot *Plot

	// Background
	background *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// plotArea is the rectangle inside the axis margins.
type plotArea struct {
	x, y, width, height float32
}

func newPlotArea(size fyne.Size) plotArea {
	const (
		marginLeft   = 50
		marginRight  = 15
		marginTop    = 20
		marginBottom = 25
	)
	return plotArea{
		x:      marginLeft,
		y:      marginTop,
		width:  size.Width - marginLeft - marginRight,
		height: size.Height - marginTop - marginBottom,
	}
}

// project maps a point onto the plot area. Values outside the axis ranges are
// clamped to the edges.
func (a plotArea) project(p sample.Point, xMin, xMax, yMin, yMax float64) fyne.Position {
	fx := clamp01((p.T - xMin) / (xMax - xMin))
	fy := clamp01((p.V - yMin) / (yMax - yMin))
	return fyne.NewPos(a.x+float32(fx)*a.width, a.y+a.height-float32(fy)*a.height)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// MinSize returns the minimum size of the widget.
func (r *plotRenderer) MinSize() fyne.Size {
	return fyne.NewSize(300, 150)
}

// Layout arranges the widget components.
func (r *plotRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.plot.BaseWidget.Refresh()
	}
}

// Refresh rebuilds the plot from the widget's current points.
func (r *plotRenderer) Refresh() {
	r.plot.mu.RLock()
	points := append([]sample.Point(nil), r.plot.display...)
	xMin, xMax := r.plot.xMin, r.plot.xMax
	r.plot.mu.RUnlock()

	cfg := r.plot.cfg
	size := r.plot.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.background}
	area := newPlotArea(size)

	r.drawGrid(area, cfg, xMin, xMax)
	r.drawTrace(area, cfg, points, xMin, xMax)

	title := canvas.NewText(cfg.Title, labelColor)
	title.TextSize = 11
	title.Move(fyne.NewPos(area.x+5, 2))
	r.objects = append(r.objects, title)
}

// drawGrid draws the oscilloscope-style grid with axis labels.
func (r *plotRenderer) drawGrid(area plotArea, cfg PlotConfig, xMin, xMax float64) {
	const numHLines, numVLines = 5, 10

	for i := range numHLines + 1 {
		y := area.y + float32(i)*area.height/numHLines
		r.addLine(gridColor, 1, fyne.NewPos(area.x, y), fyne.NewPos(area.x+area.width, y))

		value := cfg.YMax - float64(i)*(cfg.YMax-cfg.YMin)/numHLines
		text := canvas.NewText(formatValue(value), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(area.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	for i := range numVLines + 1 {
		x := area.x + float32(i)*area.width/numVLines
		r.addLine(gridColor, 1, fyne.NewPos(x, area.y), fyne.NewPos(x, area.y+area.height))

		if i%2 != 0 {
			continue
		}
		t := xMin + float64(i)*(xMax-xMin)/numVLines
		text := canvas.NewText(formatSeconds(t), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-15, area.y+area.height+5))
		r.objects = append(r.objects, text)
	}
}

// drawTrace draws the signal as connected line segments.
func (r *plotRenderer) drawTrace(area plotArea, cfg PlotConfig, points []sample.Point, xMin, xMax float64) {
	if len(points) < 2 {
		return
	}

	prev := area.project(points[0], xMin, xMax, cfg.YMin, cfg.YMax)
	for _, p := range points[1:] {
		if p.T < xMin {
			continue
		}
		pos := area.project(p, xMin, xMax, cfg.YMin, cfg.YMax)
		r.addLine(cfg.Color, 1.5, prev, pos)
		prev = pos
	}
}

func (r *plotRenderer) addLine(c color.Color, width float32, from, to fyne.Position) {
	line := canvas.NewLine(c)
	line.Position1 = from
	line.Position2 = to
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

// Objects returns all canvas objects for rendering.
func (r *plotRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *plotRenderer) Destroy() {}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 1, 64) + "s"
}
