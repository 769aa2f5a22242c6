package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"github.com/itohio/gobpm/pkg/acquisition"
	"github.com/itohio/gobpm/pkg/bridge"
	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/measurement"
	"github.com/itohio/gobpm/pkg/monitor"
	"github.com/itohio/gobpm/pkg/sample"
	"github.com/itohio/gobpm/pkg/scope"
	"github.com/itohio/gobpm/pkg/session"
	"github.com/itohio/gobpm/pkg/workflow"
)

// runtimeInterval is the runtime statistics sampling period.
const runtimeInterval = 10 * time.Second

// appState holds the application state. Everything but the producer
// goroutine lives on the fyne main thread.
type appState struct {
	cfg     *config.Config
	log     *logrus.Logger
	window  fyne.Window
	driver  *acquisition.Driver
	buffer  *sample.Buffer
	bridge  *bridge.Bridge
	session *session.Session
	machine *workflow.Machine

	gauge           *scope.Gauge
	pressurePlot    *scope.Plot
	oscillationPlot *scope.Plot
	pages           []fyne.CanvasObject
	inflateText     *widget.Label
	startBtn        *widget.Button
	cancelBtn       *widget.Button

	heartRate        *widget.Label
	heartRateAverage *widget.Label
	mapLabel         *widget.Label
	sbpLabel         *widget.Label
	dbpLabel         *widget.Label
}

func runApp() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := setupLogger(cfg.Log)

	drv, err := acquisition.Open(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to start acquisition")
	}

	application := app.NewWithID("com.itohio.gobpm")
	window := application.NewWindow("Blood Pressure Meter")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:     cfg,
		log:     log,
		window:  window,
		driver:  drv,
		buffer:  sample.NewBuffer(cfg.Display.PlotPoints, drv.SamplingRate()),
		bridge:  bridge.New(cfg.Display.QueueSize, bridge.ExecutorFunc(fyne.Do), log),
		machine: workflow.NewMachine(log),
	}
	state.session, err = session.New(cfg, drv, state.buffer, state.bridge, log)
	if err != nil {
		drv.Close()
		log.WithError(err).Fatal("Failed to create measurement session")
	}

	window.SetContent(state.buildContent())
	window.SetMainMenu(state.buildMenu(application))
	state.wire()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		state.startMonitor(ctx)
	}

	go state.bridge.Run(ctx)
	go state.renderLoop(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.RunOrExit(ctx, state.session, log)
	}()

	window.ShowAndRun()

	// Closing the device unblocks a pending read, the session then sees the
	// cancelled context and returns.
	cancel()
	drv.Close()
	<-done
	state.bridge.Close()
	log.Info("Shut down")
	return nil
}

// buildContent lays out the gauge, the plots and the workflow pages.
func (s *appState) buildContent() fyne.CanvasObject {
	history := float64(s.cfg.Display.PlotPoints) / s.driver.SamplingRate()
	s.gauge = scope.NewPressureGauge()
	s.pressurePlot = scope.NewPlot(s.buffer, sample.SignalPressure, scope.PressurePlot(history, s.cfg.Display.DisplayPoints))
	s.oscillationPlot = scope.NewPlot(s.buffer, sample.SignalOscillation, scope.OscillationPlot(history, s.cfg.Display.DisplayPoints))

	s.startBtn = widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), s.start)
	s.startBtn.Disable()
	s.cancelBtn = widget.NewButtonWithIcon("Cancel", theme.CancelIcon(), s.cancel)
	s.cancelBtn.Hide()

	s.heartRate = widget.NewLabel(formatHeartRate(0))
	s.heartRateAverage = widget.NewLabel(formatHeartRate(0))
	s.mapLabel = widget.NewLabel("-")
	s.sbpLabel = widget.NewLabel("-")
	s.dbpLabel = widget.NewLabel("-")

	s.pages = s.buildPages()
	s.showPage(workflow.EffectsFor(workflow.Start).Page)

	heart := widget.NewForm(
		widget.NewFormItem("Heart rate", s.heartRate),
		widget.NewFormItem("Average", s.heartRateAverage),
	)
	side := container.NewBorder(nil, container.NewVBox(heart, s.cancelBtn), nil, nil,
		container.NewVBox(container.NewStack(s.pages...)),
	)
	left := container.NewGridWithRows(2, s.gauge, side)
	plots := container.NewGridWithRows(2, s.pressurePlot, s.oscillationPlot)

	split := container.NewHSplit(left, plots)
	split.Offset = 0.3
	return split
}

// buildPages returns one page per workflow screen, in screen order.
func (s *appState) buildPages() []fyne.CanvasObject {
	instructions := func(text string) *widget.Label {
		l := widget.NewLabel(text)
		l.Wrapping = fyne.TextWrapWord
		return l
	}

	again := widget.NewButtonWithIcon("New measurement", theme.ViewRefreshIcon(), s.cancel)
	results := widget.NewForm(
		widget.NewFormItem("Systolic", s.sbpLabel),
		widget.NewFormItem("Diastolic", s.dbpLabel),
		widget.NewFormItem("Mean arterial", s.mapLabel),
	)

	pages := make([]fyne.CanvasObject, workflow.Result+1)
	pages[workflow.Start] = container.NewVBox(
		instructions("Put the cuff on the upper arm, rest the arm at heart level and press Start."),
		s.startBtn,
	)
	s.inflateText = instructions(inflateInstructions(s.cfg.Measurement.PumpUp))
	pages[workflow.Inflate] = s.inflateText
	pages[workflow.Deflate] = instructions("Open the valve slightly and let the pressure fall slowly. Keep still.")
	pages[workflow.EmptyCuff] = instructions("Measurement done. Open the valve fully to empty the cuff.")
	pages[workflow.Result] = container.NewVBox(results, again)
	return pages
}

func (s *appState) showPage(page int) {
	for i, p := range s.pages {
		if i == page {
			p.Show()
		} else {
			p.Hide()
		}
	}
}

func (s *appState) buildMenu(a fyne.App) *fyne.MainMenu {
	exit := fyne.NewMenuItem("Exit", func() { a.Quit() })
	exit.IsQuit = true

	return fyne.NewMainMenu(fyne.NewMenu("Menu",
		fyne.NewMenuItem("Settings", func() { showSettingsDialog(s) }),
		fyne.NewMenuItem("Info", s.showInfo),
		fyne.NewMenuItemSeparator(),
		exit,
	))
}

// wire registers the display-side appliers for producer updates.
func (s *appState) wire() {
	s.machine.OnChange(func(screen workflow.Screen, fx workflow.Effects) {
		if screen == workflow.Inflate {
			s.inflateText.SetText(inflateInstructions(s.cfg.Measurement.PumpUp))
		}
		s.showPage(fx.Page)
		if fx.CancelVisible {
			s.cancelBtn.Show()
		} else {
			s.cancelBtn.Hide()
		}
	})

	s.bridge.Handle(bridge.TargetNeedle, floatHandler(s.log, s.gauge.SetValue))
	s.bridge.Handle(bridge.TargetScreen, s.machine.Apply)
	s.bridge.Handle(bridge.TargetHeartRate, floatHandler(s.log, func(bpm float64) {
		s.heartRate.SetText(formatHeartRate(bpm))
	}))
	s.bridge.Handle(bridge.TargetHeartRateAverage, floatHandler(s.log, func(bpm float64) {
		s.heartRateAverage.SetText(formatHeartRate(bpm))
	}))
	s.bridge.Handle(bridge.TargetResult, func(v any) {
		r, ok := v.(measurement.Result)
		if !ok {
			s.log.WithField("value", v).Error("Result update has wrong type")
			return
		}
		s.showResult(r)
	})
	s.bridge.Handle(bridge.TargetReady, func(any) {
		s.startBtn.Enable()
	})
}

// floatHandler adapts fn to a bridge handler expecting a float64.
func floatHandler(log logrus.FieldLogger, fn func(float64)) func(any) {
	return func(v any) {
		f, ok := v.(float64)
		if !ok {
			log.WithField("value", v).Error("Update is not a number")
			return
		}
		fn(f)
	}
}

func (s *appState) showResult(r measurement.Result) {
	s.mapLabel.SetText(formatPressure(r.MAP))
	s.sbpLabel.SetText(formatPressure(r.SBP))
	s.dbpLabel.SetText(formatPressure(r.DBP))
	s.log.WithFields(logrus.Fields{
		"sbp":   r.SBP,
		"dbp":   r.DBP,
		"map":   r.MAP,
		"hr":    r.HeartRate,
		"peaks": r.Peaks,
	}).Info("Result displayed")
}

// start and cancel only command the processor. Its screen events come back
// through the bridge like every other workflow transition.
func (s *appState) start() {
	s.buffer.Reset()
	s.session.Processor().Start()
}

func (s *appState) cancel() {
	s.session.Processor().Stop()
}

// renderLoop redraws the plots at the display update interval.
func (s *appState) renderLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Display.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fyne.Do(func() {
				s.pressurePlot.Render()
				s.oscillationPlot.Render()
			})
		}
	}
}

func (s *appState) startMonitor(ctx context.Context) {
	mon, err := monitor.New(s.log)
	if err != nil {
		s.log.WithError(err).Error("Metrics disabled")
		return
	}
	if err := mon.RegisterQueueDepth(s.bridge.Len); err != nil {
		s.log.WithError(err).Warn("Bridge queue depth not exported")
	}
	mon.StartMetricsServer(ctx, s.cfg.Metrics.Addr)
	mon.StartRuntimeMonitor(ctx, runtimeInterval)
}

func (s *appState) showInfo() {
	var b strings.Builder
	printProbe(&b, s.cfg, s.driver)
	dialog.ShowInformation("Info", b.String(), s.window)
}

func inflateInstructions(pumpUp float64) string {
	return fmt.Sprintf("Close the valve and pump the cuff up to %.0f mmHg.", pumpUp)
}

func formatPressure(mmHg float64) string {
	return fmt.Sprintf("%.0f mmHg", mmHg)
}

func formatHeartRate(bpm float64) string {
	return fmt.Sprintf("%.0f beats/min", bpm)
}
