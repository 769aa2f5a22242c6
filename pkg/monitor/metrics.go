package monitor

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// Acquisition
	SamplesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bpm_samples_read_total",
		Help: "Samples read from the acquisition device",
	})

	BacklogBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bpm_acquisition_backlog_bytes",
		Help: "Bytes queued by the device at the last backlog check",
	})

	SamplingRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bpm_sampling_rate_hz",
		Help: "Negotiated sampling rate",
	})

	// Bridge
	BridgePosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpm_bridge_posts_total",
			Help: "Scalar updates posted to the display",
		},
		[]string{"target"},
	)

	BridgeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpm_bridge_failures_total",
			Help: "Scalar updates that could not be queued",
		},
		[]string{"reason"},
	)

	// Workflow
	ScreenTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpm_screen_transitions_total",
			Help: "Measurement workflow transitions",
		},
		[]string{"from", "to"},
	)

	Measurements = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bpm_measurements_total",
		Help: "Completed blood pressure measurements",
	})

	// Runtime
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bpm_goroutines",
		Help: "Current number of goroutines",
	})

	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bpm_memory_usage_bytes",
		Help: "Allocated heap memory",
	})
)

// Collectors returns every package-level collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SamplesRead,
		BacklogBytes,
		SamplingRate,
		BridgePosts,
		BridgeFailures,
		ScreenTransitions,
		Measurements,
		GoroutineCount,
		MemoryUsage,
	}
}

// Monitor exposes the metrics over HTTP and samples runtime statistics.
type Monitor struct {
	log      logrus.FieldLogger
	registry *prometheus.Registry
}

// New creates a monitor with its own registry holding every collector.
func New(log logrus.FieldLogger) (*Monitor, error) {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Monitor{
		log:      log.WithField("component", "monitor"),
		registry: reg,
	}, nil
}

// Registry returns the monitor registry.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterQueueDepth exports fn as the bridge queue depth gauge.
func (m *Monitor) RegisterQueueDepth(fn func() int) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "bpm_bridge_queue_depth",
		Help: "Scalar updates waiting for the display",
	}, func() float64 { return float64(fn()) }))
}

// Handler returns the HTTP handler serving /metrics and /health.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// StartMetricsServer serves Handler on addr until ctx is cancelled.
func (m *Monitor) StartMetricsServer(ctx context.Context, addr string) {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	m.log.Infof("Metrics server listening on %s", addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Errorf("Metrics server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// StartRuntimeMonitor samples goroutine and memory statistics every interval.
func (m *Monitor) StartRuntimeMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sampleRuntime()
			}
		}
	}()
}

func (m *Monitor) sampleRuntime() {
	GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	MemoryUsage.Set(float64(memStats.Alloc))

	m.log.Debugf("Goroutines: %d, memory: %.2f MB",
		runtime.NumGoroutine(),
		float64(memStats.Alloc)/1024/1024,
	)
}
