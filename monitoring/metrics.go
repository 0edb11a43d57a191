package monitoring

import (
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_length_total",
			Help: "Current queued patients per doctor",
		},
		[]string{"doctor_id"},
	)

	queueTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_transitions_total",
			Help: "Total queue transitions",
		},
		[]string{"operation", "doctor_id", "status"},
	)

	conflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_conflict_retries_total",
			Help: "Batch writes retried after losing a concurrent-update race",
		},
		[]string{"operation"},
	)

	transitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_transition_duration_seconds",
			Help:    "Duration of the read-compute-write transition cycle",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"operation"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

func TrackTransition(operation, doctorID, status string) {
	queueTransitions.WithLabelValues(operation, doctorID, status).Inc()
}

func TrackConflictRetry(operation string) {
	conflictRetries.WithLabelValues(operation).Inc()
}

func ObserveTransitionDuration(operation string, seconds float64) {
	transitionDuration.WithLabelValues(operation).Observe(seconds)
}

func SetQueueLength(doctorID string, length int) {
	queueLength.WithLabelValues(doctorID).Set(float64(length))
}

// Monitor periodically refreshes gauges from the ledger so they stay
// correct even for doctors whose queues only change through the admin UI.
type Monitor struct {
	app      core.App
	interval time.Duration
	stopChan chan struct{}
}

func NewMonitor(app core.App, interval time.Duration) *Monitor {
	m := &Monitor{
		app:      app,
		interval: interval,
		stopChan: make(chan struct{}),
	}
	go m.collect()
	return m
}

func (m *Monitor) Stop() {
	close(m.stopChan)
}

func (m *Monitor) collect() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collectQueueLengths()
			goroutineCount.Set(float64(runtime.NumGoroutine()))
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) collectQueueLengths() {
	var rows []dbx.NullStringMap
	err := m.app.DB().
		NewQuery("SELECT doctor_id, COUNT(*) AS cnt FROM doctor_queue WHERE status IN ('waiting', 're-enter') GROUP BY doctor_id").
		All(&rows)
	if err != nil {
		log.Printf("Error collecting queue lengths: %v", err)
		return
	}

	for _, row := range rows {
		cnt, _ := strconv.Atoi(row["cnt"].String)
		SetQueueLength(row["doctor_id"].String, cnt)
	}
}

// StartMetricsServer exposes /metrics on its own port.
func StartMetricsServer(port string) {
	e := echo.New()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: e,
	}

	go func() {
		log.Printf("Metrics server listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
}
