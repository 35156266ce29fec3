package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "ai_jobs_submitted_total", Help: "AI jobs accepted for background execution"})
	JobsFinished     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ai_jobs_finished_total", Help: "AI jobs that reached a terminal state"}, []string{"outcome"})
	JobsInFlight     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ai_jobs_inflight", Help: "AI jobs currently running the external tool"})
	JobDuration      = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "ai_job_duration_seconds", Help: "Wall time of AI tool invocations", Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60}})
	ContactMessages  = prometheus.NewCounter(prometheus.CounterOpts{Name: "contact_messages_total", Help: "Contact messages stored"})
	ContactRejects   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contact_rejects_total", Help: "Contact submissions rejected by spam checks"}, []string{"reason"})
	Uploads          = prometheus.NewCounter(prometheus.CounterOpts{Name: "uploads_total", Help: "Files uploaded through the admin panel"})
	PageSaves        = prometheus.NewCounter(prometheus.CounterOpts{Name: "page_saves_total", Help: "HTML pages saved through the admin panel"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
)

// Outcome labels for JobsFinished.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsFinished,
			JobsInFlight,
			JobDuration,
			ContactMessages,
			ContactRejects,
			Uploads,
			PageSaves,
			RateLimitRejects,
		)
	})
}

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
