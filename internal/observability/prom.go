package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Jobs(dispatch outcomes)

	JobDuration  *prometheus.HistogramVec
	JobResults   *prometheus.CounterVec
	JobsInFlight prometheus.Gauge

	// Queue engine / dispatch loop
	QueueDepth       *prometheus.GaugeVec
	DispatchAttempts *prometheus.CounterVec
	DispatchRequeues *prometheus.CounterVec

	// Worker manager
	WorkerCapacity       *prometheus.GaugeVec
	ProvisioningDuration *prometheus.HistogramVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatch",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatch",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				// Sane initial defaults
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dispatch",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatch",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatch",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),

		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatch",
				Subsystem: "jobs",
				Name:      "duration_seconds",
				Help:      "Job execution duration by queue and result",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900, 3600},
			},
			[]string{"queue", "result"}, // result=completed|failed|cancelled
		),
		JobResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatch",
				Subsystem: "jobs",
				Name:      "results_total",
				Help:      "Job outcomes by queue and result.",
			},
			[]string{"queue", "result"},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dispatch",
				Subsystem: "jobs",
				Name:      "in_flight",
				Help:      "Current number of running jobs across all workers.",
			},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dispatch",
				Subsystem: "queue",
				Name:      "depth",
				Help:      "Pending jobs waiting in a queue's in-memory FIFO.",
			},
			[]string{"queue"},
		),
		DispatchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatch",
				Subsystem: "queue",
				Name:      "dispatch_attempts_total",
				Help:      "Dispatch loop attempts to hand a job to a worker, by outcome.",
			},
			[]string{"queue", "outcome"}, // outcome=assigned|no_worker|error
		),
		DispatchRequeues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatch",
				Subsystem: "queue",
				Name:      "requeues_total",
				Help:      "Jobs returned to a queue's FIFO after a transient failure.",
			},
			[]string{"queue", "reason"},
		),

		WorkerCapacity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dispatch",
				Subsystem: "worker",
				Name:      "capacity_free",
				Help:      "Free job slots (max_jobs minus running jobs) per worker.",
			},
			[]string{"worker"},
		),
		ProvisioningDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatch",
				Subsystem: "worker",
				Name:      "provisioning_step_duration_seconds",
				Help:      "Duration of each remote worker provisioning step over SSH.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"step", "status"},
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.JobDuration, p.JobResults, p.JobsInFlight,
		p.QueueDepth, p.DispatchAttempts, p.DispatchRequeues,
		p.WorkerCapacity, p.ProvisioningDuration,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
