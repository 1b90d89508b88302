// Copyright 2025 James Ross
package obs

import (
    "fmt"
    "net/http"

    "github.com/holocron/orchestrator/internal/config"
    "github.com/prometheus/client_golang/prometheus"
    promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    WorkItemsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "work_items_enqueued_total",
        Help: "Total number of ingest work items accepted through Enqueue",
    })
    WorkItemsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "work_items_claimed_total",
        Help: "Total number of ingest work items claimed by a runner",
    })
    WorkItemsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "work_items_completed_total",
        Help: "Total number of ingest work items completed successfully",
    })
    WorkItemsFailed = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "work_items_failed_total",
        Help: "Total number of ingest work items that failed a fetch/process attempt",
    })
    JobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "jobs_enqueued_total",
        Help: "Total number of LLM derivation jobs accepted through Enqueue",
    })
    JobsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "jobs_claimed_total",
        Help: "Total number of LLM derivation jobs claimed by a dispatcher",
    })
    JobsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "jobs_succeeded_total",
        Help: "Total number of LLM derivation jobs completed successfully",
    })
    JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "jobs_failed_total",
        Help: "Total number of LLM derivation jobs that failed a run",
    })
    JobsDead = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "jobs_dead_total",
        Help: "Total number of LLM derivation jobs that exhausted max_attempts",
    })
    RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Name:    "run_duration_seconds",
        Help:    "Histogram of dispatcher run durations",
        Buckets: prometheus.DefBuckets,
    })
    QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Name: "queue_depth",
        Help: "Current row count per (table, status)",
    }, []string{"table", "status"})
    CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Name: "circuit_breaker_state",
        Help: "0 Closed, 1 HalfOpen, 2 Open, labeled per connector",
    }, []string{"connector"})
    CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "circuit_breaker_trips_total",
        Help: "Count of times a connector's circuit breaker transitioned to Open",
    }, []string{"connector"})
    LeaseSweepRecovered = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "lease_sweep_recovered_total",
        Help: "Total number of rows reclaimed by the scheduler's lease-recovery sweep",
    })
    WorkersActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Name: "workers_active",
        Help: "Number of active runner/dispatcher goroutines",
    })
)

func init() {
    prometheus.MustRegister(
        WorkItemsEnqueued, WorkItemsClaimed, WorkItemsCompleted, WorkItemsFailed,
        JobsEnqueued, JobsClaimed, JobsSucceeded, JobsFailed, JobsDead,
        RunDuration, QueueDepth, CircuitBreakerState, CircuitBreakerTrips,
        LeaseSweepRecovered, WorkersActive,
    )
}

// StartMetricsServer exposes /metrics and returns a server for controlled shutdown.
// StartMetricsServer is retained for compatibility but consider using StartHTTPServer
// which also registers health endpoints.
func StartMetricsServer(cfg *config.Config) *http.Server {
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.Handler())
    srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
    go func() { _ = srv.ListenAndServe() }()
    return srv
}
