package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "recon_"

	// ResultSuccess labels a successful operation.
	ResultSuccess = "success"
	// ResultError labels a failed operation.
	ResultError = "error"
)

var (
	registerOnce sync.Once

	fetchRequests *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	throttleWaits prometheus.Counter
	rateLimitWait prometheus.Histogram

	replaceTotal   *prometheus.CounterVec
	replaceLatency *prometheus.HistogramVec

	recomputeTotal   *prometheus.CounterVec
	recomputeLatency *prometheus.HistogramVec

	aggregateRefreshTotal   *prometheus.CounterVec
	aggregateRefreshLatency *prometheus.HistogramVec

	periodsRepaired *prometheus.CounterVec
	periodStatuses  *prometheus.CounterVec
	datesTotal      *prometheus.CounterVec

	reportExportTotal *prometheus.CounterVec
)

// Init registers reconciliation metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		fetchRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_requests_total",
				Help: "Total remote fetches by result",
			},
			[]string{"result"},
		)
		fetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "fetch_latency_seconds",
				Help:    "Remote fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		throttleWaits = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "throttle_cooldowns_total",
				Help: "Total cooldown sleeps caused by remote throttling",
			},
		)
		rateLimitWait = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "rate_limit_wait_seconds",
				Help:    "Time spent blocked on the sliding-window rate limiter",
				Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
			},
		)

		replaceTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fact_replace_total",
				Help: "Total fact period replaces by result",
			},
			[]string{"result"},
		)
		replaceLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "fact_replace_latency_seconds",
				Help:    "Fact period replace latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		recomputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "derived_recompute_total",
				Help: "Total derived recomputes by result",
			},
			[]string{"result"},
		)
		recomputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "derived_recompute_latency_seconds",
				Help:    "Derived recompute latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		aggregateRefreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregate_refresh_total",
				Help: "Total aggregate refreshes by granularity and result",
			},
			[]string{"granularity", "result"},
		)
		aggregateRefreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregate_refresh_latency_seconds",
				Help:    "Aggregate refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"granularity"},
		)

		periodsRepaired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "periods_repaired_total",
				Help: "Total period repairs by result",
			},
			[]string{"result"},
		)
		periodStatuses = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "period_classifications_total",
				Help: "Total period classifications by status",
			},
			[]string{"status"},
		)
		datesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dates_total",
				Help: "Total reconciled dates by terminal status",
			},
			[]string{"status"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			fetchRequests,
			fetchLatency,
			throttleWaits,
			rateLimitWait,
			replaceTotal,
			replaceLatency,
			recomputeTotal,
			recomputeLatency,
			aggregateRefreshTotal,
			aggregateRefreshLatency,
			periodsRepaired,
			periodStatuses,
			datesTotal,
			reportExportTotal,
		)
	})
}

// ObserveFetch records one remote fetch attempt.
func ObserveFetch(result string, duration time.Duration) {
	if fetchRequests == nil {
		return
	}
	fetchRequests.WithLabelValues(result).Inc()
	fetchLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// IncThrottleCooldown records one cooldown sleep after a throttling response.
func IncThrottleCooldown() {
	if throttleWaits != nil {
		throttleWaits.Inc()
	}
}

// ObserveRateLimitWait records time spent blocked on the limiter.
func ObserveRateLimitWait(duration time.Duration) {
	if rateLimitWait != nil {
		rateLimitWait.Observe(duration.Seconds())
	}
}

// ObserveReplace records one fact period replace.
func ObserveReplace(result string, duration time.Duration) {
	if replaceTotal == nil {
		return
	}
	replaceTotal.WithLabelValues(result).Inc()
	replaceLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveRecompute records one derived recompute.
func ObserveRecompute(result string, duration time.Duration) {
	if recomputeTotal == nil {
		return
	}
	recomputeTotal.WithLabelValues(result).Inc()
	recomputeLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveAggregateRefresh records one aggregate refresh.
func ObserveAggregateRefresh(granularity, result string, duration time.Duration) {
	if aggregateRefreshTotal == nil {
		return
	}
	aggregateRefreshTotal.WithLabelValues(granularity, result).Inc()
	aggregateRefreshLatency.WithLabelValues(granularity).Observe(duration.Seconds())
}

// IncPeriodRepaired records one period repair outcome.
func IncPeriodRepaired(result string) {
	if periodsRepaired != nil {
		periodsRepaired.WithLabelValues(result).Inc()
	}
}

// IncPeriodClassification records one period classification.
func IncPeriodClassification(status string) {
	if periodStatuses != nil {
		periodStatuses.WithLabelValues(status).Inc()
	}
}

// IncDate records one date reaching a terminal status.
func IncDate(status string) {
	if datesTotal != nil {
		datesTotal.WithLabelValues(status).Inc()
	}
}

// IncReportExport records one report export.
func IncReportExport(format, result string) {
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
}
