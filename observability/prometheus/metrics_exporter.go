package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-dispatch/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	LatenessBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	workDurationSeconds  *prom.HistogramVec
	handlerFailureTotal  *prom.CounterVec
	queueDepth           *prom.GaugeVec
	itemsPurgedTotal     *prom.CounterVec
	timerLatenessSeconds prom.Histogram
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "dispatch"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	lateness := opts.LatenessBuckets
	if len(lateness) == 0 {
		lateness = prom.ExponentialBuckets(0.0005, 2, 12)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "work_duration_seconds",
		Help:      "Handler execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"queue", "function"})
	failureVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "handler_failure_total",
		Help:      "Total number of handler panics and returned errors.",
	}, []string{"queue", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Pending items observed when a drain starts.",
	}, []string{"queue"})
	purgedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "items_purged_total",
		Help:      "Total number of items completed with the purged code.",
	}, []string{"source"})
	latenessHist := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "timer_lateness_seconds",
		Help:      "Delay between a timer item's due time and its delivery.",
		Buckets:   lateness,
	})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failureVec, err = registerCollector(reg, failureVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if purgedVec, err = registerCollector(reg, purgedVec); err != nil {
		return nil, err
	}
	if latenessHist, err = registerCollector(reg, latenessHist); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		workDurationSeconds:  durationVec,
		handlerFailureTotal:  failureVec,
		queueDepth:           queueDepthVec,
		itemsPurgedTotal:     purgedVec,
		timerLatenessSeconds: latenessHist,
	}, nil
}

// RecordWorkDuration records handler execution duration.
func (m *MetricsExporter) RecordWorkDuration(queueName string, fc core.FunctionCode, duration time.Duration) {
	if m == nil {
		return
	}
	m.workDurationSeconds.WithLabelValues(normalizeLabel(queueName, "unknown"), functionLabel(fc)).Observe(duration.Seconds())
}

// RecordHandlerFailure records handler panics and errors.
func (m *MetricsExporter) RecordHandlerFailure(queueName string, reason string) {
	if m == nil {
		return
	}
	m.handlerFailureTotal.WithLabelValues(normalizeLabel(queueName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(queueName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(queueName, "unknown")).Set(float64(depth))
}

// RecordItemPurged records purged items.
func (m *MetricsExporter) RecordItemPurged(source string) {
	if m == nil {
		return
	}
	m.itemsPurgedTotal.WithLabelValues(normalizeLabel(source, "unknown")).Inc()
}

// RecordTimerDelivery records timer lateness.
func (m *MetricsExporter) RecordTimerDelivery(lateness time.Duration) {
	if m == nil {
		return
	}
	m.timerLatenessSeconds.Observe(lateness.Seconds())
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// functionLabel keeps label cardinality bounded: application codes share one
// label value.
func functionLabel(fc core.FunctionCode) string {
	switch {
	case fc == core.FCNone:
		return "none"
	case fc.IsBuiltin():
		return fc.String()
	default:
		return "app"
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
