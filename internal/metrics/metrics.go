// Package metrics exposes the runtime's Prometheus collectors.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tgbot"

// Collector implements the observer interfaces of the transport, the poll loop and
// the dispatcher.
type Collector struct {
	updates         *prometheus.CounterVec
	unknownUpdates  *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	apiErrors       *prometheus.CounterVec
	retries         *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	batchSize       prometheus.Histogram

	registerer prometheus.Registerer
}

// New creates the collectors and registers them on registerer.
func New(registerer prometheus.Registerer) (*Collector, error) {
	if registerer == nil {
		return nil, fmt.Errorf("new metrics collector: nil registerer")
	}

	collector := &Collector{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Updates received, by payload kind.",
		}, []string{"kind"}),
		unknownUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_updates_total",
			Help:      "Update payload kinds without a handler.",
		}, []string{"kind"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Command, callback and update handlers that returned an error or panicked.",
		}, []string{"handler"}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Bot API calls answered with ok=false.",
		}, []string{"method", "code"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_retries_total",
			Help:      "Bot API calls retried after retry_after.",
		}, []string{"method"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of getUpdates round trips.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 20, 40, 50},
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Updates per getUpdates batch.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		registerer: registerer,
	}

	for _, c := range []prometheus.Collector{
		collector.updates,
		collector.unknownUpdates,
		collector.handlerFailures,
		collector.apiErrors,
		collector.retries,
		collector.fetchDuration,
		collector.batchSize,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return collector, nil
}

// ObserveUpdate counts one update payload.
func (c *Collector) ObserveUpdate(kind string) {
	c.updates.WithLabelValues(kind).Inc()
}

// ObserveUnknownUpdate counts a payload kind nobody handles.
func (c *Collector) ObserveUnknownUpdate(kind string) {
	c.unknownUpdates.WithLabelValues(kind).Inc()
}

// ObserveHandlerFailure counts a failed handler.
func (c *Collector) ObserveHandlerFailure(handler string) {
	c.handlerFailures.WithLabelValues(handler).Inc()
}

// ObserveAPIError counts an ok=false answer.
func (c *Collector) ObserveAPIError(method string, code int) {
	c.apiErrors.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// ObserveRateLimitRetry counts a retry_after wait.
func (c *Collector) ObserveRateLimitRetry(method string) {
	c.retries.WithLabelValues(method).Inc()
}

// ObserveFetch records one getUpdates round trip.
func (c *Collector) ObserveFetch(duration time.Duration, updates int) {
	c.fetchDuration.Observe(duration.Seconds())
	c.batchSize.Observe(float64(updates))
}

// TrackObjects exports live, the number of live cached objects of kind, as a gauge.
func (c *Collector) TrackObjects(kind string, live func() int) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "cached_objects",
		Help:        "Live identity-cached objects, by kind.",
		ConstLabels: prometheus.Labels{"kind": kind},
	}, func() float64 {
		return float64(live())
	})
	if err := c.registerer.Register(gauge); err != nil {
		return fmt.Errorf("register cached objects gauge %s: %w", kind, err)
	}

	return nil
}
