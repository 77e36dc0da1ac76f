package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/qa-archiver/internal/progress"
)

// PrometheusSink exports archive progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runRuntime    prometheus.Histogram

	itemsStarted  *prometheus.CounterVec
	itemsFinished *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	itemsInFlight prometheus.Gauge

	mediaStored prometheus.Counter
	mediaBytes  prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "archiver_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}),
		itemsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_items_started_total",
			Help: "Items taken from the frontier partitioned by kind.",
		}, []string{"kind"}),
		itemsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_items_finished_total",
			Help: "Items finished partitioned by kind and result.",
		}, []string{"kind", "result"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archiver_item_duration_seconds",
			Help:    "Time from fetch start to store partitioned by kind.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),
		itemsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_items_in_flight",
			Help: "Items currently being processed.",
		}),
		mediaStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_media_stored_total",
			Help: "Media objects physically written to the content store.",
		}),
		mediaBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_media_bytes_total",
			Help: "Bytes of media written to the content store.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.itemsStarted,
		s.itemsFinished,
		s.itemDuration,
		s.itemsInFlight,
		s.mediaStored,
		s.mediaBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone, progress.StageRunError:
		result := "success"
		if evt.Stage == progress.StageRunError {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.runRuntime.Observe(evt.Dur.Seconds())
		}
	case progress.StageItemStarted:
		s.itemsStarted.WithLabelValues(evt.Kind).Inc()
		s.itemsInFlight.Inc()
	case progress.StageItemDone, progress.StageItemFailed:
		result := "done"
		if evt.Stage == progress.StageItemFailed {
			result = "failed"
		}
		s.itemsFinished.WithLabelValues(evt.Kind, result).Inc()
		s.itemsInFlight.Dec()
		if evt.Dur > 0 {
			s.itemDuration.WithLabelValues(evt.Kind).Observe(evt.Dur.Seconds())
		}
	case progress.StageMediaStored:
		s.mediaStored.Inc()
		if evt.Bytes > 0 {
			s.mediaBytes.Add(float64(evt.Bytes))
		}
	}
}

// Close implements progress.Sink; collectors stay registered.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
