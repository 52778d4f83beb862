// Package metrics exports session lifecycle events as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"

	"github.com/branchline/branchline/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "branchline"

// Collector records lifecycle hooks into Prometheus counters.
type Collector struct {
	sceneVisits *prometheus.CounterVec
	choices     *prometheus.CounterVec
	endings     *prometheus.CounterVec
	restarts    *prometheus.CounterVec
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	active func() int
}

// WithActiveSessions exports fn as a gauge of open sessions.
func WithActiveSessions(fn func() int) Option {
	return func(o *options) {
		o.active = fn
	}
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer, opts ...Option) (*Collector, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Collector{
		sceneVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scene_visits_total",
				Help:      "Total number of scene entries",
			},
			[]string{"story", "scene"},
		),
		choices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "choices_total",
				Help:      "Total number of committed choices",
			},
			[]string{"story"},
		),
		endings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endings_discovered_total",
				Help:      "Total number of endings reached for the first time by a player",
			},
			[]string{"story", "ending_type"},
		),
		restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restarts_total",
				Help:      "Total number of restarts",
			},
			[]string{"story"},
		),
	}

	collectors := []prometheus.Collector{c.sceneVisits, c.choices, c.endings, c.restarts}
	if o.active != nil {
		active := o.active
		collectors = append(collectors, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of open sessions",
			},
			func() float64 { return float64(active()) },
		))
	}

	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return c, nil
}

// Hooks returns lifecycle hooks feeding the collector.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSceneEnter: func(_ context.Context, e *domain.SceneEvent) {
			c.sceneVisits.WithLabelValues(e.StoryID, e.SceneID).Inc()
		},
		OnChoice: func(_ context.Context, e *domain.ChoiceEvent) {
			c.choices.WithLabelValues(e.StoryID).Inc()
		},
		OnEndingDiscovered: func(_ context.Context, e *domain.SceneEvent) {
			c.endings.WithLabelValues(e.StoryID, string(e.EndingType)).Inc()
		},
		OnRestart: func(_ context.Context, e *domain.SceneEvent) {
			c.restarts.WithLabelValues(e.StoryID).Inc()
		},
	}
}
