// Package metrics exposes Prometheus instrumentation for the gamification engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

const namespace = "gamification"

// Metrics holds every collector of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	xpAwarded         prometheus.Counter
	levelUps          prometheus.Counter
	streakTransitions *prometheus.CounterVec
	badgesAwarded     *prometheus.CounterVec
	badgeFailures     prometheus.Counter
	eventHandlers     *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		xpAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awarded_total",
			Help:      "Total XP added to learner profiles.",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Number of completions that raised a learner's level.",
		}),
		streakTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streak_transitions_total",
			Help:      "Streak updates by transition kind.",
		}, []string{"transition"}),
		badgesAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_awarded_total",
			Help:      "Badges newly awarded, by badge.",
		}, []string{"badge_id"}),
		badgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badge_evaluation_failures_total",
			Help:      "Badge evaluations that failed after XP was committed.",
		}),
		eventHandlers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Duration of domain event handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	m.registry.MustRegister(
		m.xpAwarded,
		m.levelUps,
		m.streakTransitions,
		m.badgesAwarded,
		m.badgeFailures,
		m.eventHandlers,
		m.httpRequests,
		m.httpDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveXP records XP added by one completion.
func (m *Metrics) ObserveXP(amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.xpAwarded.Add(float64(amount))
}

// ObserveLevelUp records a level increase.
func (m *Metrics) ObserveLevelUp() {
	if m == nil {
		return
	}
	m.levelUps.Inc()
}

// ObserveStreak records a streak transition ("started", "extended", ...).
func (m *Metrics) ObserveStreak(transition string) {
	if m == nil {
		return
	}
	m.streakTransitions.WithLabelValues(transition).Inc()
}

// ObserveBadgeAwarded records a newly earned badge.
func (m *Metrics) ObserveBadgeAwarded(badgeID string) {
	if m == nil {
		return
	}
	m.badgesAwarded.WithLabelValues(badgeID).Inc()
}

// ObserveBadgeFailure records a failed badge evaluation.
func (m *Metrics) ObserveBadgeFailure() {
	if m == nil {
		return
	}
	m.badgeFailures.Inc()
}

// ObserveEventHandler matches the event bus OnHandled hook.
func (m *Metrics) ObserveEventHandler(eventType shared.EventType, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.eventHandlers.WithLabelValues(string(eventType), status).Observe(d.Seconds())
}

// ObserveHTTP records one HTTP request. route must be the route pattern, not the raw path.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
