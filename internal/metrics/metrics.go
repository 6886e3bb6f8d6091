// Package metrics exposes gamification and HTTP counters to Prometheus.
//
// Collectors live on a private registry rather than the global default, so
// tests can build as many Metrics values as they like without duplicate
// registration panics. Handler serves that registry on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/brightminds/internal/model"
	"github.com/sakif/brightminds/internal/service"
)

const namespace = "brightminds"

var _ service.Recorder = (*Metrics)(nil)

type Metrics struct {
	registry *prometheus.Registry

	classroomsCreated prometheus.Counter
	enrollments       *prometheus.CounterVec
	studentsRemoved   prometheus.Counter
	gamesAssigned     prometheus.Counter
	gamesUnassigned   prometheus.Counter
	attempts          *prometheus.CounterVec
	attemptsRejected  *prometheus.CounterVec
	xpAwarded         prometheus.Counter
	levelUps          prometheus.Counter
	levelReached      prometheus.Histogram
	registrations     *prometheus.CounterVec

	httpDuration *prometheus.HistogramVec
}

// New registers every collector, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		classroomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "classrooms_created_total",
			Help: "Classrooms created by teachers.",
		}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "enrollments_total",
			Help: "Students newly enrolled, by method (code or email).",
		}, []string{"method"}),
		studentsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "students_removed_total",
			Help: "Students removed from classrooms.",
		}),
		gamesAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "games_assigned_total",
			Help: "Library games assigned to classrooms.",
		}),
		gamesUnassigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "games_unassigned_total",
			Help: "Assignments removed from classrooms.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "attempts_recorded_total",
			Help: "Game attempts committed, split by whether they were late.",
		}, []string{"overdue"}),
		attemptsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "attempts_rejected_total",
			Help: "Game attempts refused, by reason.",
		}, []string{"reason"}),
		xpAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "xp_awarded_total",
			Help: "Experience points granted to students.",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "level_ups_total",
			Help: "Levels gained by students. One attempt can add several.",
		}),
		levelReached: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "level_reached",
			Help:    "Level a student reached after a level-up.",
			Buckets: prometheus.LinearBuckets(2, 2, 10),
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "users_registered_total",
			Help: "Profiles registered, by role.",
		}, []string{"role"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by method, route pattern and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.classroomsCreated, m.enrollments, m.studentsRemoved,
		m.gamesAssigned, m.gamesUnassigned,
		m.attempts, m.attemptsRejected, m.xpAwarded,
		m.levelUps, m.levelReached, m.registrations,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ===== service.Recorder =====

func (m *Metrics) ClassroomCreated()              { m.classroomsCreated.Inc() }
func (m *Metrics) StudentEnrolled(method string)  { m.enrollments.WithLabelValues(method).Inc() }
func (m *Metrics) StudentRemoved()                { m.studentsRemoved.Inc() }
func (m *Metrics) GameAssigned()                  { m.gamesAssigned.Inc() }
func (m *Metrics) GameUnassigned()                { m.gamesUnassigned.Inc() }
func (m *Metrics) AttemptRejected(reason string)  { m.attemptsRejected.WithLabelValues(reason).Inc() }
func (m *Metrics) UserRegistered(role model.Role) { m.registrations.WithLabelValues(string(role)).Inc() }

func (m *Metrics) AttemptRecorded(xp int64, overdue bool) {
	m.attempts.WithLabelValues(strconv.FormatBool(overdue)).Inc()
	if xp > 0 {
		m.xpAwarded.Add(float64(xp))
	}
}

func (m *Metrics) LevelUp(from, to int) {
	if to <= from {
		return
	}
	m.levelUps.Add(float64(to - from))
	m.levelReached.Observe(float64(to))
}

// ===== HTTP =====

// ObserveRequest records one finished request. route should be the router
// pattern (e.g. /api/v1/classrooms/{classroomId}), never the raw path, to
// keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
