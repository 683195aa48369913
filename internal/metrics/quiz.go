// Package metrics exposes Prometheus collectors for quiz session activity.
package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"singbirds-quiz-service/internal/domain"
)

// QuizMetrics implements app.Observer and prometheus.Collector.
type QuizMetrics struct {
	SessionsStarted  *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	Answers          *prometheus.CounterVec
	QuestionsSkipped prometheus.Counter
	DetailAttempts   *prometheus.CounterVec
	StaleFetches     prometheus.Counter
}

// NewQuizMetrics creates the collectors and registers them with registry.
func NewQuizMetrics(registry prometheus.Registerer) (*QuizMetrics, error) {
	m := &QuizMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register quiz metrics: %w", err)
	}
	return m, nil
}

func (m *QuizMetrics) initMetrics() {
	m.SessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "singbirds_sessions_started_total",
		Help: "Total number of quiz sessions started, by outcome of the species listing.",
	}, []string{"outcome"})

	m.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "singbirds_active_sessions",
		Help: "Number of quiz sessions currently held.",
	})

	m.Answers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "singbirds_answers_total",
		Help: "Total number of submitted answers, by result.",
	}, []string{"result"})

	m.QuestionsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "singbirds_questions_skipped_total",
		Help: "Total number of questions dropped after their detail fetch budget ran out.",
	})

	m.DetailAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "singbirds_detail_fetch_attempts_total",
		Help: "Total number of species detail fetch attempts, by result.",
	}, []string{"result"})

	m.StaleFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "singbirds_stale_fetches_total",
		Help: "Total number of detail fetches discarded because their question was no longer open.",
	})
}

// SessionStarted counts a new session; empty marks one that finished at once.
func (m *QuizMetrics) SessionStarted(empty bool) {
	outcome := "ok"
	if empty {
		outcome = "empty"
	}
	m.SessionsStarted.WithLabelValues(outcome).Inc()
	m.ActiveSessions.Inc()
}

func (m *QuizMetrics) SessionClosed() {
	m.ActiveSessions.Dec()
}

func (m *QuizMetrics) AnswerRecorded(correct bool) {
	result := "incorrect"
	if correct {
		result = "correct"
	}
	m.Answers.WithLabelValues(result).Inc()
}

func (m *QuizMetrics) QuestionSkipped() {
	m.QuestionsSkipped.Inc()
}

func (m *QuizMetrics) DetailAttempt(err error) {
	m.DetailAttempts.WithLabelValues(attemptResult(err)).Inc()
}

func (m *QuizMetrics) StaleFetch() {
	m.StaleFetches.Inc()
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrIdentityMismatch):
		return "mismatch"
	case errors.Is(err, domain.ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, domain.ErrNetwork):
		return "network"
	default:
		return "other"
	}
}

// Collect implements the prometheus.Collector interface.
func (m *QuizMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SessionsStarted.Collect(ch)
	ch <- m.ActiveSessions
	m.Answers.Collect(ch)
	ch <- m.QuestionsSkipped
	m.DetailAttempts.Collect(ch)
	ch <- m.StaleFetches
}

// Describe implements the prometheus.Collector interface.
func (m *QuizMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SessionsStarted.Describe(ch)
	ch <- m.ActiveSessions.Desc()
	m.Answers.Describe(ch)
	ch <- m.QuestionsSkipped.Desc()
	m.DetailAttempts.Describe(ch)
	ch <- m.StaleFetches.Desc()
}
