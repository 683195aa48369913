package app

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"singbirds-quiz-service/internal/domain"
)

// SessionRepository abstracts how live quiz sessions are held (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
	// Expire removes sessions idle since before cutoff and returns them.
	Expire(cutoff time.Time) []*Session
}

// PoolRepository lists the candidate species for a hotspot.
type PoolRepository interface {
	ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error)
}

// DetailFetcher loads recording and spectrogram media for a species.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, speciesID string) (domain.SpeciesDetail, error)
}

// Describer supplies best-effort descriptive text for a species.
type Describer interface {
	Describe(ctx context.Context, commonName string) domain.Description
}

// Observer receives session events, typically for metrics.
type Observer interface {
	SessionStarted(empty bool)
	SessionClosed()
	AnswerRecorded(correct bool)
	QuestionSkipped()
	DetailAttempt(err error)
	StaleFetch()
}

type nopObserver struct{}

func (nopObserver) SessionStarted(bool) {}
func (nopObserver) SessionClosed()      {}
func (nopObserver) AnswerRecorded(bool) {}
func (nopObserver) QuestionSkipped()    {}
func (nopObserver) DetailAttempt(error) {}
func (nopObserver) StaleFetch()         {}

// CountLimits bounds the requested number of questions before the pool-size clamp.
type CountLimits struct {
	Default int
	Min     int
	Max     int
}

// DefaultCountLimits matches the start screen slider: 5 to 20, default 10.
func DefaultCountLimits() CountLimits {
	return CountLimits{Default: 10, Min: 5, Max: 20}
}

// Clamp applies the default to non-positive requests and clamps into [Min, Max].
func (l CountLimits) Clamp(requested int) int {
	if requested <= 0 {
		requested = l.Default
	}
	if l.Min > 0 && requested < l.Min {
		requested = l.Min
	}
	if l.Max > 0 && requested > l.Max {
		requested = l.Max
	}
	return requested
}

// Option configures a QuizService.
type Option func(*QuizService)

// WithRetryPolicy overrides the per-question fetch policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *QuizService) { s.policy = policy }
}

// WithLoadBudget caps the time one call spends fetching media, skipped
// questions included. A call that runs out returns the loading snapshot and
// LoadQuestion picks up where it stopped. Zero means no cap.
func WithLoadBudget(d time.Duration) Option {
	return func(s *QuizService) { s.loadBudget = d }
}

// WithCountLimits overrides question count bounds.
func WithCountLimits(limits CountLimits) Option {
	return func(s *QuizService) { s.limits = limits }
}

// WithDescriber sets the descriptive text source.
func WithDescriber(d Describer) Option {
	return func(s *QuizService) { s.describer = d }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(s *QuizService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *QuizService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// WithRandSource is used by tests to make sampling and shuffling reproducible.
func WithRandSource(newRand func() *rand.Rand) Option {
	return func(s *QuizService) { s.newRand = newRand }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *QuizService) { s.newID = newID }
}

// QuizService contains the quiz use cases and drives the session state machine.
type QuizService struct {
	sessions   SessionRepository
	pools      PoolRepository
	details    DetailFetcher
	describer  Describer
	observer   Observer
	policy     RetryPolicy
	loadBudget time.Duration
	limits     CountLimits
	logger     *slog.Logger
	now        func() time.Time
	newRand    func() *rand.Rand
	newID      func() string
}

func NewQuizService(sessions SessionRepository, pools PoolRepository, details DetailFetcher, opts ...Option) *QuizService {
	s := &QuizService{
		sessions: sessions,
		pools:    pools,
		details:  details,
		observer: nopObserver{},
		policy:   DefaultRetryPolicy(),
		limits:   DefaultCountLimits(),
		logger:   slog.Default(),
		now:      time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "quiz")
	return s
}

// Start creates a session for a confirmed hotspot, samples its questions and
// loads the first one. An unusable hotspot (empty pool or listing failure)
// yields a finished session with nothing answered rather than an error.
func (s *QuizService) Start(ctx context.Context, hotspotID string, requested int) (domain.Snapshot, error) {
	if hotspotID == "" {
		return domain.Snapshot{}, domain.ErrHotspotRequired
	}

	session := NewSession(s.newID(), hotspotID, s.limits.Clamp(requested), s.newRand(), s.now)
	s.sessions.Put(session)

	pool, err := s.pools.ListSpecies(ctx, hotspotID)
	if err != nil {
		if !errors.Is(err, domain.ErrEmptyPool) {
			s.logger.Warn("species listing failed, finishing session empty",
				"session_id", session.ID(), "hotspot_id", hotspotID, "error", err)
		}
		pool = nil
	}
	if err := session.initialize(pool); err != nil {
		return domain.Snapshot{}, err
	}
	s.observer.SessionStarted(session.State() == StateFinished)

	s.logger.Info("session started",
		"session_id", session.ID(), "hotspot_id", hotspotID,
		"pool_size", len(pool), "question_count", session.Snapshot().QuestionCount)

	return s.loadQuestion(ctx, session)
}

// LoadQuestion makes sure the open question has its media, fetching it
// through the retry policy and skipping questions whose budget runs out.
func (s *QuizService) LoadQuestion(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return s.loadQuestion(ctx, session)
}

func (s *QuizService) loadQuestion(ctx context.Context, session *Session) (domain.Snapshot, error) {
	loadCtx := ctx
	if s.loadBudget > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, s.loadBudget)
		defer cancel()
	}

	for {
		ticket, ok := session.beginFetch()
		if !ok {
			return session.Snapshot(), nil
		}

		detail, err := WithRetry(loadCtx, s.policy, func(ctx context.Context, attempt int) (domain.SpeciesDetail, error) {
			if !session.isCurrent(ticket) {
				return domain.SpeciesDetail{}, domain.ErrStaleFetch
			}
			detail, err := s.details.FetchDetail(ctx, ticket.Species.ID)
			s.observer.DetailAttempt(err)
			if err != nil {
				s.logger.Debug("detail fetch attempt failed",
					"session_id", session.ID(), "index", ticket.Index,
					"species_id", ticket.Species.ID, "attempt", attempt+1, "error", err)
			}
			return detail, err
		})

		if err == nil {
			err = session.resolve(ticket, detail)
		} else if errors.Is(err, domain.ErrRetriesExhausted) {
			s.logger.Info("skipping question after exhausted retries",
				"session_id", session.ID(), "index", ticket.Index,
				"species_id", ticket.Species.ID, "error", err)
			if err = session.skip(ticket); err == nil {
				s.observer.QuestionSkipped()
				continue
			}
		}

		if errors.Is(err, domain.ErrStaleFetch) {
			s.observer.StaleFetch()
			s.logger.Debug("discarding stale detail fetch",
				"session_id", session.ID(), "index", ticket.Index, "species_id", ticket.Species.ID)
			return session.Snapshot(), nil
		}
		if err != nil && ctx.Err() == nil && loadCtx.Err() != nil {
			s.logger.Info("load budget spent, question left loading",
				"session_id", session.ID(), "index", ticket.Index,
				"species_id", ticket.Species.ID, "budget", s.loadBudget)
			return session.Snapshot(), nil
		}
		if err != nil {
			// Caller went away; the session is untouched and can be reloaded.
			return session.Snapshot(), err
		}
		return session.Snapshot(), nil
	}
}

// SubmitAnswer records the player's choice for the open question.
func (s *QuizService) SubmitAnswer(_ context.Context, sessionID, answer string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	reveal, err := session.submit(answer)
	if err != nil {
		return session.Snapshot(), err
	}
	s.observer.AnswerRecorded(reveal.Correct)
	return session.Snapshot(), nil
}

// Next leaves the answer interstitial and loads the following question, or
// finishes the session when none remain.
func (s *QuizService) Next(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	if err := session.next(); err != nil {
		return session.Snapshot(), err
	}
	return s.loadQuestion(ctx, session)
}

// Snapshot returns the current view of a session.
func (s *QuizService) Snapshot(_ context.Context, sessionID string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// Result returns the final summary of a finished session.
func (s *QuizService) Result(_ context.Context, sessionID string) (domain.Summary, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Summary{}, domain.ErrSessionNotFound
	}
	return session.Summary()
}

// Subscribe returns a channel that receives snapshots for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, sessionID string) (<-chan domain.Snapshot, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Abandon discards a session, e.g. when the player returns to the start screen.
func (s *QuizService) Abandon(_ context.Context, sessionID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions.Delete(sessionID)
	session.close()
	s.observer.SessionClosed()
	return nil
}

// ExpireIdle discards sessions with no transition for longer than idle.
func (s *QuizService) ExpireIdle(idle time.Duration) int {
	expired := s.sessions.Expire(s.now().Add(-idle))
	for _, session := range expired {
		session.close()
		s.observer.SessionClosed()
	}
	if len(expired) > 0 {
		s.logger.Debug("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Describe returns descriptive text for a species. It never fails; without a
// describer a neutral placeholder is returned.
func (s *QuizService) Describe(ctx context.Context, commonName string) domain.Description {
	if s.describer == nil {
		return domain.Description{Name: commonName, Text: "Description not available."}
	}
	return s.describer.Describe(ctx, commonName)
}
