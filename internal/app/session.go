package app

import (
	"math/rand/v2"
	"sync"
	"time"

	"singbirds-quiz-service/internal/domain"
)

// State is a quiz session's position in its lifecycle.
type State int

const (
	StateInitializing State = iota
	StateAwaitingAnswer
	StateCorrect
	StateIncorrect
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateCorrect:
		return "correct"
	case StateIncorrect:
		return "incorrect"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// FetchTicket tags an in-flight detail fetch with the question it was issued
// for. A ticket whose generation no longer matches the session is stale.
type FetchTicket struct {
	Index      int
	Species    domain.Species
	generation uint64
}

type openQuestion struct {
	species domain.Species
	detail  domain.SpeciesDetail
	choices []domain.Species
}

// Session is one quiz run. Every transition takes mu, and the score and
// outcome lists are only changed by submit.
//
// The question index shown to players is derived from the outcome lists
// (answered + 1). cursor walks the sampled sequence and also moves past
// skipped species, which are dropped from the effective question count.
type Session struct {
	id        string
	createdAt time.Time
	now       func() time.Time
	rng       *rand.Rand

	mu          sync.RWMutex
	config      domain.QuizConfiguration
	state       State
	pool        []domain.Species
	questions   []domain.Species
	cursor      int
	skipped     int
	score       int
	correct     []string
	incorrect   []string
	generation  uint64
	current     *openQuestion
	reveal      *domain.Reveal
	lastActive  time.Time
	subscribers map[chan domain.Snapshot]struct{}
}

// NewSession creates a session in the initializing state.
func NewSession(id, hotspotID string, requested int, rng *rand.Rand, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:          id,
		createdAt:   created,
		now:         now,
		rng:         rng,
		config:      domain.QuizConfiguration{HotspotID: hotspotID, RequestedCount: requested},
		state:       StateInitializing,
		correct:     []string{},
		incorrect:   []string{},
		lastActive:  created,
		subscribers: make(map[chan domain.Snapshot]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// HotspotID returns the hotspot the session was started for.
func (s *Session) HotspotID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.HotspotID
}

// Configuration returns the settings fixed when the pool was listed.
func (s *Session) Configuration() domain.QuizConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastActive is the time of the most recent transition.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// initialize samples the question sequence from pool. An empty pool finishes
// the session with zero questions.
func (s *Session) initialize(pool []domain.Species) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitializing {
		return domain.ErrInvalidTransition
	}

	s.pool = uniqueSpecies(pool)
	count := s.config.RequestedCount
	if count > len(s.pool) {
		count = len(s.pool)
	}
	if count < 0 {
		count = 0
	}
	s.questions = sampleSpecies(s.rng, s.pool, count)
	s.config.QuestionCount = len(s.questions)

	if len(s.questions) == 0 {
		s.state = StateFinished
	} else {
		s.state = StateAwaitingAnswer
	}
	s.generation++
	s.touchLocked()
	s.broadcastLocked()
	return nil
}

// beginFetch hands out a ticket for the open question when its media is still
// missing. It reports false when there is nothing to fetch.
func (s *Session) beginFetch() (FetchTicket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateAwaitingAnswer || s.current != nil || s.cursor >= len(s.questions) {
		return FetchTicket{}, false
	}
	return FetchTicket{
		Index:      s.indexLocked(),
		Species:    s.questions[s.cursor],
		generation: s.generation,
	}, true
}

// isCurrent reports whether ticket still targets the open, unresolved question.
func (s *Session) isCurrent(ticket FetchTicket) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isCurrentLocked(ticket)
}

func (s *Session) isCurrentLocked(ticket FetchTicket) bool {
	return s.state == StateAwaitingAnswer && s.current == nil && ticket.generation == s.generation
}

// resolve installs fetched media and a fresh choice set for the ticket's
// question. Stale tickets are rejected without touching state.
func (s *Session) resolve(ticket FetchTicket, detail domain.SpeciesDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isCurrentLocked(ticket) {
		return domain.ErrStaleFetch
	}

	s.current = &openQuestion{
		species: ticket.Species,
		detail:  detail,
		choices: BuildChoices(s.rng, ticket.Species, s.pool),
	}
	s.touchLocked()
	s.broadcastLocked()
	return nil
}

// skip drops the ticket's question after its fetch budget ran out. Neither
// outcome list changes; the question no longer counts towards the effective
// total, while the configuration keeps the sampled count.
func (s *Session) skip(ticket FetchTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isCurrentLocked(ticket) {
		return domain.ErrStaleFetch
	}

	s.skipped++
	s.advanceLocked()
	s.broadcastLocked()
	return nil
}

// submit records the player's answer against the open question. The match is
// an exact comparison with the target's common name.
func (s *Session) submit(answer string) (domain.Reveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingAnswer {
		return domain.Reveal{}, domain.ErrInvalidTransition
	}
	if s.current == nil {
		return domain.Reveal{}, domain.ErrQuestionNotReady
	}

	target := s.current.species
	reveal := domain.Reveal{
		Index:          s.indexLocked(),
		Species:        target,
		Answer:         answer,
		Correct:        answer == target.CommonName,
		RecordingURL:   s.current.detail.RecordingURL,
		SpectrogramURL: s.current.detail.SpectrogramURL,
	}

	if reveal.Correct {
		s.score++
		s.correct = append(s.correct, target.CommonName)
		s.state = StateCorrect
	} else {
		s.incorrect = append(s.incorrect, target.CommonName)
		s.state = StateIncorrect
	}
	s.reveal = &reveal
	s.touchLocked()
	s.broadcastLocked()
	return reveal, nil
}

// next leaves the correct/incorrect interstitial.
func (s *Session) next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCorrect && s.state != StateIncorrect {
		return domain.ErrInvalidTransition
	}
	s.advanceLocked()
	s.broadcastLocked()
	return nil
}

// advanceLocked moves the cursor past the current species and invalidates
// every outstanding ticket.
func (s *Session) advanceLocked() {
	s.cursor++
	s.generation++
	s.current = nil
	s.reveal = nil
	if s.cursor >= len(s.questions) {
		s.state = StateFinished
	} else {
		s.state = StateAwaitingAnswer
	}
	s.touchLocked()
}

// questionCountLocked is the number of questions the player will actually
// see: the sampled count less the skipped ones.
func (s *Session) questionCountLocked() int {
	return s.config.QuestionCount - s.skipped
}

// indexLocked is the 1-based question number: answered + 1.
func (s *Session) indexLocked() int {
	return len(s.correct) + len(s.incorrect) + 1
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
}

// Summary returns the final tally. It is only available once finished.
func (s *Session) Summary() (domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateFinished {
		return domain.Summary{}, domain.ErrInvalidTransition
	}
	return s.summaryLocked(), nil
}

func (s *Session) summaryLocked() domain.Summary {
	summary := Summarize(s.score, len(s.correct)+len(s.incorrect))
	summary.CorrectSpecies = append([]string{}, s.correct...)
	summary.IncorrectSpecies = append([]string{}, s.incorrect...)
	return summary
}

// Snapshot returns a copy of the session suitable for clients.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.Snapshot {
	index := s.indexLocked()
	total := s.questionCountLocked()

	snap := domain.Snapshot{
		SessionID:        s.id,
		HotspotID:        s.config.HotspotID,
		State:            s.state.String(),
		Index:            index,
		QuestionCount:    total,
		Score:            s.score,
		Skipped:          s.skipped,
		CorrectSpecies:   append([]string{}, s.correct...),
		IncorrectSpecies: append([]string{}, s.incorrect...),
		UpdatedAt:        s.lastActive,
	}
	if remaining := total - index; remaining > 0 {
		snap.Remaining = remaining
	}
	if total > 0 {
		snap.ProgressPercent = 100 * float64(min(index, total)) / float64(total)
	}

	switch s.state {
	case StateInitializing:
		snap.View = domain.ViewLoading
	case StateAwaitingAnswer:
		if s.current == nil {
			snap.View = domain.ViewLoading
			break
		}
		snap.View = domain.ViewQuestion
		snap.Question = &domain.QuestionView{
			Index:          index,
			RecordingURL:   s.current.detail.RecordingURL,
			SpectrogramURL: s.current.detail.SpectrogramURL,
			Choices:        append([]domain.Species{}, s.current.choices...),
		}
	case StateCorrect, StateIncorrect:
		snap.View = domain.ViewIncorrect
		if s.state == StateCorrect {
			snap.View = domain.ViewCorrect
		}
		if s.reveal != nil {
			reveal := *s.reveal
			snap.Reveal = &reveal
		}
	case StateFinished:
		snap.View = domain.ViewResult
		summary := s.summaryLocked()
		snap.Summary = &summary
	}
	return snap
}

// subscribe registers a channel that receives a snapshot after every
// transition. The first value is the current snapshot.
func (s *Session) subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// close drops every subscriber. Used when the session is discarded.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Session) broadcastLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow subscriber: drop its oldest update so the newest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
