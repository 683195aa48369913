package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"singbirds-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in a local map so subscribers keep receiving in-process
// broadcasts; Redis holds a liveness marker per session that expires after
// ttl without activity.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), session.HotspotID(), s.ttl).Err()
}

// Get returns a local session and refreshes its liveness marker.
func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(sessionID), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

// Expire drops sessions idle since before cutoff along with their markers.
func (s *SessionStore) Expire(cutoff time.Time) []*app.Session {
	s.mu.Lock()
	var expired []*app.Session
	for id, session := range s.sessions {
		if session.LastActive().Before(cutoff) {
			delete(s.sessions, id)
			expired = append(expired, session)
		}
	}
	s.mu.Unlock()

	if len(expired) > 0 {
		keys := make([]string, len(expired))
		for i, session := range expired {
			keys[i] = s.key(session.ID())
		}
		_ = s.client.Del(context.Background(), keys...).Err()
	}
	return expired
}

func (s *SessionStore) key(sessionID string) string {
	return "singbirds:session:" + sessionID
}
