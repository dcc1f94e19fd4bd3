// Package session holds short-lived capture sessions for the phone
// shortcut flow: the shortcut creates a session, uploads against its token,
// and the token dies after one claim or after the TTL.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrSessionClaimed  = errors.New("session already claimed")
)

// Session is a single-use capture ticket.
type Session struct {
	Token     string
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	claimed   bool
}

// Store is an in-memory TTL session store. Sessions are small and
// short-lived, so process-local state is enough; losing them on restart
// only means the shortcut re-creates one.
type Store struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create mints a new session token for the user.
func (s *Store) Create(userID uuid.UUID) Session {
	now := s.now()
	sess := &Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()

	s.logger.Info("session.created", "user_id", userID, "expires_at", sess.ExpiresAt)
	return *sess
}

// Claim consumes a token exactly once. Expired and unknown tokens are
// indistinguishable to the caller.
func (s *Store) Claim(token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok || s.now().After(sess.ExpiresAt) {
		return Session{}, ErrSessionNotFound
	}
	if sess.claimed {
		return Session{}, ErrSessionClaimed
	}
	sess.claimed = true
	return *sess, nil
}

// Sweep drops expired and claimed sessions; returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if sess.claimed || now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("session.sweep", "removed", removed, "remaining", len(s.sessions))
	}
	return removed
}

// Run sweeps periodically until the stop channel closes.
func (s *Store) Run(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-stop:
			return
		}
	}
}
