package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/memchat/backend/internal/model/chat"
	"github.com/zhouzirui/memchat/backend/internal/service/identity"
)

var ErrSessionNotFound = errors.New("session not found")

const defaultInactivityTimeout = 30 * time.Minute

// Session owns everything scoped to one conversation: its identity, its
// transcript and the lock that keeps a single turn in flight.
type Session struct {
	ID        string
	CreatedAt time.Time

	identity   *identity.Provider
	transcript *Transcript
	turnMu     sync.Mutex

	mu             sync.Mutex
	lastActivityAt time.Time
}

// UserID returns the session's memoized memory-owner identifier.
func (s *Session) UserID() string {
	return s.identity.UserID()
}

// Transcript returns the session's conversation log.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// LockTurn blocks until no other turn is running for this session and
// returns the matching unlock function.
func (s *Session) LockTurn() func() {
	s.turnMu.Lock()
	s.Touch()
	return s.turnMu.Unlock
}

// TryLockTurn is the non-blocking variant of LockTurn.
func (s *Session) TryLockTurn() (func(), bool) {
	if !s.turnMu.TryLock() {
		return nil, false
	}
	s.Touch()
	return s.turnMu.Unlock, true
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// Info returns the client-facing description of the session.
func (s *Session) Info() chat.SessionInfo {
	return chat.SessionInfo{
		ID:             s.ID,
		UserID:         s.UserID(),
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.idleSince(),
	}
}

// Config controls session provisioning.
type Config struct {
	IdentitySource    string
	InactivityTimeout time.Duration
}

// Service keeps the live sessions in memory. Nothing is persisted: a session
// and its transcript disappear when it ends or expires.
type Service struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	identitySource    string
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

// NewService bootstraps the in-memory session registry.
func NewService(cfg Config) *Service {
	timeout := cfg.InactivityTimeout
	if timeout <= 0 {
		timeout = defaultInactivityTimeout
	}
	return &Service{
		sessions:          make(map[string]*Session),
		identitySource:    cfg.IdentitySource,
		inactivityTimeout: timeout,
	}
}

// SetExpireHook registers a callback invoked for each session the janitor
// drops.
func (s *Service) SetExpireHook(hook func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// CreateSession provisions a session with an empty transcript and its own
// identity provider.
func (s *Service) CreateSession(_ context.Context) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		identity:       identity.NewProvider(s.identitySource),
		transcript:     NewTranscript(),
		lastActivityAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Exists reports whether sessionID names a live session.
func (s *Service) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// EndSession discards the session and its transcript.
func (s *Service) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// ActiveCount returns the number of live sessions.
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor periodically drops sessions idle for longer than the
// inactivity timeout until ctx is cancelled.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireInactive(time.Now().UTC())
			}
		}
	}()
}

func (s *Service) expireInactive(now time.Time) int {
	var expired []*Session

	s.mu.Lock()
	for id, session := range s.sessions {
		if now.Sub(session.idleSince()) < s.inactivityTimeout {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, session)
	}
	hook := s.onExpire
	s.mu.Unlock()

	for _, session := range expired {
		log.Printf("[session] expired idle session=%s", session.ID)
		if hook != nil {
			hook(session)
		}
	}
	return len(expired)
}
