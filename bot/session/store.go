package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/liuran001/MuzmoBot-Go/bot/muzmo"
)

const (
	DefaultTTL      = 30 * time.Minute
	DefaultCapacity = 10000
)

var (
	// ErrSuperseded is returned by Commit when a newer search started for the chat.
	ErrSuperseded = errors.New("session: superseded by a newer search")
	// ErrSessionExpired covers unknown, replaced and timed out sessions.
	ErrSessionExpired = errors.New("session: expired")
	// ErrChoiceNotFound is returned for an index outside the result set.
	ErrChoiceNotFound = errors.New("session: choice not found")
	// ErrInvalidToken is returned by ParseToken for malformed input.
	ErrInvalidToken = errors.New("session: invalid token")
)

// Session is the ranked result set shown to one chat.
type Session struct {
	ID         string
	ChatID     int64
	Query      string
	Candidates []muzmo.Candidate
	CreatedAt  time.Time
}

// Token returns the selection token of the candidate at index.
func (s *Session) Token(index int) string {
	return s.ID + ":" + strconv.Itoa(index)
}

// ParseToken splits a token produced by Session.Token.
func ParseToken(token string) (sessionID string, index int, err error) {
	id, idx, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok || id == "" || idx == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	index, err = strconv.Atoi(idx)
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	return id, index, nil
}

// Pending is a search in flight for one chat.
type Pending struct {
	ctx    context.Context
	cancel context.CancelFunc
	chatID int64
	gen    uint64
}

// Context is cancelled when a newer search starts or the pending search ends.
func (p *Pending) Context() context.Context {
	return p.ctx
}

// Store keeps at most one live session per chat.
type Store struct {
	mu       sync.Mutex
	sessions *expirable.LRU[int64, *Session]
	inflight map[int64]*Pending
	gen      uint64
	now      func() time.Time
	newID    func() string
}

// New creates a store with the given TTL and chat capacity.
func New(ttl time.Duration, capacity int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		sessions: expirable.NewLRU[int64, *Session](capacity, nil, ttl),
		inflight: make(map[int64]*Pending),
		now:      time.Now,
		newID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Begin starts a search for chatID. Any in-flight search for the chat is
// cancelled and its current session invalidated.
func (s *Store) Begin(parent context.Context, chatID int64) *Pending {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.inflight[chatID]; ok {
		prev.cancel()
	}
	s.sessions.Remove(chatID)

	s.gen++
	p := &Pending{ctx: ctx, cancel: cancel, chatID: chatID, gen: s.gen}
	s.inflight[chatID] = p
	return p
}

// Commit publishes the ranked candidates of p as the chat's session.
func (s *Store) Commit(p *Pending, query string, candidates []muzmo.Candidate) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer p.cancel()

	cur, ok := s.inflight[p.chatID]
	if !ok || cur.gen != p.gen {
		return nil, ErrSuperseded
	}
	delete(s.inflight, p.chatID)

	sess := &Session{
		ID:         s.newID(),
		ChatID:     p.chatID,
		Query:      query,
		Candidates: append([]muzmo.Candidate(nil), candidates...),
		CreatedAt:  s.now(),
	}
	s.sessions.Add(p.chatID, sess)
	return sess, nil
}

// Abandon ends p without publishing a session.
func (s *Store) Abandon(p *Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.cancel()
	if cur, ok := s.inflight[p.chatID]; ok && cur.gen == p.gen {
		delete(s.inflight, p.chatID)
	}
}

// Get returns the live session if its id matches.
func (s *Store) Get(chatID int64, sessionID string) (*Session, error) {
	sess, ok := s.sessions.Get(chatID)
	if !ok || sess.ID != sessionID {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Lookup resolves a selection to its candidate.
func (s *Store) Lookup(chatID int64, sessionID string, index int) (muzmo.Candidate, error) {
	sess, err := s.Get(chatID, sessionID)
	if err != nil {
		return muzmo.Candidate{}, err
	}
	if index < 0 || index >= len(sess.Candidates) {
		return muzmo.Candidate{}, ErrChoiceNotFound
	}
	return sess.Candidates[index], nil
}

// Discard removes the session if it is still the chat's current one.
func (s *Store) Discard(chatID int64, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Peek(chatID); ok && sess.ID == sessionID {
		s.sessions.Remove(chatID)
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}
