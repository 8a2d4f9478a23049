// Package session keeps uploaded tables in memory, one per session.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"findash/internal/errs"
	"findash/internal/models"
)

// Session is one uploaded dataset. The table is never mutated after it is
// stored; replacing it swaps the pointer.
type Session struct {
	ID         string        `json:"id"`
	Filename   string        `json:"filename"`
	Table      *models.Table `json:"-"`
	Hash       string        `json:"hash"`
	Rows       int           `json:"rows"`
	Columns    []string      `json:"columns"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	LastAccess time.Time     `json:"last_access"`
}

// Store is an in-memory session store, safe for concurrent use.
// Data is lost on restart.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	onDrop   func(hash string)
}

// NewStore creates a store whose sessions expire after ttl without access.
// A zero ttl disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		onDrop:   func(string) {},
	}
}

// OnDrop registers a callback run with the table hash whenever a table
// leaves the store through replace, delete or expiry.
func (s *Store) OnDrop(fn func(hash string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrop = fn
}

// Create stores a table under a fresh session id
func (s *Store) Create(filename string, tb *models.Table) *Session {
	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		Filename:   filename,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastAccess: now,
	}
	sess.setTable(tb)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	out := *sess
	return &out
}

// Get returns a copy of the session and refreshes its idle timer
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.expired(sess) {
		return nil, errs.Newf(errs.KindNotFound, "session.get", "session %q not found", id)
	}
	sess.LastAccess = s.now()

	out := *sess
	return &out, nil
}

// Replace swaps the session's table
func (s *Store) Replace(id, filename string, tb *models.Table) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok || s.expired(sess) {
		s.mu.Unlock()
		return nil, errs.Newf(errs.KindNotFound, "session.replace", "session %q not found", id)
	}
	oldHash := sess.Hash
	sess.Filename = filename
	sess.setTable(tb)
	sess.UpdatedAt = s.now()
	sess.LastAccess = sess.UpdatedAt
	out := *sess
	drop := s.onDrop
	s.mu.Unlock()

	if oldHash != out.Hash {
		drop(oldHash)
	}
	return &out, nil
}

// Delete removes a session
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return errs.Newf(errs.KindNotFound, "session.delete", "session %q not found", id)
	}
	delete(s.sessions, id)
	drop := s.onDrop
	s.mu.Unlock()

	drop(sess.Hash)
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CleanExpired removes idle sessions and returns how many were dropped
func (s *Store) CleanExpired() int {
	s.mu.Lock()
	var hashes []string
	for id, sess := range s.sessions {
		if s.expired(sess) {
			hashes = append(hashes, sess.Hash)
			delete(s.sessions, id)
		}
	}
	drop := s.onDrop
	s.mu.Unlock()

	for _, h := range hashes {
		drop(h)
	}
	return len(hashes)
}

func (s *Store) expired(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.LastAccess) > s.ttl
}

func (sess *Session) setTable(tb *models.Table) {
	sess.Table = tb
	sess.Hash = tb.Hash()
	sess.Rows = tb.Len()
	sess.Columns = tb.Schema.Columns()
}
