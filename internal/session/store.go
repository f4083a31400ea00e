// Package session keeps each upload batch's report, file bytes and assist
// workflow. Sessions share nothing with each other.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-handin/internal/reconcile"
	"github.com/mind-engage/mindengage-handin/internal/storage"
)

var ErrNotFound = errors.New("session not found")

const DefaultTTL = 2 * time.Hour

type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time
	Report    *reconcile.Report
	Files     *storage.MemStore
	Assist    *Assist
}

// Summary is the listing form of a session.
type Summary struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	RatePercent float64   `json:"rate_percent"`
}

type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*Session
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{ttl: ttl, now: time.Now, sessions: make(map[string]*Session)}
}

// Create stores a new session built from one pipeline outcome. Only accepted
// files are cached; the outcome's file data is shared, not copied.
func (s *Store) Create(owner string, out *reconcile.Outcome) *Session {
	files := storage.NewMemStore()
	for name, f := range out.Files.FilesByName {
		files.PutBytes(name, f.Data)
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		CreatedAt: s.now(),
		Report:    out.Report,
		Files:     files,
		Assist:    NewAssist(out.Report.PDFCandidates),
	}
	s.mu.Lock()
	s.evictLocked()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || s.expired(sess) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete drops a session and its cached files. Unknown ids are a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// List returns live sessions for owner, newest first. An empty owner lists all.
func (s *Store) List(owner string) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	var out []Summary
	for _, sess := range s.sessions {
		if owner != "" && sess.Owner != owner {
			continue
		}
		out = append(out, Summary{
			ID:          sess.ID,
			Owner:       sess.Owner,
			CreatedAt:   sess.CreatedAt,
			RatePercent: sess.Report.RatePercent,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Evict drops expired sessions and returns how many were removed.
func (s *Store) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked()
}

func (s *Store) evictLocked() int {
	n := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *Store) expired(sess *Session) bool {
	return s.now().Sub(sess.CreatedAt) > s.ttl
}
