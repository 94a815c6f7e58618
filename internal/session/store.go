// Package session persists authenticated browser state per service so runs on
// subsequent days do not re-trigger multi-factor authentication. One live
// record per service; a save fully replaces the previous state.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
)

// Record is a persisted browser session for one service.
type Record struct {
	Service    string          `json:"service"`
	CapturedAt time.Time       `json:"captured_at"`
	URL        string          `json:"url,omitempty"`
	Title      string          `json:"title,omitempty"`
	State      json.RawMessage `json:"state"`
}

// Store keeps one session file per service under a directory.
type Store struct {
	dir       string
	freshness time.Duration
	clock     clock.Clock
	log       *zap.Logger
}

// NewStore creates a session store rooted at dir. Sessions older than
// freshness are treated as absent.
func NewStore(dir string, freshness time.Duration, clk clock.Clock, log *zap.Logger) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Store{dir: dir, freshness: freshness, clock: clk, log: log}
}

// IsValid reports whether a usable session exists for the service. Reading
// never mutates state, so repeated calls give the same answer.
func (s *Store) IsValid(service string) bool {
	rec, ok := s.read(service)
	if !ok {
		return false
	}
	age := s.clock.Now().Sub(rec.CapturedAt)
	if age >= s.freshness {
		s.log.Info("stored session too old, treating as absent",
			zap.String("service", service),
			zap.Duration("age", age))
		return false
	}
	return true
}

// Save atomically replaces the session for a service. The blob is opaque to
// the store.
func (s *Store) Save(service string, blob []byte, observedURL, observedTitle string) error {
	rec := Record{
		Service:    service,
		CapturedAt: s.clock.Now(),
		URL:        observedURL,
		Title:      observedTitle,
		State:      blob,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	// Write-then-rename so a crash never leaves a half-written session.
	path := s.path(service)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}

	s.log.Info("session saved", zap.String("service", service), zap.String("url", observedURL))
	return nil
}

// Load returns the stored blob for a service when a valid session exists.
func (s *Store) Load(service string) ([]byte, bool) {
	if !s.IsValid(service) {
		return nil, false
	}
	rec, ok := s.read(service)
	if !ok {
		return nil, false
	}
	return rec.State, true
}

// Clear removes the stored session for a service.
func (s *Store) Clear(service string) error {
	err := os.Remove(s.path(service))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// read loads and decodes a session file. Corrupt or unreadable files are the
// same as absent: the caller falls back to a fresh login either way.
func (s *Store) read(service string) (Record, bool) {
	data, err := os.ReadFile(s.path(service))
	if err != nil {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warn("corrupt session file, treating as absent",
			zap.String("service", service), zap.Error(err))
		return Record{}, false
	}
	return rec, true
}

func (s *Store) path(service string) string {
	return filepath.Join(s.dir, service+".json")
}
