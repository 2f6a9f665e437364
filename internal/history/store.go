// Package history persists finished consultations on disk so notes can
// be regenerated and past visits reviewed.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mavrk/scribed/internal/transcript"
)

// DefaultCap bounds how many consultations are kept before the oldest
// are pruned.
const DefaultCap = 500

// ErrNotFound is returned when no consultation has the requested id.
var ErrNotFound = errors.New("consultation not found")

// Consultation is one recorded visit with everything derived from it.
type Consultation struct {
	ID          string                   `json:"id"`
	CreatedAt   time.Time                `json:"created_at"`
	PatientName string                   `json:"patient_name,omitempty"`
	VisitType   string                   `json:"visit_type,omitempty"`
	Specialty   string                   `json:"specialty,omitempty"`
	Transcript  string                   `json:"transcript"`
	Segments    []transcript.Segment     `json:"segments,omitempty"`
	Entities    transcript.EntitySummary `json:"entities,omitempty"`
	Note        string                   `json:"note,omitempty"`
	Billing     string                   `json:"billing,omitempty"`
	Template    string                   `json:"template,omitempty"`
}

// Store keeps one JSON file per consultation in a directory.
type Store struct {
	dir string
	cap int
	log zerolog.Logger
	mu  sync.Mutex
}

// NewStore opens (creating if needed) the history directory. A cap of
// zero or less uses DefaultCap.
func NewStore(dir string, cap int, log zerolog.Logger) (*Store, error) {
	if cap <= 0 {
		cap = DefaultCap
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Store{dir: dir, cap: cap, log: log}, nil
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save persists a consultation, assigning an id and timestamp when
// missing, and prunes the oldest entries past the cap.
func (s *Store) Save(c *Consultation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode consultation: %w", err)
	}

	tmp := s.pathFor(c.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write consultation: %w", err)
	}
	if err := os.Rename(tmp, s.pathFor(c.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace consultation: %w", err)
	}

	return s.prune()
}

// Get loads one consultation by id.
func (s *Store) Get(id string) (*Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pathFor(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read consultation: %w", err)
	}

	var c Consultation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode consultation: %w", err)
	}
	return &c, nil
}

// List returns all consultations, newest first. Unreadable entries are
// skipped with a warning rather than failing the whole listing.
func (s *Store) List() ([]*Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *Store) list() ([]*Consultation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read history dir: %w", err)
	}

	var out []*Consultation
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("unreadable consultation skipped")
			continue
		}
		var c Consultation
		if err := json.Unmarshal(data, &c); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("corrupt consultation skipped")
			continue
		}
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes one consultation by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.pathFor(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// prune drops the oldest consultations past the cap. Caller holds the
// lock.
func (s *Store) prune() error {
	all, err := s.list()
	if err != nil {
		return err
	}
	if len(all) <= s.cap {
		return nil
	}

	for _, c := range all[s.cap:] {
		if err := os.Remove(s.pathFor(c.ID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune consultation %s: %w", c.ID, err)
		}
		s.log.Debug().Str("id", c.ID).Msg("pruned old consultation")
	}
	return nil
}
