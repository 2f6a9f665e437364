// Package usage meters transcription entitlements: a daily free tier
// and an unlimited pro subscription, persisted across restarts.
package usage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// FreeDailyLimit is the number of transcriptions the free tier allows
// per calendar day.
const FreeDailyLimit = 5

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// QuotaError signals that the daily free allowance is exhausted.
type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("daily limit reached (%d transcriptions), upgrade to pro for unlimited access", e.Limit)
}

// Decision is the outcome of an entitlement check.
type Decision struct {
	Allowed   bool
	Remaining int // -1 for unlimited
	Reason    string
}

// State is the persisted meter state, stored as TOML next to the
// config file.
type State struct {
	Tier      Tier      `toml:"tier"`
	ExpiresAt time.Time `toml:"expires_at,omitempty"`
	Date      string    `toml:"date"`
	Count     int       `toml:"count"`

	TotalTranscriptions int       `toml:"total_transcriptions"`
	TotalNotes          int       `toml:"total_notes"`
	FirstUse            time.Time `toml:"first_use,omitempty"`
}

// Meter tracks per-day usage with automatic midnight rollover. A pro
// tier whose expiry has passed silently degrades back to free.
type Meter struct {
	path string
	log  zerolog.Logger
	now  func() time.Time

	mu    sync.Mutex
	state State
}

// Option customizes a Meter.
type Option func(*Meter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Meter) { m.now = now }
}

// NewMeter loads (or initializes) the meter state at path.
func NewMeter(path string, log zerolog.Logger, opts ...Option) (*Meter, error) {
	m := &Meter{
		path: path,
		log:  log,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Meter) load() error {
	m.state = State{Tier: TierFree, Date: m.today(), FirstUse: m.now()}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read usage state: %w", err)
	}
	if err := toml.Unmarshal(data, &m.state); err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("corrupt usage state, starting fresh")
		m.state = State{Tier: TierFree, Date: m.today(), FirstUse: m.now()}
		return nil
	}
	if m.state.Tier == "" {
		m.state.Tier = TierFree
	}
	return nil
}

func (m *Meter) today() string {
	return m.now().Format("2006-01-02")
}

// rollover resets the daily counter on a date change and degrades an
// expired pro subscription. Caller holds the lock.
func (m *Meter) rollover() {
	if today := m.today(); m.state.Date != today {
		m.state.Date = today
		m.state.Count = 0
	}
	if m.state.Tier == TierPro && !m.state.ExpiresAt.IsZero() && m.now().After(m.state.ExpiresAt) {
		m.log.Info().Time("expired_at", m.state.ExpiresAt).Msg("pro subscription expired")
		m.state.Tier = TierFree
	}
}

// CanProceed checks the entitlement without consuming it.
func (m *Meter) CanProceed() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	if m.state.Tier == TierPro {
		return Decision{Allowed: true, Remaining: -1, Reason: "pro subscription active"}
	}

	remaining := FreeDailyLimit - m.state.Count
	if remaining <= 0 {
		return Decision{
			Allowed:   false,
			Remaining: 0,
			Reason:    (&QuotaError{Limit: FreeDailyLimit}).Error(),
		}
	}
	return Decision{Allowed: true, Remaining: remaining, Reason: "free tier"}
}

// Record consumes one transcription from the allowance and persists.
func (m *Meter) Record() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	m.state.Count++
	m.state.TotalTranscriptions++
	return m.persist()
}

// RecordNote counts a generated note in the lifetime stats.
func (m *Meter) RecordNote() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.TotalNotes++
	return m.persist()
}

// ActivatePro switches to the pro tier until expiresAt. A zero expiry
// means no expiry.
func (m *Meter) ActivatePro(expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Tier = TierPro
	m.state.ExpiresAt = expiresAt
	return m.persist()
}

// Deactivate returns to the free tier.
func (m *Meter) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Tier = TierFree
	m.state.ExpiresAt = time.Time{}
	return m.persist()
}

// Status returns a snapshot of the current state after rollover.
func (m *Meter) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return m.state
}

// persist writes the state atomically. Caller holds the lock.
func (m *Meter) persist() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := m.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write usage state: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(m.state); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode usage state: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close usage state: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace usage state: %w", err)
	}
	return nil
}
