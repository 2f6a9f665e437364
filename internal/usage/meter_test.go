package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testMeter(t *testing.T, now *time.Time) *Meter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage.toml")
	m, err := NewMeter(path, zerolog.Nop(), WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewMeter() error = %v", err)
	}
	return m
}

func TestMeter_FreeTierAllowance(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m := testMeter(t, &now)

	for i := 0; i < FreeDailyLimit; i++ {
		d := m.CanProceed()
		if !d.Allowed {
			t.Fatalf("transcription %d should be allowed: %+v", i+1, d)
		}
		if d.Remaining != FreeDailyLimit-i {
			t.Errorf("remaining = %d, want %d", d.Remaining, FreeDailyLimit-i)
		}
		if err := m.Record(); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	d := m.CanProceed()
	if d.Allowed {
		t.Error("sixth transcription should be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
}

func TestMeter_DailyReset(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	m := testMeter(t, &now)

	for i := 0; i < FreeDailyLimit; i++ {
		m.Record()
	}
	if m.CanProceed().Allowed {
		t.Fatal("allowance should be exhausted")
	}

	now = now.Add(2 * time.Hour) // past midnight

	d := m.CanProceed()
	if !d.Allowed {
		t.Error("allowance should reset on a new day")
	}
	if d.Remaining != FreeDailyLimit {
		t.Errorf("remaining = %d, want %d", d.Remaining, FreeDailyLimit)
	}
}

func TestMeter_ProUnlimited(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m := testMeter(t, &now)

	if err := m.ActivatePro(now.Add(30 * 24 * time.Hour)); err != nil {
		t.Fatalf("ActivatePro() error = %v", err)
	}

	for i := 0; i < FreeDailyLimit*3; i++ {
		if !m.CanProceed().Allowed {
			t.Fatal("pro tier should never be limited")
		}
		m.Record()
	}

	d := m.CanProceed()
	if d.Remaining != -1 {
		t.Errorf("remaining = %d, want -1 (unlimited)", d.Remaining)
	}
}

func TestMeter_ProExpiryDegradesToFree(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m := testMeter(t, &now)

	m.ActivatePro(now.Add(24 * time.Hour))
	now = now.Add(48 * time.Hour)

	if m.Status().Tier != TierFree {
		t.Errorf("tier = %v, want free after expiry", m.Status().Tier)
	}

	d := m.CanProceed()
	if !d.Allowed || d.Remaining != FreeDailyLimit {
		t.Errorf("decision after expiry = %+v", d)
	}
}

func TestMeter_StatePersists(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "usage.toml")
	clock := func() time.Time { return now }

	m, err := NewMeter(path, zerolog.Nop(), WithClock(clock))
	if err != nil {
		t.Fatalf("NewMeter() error = %v", err)
	}
	m.Record()
	m.Record()
	m.RecordNote()

	reloaded, err := NewMeter(path, zerolog.Nop(), WithClock(clock))
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}

	st := reloaded.Status()
	if st.Count != 2 {
		t.Errorf("count = %d, want 2", st.Count)
	}
	if st.TotalTranscriptions != 2 || st.TotalNotes != 1 {
		t.Errorf("stats = %d/%d, want 2/1", st.TotalTranscriptions, st.TotalNotes)
	}
	if d := reloaded.CanProceed(); d.Remaining != FreeDailyLimit-2 {
		t.Errorf("remaining = %d, want %d", d.Remaining, FreeDailyLimit-2)
	}
}

func TestMeter_QuotaErrorMessage(t *testing.T) {
	err := &QuotaError{Limit: FreeDailyLimit}
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty message")
	}
	for _, want := range []string{"daily limit", "upgrade"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should mention %q", msg, want)
		}
	}
}

func TestMeter_SyncActivatesPro(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "doc@example.com" {
			t.Errorf("email = %q, want lowercased", req.Email)
		}
		json.NewEncoder(w).Encode(remoteResponse{
			Subscription: &RemoteSubscription{Tier: TierPro, Status: "active"},
		})
	}))
	defer server.Close()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m := testMeter(t, &now)

	checker := NewRemoteChecker(server.URL)
	if err := m.Sync(context.Background(), checker, "Doc@Example.com"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if m.Status().Tier != TierPro {
		t.Errorf("tier = %v, want pro", m.Status().Tier)
	}
}

func TestMeter_SyncFailureKeepsLocalState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	m := testMeter(t, &now)
	m.ActivatePro(time.Time{})

	checker := NewRemoteChecker(server.URL)
	if err := m.Sync(context.Background(), checker, "doc@example.com"); err == nil {
		t.Error("Sync() should report the failure")
	}
	if m.Status().Tier != TierPro {
		t.Error("failed sync must not change local tier")
	}
}
