package consent

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cgast/agdesk/pkg/confirm"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type journalSpy struct {
	entries []confirm.Result
}

func (j *journalSpy) LogConsent(action, target string, res confirm.Result) error {
	j.entries = append(j.entries, res)
	return nil
}

func newTestStore(t *testing.T, prompt confirm.Prompt, journal Journal, clock *fakeClock) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consents.db")
	s, err := Open(path, prompt, journal, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func TestKey(t *testing.T) {
	a := Key("kill_process", "notepad")
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a != Key("kill_process", "notepad") {
		t.Error("key is not stable")
	}
	if a == Key("kill_process", "/usr/bin/notepad") {
		t.Error("targets are not canonicalized, keys should differ")
	}
	if Key("a:b", "c") != Key("a", "b:c") {
		// Both hash "a:b:c"; documented as-is behavior.
		t.Error("expected identical keys for identical joined strings")
	}
}

func TestConfirmActionPermanentIsRemembered(t *testing.T) {
	prompt := confirm.NewScripted(confirm.AllowedPermanent())
	journal := &journalSpy{}
	clock := newClock()
	s := newTestStore(t, prompt, journal, clock)

	req := confirm.Request{Action: "kill_process", Target: "notepad"}
	first := s.ConfirmAction(context.Background(), req)
	if first != confirm.AllowedPermanent() {
		t.Fatalf("first answer = %v", first)
	}

	second := s.ConfirmAction(context.Background(), req)
	if second != confirm.AllowedPermanent() {
		t.Fatalf("second answer = %v", second)
	}
	if n := len(prompt.Calls()); n != 1 {
		t.Errorf("prompt invoked %d times, want 1", n)
	}
	if len(journal.entries) != 1 {
		t.Errorf("journal entries = %d, want 1", len(journal.entries))
	}

	calls := prompt.Calls()
	if calls[0].Description != "Execute kill_process on notepad" {
		t.Errorf("description = %q", calls[0].Description)
	}
	if calls[0].Timeout != confirm.DefaultTimeout {
		t.Errorf("timeout = %v", calls[0].Timeout)
	}
}

func TestConfirmActionExpiredRecordPromptsAgain(t *testing.T) {
	prompt := confirm.NewScripted(confirm.AllowedPermanent(), confirm.Denied())
	clock := newClock()
	s := newTestStore(t, prompt, nil, clock)

	req := confirm.Request{Action: "close_app", Target: "slack"}
	s.ConfirmAction(context.Background(), req)

	clock.Advance(DefaultExpiry + time.Second)
	res := s.ConfirmAction(context.Background(), req)
	if res != confirm.Denied() {
		t.Errorf("after expiry got %v, want denied", res)
	}
	if n := len(prompt.Calls()); n != 2 {
		t.Errorf("prompt invoked %d times, want 2", n)
	}
}

func TestConfirmActionExpiryBoundary(t *testing.T) {
	clock := newClock()
	rec := Record{Permanent: true, ExpiresAt: clock.Now().Add(time.Hour)}
	if !rec.Valid(clock.Now()) {
		t.Error("record should be valid before expiry")
	}
	if rec.Valid(rec.ExpiresAt) {
		t.Error("record must not be valid at its expiry instant")
	}
	if (Record{ExpiresAt: clock.Now().Add(time.Hour)}).Valid(clock.Now()) {
		t.Error("non-permanent record must never be valid")
	}
}

func TestConfirmActionNonPermanentOutcomesNotStored(t *testing.T) {
	tests := []struct {
		name   string
		answer confirm.Result
	}{
		{"allowed once", confirm.AllowedOnce()},
		{"denied", confirm.Denied()},
		{"cancelled", confirm.Cancelled()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := confirm.NewScripted(tt.answer, tt.answer)
			journal := &journalSpy{}
			s := newTestStore(t, prompt, journal, newClock())

			req := confirm.Request{Action: "run_command", Target: "ls"}
			if got := s.ConfirmAction(context.Background(), req); got != tt.answer {
				t.Fatalf("got %v, want %v", got, tt.answer)
			}
			s.ConfirmAction(context.Background(), req)

			if n := len(prompt.Calls()); n != 2 {
				t.Errorf("prompt invoked %d times, want 2", n)
			}
			records, err := s.List()
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != 0 {
				t.Errorf("stored %d records, want 0", len(records))
			}
			if len(journal.entries) != 2 || journal.entries[0] != tt.answer {
				t.Errorf("journal = %v", journal.entries)
			}
		})
	}
}

func TestRevoke(t *testing.T) {
	prompt := confirm.NewScripted(confirm.AllowedPermanent(), confirm.AllowedPermanent(), confirm.AllowedPermanent())
	clock := newClock()
	s := newTestStore(t, prompt, nil, clock)
	ctx := context.Background()

	s.ConfirmAction(ctx, confirm.Request{Action: "kill_process", Target: "a"})
	clock.Advance(time.Minute)
	s.ConfirmAction(ctx, confirm.Request{Action: "kill_process", Target: "b"})
	clock.Advance(time.Minute)
	s.ConfirmAction(ctx, confirm.Request{Action: "close_app", Target: "a"})

	removed, err := s.Revoke("kill_process", "a")
	if err != nil || !removed {
		t.Fatalf("Revoke = %v, %v", removed, err)
	}
	removed, err = s.Revoke("kill_process", "a")
	if err != nil || removed {
		t.Fatalf("second Revoke = %v, %v", removed, err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Action != "close_app" {
		t.Fatalf("List after revoke = %+v", records)
	}

	n, err := s.RevokeAll("kill_process")
	if err != nil || n != 1 {
		t.Fatalf("RevokeAll = %d, %v", n, err)
	}
	records, _ = s.List()
	if len(records) != 1 || records[0].Target != "a" {
		t.Fatalf("List after RevokeAll = %+v", records)
	}
}

func TestClear(t *testing.T) {
	prompt := confirm.NewScripted(confirm.AllowedPermanent(), confirm.Denied())
	s := newTestStore(t, prompt, nil, newClock())

	req := confirm.Request{Action: "kill_process", Target: "x"}
	s.ConfirmAction(context.Background(), req)
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if res := s.ConfirmAction(context.Background(), req); res != confirm.Denied() {
		t.Errorf("after clear got %v, want prompt answer", res)
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consents.db")
	clock := newClock()

	s, err := Open(path, confirm.NewScripted(confirm.AllowedPermanent()), nil, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	s.ConfirmAction(context.Background(), confirm.Request{Action: "kill_process", Target: "x"})
	s.Close()

	prompt := confirm.NewScripted()
	s, err = Open(path, prompt, nil, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if res := s.ConfirmAction(context.Background(), confirm.Request{Action: "kill_process", Target: "x"}); res != confirm.AllowedPermanent() {
		t.Errorf("got %v after reopen", res)
	}
	if len(prompt.Calls()) != 0 {
		t.Error("prompt should not be invoked for a stored grant")
	}
}

func TestNilPromptDenies(t *testing.T) {
	s := newTestStore(t, nil, nil, newClock())
	if res := s.ConfirmAction(context.Background(), confirm.Request{Action: "a", Target: "b"}); res != confirm.Denied() {
		t.Errorf("got %v", res)
	}
}

func TestWithTimeoutFillsRequestDeadline(t *testing.T) {
	prompt := confirm.NewScripted(confirm.Denied(), confirm.Denied())
	path := filepath.Join(t.TempDir(), "consents.db")
	s, err := Open(path, prompt, nil, WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	s.ConfirmAction(context.Background(), confirm.Request{Action: "a", Target: "b"})
	s.ConfirmAction(context.Background(), confirm.Request{Action: "a", Target: "c", Timeout: time.Second})

	calls := prompt.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(calls))
	}
	if calls[0].Timeout != 5*time.Second {
		t.Errorf("default timeout = %v, want 5s", calls[0].Timeout)
	}
	if calls[1].Timeout != time.Second {
		t.Errorf("explicit timeout = %v, want 1s", calls[1].Timeout)
	}
}
