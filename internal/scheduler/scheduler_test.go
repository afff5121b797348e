package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	if err := s.Register("daily_etl", "not a cron spec", func() {}); err == nil {
		t.Fatal("invalid cron spec must be rejected")
	}
}

func TestRegisterReplacesExistingJob(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())

	if err := s.Register("daily_etl", "0 2 * * *", func() {}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := s.Register("daily_etl", "0 3 * * *", func() {}); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	if got := len(s.cron.Entries()); got != 1 {
		t.Fatalf("re-registering must replace, not duplicate: %d entries", got)
	}
	if got := len(s.entries); got != 1 {
		t.Fatalf("expected one named entry, got %d", got)
	}
}

func TestNextRunUnknownJob(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	if next := s.NextRun("missing"); next != nil {
		t.Fatalf("unknown job must report nil, got %v", next)
	}
}

func TestNextRunAfterStart(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	if err := s.Register("daily_etl", "0 2 * * *", func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}

	s.Start()
	defer s.Stop()

	next := s.NextRun("daily_etl")
	if next == nil {
		t.Fatal("started job must expose its next fire time")
	}
	if next.Hour() != 2 || next.Minute() != 0 {
		t.Fatalf("expected a 02:00 fire time, got %v", next)
	}
	if !next.After(time.Now()) {
		t.Fatalf("next fire time must be in the future, got %v", next)
	}
}
