package service

import (
	"context"
	"testing"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

func TestJanitorPurgesOldTerminalEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-1 * time.Hour)

	entries := newFakeRetryRepo(
		domain.RetryEntry{ID: "r-old-done", State: domain.EntryCompleted, UpdatedAt: old},
		domain.RetryEntry{ID: "r-old-failed", State: domain.EntryFailed, UpdatedAt: old},
		domain.RetryEntry{ID: "r-old-pending", State: domain.EntryPending, UpdatedAt: old},
		domain.RetryEntry{ID: "r-recent-done", State: domain.EntryCompleted, UpdatedAt: recent},
	)

	janitor, err := NewQueueJanitor(entries, nil, time.Hour, 30*24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewQueueJanitor() error = %v", err)
	}
	janitor.now = func() time.Time { return now }

	if err := janitor.purge(context.Background()); err != nil {
		t.Fatalf("purge() error = %v", err)
	}

	if got := entries.get("r-old-done"); got.ID != "" {
		t.Fatal("old completed entry should be purged")
	}
	if got := entries.get("r-old-failed"); got.ID != "" {
		t.Fatal("old failed entry should be purged")
	}
	if got := entries.get("r-old-pending"); got.ID == "" {
		t.Fatal("active entries must survive retention cleanup")
	}
	if got := entries.get("r-recent-done"); got.ID == "" {
		t.Fatal("terminal entries inside the retention window must survive")
	}
}

func TestJanitorSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	t.Parallel()

	old := time.Now().Add(-60 * 24 * time.Hour)
	entries := newFakeRetryRepo(
		domain.RetryEntry{ID: "r-old-done", State: domain.EntryCompleted, UpdatedAt: old},
	)
	lease := &fakeLease{held: true}

	janitor, err := NewQueueJanitor(entries, lease, time.Hour, 30*24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewQueueJanitor() error = %v", err)
	}

	if err := janitor.purge(context.Background()); err != nil {
		t.Fatalf("purge() error = %v", err)
	}
	if got := entries.get("r-old-done"); got.ID == "" {
		t.Fatal("a held lease must skip the purge")
	}
}
