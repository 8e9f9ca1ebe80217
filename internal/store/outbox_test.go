package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnqueueActionDefaults(t *testing.T) {
	s := newTestStore(t)
	s.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	action, err := s.EnqueueAction(ctx, EntityTypeSession, 7, ActionTypeCreate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Status != ActionStatusPending {
		t.Fatalf("expected pending status, got %s", action.Status)
	}
	if action.Retries != 0 {
		t.Fatalf("expected zero retries, got %d", action.Retries)
	}
	if !action.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected clock-stamped creation time, got %v", action.CreatedAt)
	}
}

func TestPendingActionsOrdersSessionsBeforeCatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	s.clock = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	// Interleave catch and session actions by creation time.
	mustEnqueue(t, s, EntityTypeCatch, 10, ActionTypeCreate)
	mustEnqueue(t, s, EntityTypeSession, 1, ActionTypeCreate)
	mustEnqueue(t, s, EntityTypeCatch, 11, ActionTypeCreate)
	mustEnqueue(t, s, EntityTypeSession, 2, ActionTypeUpdate)

	ordered, err := s.PendingActions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ordered) != 4 {
		t.Fatalf("expected 4 pending actions, got %d", len(ordered))
	}

	expected := []struct {
		entityType EntityType
		localID    int64
	}{
		{EntityTypeSession, 1},
		{EntityTypeSession, 2},
		{EntityTypeCatch, 10},
		{EntityTypeCatch, 11},
	}
	for i, want := range expected {
		if ordered[i].EntityType != want.entityType || ordered[i].EntityLocalID != want.localID {
			t.Fatalf("position %d: expected %s/%d, got %s/%d",
				i, want.entityType, want.localID, ordered[i].EntityType, ordered[i].EntityLocalID)
		}
	}
}

func TestPendingActionsExcludesTerminalEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	synced := mustEnqueue(t, s, EntityTypeSession, 1, ActionTypeCreate)
	failed := mustEnqueue(t, s, EntityTypeSession, 2, ActionTypeCreate)
	open := mustEnqueue(t, s, EntityTypeSession, 3, ActionTypeCreate)

	if err := s.MarkActionSynced(ctx, synced.ID); err != nil {
		t.Fatalf("failed to mark synced: %v", err)
	}
	if err := s.MarkActionFailed(ctx, failed.ID); err != nil {
		t.Fatalf("failed to mark failed: %v", err)
	}

	pending, err := s.PendingActions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != open.ID {
		t.Fatalf("expected only action %d pending, got %+v", open.ID, pending)
	}
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	action := mustEnqueue(t, s, EntityTypeSession, 1, ActionTypeCreate)
	if err := s.MarkActionSynced(ctx, action.ID); err != nil {
		t.Fatalf("failed to mark synced: %v", err)
	}

	if err := s.MarkActionFailed(ctx, action.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected terminal transition to be rejected, got %v", err)
	}
	if err := s.IncrementActionRetries(ctx, action.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected retry bump on terminal action to be rejected, got %v", err)
	}

	reloaded, err := s.ActionByID(ctx, action.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reloaded.Status != ActionStatusSynced {
		t.Fatalf("expected status to remain synced, got %s", reloaded.Status)
	}
}

func TestIncrementActionRetriesIsMonotone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	action := mustEnqueue(t, s, EntityTypeCatch, 5, ActionTypeCreate)
	last := 0
	for i := 0; i < 4; i++ {
		if err := s.IncrementActionRetries(ctx, action.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		reloaded, err := s.ActionByID(ctx, action.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reloaded.Retries <= last && i > 0 {
			t.Fatalf("retries not increasing: %d after %d", reloaded.Retries, last)
		}
		last = reloaded.Retries
	}
	if last != 4 {
		t.Fatalf("expected 4 retries recorded, got %d", last)
	}
}

func mustEnqueue(t *testing.T, s *Store, entityType EntityType, localID int64, action ActionType) *SyncAction {
	t.Helper()
	entry, err := s.EnqueueAction(context.Background(), entityType, localID, action)
	if err != nil {
		t.Fatalf("failed to enqueue action: %v", err)
	}
	return entry
}
