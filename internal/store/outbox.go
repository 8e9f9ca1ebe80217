package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// EnqueueAction appends a pending outbox entry for a local mutation that
// must be reflected remotely.
func (s *Store) EnqueueAction(ctx context.Context, entityType EntityType, localID int64, action ActionType) (*SyncAction, error) {
	entry := SyncAction{
		EntityType:    entityType,
		EntityLocalID: localID,
		Action:        action,
		Status:        ActionStatusPending,
		Retries:       0,
		CreatedAt:     s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// PendingActions returns all pending outbox entries ordered by creation
// time, with every session action moved ahead of every catch action. The
// reordering keeps a catch from being attempted before the session it
// depends on within the same cycle; relative order inside each group is
// preserved.
func (s *Store) PendingActions(ctx context.Context) ([]SyncAction, error) {
	var pending []SyncAction
	err := s.db.WithContext(ctx).
		Where("status = ?", ActionStatusPending).
		Order("created_at ASC, id ASC").
		Find(&pending).Error
	if err != nil {
		return nil, err
	}

	ordered := make([]SyncAction, 0, len(pending))
	for _, action := range pending {
		if action.EntityType == EntityTypeSession {
			ordered = append(ordered, action)
		}
	}
	for _, action := range pending {
		if action.EntityType != EntityTypeSession {
			ordered = append(ordered, action)
		}
	}
	return ordered, nil
}

// ActionByID returns the outbox entry with the given id.
func (s *Store) ActionByID(ctx context.Context, actionID int64) (*SyncAction, error) {
	var action SyncAction
	err := s.db.WithContext(ctx).Where("id = ?", actionID).Take(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: action %d", ErrNotFound, actionID)
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// ActionsByStatus returns outbox entries in the given status, oldest first.
func (s *Store) ActionsByStatus(ctx context.Context, status ActionStatus) ([]SyncAction, error) {
	var actions []SyncAction
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// MarkActionSynced moves a pending entry to its synced terminal state.
func (s *Store) MarkActionSynced(ctx context.Context, actionID int64) error {
	return s.setActionStatus(ctx, actionID, ActionStatusSynced)
}

// MarkActionFailed moves a pending entry to its failed terminal state.
func (s *Store) MarkActionFailed(ctx context.Context, actionID int64) error {
	return s.setActionStatus(ctx, actionID, ActionStatusFailed)
}

// IncrementActionRetries bumps the retry counter of a pending entry while
// leaving it pending.
func (s *Store) IncrementActionRetries(ctx context.Context, actionID int64) error {
	result := s.db.WithContext(ctx).
		Model(&SyncAction{}).
		Where("id = ? AND status = ?", actionID, ActionStatusPending).
		Update("retries", gorm.Expr("retries + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: pending action %d", ErrNotFound, actionID)
	}
	return nil
}

// setActionStatus only ever moves entries out of pending; synced and
// failed are terminal.
func (s *Store) setActionStatus(ctx context.Context, actionID int64, status ActionStatus) error {
	result := s.db.WithContext(ctx).
		Model(&SyncAction{}).
		Where("id = ? AND status = ?", actionID, ActionStatusPending).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: pending action %d", ErrNotFound, actionID)
	}
	return nil
}
