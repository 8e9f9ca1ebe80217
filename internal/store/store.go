package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("store: database handle is required")

// Config describes the dependencies required to construct a Store.
type Config struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store provides typed access to the local sessions, catches, outbox and
// metadata tables. Single-record writes are atomic; multi-record units of
// work go through WithTransaction.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// New constructs a Store over the provided database handle.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, clock: clock}, nil
}

// WithTransaction runs fn against a Store bound to a single transaction,
// so an entity write and its outbox append commit or roll back together.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(txDB *gorm.DB) error {
		return fn(&Store{db: txDB, clock: s.clock})
	})
}

// CreateSession inserts a new session and assigns its local id.
func (s *Store) CreateSession(ctx context.Context, session *Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

// SessionByID returns the session with the given local id.
func (s *Store) SessionByID(ctx context.Context, localID int64) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("id = ?", localID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session %d", ErrNotFound, localID)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionByClientUUID returns the session carrying the given natural key,
// or ErrNotFound when no local record matches.
func (s *Store) SessionByClientUUID(ctx context.Context, clientUUID string) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("client_uuid = ?", clientUUID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session uuid %s", ErrNotFound, clientUUID)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionByRemoteID returns the session assigned the given backend id.
func (s *Store) SessionByRemoteID(ctx context.Context, remoteID int64) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("remote_id = ?", remoteID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session remote %d", ErrNotFound, remoteID)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ActiveSessionForUser returns the single active session for the user, or
// ErrNotFound when none is open.
func (s *Store) ActiveSessionForUser(ctx context.Context, userID string) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, SessionStatusActive).
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: active session for %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionsForUser returns all sessions owned by the user, newest first.
func (s *Store) SessionsForUser(ctx context.Context, userID string) ([]Session, error) {
	var sessions []Session
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateSessionFields applies a partial update to the session with the
// given local id.
func (s *Store) UpdateSessionFields(ctx context.Context, localID int64, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&Session{}).Where("id = ?", localID).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: session %d", ErrNotFound, localID)
	}
	return nil
}

// SaveSession performs a full-record update of an existing session.
func (s *Store) SaveSession(ctx context.Context, session *Session) error {
	if session.ID == 0 {
		return fmt.Errorf("%w: session without local id", ErrNotFound)
	}
	return s.db.WithContext(ctx).Save(session).Error
}

// CreateCatch inserts a new catch and assigns its local id.
func (s *Store) CreateCatch(ctx context.Context, catch *Catch) error {
	return s.db.WithContext(ctx).Create(catch).Error
}

// CatchByID returns the catch with the given local id.
func (s *Store) CatchByID(ctx context.Context, localID int64) (*Catch, error) {
	var catch Catch
	err := s.db.WithContext(ctx).Where("id = ?", localID).Take(&catch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: catch %d", ErrNotFound, localID)
	}
	if err != nil {
		return nil, err
	}
	return &catch, nil
}

// CatchByClientUUID returns the catch carrying the given natural key.
func (s *Store) CatchByClientUUID(ctx context.Context, clientUUID string) (*Catch, error) {
	var catch Catch
	err := s.db.WithContext(ctx).Where("client_uuid = ?", clientUUID).Take(&catch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: catch uuid %s", ErrNotFound, clientUUID)
	}
	if err != nil {
		return nil, err
	}
	return &catch, nil
}

// CatchesForSession returns the catches of a session ordered by catch time.
func (s *Store) CatchesForSession(ctx context.Context, sessionID int64) ([]Catch, error) {
	var catches []Catch
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("catch_time ASC").
		Find(&catches).Error
	if err != nil {
		return nil, err
	}
	return catches, nil
}

// CountCatchesForSession returns how many catches a session holds.
func (s *Store) CountCatchesForSession(ctx context.Context, sessionID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Catch{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateCatchFields applies a partial update to the catch with the given
// local id.
func (s *Store) UpdateCatchFields(ctx context.Context, localID int64, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&Catch{}).Where("id = ?", localID).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: catch %d", ErrNotFound, localID)
	}
	return nil
}

// SaveCatch performs a full-record update of an existing catch.
func (s *Store) SaveCatch(ctx context.Context, catch *Catch) error {
	if catch.ID == 0 {
		return fmt.Errorf("%w: catch without local id", ErrNotFound)
	}
	return s.db.WithContext(ctx).Save(catch).Error
}

// LastSync returns the watermark timestamp for incremental pulls, or nil
// when no pull has completed yet.
func (s *Store) LastSync(ctx context.Context) (*time.Time, error) {
	var entry MetadataEntry
	err := s.db.WithContext(ctx).Where("key = ?", MetadataKeyLastSync).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, entry.Value)
	if err != nil {
		return nil, fmt.Errorf("store: malformed last_sync value %q: %w", entry.Value, err)
	}
	return &parsed, nil
}

// SetLastSync persists the watermark timestamp.
func (s *Store) SetLastSync(ctx context.Context, at time.Time) error {
	entry := MetadataEntry{
		Key:   MetadataKeyLastSync,
		Value: at.UTC().Format(time.RFC3339Nano),
	}
	return s.db.WithContext(ctx).Save(&entry).Error
}
