package store

import (
	"errors"
	"time"
)

// EntityType identifies which local table an outbox action refers to.
type EntityType string

const (
	// EntityTypeSession marks an action against the sessions table.
	EntityTypeSession EntityType = "session"
	// EntityTypeCatch marks an action against the catches table.
	EntityTypeCatch EntityType = "catch"
)

// ActionType enumerates the remote operations recorded in the outbox.
type ActionType string

const (
	// ActionTypeCreate records a local insert that must reach the backend.
	ActionTypeCreate ActionType = "CREATE"
	// ActionTypeUpdate records a local update that must reach the backend.
	ActionTypeUpdate ActionType = "UPDATE"
)

// ActionStatus tracks the lifecycle of an outbox entry. Transitions are
// monotone: pending may become synced or failed, both of which are terminal.
type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending"
	ActionStatusSynced  ActionStatus = "synced"
	ActionStatusFailed  ActionStatus = "failed"
)

// SessionStatus tracks whether a session window is still open.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// ErrNotFound indicates a point lookup referenced a nonexistent local id.
var ErrNotFound = errors.New("store: not found")

// MetadataKeyLastSync holds the watermark timestamp scoping incremental pulls.
const MetadataKeyLastSync = "last_sync"

// Session models a bounded fishing window with the environmental context
// captured when it was opened.
type Session struct {
	ID         int64         `gorm:"column:id;primaryKey;autoIncrement"`
	ClientUUID string        `gorm:"column:client_uuid;size:36;not null;uniqueIndex"`
	RemoteID   *int64        `gorm:"column:remote_id"`
	UserID     string        `gorm:"column:user_id;size:190;not null;index:idx_sessions_user_status,priority:1"`
	SpotID     *int64        `gorm:"column:spot_id"`
	Status     SessionStatus `gorm:"column:status;size:16;not null;index:idx_sessions_user_status,priority:2"`

	StartTime    time.Time  `gorm:"column:start_time;not null"`
	EndTime      *time.Time `gorm:"column:end_time"`
	TotalCatches int64      `gorm:"column:total_catches;not null;default:0"`

	TempDayMin     float64  `gorm:"column:temp_day_min"`
	TempDayMax     float64  `gorm:"column:temp_day_max"`
	PressureDayMin *float64 `gorm:"column:pressure_day_min"`
	PressureDayMax *float64 `gorm:"column:pressure_day_max"`
	WindDayMax     *float64 `gorm:"column:wind_day_max"`

	TempCurrent          float64   `gorm:"column:temp_current"`
	PressureCurrent      float64   `gorm:"column:pressure_current"`
	PressureTrend3h      float64   `gorm:"column:pressure_trend_3h"`
	WindSpeedCurrent     float64   `gorm:"column:wind_speed_current"`
	WindSpeedTrend3h     float64   `gorm:"column:wind_speed_trend_3h"`
	WindDirectionCurrent float64   `gorm:"column:wind_direction_current"`
	WindGustCurrent      float64   `gorm:"column:wind_gust_current"`
	WeatherTimestamp     time.Time `gorm:"column:weather_timestamp"`

	// autoUpdateTime is off: updated_at is owned by callers, so a
	// pull merge keeps the remote timestamp instead of the wall clock.
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "sessions"
}

// Catch models a single logged catch inside a session, with its position,
// the weather snapshot at the moment of the catch and the derived
// wind-incidence score.
type Catch struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ClientUUID string `gorm:"column:client_uuid;size:36;not null;uniqueIndex"`
	RemoteID   *int64 `gorm:"column:remote_id"`
	SessionID  int64  `gorm:"column:session_id;not null;index"`

	Species   string    `gorm:"column:species;size:190;not null;default:'unknown'"`
	Weight    *float64  `gorm:"column:weight"`
	Length    *float64  `gorm:"column:length"`
	CatchTime time.Time `gorm:"column:catch_time;not null"`
	Latitude  float64   `gorm:"column:latitude;not null"`
	Longitude float64   `gorm:"column:longitude;not null"`

	TempCurrent          float64   `gorm:"column:temp_current"`
	PressureCurrent      float64   `gorm:"column:pressure_current"`
	PressureTrend3h      float64   `gorm:"column:pressure_trend_3h"`
	WindSpeedCurrent     float64   `gorm:"column:wind_speed_current"`
	WindSpeedTrend3h     float64   `gorm:"column:wind_speed_trend_3h"`
	WindDirectionCurrent float64   `gorm:"column:wind_direction_current"`
	WindGustCurrent      float64   `gorm:"column:wind_gust_current"`
	WeatherTimestamp     time.Time `gorm:"column:weather_timestamp"`

	WindIncidenceScore float64 `gorm:"column:wind_incidence_score;not null;default:0"`

	// autoUpdateTime is off: updated_at is owned by callers, so a
	// pull merge keeps the remote timestamp instead of the wall clock.
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (Catch) TableName() string {
	return "catches"
}

// SyncAction is a durable outbox entry for a pending remote-side effect.
type SyncAction struct {
	ID            int64        `gorm:"column:id;primaryKey;autoIncrement"`
	EntityType    EntityType   `gorm:"column:entity_type;size:16;not null"`
	EntityLocalID int64        `gorm:"column:entity_local_id;not null"`
	Action        ActionType   `gorm:"column:action;size:16;not null"`
	Status        ActionStatus `gorm:"column:status;size:16;not null;index"`
	Retries       int          `gorm:"column:retries;not null;default:0"`
	CreatedAt     time.Time    `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SyncAction) TableName() string {
	return "sync_queue"
}

// MetadataEntry is a single-key record in the metadata table.
type MetadataEntry struct {
	Key   string `gorm:"column:key;primaryKey;size:64;not null"`
	Value string `gorm:"column:value;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (MetadataEntry) TableName() string {
	return "metadata"
}
