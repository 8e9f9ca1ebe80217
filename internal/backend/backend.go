package backend

import (
	"context"
	"time"
)

// SessionPayload is the wire shape pushed to the remote sessions resource.
// The client_uuid is the idempotency key: the backend collapses repeated
// upserts carrying the same value into one logical record.
type SessionPayload struct {
	ClientUUID   string     `json:"client_uuid"`
	UserID       string     `json:"user_id"`
	SpotID       *int64     `json:"spot_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	TotalCatches int64      `json:"total_catches"`
	Status       string     `json:"status"`

	TempDayMin     float64  `json:"temp_day_min"`
	TempDayMax     float64  `json:"temp_day_max"`
	PressureDayMin *float64 `json:"pressure_day_min"`
	PressureDayMax *float64 `json:"pressure_day_max"`
	WindDayMax     *float64 `json:"wind_day_max"`

	TempCurrent          float64   `json:"temp_current"`
	PressureCurrent      float64   `json:"pressure_current"`
	PressureTrend3h      float64   `json:"pressure_trend_3h"`
	WindSpeedCurrent     float64   `json:"wind_speed_current"`
	WindSpeedTrend3h     float64   `json:"wind_speed_trend_3h"`
	WindDirectionCurrent float64   `json:"wind_direction_current"`
	WindGustCurrent      float64   `json:"wind_gust_current"`
	WeatherTimestamp     time.Time `json:"weather_timestamp"`

	UpdatedAt time.Time `json:"updated_at"`
}

// RemoteSession is the server's view of a session, including the
// server-assigned identifier.
type RemoteSession struct {
	ID int64 `json:"id"`
	SessionPayload
}

// CatchPayload is the wire shape pushed to the remote catches resource.
// SessionID carries the parent's REMOTE identifier, never a local one.
type CatchPayload struct {
	ClientUUID string    `json:"client_uuid"`
	SessionID  int64     `json:"session_id"`
	Species    string    `json:"species"`
	Weight     *float64  `json:"weight"`
	Length     *float64  `json:"length"`
	CatchTime  time.Time `json:"catch_time"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`

	TempCurrent          float64   `json:"temp_current"`
	PressureCurrent      float64   `json:"pressure_current"`
	PressureTrend3h      float64   `json:"pressure_trend_3h"`
	WindSpeedCurrent     float64   `json:"wind_speed_current"`
	WindSpeedTrend3h     float64   `json:"wind_speed_trend_3h"`
	WindDirectionCurrent float64   `json:"wind_direction_current"`
	WindGustCurrent      float64   `json:"wind_gust_current"`
	WeatherTimestamp     time.Time `json:"weather_timestamp"`

	WindIncidenceScore float64   `json:"wind_incidence_score"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RemoteCatch is the server's view of a catch.
type RemoteCatch struct {
	ID int64 `json:"id"`
	CatchPayload
}

// Adapter is the narrow contract to the remote service: idempotent
// upserts keyed by client_uuid and filtered reads for incremental pulls.
// Implementations classify failures into the tagged error types of this
// package; callers never inspect wire shapes.
type Adapter interface {
	UpsertSession(ctx context.Context, payload SessionPayload) (RemoteSession, error)
	UpsertCatch(ctx context.Context, payload CatchPayload) (RemoteCatch, error)
	SessionsUpdatedSince(ctx context.Context, userID string, since *time.Time) ([]RemoteSession, error)
	CatchesUpdatedSince(ctx context.Context, since *time.Time) ([]RemoteCatch, error)
}
