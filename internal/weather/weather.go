package weather

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidResponse indicates the upstream payload was structurally
// unusable; entity creation fails rather than storing a partial snapshot.
var ErrInvalidResponse = errors.New("weather: invalid response")

// DaySummary carries the day-level envelope captured when a session opens.
// Pressure and wind maxima are optional in the upstream daily block.
type DaySummary struct {
	TempMin     float64
	TempMax     float64
	PressureMin *float64
	PressureMax *float64
	WindMax     *float64
}

// Snapshot is a point-in-time reading with short-term trend deltas. The
// trends compare the closest hour against the reading three hours earlier
// and are zero when not enough history precedes it.
type Snapshot struct {
	Temp             float64
	Pressure         float64
	PressureTrend3h  float64
	WindSpeed        float64
	WindSpeedTrend3h float64
	WindDirection    float64
	WindGust         float64
	Timestamp        time.Time
}

// Report bundles the two shapes consumed at entity creation.
type Report struct {
	Day      DaySummary
	Snapshot Snapshot
}

// Provider fetches environmental readings for a coordinate.
type Provider interface {
	Fetch(ctx context.Context, lat, lon float64) (Report, error)
}
