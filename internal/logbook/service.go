package logbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saltline/castlog/internal/geo"
	"github.com/saltline/castlog/internal/identity"
	"github.com/saltline/castlog/internal/store"
	"github.com/saltline/castlog/internal/weather"
)

var (
	// ErrNotSignedIn indicates no current user is available for the operation.
	ErrNotSignedIn = errors.New("logbook: not signed in")
	// ErrSessionActive indicates the user already has an open session.
	ErrSessionActive = errors.New("logbook: a session is already active")
	// ErrNoActiveSession indicates an operation requires an open session.
	ErrNoActiveSession = errors.New("logbook: no active session")
	// ErrSessionCompleted indicates the session window is already closed.
	ErrSessionCompleted = errors.New("logbook: session already completed")

	errMissingStore    = errors.New("logbook: store is required")
	errMissingWeather  = errors.New("logbook: weather provider is required")
	errMissingIdentity = errors.New("logbook: identity provider is required")

	noOpLogger = zap.NewNop()
)

// Spot is the fixed reference point bearings are computed from.
type Spot struct {
	Latitude  float64
	Longitude float64
}

// ServiceConfig describes the collaborators of the logbook service.
type ServiceConfig struct {
	Store      *store.Store
	Weather    weather.Provider
	Identity   identity.Provider
	IDProvider store.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
	Spot       Spot
}

// Service implements the domain operations: starting and ending sessions
// and recording catches. Every mutation pairs the entity write with
// exactly one outbox action in a single transaction.
type Service struct {
	store      *store.Store
	weather    weather.Provider
	identity   identity.Provider
	idProvider store.IDProvider
	clock      func() time.Time
	logger     *zap.Logger
	spot       Spot
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Weather == nil {
		return nil, errMissingWeather
	}
	if cfg.Identity == nil {
		return nil, errMissingIdentity
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = store.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:      cfg.Store,
		weather:    cfg.Weather,
		identity:   cfg.Identity,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
		spot:       cfg.Spot,
	}, nil
}

// StartSession opens a new session at the given coordinates. It is
// rejected when the user already has an active session; nothing is
// written and no outbox action is produced in that case.
func (s *Service) StartSession(ctx context.Context, lat, lon float64) (*store.Session, error) {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return nil, ErrNotSignedIn
	}

	if _, err := s.store.ActiveSessionForUser(ctx, user.ID); err == nil {
		return nil, ErrSessionActive
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	report, err := s.weather.Fetch(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("logbook: start session: %w", err)
	}

	clientUUID, err := s.idProvider.NewID()
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	session := &store.Session{
		ClientUUID: clientUUID,
		UserID:     user.ID,
		Status:     store.SessionStatusActive,
		StartTime:  now,

		TempDayMin:     report.Day.TempMin,
		TempDayMax:     report.Day.TempMax,
		PressureDayMin: report.Day.PressureMin,
		PressureDayMax: report.Day.PressureMax,
		WindDayMax:     report.Day.WindMax,

		TempCurrent:          report.Snapshot.Temp,
		PressureCurrent:      report.Snapshot.Pressure,
		PressureTrend3h:      report.Snapshot.PressureTrend3h,
		WindSpeedCurrent:     report.Snapshot.WindSpeed,
		WindSpeedTrend3h:     report.Snapshot.WindSpeedTrend3h,
		WindDirectionCurrent: report.Snapshot.WindDirection,
		WindGustCurrent:      report.Snapshot.WindGust,
		WeatherTimestamp:     report.Snapshot.Timestamp,

		UpdatedAt: now,
	}

	err = s.store.WithTransaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		_, err := tx.EnqueueAction(ctx, store.EntityTypeSession, session.ID, store.ActionTypeCreate)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session started",
		zap.Int64("session_id", session.ID),
		zap.String("user_id", user.ID))
	return session, nil
}

// EndSession closes the session, recomputes its catch count and queues
// the update for the backend.
func (s *Service) EndSession(ctx context.Context, sessionID int64) (*store.Session, error) {
	session, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != store.SessionStatusActive {
		return nil, ErrSessionCompleted
	}

	count, err := s.store.CountCatchesForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	err = s.store.WithTransaction(ctx, func(tx *store.Store) error {
		fields := map[string]interface{}{
			"end_time":      now,
			"total_catches": count,
			"status":        store.SessionStatusCompleted,
			"updated_at":    now,
		}
		if err := tx.UpdateSessionFields(ctx, sessionID, fields); err != nil {
			return err
		}
		_, err := tx.EnqueueAction(ctx, store.EntityTypeSession, sessionID, store.ActionTypeUpdate)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session ended",
		zap.Int64("session_id", sessionID),
		zap.Int64("total_catches", count))
	return s.store.SessionByID(ctx, sessionID)
}

// CatchInput carries the caller-supplied fields of a new catch.
type CatchInput struct {
	Latitude  float64
	Longitude float64
	Species   string
	Weight    *float64
	Length    *float64
}

// RecordCatch logs a catch against the user's active session. The
// wind-incidence score relates the bearing from the home spot to the
// catch position with the wind direction captured when the session opened.
func (s *Service) RecordCatch(ctx context.Context, input CatchInput) (*store.Catch, error) {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return nil, ErrNotSignedIn
	}

	session, err := s.store.ActiveSessionForUser(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	bearing := geo.Bearing(s.spot.Latitude, s.spot.Longitude, input.Latitude, input.Longitude)
	incidence := geo.WindIncidence(session.WindDirectionCurrent, bearing)

	report, err := s.weather.Fetch(ctx, input.Latitude, input.Longitude)
	if err != nil {
		return nil, fmt.Errorf("logbook: record catch: %w", err)
	}

	clientUUID, err := s.idProvider.NewID()
	if err != nil {
		return nil, err
	}

	species := input.Species
	if species == "" {
		species = "unknown"
	}

	now := s.clock().UTC()
	catch := &store.Catch{
		ClientUUID: clientUUID,
		SessionID:  session.ID,
		Species:    species,
		Weight:     input.Weight,
		Length:     input.Length,
		CatchTime:  now,
		Latitude:   input.Latitude,
		Longitude:  input.Longitude,

		TempCurrent:          report.Snapshot.Temp,
		PressureCurrent:      report.Snapshot.Pressure,
		PressureTrend3h:      report.Snapshot.PressureTrend3h,
		WindSpeedCurrent:     report.Snapshot.WindSpeed,
		WindSpeedTrend3h:     report.Snapshot.WindSpeedTrend3h,
		WindDirectionCurrent: report.Snapshot.WindDirection,
		WindGustCurrent:      report.Snapshot.WindGust,
		WeatherTimestamp:     report.Snapshot.Timestamp,

		WindIncidenceScore: incidence,
		UpdatedAt:          now,
	}

	err = s.store.WithTransaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateCatch(ctx, catch); err != nil {
			return err
		}
		_, err := tx.EnqueueAction(ctx, store.EntityTypeCatch, catch.ID, store.ActionTypeCreate)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("catch recorded",
		zap.Int64("catch_id", catch.ID),
		zap.Int64("session_id", session.ID),
		zap.Float64("wind_incidence_score", incidence))
	return catch, nil
}

// ActiveSession returns the current user's open session, if any.
func (s *Service) ActiveSession(ctx context.Context) (*store.Session, error) {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return nil, ErrNotSignedIn
	}
	session, err := s.store.ActiveSessionForUser(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	return session, err
}

// SessionByID returns a session by its local id.
func (s *Service) SessionByID(ctx context.Context, sessionID int64) (*store.Session, error) {
	return s.store.SessionByID(ctx, sessionID)
}

// SessionsForUser returns the current user's sessions, newest first.
func (s *Service) SessionsForUser(ctx context.Context) ([]store.Session, error) {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return nil, ErrNotSignedIn
	}
	return s.store.SessionsForUser(ctx, user.ID)
}

// CatchesForSession returns a session's catches ordered by catch time.
func (s *Service) CatchesForSession(ctx context.Context, sessionID int64) ([]store.Catch, error) {
	return s.store.CatchesForSession(ctx, sessionID)
}
