package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/saltline/castlog/internal/backend"
	"github.com/saltline/castlog/internal/identity"
	"github.com/saltline/castlog/internal/store"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 500 * time.Millisecond
)

var (
	// ErrSyncInProgress is returned when a cycle is already running;
	// the caller's invocation had no side effects.
	ErrSyncInProgress = errors.New("sync: cycle already in progress")
	// ErrNotAuthenticated aborts the push phase before any action runs.
	ErrNotAuthenticated = errors.New("sync: not authenticated")
	// ErrDependencyNotSynced marks a catch whose parent session has no
	// remote id yet. The action stays pending for a later cycle.
	ErrDependencyNotSynced = errors.New("sync: parent session not synced")

	errMissingStore    = errors.New("sync: store is required")
	errMissingBackend  = errors.New("sync: backend adapter is required")
	errMissingIdentity = errors.New("sync: identity provider is required")
	errUnknownEntity   = errors.New("sync: unknown entity type")

	noOpLogger = zap.NewNop()
)

// EngineConfig describes the collaborators and tuning of the engine.
type EngineConfig struct {
	Store    *store.Store
	Backend  backend.Adapter
	Identity identity.Provider
	Clock    func() time.Time
	Logger   *zap.Logger
	// Online reports current connectivity; nil assumes online.
	Online func() bool
	// BaseDelay is the backoff unit: retry r sleeps BaseDelay * 2^r,
	// counting r from 1 across the action's lifetime.
	BaseDelay time.Duration
	// MaxRetries bounds the failed attempts of one action before it is
	// abandoned as failed.
	MaxRetries int
}

// Engine reconciles the local store with the backend: a pull phase merges
// remote changes in, then a push phase drains the outbox. A compare-and-set
// guard keeps at most one cycle running per engine instance.
type Engine struct {
	store      *store.Store
	backend    backend.Adapter
	identity   identity.Provider
	clock      func() time.Time
	logger     *zap.Logger
	online     func() bool
	baseDelay  time.Duration
	maxRetries int

	syncing atomic.Bool
}

// NewEngine validates the configuration and constructs an engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	if cfg.Identity == nil {
		return nil, errMissingIdentity
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Engine{
		store:      cfg.Store,
		backend:    cfg.Backend,
		identity:   cfg.Identity,
		clock:      clock,
		logger:     logger,
		online:     cfg.Online,
		baseDelay:  baseDelay,
		maxRetries: maxRetries,
	}, nil
}

// RunSync executes one pull+push cycle. A concurrent invocation returns
// ErrSyncInProgress without touching the store or the network. A pull
// failure is logged and does not prevent the push phase: pending local
// changes should still reach the backend when only the read path is
// degraded.
func (e *Engine) RunSync(ctx context.Context) error {
	if !e.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	if err := e.pull(ctx); err != nil {
		e.logger.Warn("pull phase failed", zap.Error(err))
	}
	return e.push(ctx)
}

// pull merges remote changes into the local store. Sessions are scoped to
// the current user; catches are scoped only by the watermark since the
// remote resource carries no owner column. Remote state wins wholesale on
// a client_uuid match and pulled records never enqueue outbox actions.
func (e *Engine) pull(ctx context.Context) error {
	user, ok := e.identity.CurrentUser()
	if !ok {
		e.logger.Debug("pull skipped, no current user")
		return nil
	}

	watermark, err := e.store.LastSync(ctx)
	if err != nil {
		return err
	}
	pullStart := e.clock().UTC()

	sessions, err := e.backend.SessionsUpdatedSince(ctx, user.ID, watermark)
	if err != nil {
		return fmt.Errorf("sync: pull sessions: %w", err)
	}
	for i := range sessions {
		if err := e.mergeRemoteSession(ctx, &sessions[i]); err != nil {
			return err
		}
	}

	catches, err := e.backend.CatchesUpdatedSince(ctx, watermark)
	if err != nil {
		return fmt.Errorf("sync: pull catches: %w", err)
	}
	for i := range catches {
		if err := e.mergeRemoteCatch(ctx, &catches[i]); err != nil {
			return err
		}
	}

	if err := e.store.SetLastSync(ctx, pullStart); err != nil {
		return err
	}
	e.logger.Info("pull completed",
		zap.Int("sessions", len(sessions)),
		zap.Int("catches", len(catches)))
	return nil
}

func (e *Engine) mergeRemoteSession(ctx context.Context, remote *backend.RemoteSession) error {
	merged := store.Session{
		ClientUUID: remote.ClientUUID,
		RemoteID:   &remote.ID,
		UserID:     remote.UserID,
		SpotID:     remote.SpotID,
		Status:     store.SessionStatus(remote.Status),
		StartTime:  remote.StartTime,
		EndTime:    remote.EndTime,

		TotalCatches:   remote.TotalCatches,
		TempDayMin:     remote.TempDayMin,
		TempDayMax:     remote.TempDayMax,
		PressureDayMin: remote.PressureDayMin,
		PressureDayMax: remote.PressureDayMax,
		WindDayMax:     remote.WindDayMax,

		TempCurrent:          remote.TempCurrent,
		PressureCurrent:      remote.PressureCurrent,
		PressureTrend3h:      remote.PressureTrend3h,
		WindSpeedCurrent:     remote.WindSpeedCurrent,
		WindSpeedTrend3h:     remote.WindSpeedTrend3h,
		WindDirectionCurrent: remote.WindDirectionCurrent,
		WindGustCurrent:      remote.WindGustCurrent,
		WeatherTimestamp:     remote.WeatherTimestamp,

		UpdatedAt: remote.UpdatedAt,
	}

	existing, err := e.store.SessionByClientUUID(ctx, remote.ClientUUID)
	if errors.Is(err, store.ErrNotFound) {
		return e.store.CreateSession(ctx, &merged)
	}
	if err != nil {
		return err
	}

	merged.ID = existing.ID
	return e.store.SaveSession(ctx, &merged)
}

func (e *Engine) mergeRemoteCatch(ctx context.Context, remote *backend.RemoteCatch) error {
	merged := store.Catch{
		ClientUUID: remote.ClientUUID,
		RemoteID:   &remote.ID,
		Species:    remote.Species,
		Weight:     remote.Weight,
		Length:     remote.Length,
		CatchTime:  remote.CatchTime,
		Latitude:   remote.Latitude,
		Longitude:  remote.Longitude,

		TempCurrent:          remote.TempCurrent,
		PressureCurrent:      remote.PressureCurrent,
		PressureTrend3h:      remote.PressureTrend3h,
		WindSpeedCurrent:     remote.WindSpeedCurrent,
		WindSpeedTrend3h:     remote.WindSpeedTrend3h,
		WindDirectionCurrent: remote.WindDirectionCurrent,
		WindGustCurrent:      remote.WindGustCurrent,
		WeatherTimestamp:     remote.WeatherTimestamp,

		WindIncidenceScore: remote.WindIncidenceScore,
		UpdatedAt:          remote.UpdatedAt,
	}

	existing, err := e.store.CatchByClientUUID(ctx, remote.ClientUUID)
	if err == nil {
		// The local session linkage survives the overwrite: the remote
		// record references the parent's remote id, not a local one.
		merged.ID = existing.ID
		merged.SessionID = existing.SessionID
		return e.store.SaveCatch(ctx, &merged)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	parent, err := e.store.SessionByRemoteID(ctx, remote.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("skipping remote catch with unknown parent session",
			zap.String("client_uuid", remote.ClientUUID),
			zap.Int64("remote_session_id", remote.SessionID))
		return nil
	}
	if err != nil {
		return err
	}

	merged.SessionID = parent.ID
	return e.store.CreateCatch(ctx, &merged)
}

// push drains the outbox, sessions before catches. It aborts before any
// action when no user is signed in, and exits quietly when offline.
// Per-action failures never surface to the caller: they are recorded on
// the action and logged.
func (e *Engine) push(ctx context.Context) error {
	if _, ok := e.identity.CurrentUser(); !ok {
		e.logger.Warn("push aborted, no current user")
		return ErrNotAuthenticated
	}
	if e.online != nil && !e.online() {
		e.logger.Debug("push skipped, offline")
		return nil
	}

	actions, err := e.store.PendingActions(ctx)
	if err != nil {
		return err
	}

	for i := range actions {
		action := actions[i]

		if action.Retries >= e.maxRetries {
			if err := e.store.MarkActionFailed(ctx, action.ID); err != nil {
				return err
			}
			e.logger.Warn("action abandoned after exhausting retries",
				zap.Int64("action_id", action.ID),
				zap.Int("retries", action.Retries))
			continue
		}

		pushErr := e.pushAction(ctx, &action)
		if pushErr == nil {
			if err := e.store.MarkActionSynced(ctx, action.ID); err != nil {
				return err
			}
			continue
		}
		if errors.Is(pushErr, context.Canceled) || errors.Is(pushErr, context.DeadlineExceeded) {
			return pushErr
		}

		if resolveErr := e.resolveFailure(ctx, &action, pushErr); resolveErr != nil {
			return resolveErr
		}
	}
	return nil
}

// pushAction attempts the remote operation, retrying transient failures
// in place with exponential backoff. Every failed attempt persists a
// retry-count increment so the budget survives process restarts.
func (e *Engine) pushAction(ctx context.Context, action *store.SyncAction) error {
	remaining := e.maxRetries - action.Retries
	priorRetries := action.Retries

	return retry.Do(
		func() error {
			return e.processAction(ctx, action)
		},
		retry.Context(ctx),
		retry.Attempts(uint(remaining)),
		retry.LastErrorOnly(true),
		retry.RetryIf(backend.IsTransient),
		retry.OnRetry(func(attempt uint, err error) {
			action.Retries++
			if incErr := e.store.IncrementActionRetries(ctx, action.ID); incErr != nil {
				e.logger.Error("failed to persist retry count",
					zap.Int64("action_id", action.ID),
					zap.Error(incErr))
			}
			e.logger.Warn("action attempt failed",
				zap.Int64("action_id", action.ID),
				zap.Int("retries", action.Retries),
				zap.Error(err))
		}),
		retry.DelayType(func(attempt uint, _ error, _ *retry.Config) time.Duration {
			return retryDelay(e.baseDelay, priorRetries, attempt)
		}),
	)
}

// retryDelay maps retry-go's 0-based attempt counter within one cycle
// onto the action's lifetime retry axis: an action resumed with n
// persisted retries continues at retry n+1, it does not start over.
func retryDelay(base time.Duration, priorRetries int, attempt uint) time.Duration {
	return backoffDelay(base, priorRetries+int(attempt)+1)
}

// backoffDelay returns BASE * 2^r for the r-th retry of an action,
// 1-indexed over its lifetime: the first retry waits 2*BASE.
func backoffDelay(base time.Duration, retryNumber int) time.Duration {
	return base * time.Duration(1<<uint(retryNumber))
}

// resolveFailure applies the terminal classification after the retry
// budget of a single action is spent or a non-retryable error occurred.
func (e *Engine) resolveFailure(ctx context.Context, action *store.SyncAction, pushErr error) error {
	switch {
	case errors.Is(pushErr, ErrDependencyNotSynced):
		// Left pending so a later cycle, or a pull that backfills the
		// parent's remote id, can rescue it. The retry budget still
		// bounds how long it lingers.
		action.Retries++
		if err := e.store.IncrementActionRetries(ctx, action.ID); err != nil {
			return err
		}
		e.logger.Info("action deferred until parent session syncs",
			zap.Int64("action_id", action.ID),
			zap.Int("retries", action.Retries))
		return nil

	case backend.IsAuth(pushErr):
		// Credentials went bad mid-cycle: stop pushing entirely and
		// leave everything pending for the next signed-in cycle.
		e.logger.Warn("push aborted on auth failure", zap.Error(pushErr))
		return fmt.Errorf("%w: %v", ErrNotAuthenticated, pushErr)

	case backend.IsTransient(pushErr):
		if action.Retries >= e.maxRetries {
			if err := e.store.MarkActionFailed(ctx, action.ID); err != nil {
				return err
			}
			e.logger.Warn("action abandoned after exhausting retries",
				zap.Int64("action_id", action.ID),
				zap.Error(pushErr))
		}
		// Otherwise the action stays pending with its incremented retry
		// count and is reattempted next cycle.
		return nil

	default:
		// Validation errors, missing local records and unrecognized
		// entity kinds are permanent; retrying cannot help.
		if err := e.store.MarkActionFailed(ctx, action.ID); err != nil {
			return err
		}
		e.logger.Error("action failed permanently",
			zap.Int64("action_id", action.ID),
			zap.String("entity_type", string(action.EntityType)),
			zap.Error(pushErr))
		return nil
	}
}

// processAction performs one remote upsert for the action's entity and
// writes the returned remote id back onto the local record.
func (e *Engine) processAction(ctx context.Context, action *store.SyncAction) error {
	switch action.EntityType {
	case store.EntityTypeSession:
		session, err := e.store.SessionByID(ctx, action.EntityLocalID)
		if err != nil {
			return err
		}
		record, err := e.backend.UpsertSession(ctx, e.sessionPayload(session))
		if err != nil {
			return err
		}
		return e.store.UpdateSessionFields(ctx, session.ID, map[string]interface{}{
			"remote_id": record.ID,
		})

	case store.EntityTypeCatch:
		catch, err := e.store.CatchByID(ctx, action.EntityLocalID)
		if err != nil {
			return err
		}
		parent, err := e.store.SessionByID(ctx, catch.SessionID)
		if err != nil {
			return err
		}
		if parent.RemoteID == nil {
			return ErrDependencyNotSynced
		}
		record, err := e.backend.UpsertCatch(ctx, e.catchPayload(catch, *parent.RemoteID))
		if err != nil {
			return err
		}
		return e.store.UpdateCatchFields(ctx, catch.ID, map[string]interface{}{
			"remote_id": record.ID,
		})

	default:
		return fmt.Errorf("%w: %q", errUnknownEntity, action.EntityType)
	}
}

func (e *Engine) sessionPayload(session *store.Session) backend.SessionPayload {
	return backend.SessionPayload{
		ClientUUID:   session.ClientUUID,
		UserID:       session.UserID,
		SpotID:       session.SpotID,
		StartTime:    session.StartTime,
		EndTime:      session.EndTime,
		TotalCatches: session.TotalCatches,
		Status:       string(session.Status),

		TempDayMin:     session.TempDayMin,
		TempDayMax:     session.TempDayMax,
		PressureDayMin: session.PressureDayMin,
		PressureDayMax: session.PressureDayMax,
		WindDayMax:     session.WindDayMax,

		TempCurrent:          session.TempCurrent,
		PressureCurrent:      session.PressureCurrent,
		PressureTrend3h:      session.PressureTrend3h,
		WindSpeedCurrent:     session.WindSpeedCurrent,
		WindSpeedTrend3h:     session.WindSpeedTrend3h,
		WindDirectionCurrent: session.WindDirectionCurrent,
		WindGustCurrent:      session.WindGustCurrent,
		WeatherTimestamp:     session.WeatherTimestamp,

		UpdatedAt: e.clock().UTC(),
	}
}

func (e *Engine) catchPayload(catch *store.Catch, remoteSessionID int64) backend.CatchPayload {
	return backend.CatchPayload{
		ClientUUID: catch.ClientUUID,
		SessionID:  remoteSessionID,
		Species:    catch.Species,
		Weight:     catch.Weight,
		Length:     catch.Length,
		CatchTime:  catch.CatchTime,
		Latitude:   catch.Latitude,
		Longitude:  catch.Longitude,

		TempCurrent:          catch.TempCurrent,
		PressureCurrent:      catch.PressureCurrent,
		PressureTrend3h:      catch.PressureTrend3h,
		WindSpeedCurrent:     catch.WindSpeedCurrent,
		WindSpeedTrend3h:     catch.WindSpeedTrend3h,
		WindDirectionCurrent: catch.WindDirectionCurrent,
		WindGustCurrent:      catch.WindGustCurrent,
		WeatherTimestamp:     catch.WeatherTimestamp,

		WindIncidenceScore: catch.WindIncidenceScore,
		UpdatedAt:          e.clock().UTC(),
	}
}
