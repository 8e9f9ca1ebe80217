package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/saltline/castlog/internal/backend"
	"github.com/saltline/castlog/internal/config"
	"github.com/saltline/castlog/internal/database"
	"github.com/saltline/castlog/internal/identity"
	"github.com/saltline/castlog/internal/logbook"
	"github.com/saltline/castlog/internal/logging"
	"github.com/saltline/castlog/internal/store"
	syncengine "github.com/saltline/castlog/internal/sync"
	"github.com/saltline/castlog/internal/weather"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "castlog",
		Short: "Offline-first shore fishing logbook",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newStartCommand(),
		newEndCommand(),
		newCatchCommand(),
		newSyncCommand(),
		newStatusCommand(),
		newWatchCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("backend-url", defaults.GetString("backend.url"), "Remote REST base URL")
	cmd.PersistentFlags().String("backend-api-key", "", "Remote REST API key")
	cmd.PersistentFlags().String("auth-token", "", "JWT access token (overrides env)")
	cmd.PersistentFlags().String("weather-url", defaults.GetString("weather.url"), "Weather forecast API base URL")
	cmd.PersistentFlags().Float64("spot-lat", defaults.GetFloat64("spot.latitude"), "Home spot latitude")
	cmd.PersistentFlags().Float64("spot-lon", defaults.GetFloat64("spot.longitude"), "Home spot longitude")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "backend.url", "backend-url")
	bindFlag(cmd, "backend.api_key", "backend-api-key")
	bindFlag(cmd, "auth.token", "auth-token")
	bindFlag(cmd, "weather.url", "weather-url")
	bindFlag(cmd, "spot.latitude", "spot-lat")
	bindFlag(cmd, "spot.longitude", "spot-lon")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

type app struct {
	cfg      config.AppConfig
	logger   *zap.Logger
	store    *store.Store
	identity *identity.TokenProvider
	logbook  *logbook.Service

	closeFunc func()
}

func newApp() (*app, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	localStore, err := store.New(store.Config{Database: db})
	if err != nil {
		return nil, err
	}

	tokenProvider := identity.NewTokenProvider(identity.TokenProviderConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
	})
	if appConfig.AuthToken != "" {
		if _, err := tokenProvider.SetToken(appConfig.AuthToken); err != nil {
			logger.Warn("stored auth token rejected", zap.Error(err))
		}
	}

	weatherProvider := weather.NewOpenMeteoProvider(weather.OpenMeteoConfig{
		BaseURL: appConfig.WeatherURL,
	})

	logbookService, err := logbook.NewService(logbook.ServiceConfig{
		Store:    localStore,
		Weather:  weatherProvider,
		Identity: tokenProvider,
		Logger:   logger,
		Spot: logbook.Spot{
			Latitude:  appConfig.SpotLatitude,
			Longitude: appConfig.SpotLongitude,
		},
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      appConfig,
		logger:   logger,
		store:    localStore,
		identity: tokenProvider,
		logbook:  logbookService,
		closeFunc: func() {
			_ = logger.Sync()
			_ = sqlDB.Close()
		},
	}, nil
}

func (a *app) close() {
	a.closeFunc()
}

func (a *app) newEngine() (*syncengine.Engine, error) {
	adapter, err := backend.NewRESTAdapter(backend.RESTConfig{
		BaseURL:   a.cfg.BackendURL,
		APIKey:    a.cfg.BackendAPIKey,
		AuthToken: a.cfg.AuthToken,
	})
	if err != nil {
		return nil, err
	}
	return syncengine.NewEngine(syncengine.EngineConfig{
		Store:      a.store,
		Backend:    adapter,
		Identity:   a.identity,
		Logger:     a.logger,
		BaseDelay:  a.cfg.SyncBaseDelay,
		MaxRetries: a.cfg.SyncMaxRetries,
	})
}

func newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Open a fishing session at the given position",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			lat, lon := coordinates(cmd, application.cfg)
			session, err := application.logbook.StartSession(cmd.Context(), lat, lon)
			if err != nil {
				return err
			}

			fmt.Printf("session %d started at %s\n", session.ID, session.StartTime.Format(time.RFC3339))
			fmt.Printf("  temp %.1f°C, pressure %.1f hPa (%+.1f/3h), wind %.1f km/h from %.0f°\n",
				session.TempCurrent, session.PressureCurrent, session.PressureTrend3h,
				session.WindSpeedCurrent, session.WindDirectionCurrent)
			return nil
		},
	}
	cmd.Flags().Float64("lat", 0, "Session latitude (defaults to the home spot)")
	cmd.Flags().Float64("lon", 0, "Session longitude (defaults to the home spot)")
	return cmd
}

func newEndCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "Close the active fishing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			active, err := application.logbook.ActiveSession(cmd.Context())
			if err != nil {
				return err
			}
			ended, err := application.logbook.EndSession(cmd.Context(), active.ID)
			if err != nil {
				return err
			}

			fmt.Printf("session %d ended with %d catches\n", ended.ID, ended.TotalCatches)
			return nil
		},
	}
}

func newCatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catch",
		Short: "Record a catch against the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			lat, lon := coordinates(cmd, application.cfg)
			input := logbook.CatchInput{Latitude: lat, Longitude: lon}
			input.Species, _ = cmd.Flags().GetString("species")
			if cmd.Flags().Changed("weight") {
				weight, _ := cmd.Flags().GetFloat64("weight")
				input.Weight = &weight
			}
			if cmd.Flags().Changed("length") {
				length, _ := cmd.Flags().GetFloat64("length")
				input.Length = &length
			}

			catch, err := application.logbook.RecordCatch(cmd.Context(), input)
			if err != nil {
				return err
			}

			fmt.Printf("catch %d recorded: %s, wind incidence %.3f\n",
				catch.ID, catch.Species, catch.WindIncidenceScore)
			return nil
		},
	}
	cmd.Flags().String("species", "", "Species name")
	cmd.Flags().Float64("weight", 0, "Weight in kilograms")
	cmd.Flags().Float64("length", 0, "Length in centimeters")
	cmd.Flags().Float64("lat", 0, "Catch latitude (defaults to the home spot)")
	cmd.Flags().Float64("lon", 0, "Catch longitude (defaults to the home spot)")
	return cmd
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one pull+push reconciliation cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			engine, err := application.newEngine()
			if err != nil {
				return err
			}
			if err := engine.RunSync(cmd.Context()); err != nil {
				return err
			}

			pending, err := application.store.ActionsByStatus(cmd.Context(), store.ActionStatusPending)
			if err != nil {
				return err
			}
			fmt.Printf("sync complete, %d actions still pending\n", len(pending))
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active session and the outbox state",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			ctx := cmd.Context()
			if user, ok := application.identity.CurrentUser(); ok {
				fmt.Printf("signed in as %s\n", user.ID)
			} else {
				fmt.Println("signed out")
			}

			active, err := application.logbook.ActiveSession(ctx)
			switch {
			case err == nil:
				fmt.Printf("active session %d since %s, %d catches\n",
					active.ID, active.StartTime.Format(time.RFC3339), active.TotalCatches)
			case errors.Is(err, logbook.ErrNoActiveSession), errors.Is(err, logbook.ErrNotSignedIn):
				fmt.Println("no active session")
			default:
				return err
			}

			sessions, err := application.logbook.SessionsForUser(ctx)
			switch {
			case err == nil:
				for i, recent := range sessions {
					if i == 5 {
						break
					}
					fmt.Printf("  session %d  %s  %s  %d catches\n",
						recent.ID, recent.StartTime.Format("2006-01-02 15:04"), recent.Status, recent.TotalCatches)
				}
			case errors.Is(err, logbook.ErrNotSignedIn):
			default:
				return err
			}

			for _, status := range []store.ActionStatus{store.ActionStatusPending, store.ActionStatusFailed} {
				actions, err := application.store.ActionsByStatus(ctx, status)
				if err != nil {
					return err
				}
				fmt.Printf("%s actions: %d\n", status, len(actions))
			}

			lastSync, err := application.store.LastSync(ctx)
			if err != nil {
				return err
			}
			if lastSync == nil {
				fmt.Println("never synced")
			} else {
				fmt.Printf("last sync %s\n", lastSync.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing on an interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			engine, err := application.newEngine()
			if err != nil {
				return err
			}

			interval, _ := cmd.Flags().GetDuration("interval")
			scheduler, err := syncengine.NewScheduler(syncengine.SchedulerConfig{
				Runner:   engine,
				Logger:   application.logger,
				Interval: interval,
			})
			if err != nil {
				return err
			}
			unsubscribe := scheduler.BindIdentity(application.identity)
			defer unsubscribe()

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			scheduler.Trigger()
			if err := scheduler.Run(signalCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().Duration("interval", 5*time.Minute, "Periodic sync interval")
	return cmd
}

func coordinates(cmd *cobra.Command, cfg config.AppConfig) (float64, float64) {
	lat, lon := cfg.SpotLatitude, cfg.SpotLongitude
	if cmd.Flags().Changed("lat") {
		lat, _ = cmd.Flags().GetFloat64("lat")
	}
	if cmd.Flags().Changed("lon") {
		lon, _ = cmd.Flags().GetFloat64("lon")
	}
	return lat, lon
}
