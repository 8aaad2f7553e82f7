package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexbotov/dond/internal/api"
	"github.com/alexbotov/dond/internal/audit"
	"github.com/alexbotov/dond/internal/config"
	"github.com/alexbotov/dond/internal/database"
	"github.com/alexbotov/dond/internal/game"
	"github.com/alexbotov/dond/internal/rng"
	"github.com/alexbotov/dond/pkg/client"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const rngCheckInterval = 5 * time.Minute

// ServeCmd runs the game server. Flags override the DOND_* environment.
type ServeCmd struct {
	Addr  string `help:"Listen address (overrides DOND_PORT)"`
	DSN   string `name:"dsn" help:"PostgreSQL DSN for the audit trail (overrides DOND_DB_DSN)"`
	Seed  *int64 `help:"Deterministic shuffle seed (overrides DOND_SEED)"`
	Debug bool   `help:"Enable debug logging"`
	JSON  bool   `name:"json" help:"Log as JSON"`
}

func (c *ServeCmd) Run() error {
	cfg := config.Load()
	if c.DSN != "" {
		cfg.Database.DSN = c.DSN
	}
	if c.Seed != nil {
		cfg.Game.Seed = *c.Seed
	}
	if c.Debug {
		cfg.Log.Level = "debug"
	}
	if c.JSON {
		cfg.Log.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	addr := cfg.Server.Addr()
	if c.Addr != "" {
		addr = c.Addr
	}

	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rngSvc *rng.Service
	if cfg.Game.Seed != 0 {
		logger.Warn("Using deterministic shuffle", "seed", cfg.Game.Seed)
		rngSvc = rng.NewSeeded(cfg.Game.Seed)
	} else {
		rngSvc = rng.New()
	}
	health, err := rngSvc.HealthCheck()
	if err != nil {
		return fmt.Errorf("rng unavailable: %w", err)
	}
	if !health.Healthy {
		logger.Warn("RNG chi-square check failed at startup", "chi_square", health.ChiSquare)
	}

	var (
		recorder audit.Recorder = audit.NewLogRecorder(logger)
		events   *audit.Service
	)
	if cfg.Database.Enabled() {
		db, err := database.New(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer closeDB(logger, db.DB)

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		events = audit.New(db.DB)
		recorder = events
		logger.Info("Recording audit events to database", "driver", cfg.Database.Driver)
	}

	engine := game.New(rngSvc,
		game.WithLogger(logger),
		game.WithRecorder(recorder),
	)

	opts := []api.Option{api.WithLogger(logger), api.WithCurrency(cfg.Game.Currency)}
	if events != nil {
		opts = append(opts, api.WithEventStore(events))
	}
	handler := api.New(engine, rngSvc, opts...)

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.SetupRouter(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting game server", "addr", addr, "version", version, "seeded", rngSvc.Seeded())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(rngCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				health, err := rngSvc.HealthCheck()
				if err != nil || !health.Healthy {
					logger.Error("RNG health check failed", "err", err, "chi_square", health.ChiSquare)
					continue
				}
				logger.Debug("RNG health check passed", "chi_square", health.ChiSquare)
			}
		}
	})

	return g.Wait()
}

func closeDB(logger *log.Logger, db *sql.DB) {
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", "err", err)
	}
}

func newLogger(cfg config.LogConfig) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	if level, err := log.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(log.JSONFormatter)
		logger.SetTimeFormat(time.RFC3339)
	}
	return logger
}

// StateCmd prints the current board
type StateCmd struct {
	Server string `default:"http://localhost:8080" env:"DOND_SERVER" help:"Game server URL"`
	JSON   bool   `name:"json" help:"Print the raw snapshot"`
}

func (c *StateCmd) Run() error {
	ctx := context.Background()
	cl := client.NewClient(&client.ClientConfig{BaseURL: c.Server, Timeout: 10 * time.Second})

	state, err := cl.GetState(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	currency := "USD"
	if info, err := cl.Info(ctx); err == nil && info.Currency != "" {
		currency = info.Currency
	}
	fmt.Println(renderBoard(state, currency))
	return nil
}

// WatchCmd follows the observer channel and redraws the board on every change
type WatchCmd struct {
	Server string `default:"http://localhost:8080" env:"DOND_SERVER" help:"Game server URL"`
}

func (c *WatchCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl := client.NewClient(&client.ClientConfig{BaseURL: c.Server, Timeout: 10 * time.Second})
	currency := "USD"
	if info, err := cl.Info(ctx); err == nil && info.Currency != "" {
		currency = info.Currency
	}

	return cl.Watch(ctx, func(ev *client.Event) error {
		if apiErr := ev.Err(); apiErr != nil {
			fmt.Println(renderNotice(ev.Type, apiErr.Message))
			return nil
		}
		if !ev.SnapshotEvent() {
			fmt.Println(renderNotice(ev.Type, describeNotice(ev, currency)))
			return nil
		}

		state, err := ev.State()
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", ev.Type, err)
		}
		fmt.Println(renderNotice(ev.Type, ""))
		fmt.Println(renderBoard(state, currency))
		return nil
	})
}
