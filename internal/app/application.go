package app

import (
	"context"
	"errors"
	"time"

	"github.com/raysh454/browserfetch/internal/bridge"
	"github.com/raysh454/browserfetch/internal/logging"
)

// Application is the runtime state shared by the CLI commands and the
// server: config, logger and the session manager. Pass it to the parts that
// need it rather than using package-level variables.
type Application struct {
	Config   *Config
	Logger   logging.Logger
	Sessions *Manager
}

// NewApplication wires a Manager for cfg. A nil cfg means DefaultConfig.
func NewApplication(cfg *Config, logger logging.Logger) *Application {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger = logging.OrNop(logger)
	return &Application{
		Config:   cfg,
		Logger:   logger,
		Sessions: NewManager(cfg.Session, bridge.NewExecutor(logger), logger),
	}
}

// Shutdown closes every session, giving up when ctx ends or after 15s.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Sessions.Close() }()

	select {
	case err := <-done:
		if err != nil {
			a.Logger.Warn("closing sessions returned error", logging.Err(err))
		}
		return err
	case <-ctx.Done():
		a.Logger.Warn("shutdown timed out", logging.Err(ctx.Err()))
		return ctx.Err()
	}
}
