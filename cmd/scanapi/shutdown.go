// cmd/scanapi/shutdown.go
// Ordered cleanup on SIGINT/SIGTERM

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aspnmy/scanapi/pkg/logger"
)

// shutdownFunc is a cleanup step
type shutdownFunc func(ctx context.Context) error

// shutdownManager runs registered cleanup in reverse order
type shutdownManager struct {
	timeout time.Duration

	mu             sync.Mutex
	funcs          []shutdownFunc
	isShuttingDown bool
}

func newShutdownManager(timeout time.Duration) *shutdownManager {
	return &shutdownManager{timeout: timeout}
}

// Register adds a cleanup step. Later registrations run first.
func (m *shutdownManager) Register(fn shutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, fn)
}

// Shutdown executes all registered cleanup functions
func (m *shutdownManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.isShuttingDown {
		m.mu.Unlock()
		return fmt.Errorf("shutdown already in progress")
	}
	m.isShuttingDown = true
	fns := make([]shutdownFunc, len(m.funcs))
	copy(fns, m.funcs)
	m.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](ctx); err != nil {
			errs = append(errs, err)
			logger.Error("Shutdown step failed", logger.Err(err))
		}
	}
	return errors.Join(errs...)
}

// Run executes appFunc until it returns or a signal arrives, then shuts
// down within the configured timeout
func (m *shutdownManager) Run(appFunc func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appDone := make(chan error, 1)
	go func() {
		appDone <- appFunc(ctx)
	}()

	var appErr error
	select {
	case appErr = <-appDone:
		if appErr != nil {
			logger.Error("Application error", logger.Err(appErr))
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.Shutdown(shutdownCtx); err != nil {
		return errors.Join(appErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}

	logger.Info("Graceful shutdown complete")
	return appErr
}
