// Package shutdown stops the watcher, drains the consumer and closes the
// extensions in that order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
)

// Stages run in this order. Functions within a stage run in parallel.
type Stage int

const (
	// StageInput stops producing events: the tailer and the monitor.
	StageInput Stage = iota
	// StageDrain lets the consumer finish queued events.
	StageDrain
	// StageOutput flushes and closes extensions, the exporter and the DLQ.
	StageOutput
	// StageFinal persists checkpoints and stops servers and tracing.
	StageFinal
	numStages
)

func (s Stage) String() string {
	switch s {
	case StageInput:
		return "input"
	case StageDrain:
		return "drain"
	case StageOutput:
		return "output"
	case StageFinal:
		return "final"
	default:
		return "unknown"
	}
}

// ShutdownFunc is a function that performs cleanup during shutdown
type ShutdownFunc func(context.Context) error

type entry struct {
	name string
	fn   ShutdownFunc
}

// Manager handles graceful shutdown of the application
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu     sync.Mutex
	stages [numStages][]entry

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	gracefulDone chan struct{}
	err          error
}

// Config holds shutdown manager configuration
type Config struct {
	Timeout time.Duration
	Logger  *logging.Logger
}

// New creates a new shutdown manager
func New(cfg Config) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Global()
	}

	return &Manager{
		logger:       cfg.Logger.WithComponent("shutdown"),
		timeout:      cfg.Timeout,
		shutdownCh:   make(chan struct{}),
		gracefulDone: make(chan struct{}),
	}
}

// Register adds fn to a stage.
func (m *Manager) Register(stage Stage, name string, fn ShutdownFunc) {
	if stage < 0 || stage >= numStages {
		stage = StageFinal
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug().
		Str("stage", stage.String()).
		Str("name", name).
		Msg("Registered shutdown function")
	m.stages[stage] = append(m.stages[stage], entry{name: name, fn: fn})
}

// Component represents a component that can be gracefully shut down
type Component interface {
	Stop(context.Context) error
	Name() string
}

// RegisterComponent registers a component for graceful shutdown
func (m *Manager) RegisterComponent(stage Stage, component Component) {
	m.Register(stage, component.Name(), component.Stop)
}

// WaitForSignal blocks until a shutdown signal arrives, ctx is done or
// Shutdown is called elsewhere.
func (m *Manager) WaitForSignal(ctx context.Context, signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info().
			Str("signal", sig.String()).
			Msg("Shutdown signal received")
		m.Shutdown()
	case <-ctx.Done():
		m.Shutdown()
	case <-m.shutdownCh:
	}
}

// Shutdown runs every stage once and returns the joined errors.
func (m *Manager) Shutdown() error {
	m.shutdownOnce.Do(func() {
		close(m.shutdownCh)
		m.err = m.performShutdown()
		close(m.gracefulDone)
	})
	<-m.gracefulDone
	return m.err
}

func (m *Manager) performShutdown() error {
	m.mu.Lock()
	stages := m.stages
	m.mu.Unlock()

	m.logger.Info().
		Dur("timeout", m.timeout).
		Msg("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for stage, entries := range stages {
		if len(entries) == 0 {
			continue
		}
		if err := m.runStage(ctx, Stage(stage), entries); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			m.logger.Warn().
				Dur("timeout", m.timeout).
				Str("stage", Stage(stage).String()).
				Msg("Graceful shutdown timed out, forcing exit")
			errs = append(errs, fmt.Errorf("shutdown timed out in %s stage: %w", Stage(stage), ctx.Err()))
			break
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Graceful shutdown completed with errors")
	} else {
		m.logger.Info().Msg("Graceful shutdown completed successfully")
	}
	return err
}

func (m *Manager) runStage(ctx context.Context, stage Stage, entries []entry) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.fn(ctx); err != nil {
				m.logger.Error().
					Err(err).
					Str("stage", stage.String()).
					Str("name", e.name).
					Msg("Shutdown function failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
				mu.Unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

// Done returns a channel that is closed when shutdown is complete
func (m *Manager) Done() <-chan struct{} {
	return m.gracefulDone
}

// ShutdownChannel returns a channel that is closed when shutdown is initiated
func (m *Manager) ShutdownChannel() <-chan struct{} {
	return m.shutdownCh
}

// WaitWithTimeout waits for shutdown to complete with a timeout
func (m *Manager) WaitWithTimeout(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.Done():
		return nil
	case <-timer.C:
		return fmt.Errorf("shutdown did not complete within %v", timeout)
	}
}
