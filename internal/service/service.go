// Package service runs gamepi under the host service manager (systemd,
// launchd or the Windows SCM).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/kardianos/service"
)

const (
	// Name is the service identifier registered with the service manager.
	Name        = "gamepi"
	displayName = "gamepi"
	description = "Serves the game page and flashes the selected game onto the attached board."

	// DefaultStopTimeout bounds how long Stop waits for the server to drain.
	DefaultStopTimeout = 30 * time.Second
)

// ErrUnknownAction is returned by Control for actions the service manager
// does not support.
var ErrUnknownAction = errors.New("service: unknown action")

// Actions lists the control actions accepted by Control.
var Actions = service.ControlAction[:]

// RunFunc serves until ctx is done.
type RunFunc func(ctx context.Context) error

// Program adapts a RunFunc to the service manager's start/stop calls.
type Program struct {
	run         RunFunc
	logger      *slog.Logger
	stopTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewProgram wraps run for the service manager.
func NewProgram(run RunFunc, logger *slog.Logger) *Program {
	if logger == nil {
		logger = slog.Default()
	}
	return &Program{
		run:         run,
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
	}
}

// Start implements service.Interface. It must not block.
func (p *Program) Start(s service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return errors.New("service: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("service starting")
	go func(done chan struct{}) {
		defer close(done)
		err := p.run(ctx)
		if err != nil {
			p.logger.Error("service run failed", "error", err)
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}(p.done)
	return nil
}

// Stop implements service.Interface. It cancels the run context and waits
// for the server to return, up to the stop timeout.
func (p *Program) Stop(s service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}

	p.logger.Info("service stop requested")
	cancel()

	select {
	case <-done:
		p.logger.Info("service stopped")
	case <-time.After(p.stopTimeout):
		p.logger.Warn("service stop timed out", "timeout", p.stopTimeout)
	}
	return nil
}

// Done is closed when the run function returns. It is nil before Start.
func (p *Program) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Err returns the run function's error once it has returned.
func (p *Program) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// WorkingDir returns the platform directory the service runs in.
func WorkingDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "gamepi")
	case "darwin":
		return "/Library/Application Support/gamepi"
	default:
		return "/var/lib/gamepi"
	}
}

// Config returns the service definition. configPath, when set, is made
// absolute and passed to "gamepi service run".
func Config(configPath string) (*service.Config, error) {
	args := []string{"service", "run"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		args = append(args, "--config", abs)
	}

	return &service.Config{
		Name:             Name,
		DisplayName:      displayName,
		Description:      description,
		WorkingDirectory: WorkingDir(),
		Arguments:        args,
		Dependencies: []string{
			"After=network-online.target",
			"Wants=network-online.target",
		},
		Option: service.KeyValue{
			// systemd
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillSignal":        "SIGTERM",

			// launchd
			"RunAtLoad": true,
			"KeepAlive": true,

			// Windows
			"StartType": "automatic",
			"OnFailure": "restart",
		},
	}, nil
}

// New builds the service for p using Config(configPath).
func New(p *Program, configPath string) (service.Service, error) {
	cfg, err := Config(configPath)
	if err != nil {
		return nil, err
	}
	s, err := service.New(p, cfg)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return s, nil
}

// Control runs one of Actions against s.
func Control(s service.Service, action string) error {
	if !slices.Contains(Actions, action) {
		return fmt.Errorf("%w: %q (want one of %v)", ErrUnknownAction, action, Actions)
	}
	if action == "install" {
		if err := os.MkdirAll(WorkingDir(), 0755); err != nil {
			return fmt.Errorf("create working directory: %w", err)
		}
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("service %s: %w", action, err)
	}
	return nil
}

// StatusString describes a service status for display.
func StatusString(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Interactive reports whether the process was started from a terminal
// rather than by the service manager.
func Interactive() bool {
	return service.Interactive()
}

// Status reports the state of the installed service. A service that is not
// installed is reported as such rather than as an error.
func Status(s service.Service) (string, error) {
	st, err := s.Status()
	if errors.Is(err, service.ErrNotInstalled) {
		return "not installed", nil
	}
	if err != nil {
		return "", fmt.Errorf("service status: %w", err)
	}
	return StatusString(st), nil
}
