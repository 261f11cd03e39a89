// Package flash writes game images to the attached microcontroller by
// running an external programmer (avrdude by default).
//
// One physical device is attached, so an Invoker runs at most one command
// at a time. A request that arrives while the device is in use fails fast
// with ErrDeviceBusy instead of queueing.
package flash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Argument placeholders substituted by CommandFor.
const (
	// FilePlaceholder receives the absolute image path and is required.
	FilePlaceholder = "{file}"
	// PortPlaceholder receives Options.SerialPort.
	PortPlaceholder = "{port}"
)

// Result is the outcome of one flash run.
type Result struct {
	ID       string        `json:"id"`
	Game     string        `json:"game"`
	Success  bool          `json:"success"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Output returns stdout and stderr joined for display.
func (r *Result) Output() string {
	return r.Stdout + "\n" + r.Stderr
}

// Summary is a Result without the captured output.
type Summary struct {
	ID       string    `json:"id"`
	Game     string    `json:"game"`
	Success  bool      `json:"success"`
	ExitCode int       `json:"exit_code"`
	Finished time.Time `json:"finished"`
	Error    string    `json:"error,omitempty"`
}

// Status describes what the device is doing.
type Status struct {
	Busy  bool      `json:"busy"`
	Game  string    `json:"game,omitempty"`
	Since time.Time `json:"since"`
	Last  *Summary  `json:"last,omitempty"`
}

// Options configures an Invoker.
type Options struct {
	// GamesDir is the only directory images may be flashed from.
	GamesDir string

	// ImageSuffix is required on every requested file name (".hex").
	ImageSuffix string

	// Command and Args form the command template. Each occurrence of
	// FilePlaceholder in Args is replaced with the absolute image path and
	// each PortPlaceholder with SerialPort.
	Command string
	Args    []string

	// SerialPort is checked for existence before running when CheckPort is set.
	SerialPort string
	CheckPort  bool

	// LockFile, when set, is locked for the duration of every run so that
	// separate processes never drive the device at the same time.
	LockFile string

	// Timeout bounds one run; zero waits indefinitely.
	Timeout time.Duration

	Runner Runner
	Logger *slog.Logger
}

// Invoker validates requests and runs the flash command.
type Invoker struct {
	opts     Options
	gamesDir string
	logger   *slog.Logger

	device     sync.Mutex
	deviceFile *DeviceLock

	stateMu  sync.RWMutex
	status   Status
	onStatus func(Status)
}

// New creates an Invoker.
func New(opts Options) (*Invoker, error) {
	if opts.GamesDir == "" {
		return nil, errors.New("flash: games directory required")
	}
	if opts.Command == "" {
		return nil, errors.New("flash: command required")
	}
	if !containsPlaceholder(opts.Args) {
		return nil, fmt.Errorf("flash: arguments must contain %s", FilePlaceholder)
	}
	if opts.ImageSuffix == "" {
		opts.ImageSuffix = ".hex"
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dir, err := filepath.Abs(opts.GamesDir)
	if err != nil {
		return nil, fmt.Errorf("flash: resolve games directory: %w", err)
	}

	inv := &Invoker{
		opts:     opts,
		gamesDir: dir,
		logger:   opts.Logger,
	}
	if opts.LockFile != "" {
		inv.deviceFile = NewDeviceLock(opts.LockFile)
	}
	return inv, nil
}

// OnStatus sets the callback fired whenever the device status changes.
func (inv *Invoker) OnStatus(callback func(Status)) {
	inv.stateMu.Lock()
	inv.onStatus = callback
	inv.stateMu.Unlock()
}

// Status returns the current device status.
func (inv *Invoker) Status() Status {
	inv.stateMu.RLock()
	defer inv.stateMu.RUnlock()
	return inv.status
}

// Resolve validates a requested file name and returns the absolute image
// path. Names with path separators, dot files, names lacking the image
// suffix and anything resolving outside the games directory are rejected
// with ErrInvalidGame; a valid name with no file behind it yields
// ErrGameNotFound.
func (inv *Invoker) Resolve(game string) (string, error) {
	if game == "" || game == "." || game == ".." ||
		strings.HasPrefix(game, ".") ||
		strings.ContainsAny(game, "/\\\x00") {
		return "", ErrInvalidGame
	}
	if !strings.HasSuffix(game, inv.opts.ImageSuffix) {
		return "", ErrInvalidGame
	}

	full := filepath.Join(inv.gamesDir, game)
	rel, err := filepath.Rel(inv.gamesDir, full)
	if err != nil || rel != game {
		return "", ErrInvalidGame
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrGameNotFound
		}
		return "", fmt.Errorf("%w: %w", ErrGameNotFound, err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrGameNotFound
	}
	return full, nil
}

// CommandFor returns the command and arguments used to flash path.
func (inv *Invoker) CommandFor(path string) (string, []string) {
	args := make([]string, len(inv.opts.Args))
	for i, a := range inv.opts.Args {
		a = strings.ReplaceAll(a, FilePlaceholder, path)
		args[i] = strings.ReplaceAll(a, PortPlaceholder, inv.opts.SerialPort)
	}
	return inv.opts.Command, args
}

// Flash validates game and writes it to the device.
//
// Validation errors and ErrDeviceBusy are returned before anything runs,
// with a nil Result. Once the command has run, a Result is always
// returned; a non-zero exit additionally yields an *ExitError.
func (inv *Invoker) Flash(ctx context.Context, game string) (*Result, error) {
	path, err := inv.Resolve(game)
	if err != nil {
		return nil, err
	}
	// game may alias a transport buffer; the status outlives the request.
	game = strings.Clone(game)

	if !inv.device.TryLock() {
		return nil, ErrDeviceBusy
	}
	defer inv.device.Unlock()

	if inv.deviceFile != nil {
		ok, err := inv.deviceFile.TryLock()
		if err != nil {
			return nil, err
		}
		if !ok {
			inv.logger.Info("device locked by another process", "lock", inv.deviceFile.Path())
			return nil, ErrDeviceBusy
		}
		defer func() {
			if err := inv.deviceFile.Unlock(); err != nil {
				inv.logger.Warn("release device lock", "lock", inv.deviceFile.Path(), "error", err)
			}
		}()
	}

	if inv.opts.CheckPort && inv.opts.SerialPort != "" {
		if _, err := os.Stat(inv.opts.SerialPort); err != nil {
			inv.logger.Warn("serial port unavailable", "port", inv.opts.SerialPort, "error", err)
			return nil, fmt.Errorf("%w: %s", ErrPortUnavailable, inv.opts.SerialPort)
		}
	}

	res := &Result{
		ID:      uuid.New().String(),
		Game:    game,
		Started: time.Now(),
	}
	logger := inv.logger.With("flash_id", res.ID, "game", game)

	inv.setStatus(func(s *Status) {
		s.Busy = true
		s.Game = game
		s.Since = res.Started
	})

	if inv.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.opts.Timeout)
		defer cancel()
	}

	name, args := inv.CommandFor(path)
	logger.Info("flash started", "command", name, "args", args)

	out, runErr := inv.opts.Runner.Run(ctx, name, args)
	res.Duration = time.Since(res.Started)
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.ExitCode = out.ExitCode

	switch {
	case runErr != nil:
		err = runErr
	case out.ExitCode != 0:
		err = &ExitError{Code: out.ExitCode, Command: name}
	default:
		res.Success = true
	}

	summary := &Summary{
		ID:       res.ID,
		Game:     game,
		Success:  res.Success,
		ExitCode: res.ExitCode,
		Finished: time.Now(),
	}
	if err != nil {
		summary.Error = err.Error()
		logger.Error("flash failed", "exit_code", res.ExitCode, "duration", res.Duration, "error", err)
	} else {
		logger.Info("flash finished", "duration", res.Duration)
	}

	inv.setStatus(func(s *Status) {
		s.Busy = false
		s.Game = ""
		s.Since = summary.Finished
		s.Last = summary
	})

	return res, err
}

func (inv *Invoker) setStatus(update func(*Status)) {
	inv.stateMu.Lock()
	update(&inv.status)
	status := inv.status
	callback := inv.onStatus
	inv.stateMu.Unlock()

	if callback != nil {
		callback(status)
	}
}

func containsPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, FilePlaceholder) {
			return true
		}
	}
	return false
}
