package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kardianos/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramStartStop(t *testing.T) {
	started := make(chan struct{})
	p := NewProgram(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}, nil)

	assert.Nil(t, p.Done())
	require.NoError(t, p.Start(nil))
	<-started

	require.NoError(t, p.Stop(nil))
	select {
	case <-p.Done():
	default:
		t.Fatal("run did not return after Stop")
	}
	assert.NoError(t, p.Err())
}

func TestProgramStartTwice(t *testing.T) {
	p := NewProgram(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, nil)
	require.NoError(t, p.Start(nil))
	defer p.Stop(nil)

	assert.Error(t, p.Start(nil))
}

func TestProgramRecordsRunError(t *testing.T) {
	boom := errors.New("listen: address in use")
	p := NewProgram(func(ctx context.Context) error { return boom }, nil)
	require.NoError(t, p.Start(nil))

	<-p.Done()
	assert.ErrorIs(t, p.Err(), boom)
	assert.NoError(t, p.Stop(nil))
}

func TestProgramStopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	p := NewProgram(func(ctx context.Context) error {
		<-release
		return nil
	}, nil)
	p.stopTimeout = 20 * time.Millisecond
	require.NoError(t, p.Start(nil))

	start := time.Now()
	require.NoError(t, p.Stop(nil))
	assert.Less(t, time.Since(start), time.Second)
}

func TestStopBeforeStart(t *testing.T) {
	p := NewProgram(func(ctx context.Context) error { return nil }, nil)
	assert.NoError(t, p.Stop(nil))
}

func TestConfigArguments(t *testing.T) {
	cfg, err := Config("")
	require.NoError(t, err)
	assert.Equal(t, Name, cfg.Name)
	assert.Equal(t, []string{"service", "run"}, cfg.Arguments)
	assert.Equal(t, WorkingDir(), cfg.WorkingDirectory)

	cfg, err = Config("gamepi.toml")
	require.NoError(t, err)
	require.Len(t, cfg.Arguments, 4)
	assert.Equal(t, "--config", cfg.Arguments[2])
	assert.True(t, filepath.IsAbs(cfg.Arguments[3]))
}

func TestControlRejectsUnknownAction(t *testing.T) {
	err := Control(nil, "reboot")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "running", StatusString(service.StatusRunning))
	assert.Equal(t, "stopped", StatusString(service.StatusStopped))
	assert.Equal(t, "unknown", StatusString(service.StatusUnknown))
}

type fakeService struct {
	status  service.Status
	err     error
	started int
	stopped int
}

func (f *fakeService) Run() error       { return nil }
func (f *fakeService) Start() error     { f.started++; return nil }
func (f *fakeService) Stop() error      { f.stopped++; return nil }
func (f *fakeService) Restart() error   { return nil }
func (f *fakeService) Install() error   { return nil }
func (f *fakeService) Uninstall() error { return nil }
func (f *fakeService) String() string   { return Name }
func (f *fakeService) Platform() string { return "fake" }

func (f *fakeService) Logger(errs chan<- error) (service.Logger, error)       { return nil, nil }
func (f *fakeService) SystemLogger(errs chan<- error) (service.Logger, error) { return nil, nil }

func (f *fakeService) Status() (service.Status, error) { return f.status, f.err }

func TestControlDispatches(t *testing.T) {
	f := &fakeService{}
	require.NoError(t, Control(f, "start"))
	require.NoError(t, Control(f, "stop"))
	assert.Equal(t, 1, f.started)
	assert.Equal(t, 1, f.stopped)
}

func TestStatus(t *testing.T) {
	st, err := Status(&fakeService{status: service.StatusRunning})
	require.NoError(t, err)
	assert.Equal(t, "running", st)

	st, err = Status(&fakeService{err: service.ErrNotInstalled})
	require.NoError(t, err)
	assert.Equal(t, "not installed", st)

	_, err = Status(&fakeService{err: errors.New("dbus unavailable")})
	assert.Error(t, err)
}
