package flash

import (
	"context"
	"sync"
	"time"
)

// MockRunner implements Runner for testing.
// Behavior can be customized via RunFunc.
type MockRunner struct {
	// RunFunc is called when Run is invoked.
	// If nil, Run returns a successful avrdude-like output.
	RunFunc func(ctx context.Context, name string, args []string) (Output, error)

	mu       sync.Mutex
	calls    []MockCall
	inFlight int
	peak     int
}

// MockCall records a Run invocation for verification.
type MockCall struct {
	Name string
	Args []string
	Time time.Time
}

// NewMockRunner creates a mock runner that always succeeds.
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

// Run records the call and delegates to RunFunc.
func (m *MockRunner) Run(ctx context.Context, name string, args []string) (Output, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{
		Name: name,
		Args: append([]string(nil), args...),
		Time: time.Now(),
	})
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	fn := m.RunFunc
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if fn != nil {
		return fn(ctx, name, args)
	}
	return Output{
		Stdout: "",
		Stderr: "avrdude: 1024 bytes of flash written\n\navrdude done.  Thank you.\n",
	}, nil
}

// Calls returns a copy of all recorded calls.
func (m *MockRunner) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Run invocations.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// PeakConcurrency returns the largest number of overlapping Run calls seen.
func (m *MockRunner) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Reset clears recorded calls.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.peak = 0
}
