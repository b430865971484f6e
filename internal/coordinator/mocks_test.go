package coordinator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/psearch/internal/worker"
)

// MockLauncher is a mock implementation of Launcher for testing.
type MockLauncher struct {
	mock.Mock
}

// Start mocks the Start method.
func (m *MockLauncher) Start(ctx context.Context, inv worker.Invocation) (Process, error) {
	args := m.Called(ctx, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Process), args.Error(1)
}

// exitedProcess is a worker that terminated with a fixed code and never sent anything.
type exitedProcess int

func (p exitedProcess) Wait() (int, error) { return int(p), nil }

// forTask matches the invocation of one task index.
func forTask(index int) interface{} {
	return mock.MatchedBy(func(inv worker.Invocation) bool { return inv.Task.Index == index })
}
