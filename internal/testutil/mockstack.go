package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blescope/blescope/internal/stack"
)

// MockStack is a testify mock of stack.Stack for error-path tests where
// scripting a FakeStack would be overkill.
type MockStack struct {
	mock.Mock
}

func (m *MockStack) Probe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStack) Scan(ctx context.Context, allowDuplicates bool, handler func(stack.Advertisement)) error {
	args := m.Called(ctx, allowDuplicates, handler)
	return args.Error(0)
}

func (m *MockStack) Dial(ctx context.Context, id string) (stack.Client, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(stack.Client), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ stack.Stack = (*MockStack)(nil)
