package mocks

import (
	"context"

	"github.com/flowforge/flowforge/pkg/completion"
	"github.com/stretchr/testify/mock"
)

// MockCompleter is a mock implementation of completion.Completer interface.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*completion.Response), args.Error(1)
}
