package mocks

import (
	"context"

	"github.com/flowforge/flowforge/pkg/discovery"
	"github.com/stretchr/testify/mock"
)

// MockDiscoveryService is a mock implementation of discovery.Service interface.
type MockDiscoveryService struct {
	mock.Mock
}

func (m *MockDiscoveryService) Ping(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockDiscoveryService) SearchNodeKinds(ctx context.Context, query string) ([]string, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDiscoveryService) GetNodeEssentials(ctx context.Context, kind string) (*discovery.Essentials, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*discovery.Essentials), args.Error(1)
}

func (m *MockDiscoveryService) ValidateNodeConfiguration(ctx context.Context, kind string, params map[string]any) (*discovery.Verdict, error) {
	args := m.Called(ctx, kind, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*discovery.Verdict), args.Error(1)
}
