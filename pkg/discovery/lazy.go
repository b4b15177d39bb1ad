package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Dialer opens a connected Service.
type Dialer func(ctx context.Context) (Service, error)

// LazyService connects on first use and redials once a Ping finds the connection dead.
// Failed dials open a breaker, so a down server is retried at most once per open timeout.
type LazyService struct {
	dial    Dialer
	breaker *gobreaker.CircuitBreaker[Service]
	logger  *slog.Logger

	mu      sync.Mutex
	service Service
}

// Lazy returns a LazyService that dials cfg with Connect.
func Lazy(cfg Config, logger *slog.Logger) *LazyService {
	dial := func(ctx context.Context) (Service, error) {
		return Connect(ctx, cfg, logger)
	}

	return NewLazyService(dial, cfg.OpenTimeout, logger)
}

// NewLazyService wraps dial. A zero retryAfter uses the breaker's default open timeout.
func NewLazyService(dial Dialer, retryAfter time.Duration, logger *slog.Logger) *LazyService {
	if retryAfter <= 0 {
		retryAfter = defaultOpenTimeout
	}

	logger = logger.With("module", "discovery")

	return &LazyService{
		dial:   dial,
		logger: logger,
		breaker: gobreaker.NewCircuitBreaker[Service](gobreaker.Settings{
			Name:        "discovery-connect",
			MaxRequests: 1,
			Timeout:     retryAfter,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 1
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Discovery connect breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (l *LazyService) connected(ctx context.Context) (Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.service != nil {
		return l.service, nil
	}

	service, err := l.breaker.Execute(func() (Service, error) {
		return l.dial(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: waiting before the next connection attempt", ErrUnavailable)
		}

		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		return nil, err
	}

	l.service = service

	return service, nil
}

// drop forgets service so the next call dials again.
func (l *LazyService) drop(service Service) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.service != service {
		return
	}

	l.service = nil

	if closer, ok := service.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// Ping implements Service. An unreachable connection is closed and redialled on the next call.
func (l *LazyService) Ping(ctx context.Context) error {
	service, err := l.connected(ctx)
	if err != nil {
		return err
	}

	err = service.Ping(ctx)
	if errors.Is(err, ErrUnavailable) {
		l.logger.WarnContext(ctx, "Discovery connection lost, reconnecting on next use", "error", err)
		l.drop(service)
	}

	return err
}

// SearchNodeKinds implements Service.
func (l *LazyService) SearchNodeKinds(ctx context.Context, query string) ([]string, error) {
	service, err := l.connected(ctx)
	if err != nil {
		return nil, err
	}

	return service.SearchNodeKinds(ctx, query)
}

// GetNodeEssentials implements Service.
func (l *LazyService) GetNodeEssentials(ctx context.Context, kind string) (*Essentials, error) {
	service, err := l.connected(ctx)
	if err != nil {
		return nil, err
	}

	return service.GetNodeEssentials(ctx, kind)
}

// ValidateNodeConfiguration implements Service.
func (l *LazyService) ValidateNodeConfiguration(ctx context.Context, kind string, params map[string]any) (*Verdict, error) {
	service, err := l.connected(ctx)
	if err != nil {
		return nil, err
	}

	return service.ValidateNodeConfiguration(ctx, kind, params)
}

// Close closes the current connection, if any.
func (l *LazyService) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	service := l.service
	l.service = nil

	if closer, ok := service.(interface{ Close() error }); ok {
		return closer.Close()
	}

	return nil
}
