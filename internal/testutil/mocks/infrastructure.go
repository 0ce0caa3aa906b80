package mocks

import (
	"context"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockSettlementPublisher mocks ports.SettlementPublisher
type MockSettlementPublisher struct {
	mock.Mock
}

func (m *MockSettlementPublisher) PublishSettlementCreated(ctx context.Context, settlement *models.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockSettlementPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockRunLocker mocks ports.RunLocker. The returned release func records a "Release" call.
type MockRunLocker struct {
	mock.Mock
}

func (m *MockRunLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (ports.ReleaseFunc, bool, error) {
	args := m.Called(ctx, key, ttl)
	if !args.Bool(0) || args.Error(1) != nil {
		return nil, args.Bool(0), args.Error(1)
	}
	release := func(ctx context.Context) error {
		m.MethodCalled("Release", key)
		return nil
	}
	return release, true, nil
}

var (
	_ ports.SettlementPublisher = (*MockSettlementPublisher)(nil)
	_ ports.RunLocker           = (*MockRunLocker)(nil)
)
