package mocks

import (
	"context"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/stretchr/testify/mock"
)

// MockSettlementRepository mocks ports.SettlementRepository
type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) FindActive(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	args := m.Called(ctx, db, party, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) FindByEngineVersion(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time, engineVersion string) (*models.Settlement, error) {
	args := m.Called(ctx, db, party, periodStart, periodEnd, engineVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) Create(ctx context.Context, tx ports.DBTX, settlement *models.Settlement, items []*models.SettlementItem, commissions []*models.Commission) error {
	args := m.Called(ctx, tx, settlement, items, commissions)
	return args.Error(0)
}

func (m *MockSettlementRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Settlement, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) ListItems(ctx context.Context, db ports.DBTX, settlementID string) ([]*models.SettlementItem, error) {
	args := m.Called(ctx, db, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SettlementItem), args.Error(1)
}

// MockSettlementEventRepository mocks ports.SettlementEventRepository
type MockSettlementEventRepository struct {
	mock.Mock
}

func (m *MockSettlementEventRepository) ListActiveParties(ctx context.Context, db ports.DBTX, periodStart, periodEnd time.Time) ([]models.PartyRef, error) {
	args := m.Called(ctx, db, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PartyRef), args.Error(1)
}

func (m *MockSettlementEventRepository) ListEligibleEvents(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time) ([]*models.SettlementEvent, error) {
	args := m.Called(ctx, db, party, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SettlementEvent), args.Error(1)
}

// MockRuleSetRepository mocks ports.RuleSetRepository
type MockRuleSetRepository struct {
	mock.Mock
}

func (m *MockRuleSetRepository) GetActive(ctx context.Context, db ports.DBTX, at time.Time) (*models.CommissionRuleSet, error) {
	args := m.Called(ctx, db, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommissionRuleSet), args.Error(1)
}

func (m *MockRuleSetRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.CommissionRuleSet, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommissionRuleSet), args.Error(1)
}

// MockPartyProfileRepository mocks ports.PartyProfileRepository
type MockPartyProfileRepository struct {
	mock.Mock
}

func (m *MockPartyProfileRepository) GetProfiles(ctx context.Context, db ports.DBTX, parties []models.PartyRef) (map[string]*models.PartyProfile, error) {
	args := m.Called(ctx, db, parties)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.PartyProfile), args.Error(1)
}

// MockOrderRelayRepository mocks ports.OrderRelayRepository
type MockOrderRelayRepository struct {
	mock.Mock
}

func (m *MockOrderRelayRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.OrderRelay, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderRelay), args.Error(1)
}

func (m *MockOrderRelayRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, from, to models.OrderRelayStatus, actor string) error {
	args := m.Called(ctx, tx, id, from, to, actor)
	return args.Error(0)
}

// MockSettlementBatchRepository mocks ports.SettlementBatchRepository
type MockSettlementBatchRepository struct {
	mock.Mock
}

func (m *MockSettlementBatchRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.SettlementBatch, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementBatch), args.Error(1)
}

func (m *MockSettlementBatchRepository) GetByPeriod(ctx context.Context, db ports.DBTX, periodStart, periodEnd time.Time) (*models.SettlementBatch, error) {
	args := m.Called(ctx, db, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementBatch), args.Error(1)
}

func (m *MockSettlementBatchRepository) Create(ctx context.Context, tx ports.DBTX, batch *models.SettlementBatch) error {
	args := m.Called(ctx, tx, batch)
	return args.Error(0)
}

func (m *MockSettlementBatchRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, from, to models.SettlementBatchStatus, actor string) error {
	args := m.Called(ctx, tx, id, from, to, actor)
	return args.Error(0)
}

func (m *MockSettlementBatchRepository) UpdateTotals(ctx context.Context, tx ports.DBTX, batch *models.SettlementBatch) error {
	args := m.Called(ctx, tx, batch)
	return args.Error(0)
}

var (
	_ ports.SettlementRepository      = (*MockSettlementRepository)(nil)
	_ ports.SettlementEventRepository = (*MockSettlementEventRepository)(nil)
	_ ports.RuleSetRepository         = (*MockRuleSetRepository)(nil)
	_ ports.PartyProfileRepository    = (*MockPartyProfileRepository)(nil)
	_ ports.OrderRelayRepository      = (*MockOrderRelayRepository)(nil)
	_ ports.SettlementBatchRepository = (*MockSettlementBatchRepository)(nil)
)
