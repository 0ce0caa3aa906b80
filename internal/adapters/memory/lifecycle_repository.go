package memory

import (
	"context"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

// OrderRelayRepository implements ports.OrderRelayRepository
type OrderRelayRepository struct {
	store *Store
}

// NewOrderRelayRepository creates a new order relay repository
func NewOrderRelayRepository(store *Store) *OrderRelayRepository {
	return &OrderRelayRepository{store: store}
}

// GetByID retrieves an order relay by its ID
func (r *OrderRelayRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.OrderRelay, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	relay, ok := r.store.relays[id]
	if !ok {
		return nil, notFound("order relay", id)
	}
	return &relay, nil
}

// UpdateStatus moves the relay from one status to another if it is still in from
func (r *OrderRelayRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, from, to models.OrderRelayStatus, actor string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	relay, ok := r.store.relays[id]
	if !ok {
		return notFound("order relay", id)
	}
	if relay.Status != from {
		return staleStatus(id, string(from), string(relay.Status))
	}
	relay.Status = to
	relay.UpdatedBy = actor
	relay.UpdatedAt = time.Now()
	r.store.relays[id] = relay
	return nil
}

// SettlementBatchRepository implements ports.SettlementBatchRepository
type SettlementBatchRepository struct {
	store *Store
}

// NewSettlementBatchRepository creates a new settlement batch repository
func NewSettlementBatchRepository(store *Store) *SettlementBatchRepository {
	return &SettlementBatchRepository{store: store}
}

// GetByID retrieves a batch by its ID
func (r *SettlementBatchRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.SettlementBatch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	batch, ok := r.store.batches[id]
	if !ok {
		return nil, notFound("settlement batch", id)
	}
	return &batch, nil
}

// GetByPeriod returns the most recently created batch for the exact period, or nil
func (r *SettlementBatchRepository) GetByPeriod(ctx context.Context, db ports.DBTX, periodStart, periodEnd time.Time) (*models.SettlementBatch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for i := len(r.store.batchOrder) - 1; i >= 0; i-- {
		b := r.store.batches[r.store.batchOrder[i]]
		if b.PeriodStart.Equal(periodStart) && b.PeriodEnd.Equal(periodEnd) {
			return &b, nil
		}
	}
	return nil, nil
}

// Create stores a new batch
func (r *SettlementBatchRepository) Create(ctx context.Context, tx ports.DBTX, batch *models.SettlementBatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.batches[batch.ID]; !exists {
		r.store.batchOrder = append(r.store.batchOrder, batch.ID)
	}
	r.store.batches[batch.ID] = *batch
	return nil
}

// UpdateStatus is a compare-and-set on the batch status
func (r *SettlementBatchRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, from, to models.SettlementBatchStatus, actor string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	batch, ok := r.store.batches[id]
	if !ok {
		return notFound("settlement batch", id)
	}
	if batch.Status != from {
		return staleStatus(id, string(from), string(batch.Status))
	}
	batch.Status = to
	batch.UpdatedBy = actor
	batch.UpdatedAt = time.Now()
	r.store.batches[id] = batch
	return nil
}

// UpdateTotals stores the batch's settlement count and payable total
func (r *SettlementBatchRepository) UpdateTotals(ctx context.Context, tx ports.DBTX, batch *models.SettlementBatch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.batches[batch.ID]
	if !ok {
		return notFound("settlement batch", batch.ID)
	}
	stored.SettlementsCount = batch.SettlementsCount
	stored.TotalPayable = batch.TotalPayable
	stored.UpdatedAt = time.Now()
	r.store.batches[batch.ID] = stored
	return nil
}

func staleStatus(id, expected, actual string) error {
	return domain.NewDomainError(domain.ErrorCodeTransitionStale, "entity status changed since it was read").
		WithDetail("entity_id", id).
		WithDetail("expected_status", expected).
		WithDetail("actual_status", actual)
}
