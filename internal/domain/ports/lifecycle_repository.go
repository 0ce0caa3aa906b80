package ports

import (
	"context"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// OrderRelayRepository persists order relay status changes
type OrderRelayRepository interface {
	GetByID(ctx context.Context, db DBTX, id string) (*models.OrderRelay, error)

	// UpdateStatus moves the relay from one status to another only if it is still in from.
	// Returns domain.ErrorCodeTransitionStale when the row was changed concurrently.
	UpdateStatus(ctx context.Context, tx DBTX, id string, from, to models.OrderRelayStatus, actor string) error
}

// SettlementBatchRepository persists settlement batches
type SettlementBatchRepository interface {
	GetByID(ctx context.Context, db DBTX, id string) (*models.SettlementBatch, error)

	// GetByPeriod returns the most recently created batch for the exact period, or nil when none exists
	GetByPeriod(ctx context.Context, db DBTX, periodStart, periodEnd time.Time) (*models.SettlementBatch, error)

	Create(ctx context.Context, tx DBTX, batch *models.SettlementBatch) error

	// UpdateStatus is a compare-and-set on the current status
	UpdateStatus(ctx context.Context, tx DBTX, id string, from, to models.SettlementBatchStatus, actor string) error

	UpdateTotals(ctx context.Context, tx DBTX, batch *models.SettlementBatch) error
}
