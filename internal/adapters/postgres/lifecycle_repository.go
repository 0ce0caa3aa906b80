package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

// OrderRelayRepository implements ports.OrderRelayRepository
type OrderRelayRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRelayRepository creates a new order relay repository
func NewOrderRelayRepository(db ports.DBPort) *OrderRelayRepository {
	return &OrderRelayRepository{pool: db.GetDB()}
}

var _ ports.OrderRelayRepository = (*OrderRelayRepository)(nil)

// GetByID retrieves an order relay by its ID
func (r *OrderRelayRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.OrderRelay, error) {
	var (
		relay     models.OrderRelay
		status    string
		updatedBy pgtype.Text
	)
	err := querier(r.pool, db).QueryRow(ctx, `
		SELECT id, order_id, seller_id, supplier_id, status, updated_by, created_at, updated_at
		FROM order_relays
		WHERE id = $1`,
		id,
	).Scan(&relay.ID, &relay.OrderID, &relay.SellerID, &relay.SupplierID, &status, &updatedBy, &relay.CreatedAt, &relay.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entityNotFound("order relay", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order relay: %w", err)
	}

	relay.Status = models.OrderRelayStatus(status)
	relay.UpdatedBy = updatedBy.String
	return &relay, nil
}

// UpdateStatus moves the relay from one status to another if it is still in from
func (r *OrderRelayRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, from, to models.OrderRelayStatus, actor string) error {
	q := querier(r.pool, tx)
	tag, err := q.Exec(ctx, `
		UPDATE order_relays
		SET status = $3, updated_by = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), actor,
	)
	if err != nil {
		return fmt.Errorf("update order relay status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return casFailure(ctx, q, "order_relays", "order relay", id, string(from))
}

// SettlementBatchRepository implements ports.SettlementBatchRepository
type SettlementBatchRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementBatchRepository creates a new settlement batch repository
func NewSettlementBatchRepository(db ports.DBPort) *SettlementBatchRepository {
	return &SettlementBatchRepository{pool: db.GetDB()}
}

var _ ports.SettlementBatchRepository = (*SettlementBatchRepository)(nil)

const batchColumns = `id::text, period_start, period_end, status, settlements_count, total_payable, updated_by, created_at, updated_at`

// GetByID retrieves a settlement batch by its ID
func (r *SettlementBatchRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.SettlementBatch, error) {
	row := querier(r.pool, db).QueryRow(ctx, `SELECT `+batchColumns+` FROM settlement_batches WHERE id = $1`, id)

	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entityNotFound("settlement batch", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement batch: %w", err)
	}
	return batch, nil
}

// GetByPeriod returns the most recently created batch for the exact period, or nil when none exists
func (r *SettlementBatchRepository) GetByPeriod(ctx context.Context, db ports.DBTX, periodStart, periodEnd time.Time) (*models.SettlementBatch, error) {
	row := querier(r.pool, db).QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM settlement_batches
		WHERE period_start = $1 AND period_end = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		periodStart, periodEnd,
	)

	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement batch by period: %w", err)
	}
	return batch, nil
}

// Create inserts a new settlement batch
func (r *SettlementBatchRepository) Create(ctx context.Context, tx ports.DBTX, batch *models.SettlementBatch) error {
	total, err := decimalToNumeric(batch.TotalPayable)
	if err != nil {
		return err
	}

	_, err = querier(r.pool, tx).Exec(ctx, `
		INSERT INTO settlement_batches (id, period_start, period_end, status, settlements_count, total_payable, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		batch.ID, batch.PeriodStart, batch.PeriodEnd, string(batch.Status), batch.SettlementsCount, total,
		nullText(batch.UpdatedBy), batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create settlement batch: %w", err)
	}
	return nil
}

// UpdateStatus is a compare-and-set on the batch status
func (r *SettlementBatchRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id string, from, to models.SettlementBatchStatus, actor string) error {
	q := querier(r.pool, tx)
	tag, err := q.Exec(ctx, `
		UPDATE settlement_batches
		SET status = $3, updated_by = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), actor,
	)
	if err != nil {
		return fmt.Errorf("update settlement batch status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return casFailure(ctx, q, "settlement_batches", "settlement batch", id, string(from))
}

// UpdateTotals stores the batch's settlement count and payable total
func (r *SettlementBatchRepository) UpdateTotals(ctx context.Context, tx ports.DBTX, batch *models.SettlementBatch) error {
	total, err := decimalToNumeric(batch.TotalPayable)
	if err != nil {
		return err
	}

	tag, err := querier(r.pool, tx).Exec(ctx, `
		UPDATE settlement_batches
		SET settlements_count = $2, total_payable = $3, updated_at = NOW()
		WHERE id = $1`,
		batch.ID, batch.SettlementsCount, total,
	)
	if err != nil {
		return fmt.Errorf("update settlement batch totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entityNotFound("settlement batch", batch.ID)
	}
	return nil
}

func scanBatch(row pgx.Row) (*models.SettlementBatch, error) {
	var (
		b         models.SettlementBatch
		status    string
		total     pgtype.Numeric
		updatedBy pgtype.Text
	)
	if err := row.Scan(&b.ID, &b.PeriodStart, &b.PeriodEnd, &status, &b.SettlementsCount, &total, &updatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}

	amount, err := pgNumericToDecimal(total)
	if err != nil {
		return nil, fmt.Errorf("convert total payable: %w", err)
	}
	b.TotalPayable = amount
	b.Status = models.SettlementBatchStatus(status)
	b.UpdatedBy = updatedBy.String
	return &b, nil
}

// casFailure explains why a compare-and-set update touched no row
func casFailure(ctx context.Context, q ports.DBTX, table, entity, id, expected string) error {
	var actual string
	err := q.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, table), id).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return entityNotFound(entity, id)
	}
	if err != nil {
		return fmt.Errorf("read %s status: %w", entity, err)
	}
	return domain.NewDomainError(domain.ErrorCodeTransitionStale, "entity status changed since it was read").
		WithDetail("entity_id", id).
		WithDetail("expected_status", expected).
		WithDetail("actual_status", actual)
}

func entityNotFound(entity, id string) error {
	return domain.NewDomainError(domain.ErrorCodeEntityNotFound, fmt.Sprintf("%s %s not found", entity, id)).
		WithDetail("entity_id", id)
}
