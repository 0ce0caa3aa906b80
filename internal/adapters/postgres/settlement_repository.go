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

const settlementColumns = `id::text, party_type, party_id, period_start, period_end, currency, engine_version,
	total_gross_amount, total_commission_amount, total_tax_amount, payable_amount, item_count,
	status, hold_reason, payable_after, tag, rule_set_id, rule_set_version, superseded_at, created_at`

const settlementItemColumns = `id::text, settlement_id::text, commission_id::text, event_id, order_id, order_item_id, product_id,
	quantity, party_type, party_id, rule_id, rule_name, rule_type, tier_index,
	gross_amount, commission_amount, tax_amount, payable_amount, currency, reason_code, created_at`

// SettlementRepository implements ports.SettlementRepository
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db ports.DBPort) *SettlementRepository {
	return &SettlementRepository{pool: db.GetDB()}
}

var _ ports.SettlementRepository = (*SettlementRepository)(nil)

// FindActive returns the oldest non-superseded settlement for the tuple, any engine version
func (r *SettlementRepository) FindActive(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	row := querier(r.pool, db).QueryRow(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE party_type = $1 AND party_id = $2
		  AND period_start = $3 AND period_end = $4
		  AND superseded_at IS NULL
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`,
		string(party.PartyType), party.PartyID, periodStart, periodEnd,
	)

	s, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active settlement: %w", err)
	}
	return s, nil
}

// FindByEngineVersion returns the non-superseded settlement produced by engineVersion
func (r *SettlementRepository) FindByEngineVersion(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time, engineVersion string) (*models.Settlement, error) {
	row := querier(r.pool, db).QueryRow(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		WHERE party_type = $1 AND party_id = $2
		  AND period_start = $3 AND period_end = $4
		  AND engine_version = $5
		  AND superseded_at IS NULL`,
		string(party.PartyType), party.PartyID, periodStart, periodEnd, engineVersion,
	)

	s, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find settlement by engine version: %w", err)
	}
	return s, nil
}

// Create inserts the settlement, its items and commissions. Callers pass a transaction
// so the three inserts commit together.
func (r *SettlementRepository) Create(ctx context.Context, tx ports.DBTX, settlement *models.Settlement, items []*models.SettlementItem, commissions []*models.Commission) error {
	q := querier(r.pool, tx)

	if err := insertSettlement(ctx, q, settlement); err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrorCodeSettlementConflict, "settlement already exists for party and period", err).
				WithDetail("party_key", settlement.PartyKey()).
				WithDetail("period_start", settlement.PeriodStart).
				WithDetail("period_end", settlement.PeriodEnd).
				WithDetail("engine_version", settlement.EngineVersion)
		}
		return fmt.Errorf("insert settlement: %w", err)
	}

	for _, item := range items {
		if err := insertSettlementItem(ctx, q, item); err != nil {
			return fmt.Errorf("insert settlement item for event %s: %w", item.EventID, err)
		}
	}
	for _, c := range commissions {
		if err := insertCommission(ctx, q, c); err != nil {
			return fmt.Errorf("insert commission for event %s: %w", c.EventID, err)
		}
	}
	return nil
}

// GetByID retrieves a settlement by its ID
func (r *SettlementRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Settlement, error) {
	row := querier(r.pool, db).QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)

	s, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewDomainError(domain.ErrorCodeEntityNotFound, fmt.Sprintf("settlement %s not found", id)).
			WithDetail("entity_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement by id: %w", err)
	}
	return s, nil
}

// ListItems lists the items of a settlement in creation order
func (r *SettlementRepository) ListItems(ctx context.Context, db ports.DBTX, settlementID string) ([]*models.SettlementItem, error) {
	rows, err := querier(r.pool, db).Query(ctx, `
		SELECT `+settlementItemColumns+`
		FROM settlement_items
		WHERE settlement_id = $1
		ORDER BY created_at, event_id`,
		settlementID,
	)
	if err != nil {
		return nil, fmt.Errorf("list settlement items: %w", err)
	}
	defer rows.Close()

	var items []*models.SettlementItem
	for rows.Next() {
		item, err := scanSettlementItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement items: %w", err)
	}
	return items, nil
}

func insertSettlement(ctx context.Context, q ports.DBTX, s *models.Settlement) error {
	gross, err := decimalToNumeric(s.TotalGrossAmount)
	if err != nil {
		return err
	}
	commission, err := decimalToNumeric(s.TotalCommissionAmount)
	if err != nil {
		return err
	}
	tax, err := decimalToNumeric(s.TotalTaxAmount)
	if err != nil {
		return err
	}
	payable, err := decimalToNumeric(s.PayableAmount)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO settlements (
			id, party_type, party_id, period_start, period_end, currency, engine_version,
			total_gross_amount, total_commission_amount, total_tax_amount, payable_amount, item_count,
			status, hold_reason, payable_after, tag, rule_set_id, rule_set_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		s.ID, string(s.PartyType), s.PartyID, s.PeriodStart, s.PeriodEnd, s.Currency, s.EngineVersion,
		gross, commission, tax, payable, s.ItemCount,
		string(s.Status), nullText(s.HoldReason), s.PayableAfter, nullText(s.Tag), s.RuleSetID, s.RuleSetVersion, s.CreatedAt,
	)
	return err
}

func insertSettlementItem(ctx context.Context, q ports.DBTX, it *models.SettlementItem) error {
	gross, err := decimalToNumeric(it.GrossAmount)
	if err != nil {
		return err
	}
	commission, err := decimalToNumeric(it.CommissionAmount)
	if err != nil {
		return err
	}
	tax, err := decimalToNumeric(it.TaxAmount)
	if err != nil {
		return err
	}
	payable, err := decimalToNumeric(it.PayableAmount)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO settlement_items (
			id, settlement_id, commission_id, event_id, order_id, order_item_id, product_id,
			quantity, party_type, party_id, rule_id, rule_name, rule_type, tier_index,
			gross_amount, commission_amount, tax_amount, payable_amount, currency, reason_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		it.ID, it.SettlementID, it.CommissionID, it.EventID, it.OrderID, nullText(it.OrderItemID), nullText(it.ProductID),
		it.Quantity, string(it.PartyType), it.PartyID, it.RuleID, nullText(it.RuleName), string(it.RuleType), nullInt(it.TierIndex),
		gross, commission, tax, payable, it.Currency, it.ReasonCode, it.CreatedAt,
	)
	return err
}

func insertCommission(ctx context.Context, q ports.DBTX, c *models.Commission) error {
	base, err := decimalToNumeric(c.BaseAmount)
	if err != nil {
		return err
	}
	rate, err := nullDecimalToNumeric(c.AppliedRate)
	if err != nil {
		return err
	}
	amount, err := decimalToNumeric(c.Amount)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO commissions (
			id, event_id, order_id, party_type, party_id, rule_id, rule_type,
			base_amount, applied_rate, amount, currency, settlement_item_id, status, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.EventID, c.OrderID, string(c.PartyType), c.PartyID, c.RuleID, string(c.RuleType),
		base, rate, amount, c.Currency, c.SettlementItemID, string(c.Status), c.CalculatedAt,
	)
	return err
}

func scanSettlement(row pgx.Row) (*models.Settlement, error) {
	var (
		s                               models.Settlement
		partyType, status               string
		gross, commission, tax, payable pgtype.Numeric
		holdReason, tag                 pgtype.Text
	)
	err := row.Scan(
		&s.ID, &partyType, &s.PartyID, &s.PeriodStart, &s.PeriodEnd, &s.Currency, &s.EngineVersion,
		&gross, &commission, &tax, &payable, &s.ItemCount,
		&status, &holdReason, &s.PayableAfter, &tag, &s.RuleSetID, &s.RuleSetVersion, &s.SupersededAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.PartyType = models.PartyType(partyType)
	s.Status = models.SettlementStatus(status)
	s.HoldReason = holdReason.String
	s.Tag = tag.String
	if err := numerics(
		numericPair{"total_gross_amount", gross, &s.TotalGrossAmount},
		numericPair{"total_commission_amount", commission, &s.TotalCommissionAmount},
		numericPair{"total_tax_amount", tax, &s.TotalTaxAmount},
		numericPair{"payable_amount", payable, &s.PayableAmount},
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSettlementItem(row pgx.Row) (*models.SettlementItem, error) {
	var (
		it                               models.SettlementItem
		partyType, ruleType              string
		orderItemID, productID, ruleName pgtype.Text
		tierIndex                        pgtype.Int4
		gross, commission, tax, payable  pgtype.Numeric
	)
	err := row.Scan(
		&it.ID, &it.SettlementID, &it.CommissionID, &it.EventID, &it.OrderID, &orderItemID, &productID,
		&it.Quantity, &partyType, &it.PartyID, &it.RuleID, &ruleName, &ruleType, &tierIndex,
		&gross, &commission, &tax, &payable, &it.Currency, &it.ReasonCode, &it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	it.PartyType = models.PartyType(partyType)
	it.RuleType = models.CommissionType(ruleType)
	it.OrderItemID = orderItemID.String
	it.ProductID = productID.String
	it.RuleName = ruleName.String
	it.TierIndex = intFromPg(tierIndex)
	if err := numerics(
		numericPair{"gross_amount", gross, &it.GrossAmount},
		numericPair{"commission_amount", commission, &it.CommissionAmount},
		numericPair{"tax_amount", tax, &it.TaxAmount},
		numericPair{"payable_amount", payable, &it.PayableAmount},
	); err != nil {
		return nil, err
	}
	return &it, nil
}
