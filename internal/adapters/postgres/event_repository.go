package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
)

// EventRepository implements ports.SettlementEventRepository
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new settlement event repository
func NewEventRepository(db ports.DBPort) *EventRepository {
	return &EventRepository{pool: db.GetDB()}
}

var _ ports.SettlementEventRepository = (*EventRepository)(nil)

// ListActiveParties returns the distinct parties with eligible events inside the period.
// The end bound is inclusive to the millisecond, see timeutil.PeriodLimit.
func (r *EventRepository) ListActiveParties(ctx context.Context, db ports.DBTX, periodStart, periodEnd time.Time) ([]models.PartyRef, error) {
	rows, err := querier(r.pool, db).Query(ctx, `
		SELECT DISTINCT party_type, party_id
		FROM settlement_events
		WHERE eligible AND occurred_at >= $1 AND occurred_at < $2
		ORDER BY party_type, party_id`,
		periodStart, timeutil.PeriodLimit(periodEnd),
	)
	if err != nil {
		return nil, fmt.Errorf("list active parties: %w", err)
	}
	defer rows.Close()

	var parties []models.PartyRef
	for rows.Next() {
		var partyType, partyID string
		if err := rows.Scan(&partyType, &partyID); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		parties = append(parties, models.PartyRef{PartyType: models.PartyType(partyType), PartyID: partyID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parties: %w", err)
	}
	return parties, nil
}

// ListEligibleEvents returns a party's eligible events inside the period, oldest first
func (r *EventRepository) ListEligibleEvents(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time) ([]*models.SettlementEvent, error) {
	rows, err := querier(r.pool, db).Query(ctx, `
		SELECT id, order_id, order_item_id, party_type, party_id, product_id, category_id, channel_id,
		       gross_amount, quantity, currency, occurred_at
		FROM settlement_events
		WHERE eligible
		  AND party_type = $1 AND party_id = $2
		  AND occurred_at >= $3 AND occurred_at < $4
		ORDER BY occurred_at, id`,
		string(party.PartyType), party.PartyID, periodStart, timeutil.PeriodLimit(periodEnd),
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible events: %w", err)
	}
	defer rows.Close()

	var events []*models.SettlementEvent
	for rows.Next() {
		var (
			e                                           models.SettlementEvent
			partyType                                   string
			orderItemID, productID, categoryID, channel pgtype.Text
			gross                                       pgtype.Numeric
		)
		if err := rows.Scan(
			&e.ID, &e.OrderID, &orderItemID, &partyType, &e.PartyID, &productID, &categoryID, &channel,
			&gross, &e.Quantity, &e.Currency, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement event: %w", err)
		}

		amount, err := pgNumericToDecimal(gross)
		if err != nil {
			return nil, fmt.Errorf("convert gross amount of event %s: %w", e.ID, err)
		}
		e.GrossAmount = amount
		e.PartyType = models.PartyType(partyType)
		e.OrderItemID = orderItemID.String
		e.ProductID = productID.String
		e.CategoryID = categoryID.String
		e.ChannelID = channel.String
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement events: %w", err)
	}
	return events, nil
}
