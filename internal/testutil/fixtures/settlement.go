package fixtures

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// PercentageRule builds a percentage rule scoped to a party type.
func PercentageRule(id string, partyType models.PartyType, rate string) models.CommissionRule {
	return models.CommissionRule{
		ID:             id,
		Name:           id,
		AppliesTo:      models.RuleFilter{PartyType: partyType},
		Type:           models.CommissionPercentage,
		PercentageRate: DecPtr(rate),
	}
}

// FixedRule builds a fixed-amount rule scoped to a party type.
func FixedRule(id string, partyType models.PartyType, amount string) models.CommissionRule {
	return models.CommissionRule{
		ID:          id,
		Name:        id,
		AppliesTo:   models.RuleFilter{PartyType: partyType},
		Type:        models.CommissionFixed,
		FixedAmount: DecPtr(amount),
	}
}

// TieredRule builds a tiered rule scoped to a party type.
func TieredRule(id string, partyType models.PartyType, tiers ...models.CommissionTier) models.CommissionRule {
	return models.CommissionRule{
		ID:        id,
		Name:      id,
		AppliesTo: models.RuleFilter{PartyType: partyType},
		Type:      models.CommissionTiered,
		Tiers:     tiers,
	}
}

// Tier builds a tier; an empty max means open-ended.
func Tier(min, max, rate string) models.CommissionTier {
	tier := models.CommissionTier{
		MinAmount:      Dec(min),
		PercentageRate: Dec(rate),
	}
	if max != "" {
		tier.MaxAmount = DecPtr(max)
	}
	return tier
}

// RuleSet wraps rules in an active version 1 rule set.
func RuleSet(id string, rules ...models.CommissionRule) *models.CommissionRuleSet {
	return &models.CommissionRuleSet{
		ID:        id,
		Name:      id,
		Version:   1,
		ValidFrom: Date(2024, time.January, 1),
		Rules:     rules,
	}
}

// Party builds a party context with no tax and no payout threshold.
func Party(partyType models.PartyType, id, currency string) models.PartyContext {
	return models.PartyContext{
		PartyType: partyType,
		PartyID:   id,
		Currency:  currency,
	}
}

// EventBuilder provides fluent API for building settlement events.
type EventBuilder struct {
	event *models.SettlementEvent
}

// NewEvent creates an event builder with sensible defaults.
func NewEvent(partyType models.PartyType, partyID string) *EventBuilder {
	id := uuid.New().String()
	return &EventBuilder{
		event: &models.SettlementEvent{
			ID:          id,
			OrderID:     "order-" + id[:8],
			OrderItemID: "item-" + id[:8],
			PartyType:   partyType,
			PartyID:     partyID,
			ProductID:   "product-1",
			GrossAmount: decimal.NewFromInt(10000),
			Quantity:    1,
			Currency:    "KRW",
			OccurredAt:  time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC),
		},
	}
}

func (b *EventBuilder) WithID(id string) *EventBuilder {
	b.event.ID = id
	return b
}

func (b *EventBuilder) WithGross(amount string) *EventBuilder {
	b.event.GrossAmount = Dec(amount)
	return b
}

func (b *EventBuilder) WithCurrency(currency string) *EventBuilder {
	b.event.Currency = currency
	return b
}

func (b *EventBuilder) WithProduct(productID string) *EventBuilder {
	b.event.ProductID = productID
	return b
}

func (b *EventBuilder) WithCategory(categoryID string) *EventBuilder {
	b.event.CategoryID = categoryID
	return b
}

func (b *EventBuilder) WithChannel(channelID string) *EventBuilder {
	b.event.ChannelID = channelID
	return b
}

func (b *EventBuilder) WithQuantity(q int) *EventBuilder {
	b.event.Quantity = q
	return b
}

func (b *EventBuilder) At(t time.Time) *EventBuilder {
	b.event.OccurredAt = t
	return b
}

func (b *EventBuilder) Build() *models.SettlementEvent {
	return b.event
}

// Events builds n events for a party, each with the given gross amount, on the given day.
func Events(partyType models.PartyType, partyID string, day time.Time, n int, gross string) []*models.SettlementEvent {
	events := make([]*models.SettlementEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, NewEvent(partyType, partyID).
			WithID(fmt.Sprintf("%s-%s-%d", partyType, partyID, i)).
			WithGross(gross).
			At(day.Add(time.Duration(i+1)*time.Hour)).
			Build())
	}
	return events
}
