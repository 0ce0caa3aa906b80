// Package seed builds a small demo dataset for local runs of the settlement engine.
package seed

import (
	"fmt"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// Dataset is everything a daily run needs: one rule set, party profiles and events
type Dataset struct {
	RuleSet  *models.CommissionRuleSet
	Profiles []*models.PartyProfile
	Events   []*models.SettlementEvent
	Relays   []*models.OrderRelay
}

// Loader receives a dataset. Implemented by the in-memory store.
type Loader interface {
	AddRuleSet(rs *models.CommissionRuleSet)
	PutProfile(p *models.PartyProfile)
	AddEvents(events ...*models.SettlementEvent)
	PutRelay(r *models.OrderRelay)
}

// Load writes the dataset into l
func (d *Dataset) Load(l Loader) {
	l.AddRuleSet(d.RuleSet)
	for _, p := range d.Profiles {
		l.PutProfile(p)
	}
	l.AddEvents(d.Events...)
	for _, r := range d.Relays {
		l.PutRelay(r)
	}
}

// Demo builds events on day (in loc) for two sellers, a supplier and a partner.
// seller S-200 stays under its minimum payout so its settlement is held.
func Demo(day time.Time, loc *time.Location) *Dataset {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	ruleSet := &models.CommissionRuleSet{
		ID:        "demo-rules",
		Name:      "Demo commission rules",
		Version:   1,
		ValidFrom: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Rules: []models.CommissionRule{
			{
				ID:             "seller-electronics",
				Name:           "Seller electronics",
				Priority:       1,
				AppliesTo:      models.RuleFilter{PartyType: models.PartySeller, CategoryIDs: []string{"electronics"}},
				Type:           models.CommissionPercentage,
				PercentageRate: decPtr("8"),
			},
			{
				ID:             "seller-default",
				Name:           "Seller default",
				Priority:       10,
				AppliesTo:      models.RuleFilter{PartyType: models.PartySeller},
				Type:           models.CommissionPercentage,
				PercentageRate: decPtr("10"),
			},
			{
				ID:        "supplier-volume",
				Name:      "Supplier volume tiers",
				Priority:  10,
				AppliesTo: models.RuleFilter{PartyType: models.PartySupplier},
				Type:      models.CommissionTiered,
				Tiers: []models.CommissionTier{
					{MinAmount: decimal.Zero, MaxAmount: decPtr("100000"), PercentageRate: decimal.NewFromInt(5)},
					{MinAmount: decimal.NewFromInt(100000), MaxAmount: decPtr("1000000"), PercentageRate: decimal.NewFromInt(4)},
					{MinAmount: decimal.NewFromInt(1000000), PercentageRate: decimal.NewFromInt(3)},
				},
			},
			{
				ID:          "partner-referral",
				Name:        "Partner referral fee",
				Priority:    10,
				AppliesTo:   models.RuleFilter{PartyType: models.PartyPartner},
				Type:        models.CommissionFixed,
				FixedAmount: decPtr("500"),
			},
		},
	}

	profiles := []*models.PartyProfile{
		{PartyType: models.PartySeller, PartyID: "S-100", Currency: "KRW", TaxRate: decPtr("0.033")},
		{PartyType: models.PartySeller, PartyID: "S-200", Currency: "KRW", MinPayoutAmount: decPtr("50000"), HoldPeriodDays: intPtr(7)},
		{PartyType: models.PartySupplier, PartyID: "P-300", Currency: "KRW"},
		{PartyType: models.PartyPartner, PartyID: "R-400", Currency: "KRW", TaxRate: decPtr("0.033")},
	}

	prefix := "demo-" + start.Format("20060102")

	var events []*models.SettlementEvent
	add := func(party models.PartyType, id, category string, gross int64, hour int) {
		n := len(events) + 1
		events = append(events, &models.SettlementEvent{
			ID:          fmt.Sprintf("%s-evt-%03d", prefix, n),
			OrderID:     fmt.Sprintf("%s-order-%03d", prefix, (n+1)/2),
			OrderItemID: fmt.Sprintf("%s-item-%03d", prefix, n),
			PartyType:   party,
			PartyID:     id,
			ProductID:   fmt.Sprintf("product-%d", n%5+1),
			CategoryID:  category,
			ChannelID:   "web",
			GrossAmount: decimal.NewFromInt(gross),
			Quantity:    1,
			Currency:    "KRW",
			OccurredAt:  start.Add(time.Duration(hour) * time.Hour),
		})
	}
	add(models.PartySeller, "S-100", "electronics", 120000, 9)
	add(models.PartySeller, "S-100", "apparel", 45000, 11)
	add(models.PartySeller, "S-100", "electronics", 89000, 15)
	add(models.PartySeller, "S-200", "apparel", 30000, 10)
	add(models.PartySupplier, "P-300", "electronics", 80000, 12)
	add(models.PartySupplier, "P-300", "electronics", 250000, 13)
	add(models.PartyPartner, "R-400", "", 60000, 14)
	add(models.PartyPartner, "R-400", "", 15000, 18)

	relays := []*models.OrderRelay{
		{
			ID:         prefix + "-relay-1",
			OrderID:    prefix + "-order-001",
			SellerID:   "S-100",
			SupplierID: "P-300",
			Status:     models.RelayPending,
			CreatedAt:  start,
			UpdatedAt:  start,
		},
	}

	return &Dataset{
		RuleSet:  ruleSet,
		Profiles: profiles,
		Events:   events,
		Relays:   relays,
	}
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(i int) *int {
	return &i
}
