package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementStatus represents the status of a generated settlement
type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "pending"
	SettlementHeld       SettlementStatus = "held"
	SettlementSuperseded SettlementStatus = "superseded"
)

// HoldReasonBelowMinPayout marks settlements whose payable is under the party's minimum
const HoldReasonBelowMinPayout = "below_min_payout"

// Engine versions
const (
	EngineVersionV1 = "v1"
	EngineVersionV2 = "v2"
)

// Settlement is the period-scoped financial statement for one party
type Settlement struct {
	ID            string
	PartyType     PartyType
	PartyID       string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Currency      string
	EngineVersion string

	// Totals (sum of items)
	TotalGrossAmount      decimal.Decimal
	TotalCommissionAmount decimal.Decimal
	TotalTaxAmount        decimal.Decimal
	PayableAmount         decimal.Decimal
	ItemCount             int

	Status         SettlementStatus
	HoldReason     string
	PayableAfter   *time.Time
	Tag            string
	RuleSetID      string
	RuleSetVersion int

	SupersededAt *time.Time
	CreatedAt    time.Time
}

// PartyKey returns the "partyType:partyId" key
func (s *Settlement) PartyKey() string {
	return PartyKey(s.PartyType, s.PartyID)
}

// SettlementItem is one line of a settlement, tied to a source event and the rule that priced it
type SettlementItem struct {
	ID           string
	SettlementID string
	CommissionID string

	// Source event
	EventID     string
	OrderID     string
	OrderItemID string
	ProductID   string
	Quantity    int

	PartyType PartyType
	PartyID   string

	// Rule that produced the amount
	RuleID    string
	RuleName  string
	RuleType  CommissionType
	TierIndex *int

	GrossAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	TaxAmount        decimal.Decimal
	PayableAmount    decimal.Decimal
	Currency         string
	ReasonCode       string

	CreatedAt time.Time
}

// CommissionStatus tracks whether a commission has been attached to a settlement
type CommissionStatus string

const (
	CommissionCalculated CommissionStatus = "calculated"
	CommissionSettled    CommissionStatus = "settled"
)

// Commission is the atomic computation result for one event
type Commission struct {
	ID               string
	EventID          string
	OrderID          string
	PartyType        PartyType
	PartyID          string
	RuleID           string
	RuleType         CommissionType
	BaseAmount       decimal.Decimal
	AppliedRate      *decimal.Decimal // nil for fixed rules
	Amount           decimal.Decimal
	Currency         string
	SettlementItemID *string
	Status           CommissionStatus
	CalculatedAt     time.Time
}
