package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PartyType identifies the counterpart of a settlement
type PartyType string

const (
	PartySeller   PartyType = "seller"
	PartySupplier PartyType = "supplier"
	PartyPartner  PartyType = "partner"
	PartyPlatform PartyType = "platform"
)

// IsValid returns true for known party types
func (p PartyType) IsValid() bool {
	switch p {
	case PartySeller, PartySupplier, PartyPartner, PartyPlatform:
		return true
	}
	return false
}

// PartyKey formats the "partyType:partyId" key used across diagnostics
func PartyKey(partyType PartyType, partyID string) string {
	return fmt.Sprintf("%s:%s", partyType, partyID)
}

// PartyRef is a bare (partyType, partyId) pair, as discovered from activity
type PartyRef struct {
	PartyType PartyType
	PartyID   string
}

// Key returns the party key
func (r PartyRef) Key() string {
	return PartyKey(r.PartyType, r.PartyID)
}

// PartyContext carries everything the engine needs to settle one party.
// It is supplied by the caller and never mutated during a run.
type PartyContext struct {
	PartyType       PartyType
	PartyID         string
	Currency        string
	TaxRate         *decimal.Decimal // fraction, e.g. 0.033 for 3.3%
	MinPayoutAmount *decimal.Decimal
	HoldPeriodDays  int
	CustomConfig    map[string]string
}

// Key returns the party key
func (p PartyContext) Key() string {
	return PartyKey(p.PartyType, p.PartyID)
}

// Ref returns the bare party reference
func (p PartyContext) Ref() PartyRef {
	return PartyRef{PartyType: p.PartyType, PartyID: p.PartyID}
}

// EffectiveTaxRate returns the flat tax rate or zero
func (p PartyContext) EffectiveTaxRate() decimal.Decimal {
	if p.TaxRate == nil {
		return decimal.Zero
	}
	return *p.TaxRate
}

// PartyProfile holds the stored settlement preferences of a party
type PartyProfile struct {
	PartyType       PartyType
	PartyID         string
	Currency        string
	TaxRate         *decimal.Decimal
	MinPayoutAmount *decimal.Decimal
	HoldPeriodDays  *int
	CustomConfig    map[string]string
}
