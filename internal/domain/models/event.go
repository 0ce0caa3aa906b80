package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEvent is a settlement-eligible order or commission event attributed to one party
type SettlementEvent struct {
	ID          string
	OrderID     string
	OrderItemID string
	PartyType   PartyType
	PartyID     string
	ProductID   string
	CategoryID  string
	ChannelID   string
	GrossAmount decimal.Decimal
	Quantity    int
	Currency    string
	OccurredAt  time.Time
}
