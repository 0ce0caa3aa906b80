package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementBatchStatus is the lifecycle of one settlement run
type SettlementBatchStatus string

const (
	BatchOpen       SettlementBatchStatus = "open"
	BatchClosed     SettlementBatchStatus = "closed"
	BatchProcessing SettlementBatchStatus = "processing"
	BatchPaid       SettlementBatchStatus = "paid"
	BatchFailed     SettlementBatchStatus = "failed"
)

// SettlementBatch represents one settlement run over a period
type SettlementBatch struct {
	ID               string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	Status           SettlementBatchStatus
	SettlementsCount int
	TotalPayable     decimal.Decimal
	UpdatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
