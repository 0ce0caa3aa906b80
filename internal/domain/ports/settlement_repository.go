package ports

import (
	"context"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// SettlementRepository defines the interface for settlement data persistence
type SettlementRepository interface {
	// FindActive returns the non-superseded settlement for a party and period regardless
	// of engine version, or nil when none exists
	FindActive(ctx context.Context, db DBTX, party models.PartyRef, periodStart, periodEnd time.Time) (*models.Settlement, error)

	// FindByEngineVersion returns the non-superseded settlement produced by a specific
	// engine version, or nil when none exists. Used for v1-vs-v2 shadow comparison.
	FindByEngineVersion(ctx context.Context, db DBTX, party models.PartyRef, periodStart, periodEnd time.Time, engineVersion string) (*models.Settlement, error)

	// Create persists a settlement together with its items and commissions.
	// A storage-level uniqueness violation is returned as domain.ErrorCodeSettlementConflict.
	Create(ctx context.Context, tx DBTX, settlement *models.Settlement, items []*models.SettlementItem, commissions []*models.Commission) error

	// GetByID retrieves a settlement by its ID
	GetByID(ctx context.Context, db DBTX, id string) (*models.Settlement, error)

	// ListItems lists the items of a settlement
	ListItems(ctx context.Context, db DBTX, settlementID string) ([]*models.SettlementItem, error)
}

// SettlementEventRepository reads settlement-eligible events produced by the order/commission subsystem
type SettlementEventRepository interface {
	// ListActiveParties returns distinct (partyType, partyId) pairs with activity strictly inside the period
	ListActiveParties(ctx context.Context, db DBTX, periodStart, periodEnd time.Time) ([]models.PartyRef, error)

	// ListEligibleEvents returns the party's events inside the period, ordered by occurrence
	ListEligibleEvents(ctx context.Context, db DBTX, party models.PartyRef, periodStart, periodEnd time.Time) ([]*models.SettlementEvent, error)
}

// RuleSetRepository resolves commission rule sets authored by the admin subsystem
type RuleSetRepository interface {
	// GetActive returns the highest version rule set whose validity window covers at
	GetActive(ctx context.Context, db DBTX, at time.Time) (*models.CommissionRuleSet, error)

	// GetByID retrieves a rule set by its ID
	GetByID(ctx context.Context, db DBTX, id string) (*models.CommissionRuleSet, error)
}

// PartyProfileRepository returns stored settlement preferences keyed by party key
type PartyProfileRepository interface {
	GetProfiles(ctx context.Context, db DBTX, parties []models.PartyRef) (map[string]*models.PartyProfile, error)
}
