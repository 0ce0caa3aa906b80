package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

// RuleSetRepository implements ports.RuleSetRepository
type RuleSetRepository struct {
	store *Store
}

// NewRuleSetRepository creates a new rule set repository
func NewRuleSetRepository(store *Store) *RuleSetRepository {
	return &RuleSetRepository{store: store}
}

// GetActive returns the highest version rule set valid at the given time
func (r *RuleSetRepository) GetActive(ctx context.Context, db ports.DBTX, at time.Time) (*models.CommissionRuleSet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var active *models.CommissionRuleSet
	for i := range r.store.ruleSets {
		rs := r.store.ruleSets[i]
		if !rs.IsActiveAt(at) {
			continue
		}
		if active == nil || rs.Version > active.Version {
			active = &rs
		}
	}
	if active == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeRuleSetNotFound, fmt.Sprintf("no commission rule set active at %s", at.Format(time.RFC3339)))
	}
	return active, nil
}

// GetByID retrieves a rule set by its ID
func (r *RuleSetRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.CommissionRuleSet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for i := range r.store.ruleSets {
		if r.store.ruleSets[i].ID == id {
			rs := r.store.ruleSets[i]
			return &rs, nil
		}
	}
	return nil, notFound("rule set", id)
}

// PartyProfileRepository implements ports.PartyProfileRepository
type PartyProfileRepository struct {
	store *Store
}

// NewPartyProfileRepository creates a new party profile repository
func NewPartyProfileRepository(store *Store) *PartyProfileRepository {
	return &PartyProfileRepository{store: store}
}

// GetProfiles returns the stored profiles of the given parties keyed by party key
func (r *PartyProfileRepository) GetProfiles(ctx context.Context, db ports.DBTX, parties []models.PartyRef) (map[string]*models.PartyProfile, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make(map[string]*models.PartyProfile, len(parties))
	for _, p := range parties {
		if profile, ok := r.store.profiles[p.Key()]; ok {
			found := profile
			out[p.Key()] = &found
		}
	}
	return out, nil
}
