package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
)

// SettlementRepository implements ports.SettlementRepository
type SettlementRepository struct {
	store *Store
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(store *Store) *SettlementRepository {
	return &SettlementRepository{store: store}
}

func samePeriod(s models.Settlement, party models.PartyRef, start, end time.Time) bool {
	return s.SupersededAt == nil &&
		s.PartyType == party.PartyType &&
		s.PartyID == party.PartyID &&
		s.PeriodStart.Equal(start) &&
		s.PeriodEnd.Equal(end)
}

// FindActive returns the non-superseded settlement for the tuple, any engine version
func (r *SettlementRepository) FindActive(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var found *models.Settlement
	for _, s := range r.store.settlements {
		if samePeriod(s, party, periodStart, periodEnd) {
			if found == nil || s.CreatedAt.Before(found.CreatedAt) {
				match := s
				found = &match
			}
		}
	}
	return found, nil
}

// FindByEngineVersion returns the non-superseded settlement produced by engineVersion
func (r *SettlementRepository) FindByEngineVersion(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time, engineVersion string) (*models.Settlement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, s := range r.store.settlements {
		if samePeriod(s, party, periodStart, periodEnd) && s.EngineVersion == engineVersion {
			match := s
			return &match, nil
		}
	}
	return nil, nil
}

// Create stores a settlement with its items and commissions, enforcing the same
// uniqueness rule as the settlements_active_period_uq index
func (r *SettlementRepository) Create(ctx context.Context, tx ports.DBTX, settlement *models.Settlement, items []*models.SettlementItem, commissions []*models.Commission) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, s := range r.store.settlements {
		if samePeriod(s, models.PartyRef{PartyType: settlement.PartyType, PartyID: settlement.PartyID}, settlement.PeriodStart, settlement.PeriodEnd) &&
			s.EngineVersion == settlement.EngineVersion {
			return domain.NewDomainError(domain.ErrorCodeSettlementConflict, fmt.Sprintf("active settlement %s already exists", s.ID)).
				WithDetail("party_key", settlement.PartyKey())
		}
	}

	r.store.settlements[settlement.ID] = *settlement
	stored := make([]models.SettlementItem, 0, len(items))
	for _, it := range items {
		stored = append(stored, *it)
	}
	r.store.items[settlement.ID] = stored
	for _, c := range commissions {
		r.store.commissions[c.ID] = *c
	}
	return nil
}

// GetByID retrieves a settlement by its ID
func (r *SettlementRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Settlement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.settlements[id]
	if !ok {
		return nil, notFound("settlement", id)
	}
	return &s, nil
}

// ListItems lists the items of a settlement in creation order
func (r *SettlementRepository) ListItems(ctx context.Context, db ports.DBTX, settlementID string) ([]*models.SettlementItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stored := r.store.items[settlementID]
	items := make([]*models.SettlementItem, 0, len(stored))
	for i := range stored {
		it := stored[i]
		items = append(items, &it)
	}
	return items, nil
}

// EventRepository implements ports.SettlementEventRepository
type EventRepository struct {
	store *Store
}

// NewEventRepository creates a new event repository
func NewEventRepository(store *Store) *EventRepository {
	return &EventRepository{store: store}
}

func inPeriod(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(timeutil.PeriodLimit(end))
}

// ListActiveParties returns distinct parties with events inside the period, sorted by key
func (r *EventRepository) ListActiveParties(ctx context.Context, db ports.DBTX, periodStart, periodEnd time.Time) ([]models.PartyRef, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	seen := make(map[string]bool)
	parties := []models.PartyRef{}
	for _, e := range r.store.events {
		if !inPeriod(e.OccurredAt, periodStart, periodEnd) {
			continue
		}
		ref := models.PartyRef{PartyType: e.PartyType, PartyID: e.PartyID}
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true
		parties = append(parties, ref)
	}
	sort.Slice(parties, func(i, j int) bool {
		return parties[i].Key() < parties[j].Key()
	})
	return parties, nil
}

// ListEligibleEvents returns the party's events inside the period ordered by occurrence
func (r *EventRepository) ListEligibleEvents(ctx context.Context, db ports.DBTX, party models.PartyRef, periodStart, periodEnd time.Time) ([]*models.SettlementEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	events := []*models.SettlementEvent{}
	for i := range r.store.events {
		e := r.store.events[i]
		if e.PartyType != party.PartyType || e.PartyID != party.PartyID || !inPeriod(e.OccurredAt, periodStart, periodEnd) {
			continue
		}
		events = append(events, &e)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}
