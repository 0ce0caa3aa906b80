// Package memory implements the storage ports in process memory for local dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

// Store holds all in-memory tables behind one lock
type Store struct {
	mu          sync.RWMutex
	events      []models.SettlementEvent
	settlements map[string]models.Settlement
	items       map[string][]models.SettlementItem
	commissions map[string]models.Commission
	ruleSets    []models.CommissionRuleSet
	profiles    map[string]models.PartyProfile
	relays      map[string]models.OrderRelay
	batches     map[string]models.SettlementBatch
	batchOrder  []string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		settlements: make(map[string]models.Settlement),
		items:       make(map[string][]models.SettlementItem),
		commissions: make(map[string]models.Commission),
		profiles:    make(map[string]models.PartyProfile),
		relays:      make(map[string]models.OrderRelay),
		batches:     make(map[string]models.SettlementBatch),
	}
}

// AddEvents appends settlement events
func (s *Store) AddEvents(events ...*models.SettlementEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events = append(s.events, *e)
	}
}

// AddRuleSet registers a rule set
func (s *Store) AddRuleSet(rs *models.CommissionRuleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ruleSets = append(s.ruleSets, *rs)
}

// PutProfile stores a party profile
func (s *Store) PutProfile(p *models.PartyProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[models.PartyKey(p.PartyType, p.PartyID)] = *p
}

// PutRelay stores an order relay
func (s *Store) PutRelay(r *models.OrderRelay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relays[r.ID] = *r
}

// PutSettlement stores a settlement directly, bypassing the engine. Used to seed legacy v1 rows.
func (s *Store) PutSettlement(st *models.Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[st.ID] = *st
}

// SettlementCount returns the number of stored settlements
func (s *Store) SettlementCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.settlements)
}

// CommissionCount returns the number of stored commissions
func (s *Store) CommissionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.commissions)
}

// TxManager serializes "transactions" so check-then-write sequences are atomic.
// Callbacks receive a nil pgx.Tx; memory repositories ignore the executor.
type TxManager struct {
	mu sync.Mutex
}

// NewTxManager creates a transaction manager for the memory store
func NewTxManager() *TxManager {
	return &TxManager{}
}

// WithTransaction runs fn exclusively
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}

// WithReadOnlyTransaction runs fn exclusively
func (m *TxManager) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return m.WithTransaction(ctx, fn)
}

func notFound(entity, id string) error {
	return domain.NewDomainError(domain.ErrorCodeEntityNotFound, fmt.Sprintf("%s %s not found", entity, id)).
		WithDetail("entity_id", id)
}

var (
	_ ports.TransactionManager        = (*TxManager)(nil)
	_ ports.SettlementRepository      = (*SettlementRepository)(nil)
	_ ports.SettlementEventRepository = (*EventRepository)(nil)
	_ ports.RuleSetRepository         = (*RuleSetRepository)(nil)
	_ ports.PartyProfileRepository    = (*PartyProfileRepository)(nil)
	_ ports.OrderRelayRepository      = (*OrderRelayRepository)(nil)
	_ ports.SettlementBatchRepository = (*SettlementBatchRepository)(nil)
	_ ports.RunLocker                 = (*RunLocker)(nil)
)
