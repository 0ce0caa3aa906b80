package stateguard

import (
	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// lifecycle is the whitelist for one entity kind
type lifecycle struct {
	// next lists the statuses reachable from each status
	next map[string][]string
	// actors lists who may trigger each "from→to" pair
	actors map[string][]domain.ActorType
}

// Guard validates status changes for order relays and settlement batches.
// Tables are static and read-only after construction, so a Guard is safe for concurrent use.
type Guard struct {
	lifecycles map[domain.EntityKind]lifecycle
}

// New creates a guard with the built-in transition and permission tables
func New() *Guard {
	return &Guard{
		lifecycles: map[domain.EntityKind]lifecycle{
			domain.EntityKindOrderRelay:      orderRelayLifecycle(),
			domain.EntityKindSettlementBatch: settlementBatchLifecycle(),
		},
	}
}

func orderRelayLifecycle() lifecycle {
	pending := string(models.RelayPending)
	relayed := string(models.RelayRelayed)
	confirmed := string(models.RelayConfirmed)
	shipped := string(models.RelayShipped)
	delivered := string(models.RelayDelivered)
	cancelled := string(models.RelayCancelled)
	refunded := string(models.RelayRefunded)

	return lifecycle{
		next: map[string][]string{
			pending:   {relayed, cancelled},
			relayed:   {confirmed, cancelled},
			confirmed: {shipped, cancelled},
			shipped:   {delivered},
			delivered: {refunded},
			cancelled: {},
			refunded:  {},
		},
		actors: map[string][]domain.ActorType{
			pairKey(pending, relayed):     {domain.ActorSystem, domain.ActorSeller, domain.ActorAdmin},
			pairKey(pending, cancelled):   {domain.ActorSeller, domain.ActorAdmin, domain.ActorSystem},
			pairKey(relayed, confirmed):   {domain.ActorSupplier, domain.ActorAdmin, domain.ActorSystem},
			pairKey(relayed, cancelled):   {domain.ActorSupplier, domain.ActorSeller, domain.ActorAdmin},
			pairKey(confirmed, shipped):   {domain.ActorSupplier, domain.ActorAdmin},
			pairKey(confirmed, cancelled): {domain.ActorSupplier, domain.ActorAdmin},
			pairKey(shipped, delivered):   {domain.ActorSupplier, domain.ActorSystem, domain.ActorAdmin},
			pairKey(delivered, refunded):  {domain.ActorAdmin, domain.ActorFinance},
		},
	}
}

func settlementBatchLifecycle() lifecycle {
	open := string(models.BatchOpen)
	closed := string(models.BatchClosed)
	processing := string(models.BatchProcessing)
	paid := string(models.BatchPaid)
	failed := string(models.BatchFailed)

	return lifecycle{
		next: map[string][]string{
			open:       {closed},
			closed:     {processing, open},
			processing: {paid, failed},
			failed:     {processing},
			paid:       {},
		},
		actors: map[string][]domain.ActorType{
			pairKey(open, closed):       {domain.ActorAdmin, domain.ActorSystem, domain.ActorFinance},
			pairKey(closed, open):       {domain.ActorAdmin},
			pairKey(closed, processing): {domain.ActorFinance, domain.ActorSystem},
			pairKey(processing, paid):   {domain.ActorFinance, domain.ActorSystem},
			pairKey(processing, failed): {domain.ActorFinance, domain.ActorSystem},
			pairKey(failed, processing): {domain.ActorFinance, domain.ActorSystem, domain.ActorAdmin},
		},
	}
}

func pairKey(from, to string) string {
	return from + "→" + to
}

// CanTransition reports whether target is reachable from current in one step.
// Unknown kinds or statuses return false.
func (g *Guard) CanTransition(kind domain.EntityKind, current, target string) bool {
	lc, ok := g.lifecycles[kind]
	if !ok {
		return false
	}
	for _, s := range lc.next[current] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status is known and has no outgoing transitions
func (g *Guard) IsTerminal(kind domain.EntityKind, status string) bool {
	lc, ok := g.lifecycles[kind]
	if !ok {
		return false
	}
	next, known := lc.next[status]
	return known && len(next) == 0
}

// CanTrigger reports whether actor may perform the transition.
// The transition itself must also be whitelisted.
func (g *Guard) CanTrigger(kind domain.EntityKind, current, target string, actor domain.ActorType) bool {
	if !g.CanTransition(kind, current, target) {
		return false
	}
	for _, a := range g.lifecycles[kind].actors[pairKey(current, target)] {
		if a == actor {
			return true
		}
	}
	return false
}

// Check returns a *domain.StateTransitionError describing why the change is rejected, or nil
func (g *Guard) Check(kind domain.EntityKind, entityID, current, target string, actor domain.ActorType) error {
	if !g.CanTransition(kind, current, target) {
		return domain.NewTransitionNotAllowed(string(kind), entityID, current, target)
	}
	if !g.CanTrigger(kind, current, target, actor) {
		return domain.NewTransitionNotPermitted(string(kind), entityID, current, target, string(actor))
	}
	return nil
}

// AllowedTargets lists the statuses reachable from current
func (g *Guard) AllowedTargets(kind domain.EntityKind, current string) []string {
	lc, ok := g.lifecycles[kind]
	if !ok {
		return nil
	}
	out := make([]string, len(lc.next[current]))
	copy(out, lc.next[current])
	return out
}
