package stateguard

import (
	"errors"
	"testing"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_CanTransition_OrderRelay(t *testing.T) {
	g := New()

	tests := []struct {
		name    string
		current string
		target  string
		want    bool
	}{
		{"pending to relayed", "pending", "relayed", true},
		{"pending to cancelled", "pending", "cancelled", true},
		{"relayed to confirmed", "relayed", "confirmed", true},
		{"confirmed to shipped", "confirmed", "shipped", true},
		{"shipped to delivered", "shipped", "delivered", true},
		{"delivered to refunded", "delivered", "refunded", true},
		{"delivered back to relayed", "delivered", "relayed", false},
		{"shipped cannot be cancelled", "shipped", "cancelled", false},
		{"cancelled is terminal", "cancelled", "pending", false},
		{"skip confirmation", "relayed", "shipped", false},
		{"self transition", "pending", "pending", false},
		{"unknown current", "lost", "relayed", false},
		{"unknown target", "pending", "lost", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.CanTransition(domain.EntityKindOrderRelay, tt.current, tt.target))
		})
	}
}

func TestGuard_CanTransition_SettlementBatch(t *testing.T) {
	g := New()

	assert.True(t, g.CanTransition(domain.EntityKindSettlementBatch, "open", "closed"))
	assert.True(t, g.CanTransition(domain.EntityKindSettlementBatch, "closed", "open"))
	assert.True(t, g.CanTransition(domain.EntityKindSettlementBatch, "closed", "processing"))
	assert.True(t, g.CanTransition(domain.EntityKindSettlementBatch, "processing", "paid"))
	assert.True(t, g.CanTransition(domain.EntityKindSettlementBatch, "processing", "failed"))
	assert.True(t, g.CanTransition(domain.EntityKindSettlementBatch, "failed", "processing"))

	assert.False(t, g.CanTransition(domain.EntityKindSettlementBatch, "open", "paid"))
	assert.False(t, g.CanTransition(domain.EntityKindSettlementBatch, "paid", "processing"))
}

func TestGuard_UnknownKind(t *testing.T) {
	g := New()
	kind := domain.EntityKind("Invoice")

	assert.NotPanics(t, func() {
		assert.False(t, g.CanTransition(kind, "open", "closed"))
		assert.False(t, g.IsTerminal(kind, "paid"))
		assert.False(t, g.CanTrigger(kind, "open", "closed", domain.ActorAdmin))
		assert.Empty(t, g.AllowedTargets(kind, "open"))
	})
}

func TestGuard_IsTerminal(t *testing.T) {
	g := New()

	assert.True(t, g.IsTerminal(domain.EntityKindOrderRelay, "cancelled"))
	assert.True(t, g.IsTerminal(domain.EntityKindOrderRelay, "refunded"))
	assert.False(t, g.IsTerminal(domain.EntityKindOrderRelay, "delivered"))
	assert.True(t, g.IsTerminal(domain.EntityKindSettlementBatch, "paid"))
	assert.False(t, g.IsTerminal(domain.EntityKindSettlementBatch, "failed"))
	assert.False(t, g.IsTerminal(domain.EntityKindSettlementBatch, "unknown"))
}

func TestGuard_CanTrigger(t *testing.T) {
	g := New()

	tests := []struct {
		name    string
		kind    domain.EntityKind
		current string
		target  string
		actor   domain.ActorType
		want    bool
	}{
		{"seller cannot mark batch paid", domain.EntityKindSettlementBatch, "processing", "paid", domain.ActorSeller, false},
		{"finance marks batch paid", domain.EntityKindSettlementBatch, "processing", "paid", domain.ActorFinance, true},
		{"system marks batch paid", domain.EntityKindSettlementBatch, "processing", "paid", domain.ActorSystem, true},
		{"only admin reopens batch", domain.EntityKindSettlementBatch, "closed", "open", domain.ActorFinance, false},
		{"admin reopens batch", domain.EntityKindSettlementBatch, "closed", "open", domain.ActorAdmin, true},
		{"system closes batch", domain.EntityKindSettlementBatch, "open", "closed", domain.ActorSystem, true},
		{"supplier ships", domain.EntityKindOrderRelay, "confirmed", "shipped", domain.ActorSupplier, true},
		{"seller cannot ship", domain.EntityKindOrderRelay, "confirmed", "shipped", domain.ActorSeller, false},
		{"finance refunds", domain.EntityKindOrderRelay, "delivered", "refunded", domain.ActorFinance, true},
		{"partner cannot refund", domain.EntityKindOrderRelay, "delivered", "refunded", domain.ActorPartner, false},
		{"permission never bypasses whitelist", domain.EntityKindOrderRelay, "delivered", "relayed", domain.ActorAdmin, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.CanTrigger(tt.kind, tt.current, tt.target, tt.actor))
		})
	}
}

func TestGuard_Check(t *testing.T) {
	g := New()

	t.Run("allowed", func(t *testing.T) {
		assert.NoError(t, g.Check(domain.EntityKindOrderRelay, "relay-1", "shipped", "delivered", domain.ActorSupplier))
	})

	t.Run("not in whitelist", func(t *testing.T) {
		err := g.Check(domain.EntityKindOrderRelay, "relay-1", "delivered", "relayed", domain.ActorAdmin)
		require.Error(t, err)

		var transitionErr *domain.StateTransitionError
		require.True(t, errors.As(err, &transitionErr))
		assert.Equal(t, "OrderRelay", transitionErr.EntityType)
		assert.Equal(t, "relay-1", transitionErr.EntityID)
		assert.Equal(t, "delivered", transitionErr.CurrentStatus)
		assert.Equal(t, "relayed", transitionErr.TargetStatus)
		assert.False(t, transitionErr.IsPermissionDenied())
		assert.Equal(t, domain.ErrorCodeTransitionNotAllowed, domain.GetErrorCode(err))
	})

	t.Run("actor not permitted", func(t *testing.T) {
		err := g.Check(domain.EntityKindSettlementBatch, "batch-1", "processing", "paid", domain.ActorSeller)
		require.Error(t, err)

		var transitionErr *domain.StateTransitionError
		require.True(t, errors.As(err, &transitionErr))
		assert.True(t, transitionErr.IsPermissionDenied())
		assert.Equal(t, "seller", transitionErr.ActorType)
		assert.Equal(t, domain.ErrorCodeTransitionNotPermitted, domain.GetErrorCode(err))
		assert.True(t, domain.IsTransitionError(err))
	})
}

func TestGuard_EveryPermissionPairIsWhitelisted(t *testing.T) {
	g := New()

	for kind, lc := range g.lifecycles {
		for from, targets := range lc.next {
			for _, to := range targets {
				assert.NotEmpty(t, lc.actors[pairKey(from, to)], "%s %s has no permitted actors", kind, pairKey(from, to))
			}
		}
		assert.Len(t, lc.actors, countEdges(lc), "%s permission table has entries outside the whitelist", kind)
	}
}

func countEdges(lc lifecycle) int {
	n := 0
	for _, targets := range lc.next {
		n += len(targets)
	}
	return n
}
