package domain

// EntityKind identifies a lifecycle governed by the state guard
type EntityKind string

const (
	EntityKindOrderRelay      EntityKind = "OrderRelay"
	EntityKindSettlementBatch EntityKind = "SettlementBatch"
)

// IsValid returns true if the kind has a transition table
func (k EntityKind) IsValid() bool {
	return k == EntityKindOrderRelay || k == EntityKindSettlementBatch
}

// ActorType identifies who requests a status change
type ActorType string

const (
	ActorAdmin    ActorType = "admin"
	ActorSystem   ActorType = "system"
	ActorSeller   ActorType = "seller"
	ActorSupplier ActorType = "supplier"
	ActorPartner  ActorType = "partner"
	ActorFinance  ActorType = "finance"
)

// IsValid returns true for known actor types
func (a ActorType) IsValid() bool {
	switch a {
	case ActorAdmin, ActorSystem, ActorSeller, ActorSupplier, ActorPartner, ActorFinance:
		return true
	}
	return false
}
