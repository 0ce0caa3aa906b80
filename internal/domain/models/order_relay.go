package models

import "time"

// OrderRelayStatus is the lifecycle of a dropshipping order relayed between parties
type OrderRelayStatus string

const (
	RelayPending   OrderRelayStatus = "pending"
	RelayRelayed   OrderRelayStatus = "relayed"
	RelayConfirmed OrderRelayStatus = "confirmed"
	RelayShipped   OrderRelayStatus = "shipped"
	RelayDelivered OrderRelayStatus = "delivered"
	RelayCancelled OrderRelayStatus = "cancelled"
	RelayRefunded  OrderRelayStatus = "refunded"
)

// OrderRelay tracks an order as it moves between seller, supplier and platform
type OrderRelay struct {
	ID         string
	OrderID    string
	SellerID   string
	SupplierID string
	Status     OrderRelayStatus
	UpdatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
