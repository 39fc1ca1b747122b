// Package shipper provides an abstraction layer for shipment-creation gateways.
package shipper

import (
	"context"
)

// Gateway defines the interface a shipping gateway must implement.
// Implementations perform exactly one remote attempt per call; retry policy
// belongs to the caller.
type Gateway interface {
	// Name returns the gateway identifier (e.g., "shiprocket").
	Name() string

	// CreateShipment registers a shipment for an order with the gateway.
	CreateShipment(ctx context.Context, payload *ShipmentPayload) (*ShipmentResult, error)

	// SchedulePickup requests a courier pickup for a created shipment.
	SchedulePickup(ctx context.Context, shipmentID string) (*Pickup, error)
}
