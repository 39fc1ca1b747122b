package delivery

import (
	"time"

	"github.com/spinhouse/delivery/pkg/shipper"
)

// Status is the lifecycle of a delivery. The Controller writes only
// StatusPending, StatusCreated and StatusFailed; later states belong to
// fulfilment tracking.
type Status string

const (
	StatusPending         Status = "pending"
	StatusCreated         Status = "created"
	StatusFailed          Status = "failed"
	StatusPickupScheduled Status = "pickup_scheduled"
	StatusPickedUp        Status = "picked_up"
	StatusInTransit       Status = "in_transit"
	StatusOutForDelivery  Status = "out_for_delivery"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

// HasShipment reports whether a shipment was created for the record.
func (s Status) HasShipment() bool {
	switch s {
	case StatusCreated, StatusPickupScheduled, StatusPickedUp, StatusInTransit,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusFailed || s.HasShipment()
}

// Record is the durable state of the delivery of one order.
type Record struct {
	OrderID   string                  `json:"orderId"`
	Status    Status                  `json:"status"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`
	Shipment  *shipper.ShipmentResult `json:"shipmentResult,omitempty"`
	Pickup    *shipper.Pickup         `json:"pickup,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Attempts  int                     `json:"attempts"`

	// LeaseUntil is set on pending records. Once it passes, the attempt that
	// holds the reservation is presumed dead and the order can be reserved again.
	LeaseUntil time.Time `json:"leaseUntil"`
}

// Reservable reports whether a reservation made at now may replace r: the
// previous attempt failed, or it is pending with an expired lease.
func (r *Record) Reservable(now time.Time) bool {
	switch r.Status {
	case StatusFailed:
		return true
	case StatusPending:
		return !r.LeaseUntil.After(now)
	}
	return false
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Shipment != nil {
		s := *r.Shipment
		out.Shipment = &s
	}
	if r.Pickup != nil {
		p := *r.Pickup
		out.Pickup = &p
	}
	return &out
}
