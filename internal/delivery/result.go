package delivery

import (
	"github.com/spinhouse/delivery/pkg/shipper"
)

// Failure codes reported in Result.Error by the reservation protocol.
const (
	ErrCodeReservationFailed   = "reservation_failed"
	ErrCodeReservationConflict = "reservation_conflict"
	ErrCodeInProgress          = "delivery_in_progress"
)

// ProcessResult is the Orchestrator's output for a successful shipment.
type ProcessResult struct {
	OK       bool                    `json:"ok"`
	Shipment *shipper.ShipmentResult `json:"shiprocket"`
	Pickup   *shipper.Pickup         `json:"pickup,omitempty"`
}

// Result is the normalized outcome of Controller.Run, whether the shipment
// was created by this call or found from an earlier one.
type Result struct {
	OK        bool                    `json:"ok"`
	OrderID   string                  `json:"order_id"`
	FromCache bool                    `json:"fromCache,omitempty"`
	Shipment  *shipper.ShipmentResult `json:"shiprocket,omitempty"`
	Pickup    *shipper.Pickup         `json:"pickup,omitempty"`
	Raw       *ProcessResult          `json:"raw,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

func failure(orderID, msg string) *Result {
	return &Result{OK: false, OrderID: orderID, Error: msg}
}

func resultFromRecord(rec *Record) *Result {
	return &Result{
		OK:        true,
		OrderID:   rec.OrderID,
		FromCache: true,
		Shipment:  rec.Shipment,
		Pickup:    rec.Pickup,
		Raw: &ProcessResult{
			OK:       true,
			Shipment: rec.Shipment,
			Pickup:   rec.Pickup,
		},
	}
}
