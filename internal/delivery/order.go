// Package delivery turns paid orders into shipments exactly once.
//
// The Controller layers a reservation protocol over a Store so that, for a
// given order ID, at most one shipment-creation call reaches the gateway no
// matter how many times or from how many instances delivery is requested.
// The Orchestrator underneath maps orders to gateway payloads and performs
// the shipment attempt itself.
package delivery

import (
	"errors"
	"time"
)

// ErrMissingOrder is returned when Run is called without an order or an order ID.
var ErrMissingOrder = errors.New("delivery: order with id is required")

// Order is the caller's order. The package never mutates it.
type Order struct {
	ID           string     `json:"id"`
	CustomerName string     `json:"customerName"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone"`
	Address      Address    `json:"address"`
	Items        []LineItem `json:"items"`
	SubTotal     float64    `json:"subTotal"`
	COD          bool       `json:"cod"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
}

// Address is a shipping address.
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country,omitempty"`
}

// LineItem is one product line of an order.
type LineItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	SKU      string  `json:"sku,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	WeightKG float64 `json:"weightKg,omitempty"`
}

// Validate checks the fields without which no delivery can be attempted.
func (o *Order) Validate() error {
	if o == nil || o.ID == "" {
		return ErrMissingOrder
	}
	return nil
}
