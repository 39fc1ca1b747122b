// Package mock provides a mock gateway implementation for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spinhouse/delivery/pkg/shipper"
)

// Client is a mock gateway that records every call.
type Client struct {
	name string

	// Latency delays each CreateShipment call, widening race windows in tests.
	Latency time.Duration

	// Fail, when set, is returned by CreateShipment. FailTimes limits how
	// many calls fail before success (0 = always).
	Fail      error
	FailTimes int

	// PickupErr, when set, is returned by SchedulePickup.
	PickupErr error

	createCalls atomic.Int64
	pickupCalls atomic.Int64

	mu       sync.Mutex
	payloads []*shipper.ShipmentPayload
}

// New creates a new mock gateway.
func New(name string) *Client {
	return &Client{name: name}
}

// Name returns the gateway name.
func (c *Client) Name() string {
	return c.name
}

// CreateShipment creates a mock shipment. The shipment identity depends only
// on the order ID.
func (c *Client) CreateShipment(ctx context.Context, payload *shipper.ShipmentPayload) (*shipper.ShipmentResult, error) {
	n := c.createCalls.Add(1)

	c.mu.Lock()
	c.payloads = append(c.payloads, payload)
	c.mu.Unlock()

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.Fail != nil && (c.FailTimes == 0 || int(n) <= c.FailTimes) {
		return nil, c.Fail
	}

	return &shipper.ShipmentResult{
		Gateway:        c.name,
		GatewayOrderID: fmt.Sprintf("%s-order-%s", c.name, payload.OrderID),
		ShipmentID:     fmt.Sprintf("%s-shipment-%s", c.name, payload.OrderID),
		Status:         "NEW",
		AWBCode:        fmt.Sprintf("AWB-%s", payload.OrderID),
		CourierName:    fmt.Sprintf("%s Express", c.name),
		TrackingURL:    fmt.Sprintf("https://track.%s.mock/%s", c.name, payload.OrderID),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// SchedulePickup returns a mock pickup.
func (c *Client) SchedulePickup(ctx context.Context, shipmentID string) (*shipper.Pickup, error) {
	c.pickupCalls.Add(1)
	if c.PickupErr != nil {
		return nil, c.PickupErr
	}
	return &shipper.Pickup{
		Status:        "scheduled",
		ScheduledDate: time.Now().Add(24 * time.Hour).Format("2006-01-02"),
		TokenNumber:   "PICKUP-" + shipmentID,
	}, nil
}

// CreateCalls returns the number of CreateShipment invocations.
func (c *Client) CreateCalls() int {
	return int(c.createCalls.Load())
}

// PickupCalls returns the number of SchedulePickup invocations.
func (c *Client) PickupCalls() int {
	return int(c.pickupCalls.Load())
}

// Payloads returns the payloads received so far.
func (c *Client) Payloads() []*shipper.ShipmentPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*shipper.ShipmentPayload, len(c.payloads))
	copy(out, c.payloads)
	return out
}

var _ shipper.Gateway = (*Client)(nil)
