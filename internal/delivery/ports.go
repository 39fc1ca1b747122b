package delivery

import (
	"context"
)

// Notifier delivers a customer-facing message. Failures are logged by the
// caller and never change the outcome of a delivery.
type Notifier interface {
	Notify(ctx context.Context, phone, message string) error
}

// Alerter raises an operations ticket. Failures are logged by the caller
// and never change the outcome of a delivery.
type Alerter interface {
	CreateTicket(ctx context.Context, orderID, issue string, details map[string]any) (string, error)
}

// NopNotifier drops every message.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, string, string) error { return nil }

// NopAlerter drops every ticket.
type NopAlerter struct{}

// CreateTicket does nothing.
func (NopAlerter) CreateTicket(context.Context, string, string, map[string]any) (string, error) {
	return "", nil
}
