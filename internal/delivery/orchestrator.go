package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spinhouse/delivery/internal/telemetry"
	"github.com/spinhouse/delivery/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// OrchestratorConfig tunes payload defaults and the gateway retry policy.
type OrchestratorConfig struct {
	Defaults PayloadDefaults

	// MaxAttempts caps CreateShipment attempts for retryable errors. Values
	// below 1 mean a single attempt.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// SchedulePickup requests a courier pickup after a shipment is created.
	SchedulePickup bool
}

// Orchestrator performs one shipment attempt for an order: it builds the
// gateway payload, calls the gateway and notifies the customer. It knows
// nothing about idempotency; every call is a real (or dry-run) attempt.
type Orchestrator struct {
	gateway  shipper.Gateway
	notifier Notifier
	cfg      OrchestratorConfig
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator. A nil notifier disables notifications.
func NewOrchestrator(gateway shipper.Gateway, notifier Notifier, cfg OrchestratorConfig, logger *otelzap.Logger, metrics *telemetry.Metrics) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Orchestrator{
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// ProcessShipment creates a shipment for the order. On failure the customer
// is notified and the gateway error is returned unchanged.
func (o *Orchestrator) ProcessShipment(ctx context.Context, order *Order, notifyPhone string) (*ProcessResult, error) {
	payload := BuildPayload(order, o.cfg.Defaults, o.now())

	shipment, err := o.createWithRetry(ctx, payload)
	if err != nil {
		o.notify(ctx, order.ID, notifyPhone, failureMessage(order))
		return nil, err
	}

	var pickup *shipper.Pickup
	if o.cfg.SchedulePickup && shipment.ShipmentID != "" {
		pickup, err = o.gateway.SchedulePickup(ctx, shipment.ShipmentID)
		if err != nil {
			o.logger.Ctx(ctx).Warn("Pickup scheduling failed",
				zap.String("order_id", order.ID),
				zap.String("shipment_id", shipment.ShipmentID),
				zap.Error(err),
			)
			pickup = nil
		}
	}

	o.notify(ctx, order.ID, notifyPhone, successMessage(order, shipment))

	return &ProcessResult{OK: true, Shipment: shipment, Pickup: pickup}, nil
}

func (o *Orchestrator) createWithRetry(ctx context.Context, payload *shipper.ShipmentPayload) (*shipper.ShipmentResult, error) {
	attempt := 0
	operation := func() (*shipper.ShipmentResult, error) {
		attempt++
		start := time.Now()
		res, err := o.gateway.CreateShipment(ctx, payload)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			o.metrics.RecordGatewayCall(o.gateway.Name(), "error", elapsed)
			if !shipper.IsRetryable(err) || attempt >= o.cfg.MaxAttempts {
				return nil, backoff.Permanent(err)
			}
			o.logger.Ctx(ctx).Warn("Retrying shipment creation",
				zap.String("order_id", payload.OrderID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, err
		}
		o.metrics.RecordGatewayCall(o.gateway.Name(), "ok", elapsed)
		return res, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.InitialBackoff
	b.MaxInterval = o.cfg.MaxBackoff

	// MaxAttempts is enforced by the operation itself.
	return backoff.Retry(ctx, operation, backoff.WithBackOff(b))
}

// notify is best-effort and outlives the caller's cancellation.
func (o *Orchestrator) notify(ctx context.Context, orderID, phone, message string) {
	if phone == "" {
		return
	}
	if err := o.notifier.Notify(context.WithoutCancel(ctx), phone, message); err != nil {
		o.metrics.RecordSideEffectFailure("notification")
		o.logger.Ctx(ctx).Warn("Notification failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

func successMessage(order *Order, s *shipper.ShipmentResult) string {
	msg := fmt.Sprintf("Your order %s has been shipped", order.ID)
	if s.CourierName != "" {
		msg += " via " + s.CourierName
	}
	if s.AWBCode != "" {
		msg += ". AWB: " + s.AWBCode
	}
	if s.TrackingURL != "" {
		msg += ". Track it at " + s.TrackingURL
	}
	return msg + "."
}

func failureMessage(order *Order) string {
	return fmt.Sprintf("We could not book a shipment for order %s yet. Our team has been alerted and will follow up shortly.", order.ID)
}
