package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spinhouse/delivery/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Processor performs one shipment attempt. *Orchestrator implements it.
type Processor interface {
	ProcessShipment(ctx context.Context, order *Order, notifyPhone string) (*ProcessResult, error)
}

// ControllerConfig bounds the waiting done by the Controller.
type ControllerConfig struct {
	// GatewayTimeout bounds one orchestrated shipment attempt.
	GatewayTimeout time.Duration

	// WaitTimeout bounds how long a call waits for another caller's
	// in-flight attempt before giving up with ErrCodeInProgress.
	WaitTimeout      time.Duration
	WaitPollInterval time.Duration

	// ReservationLease is how long a pending reservation is honoured before
	// another caller may take it over. It is at least GatewayTimeout plus a
	// grace period for persisting the outcome.
	ReservationLease time.Duration

	ProcessCacheSize int
}

const leaseGrace = 30 * time.Second

// RunOptions are per-call options of Run.
type RunOptions struct {
	// NotifyPhone receives shipment notifications. Empty disables them.
	NotifyPhone string

	// Store overrides the Controller's store for this call. Such calls
	// bypass the process cache and do not share in-process flights.
	Store Store
}

// Controller drives each order through pending -> created | failed using a
// Store, guaranteeing at most one shipment attempt per order across callers
// that share the store.
type Controller struct {
	processor Processor
	store     Store
	alerter   Alerter
	cache     *ProcessCache
	flights   singleflight.Group
	cfg       ControllerConfig
	logger    *otelzap.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// NewController creates a Controller. A nil store means NopStore and a nil
// alerter means NopAlerter.
func NewController(processor Processor, store Store, alerter Alerter, cfg ControllerConfig, logger *otelzap.Logger, metrics *telemetry.Metrics) *Controller {
	if store == nil {
		store = NopStore{}
	}
	if alerter == nil {
		alerter = NopAlerter{}
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	if cfg.WaitPollInterval <= 0 {
		cfg.WaitPollInterval = 500 * time.Millisecond
	}
	if cfg.ReservationLease <= cfg.GatewayTimeout {
		cfg.ReservationLease = cfg.GatewayTimeout + leaseGrace
	}
	return &Controller{
		processor: processor,
		store:     store,
		alerter:   alerter,
		cache:     NewProcessCache(cfg.ProcessCacheSize),
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("github.com/spinhouse/delivery/internal/delivery"),
		now:       time.Now,
	}
}

// Run delivers the order at most once. The only error is ErrMissingOrder;
// every other outcome, including failures, is reported in the Result.
func (c *Controller) Run(ctx context.Context, order *Order, opts RunOptions) (*Result, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	store, cache := c.store, c.cache
	if opts.Store != nil {
		store, cache = opts.Store, nil
	}

	ctx, span := c.tracer.Start(ctx, "delivery.Run", trace.WithAttributes(
		attribute.String("order.id", order.ID),
	))
	defer span.End()

	if res, ok := cache.Get(order.ID); ok {
		c.metrics.RecordDelivery("process_cache")
		span.SetAttributes(attribute.String("delivery.outcome", "process_cache"))
		return res, nil
	}

	// Caller cancellation never ends an attempt; only GatewayTimeout does.
	flightCtx := context.WithoutCancel(ctx)

	var res Result
	if opts.Store != nil {
		res = *c.run(flightCtx, order, opts.NotifyPhone, store, nil)
	} else {
		// Concurrent calls for one order inside this process share one attempt.
		leader := false
		v, _, _ := c.flights.Do(order.ID, func() (interface{}, error) {
			leader = true
			return c.run(flightCtx, order, opts.NotifyPhone, store, cache), nil
		})
		res = *(v.(*Result))
		if !leader && res.OK {
			res.FromCache = true
		}
	}

	outcome := outcomeOf(&res)
	c.metrics.RecordDelivery(outcome)
	span.SetAttributes(attribute.String("delivery.outcome", outcome))
	if !res.OK {
		span.SetStatus(codes.Error, res.Error)
	}
	return &res, nil
}

func (c *Controller) run(ctx context.Context, order *Order, notifyPhone string, store Store, cache *ProcessCache) *Result {
	logger := c.logger.Ctx(ctx)
	now := c.now().UTC()

	rec, err := store.GetDelivery(ctx, order.ID)
	switch {
	case err != nil:
		// A degraded read path must not block deliveries; the reservation
		// below still guards against duplicates.
		c.metrics.RecordStorageError("get")
		logger.Warn("Delivery lookup failed, treating as miss",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		rec = nil
	case rec != nil && rec.Status.HasShipment():
		return c.cached(rec, cache)
	case rec != nil && rec.Status == StatusPending && !rec.Reservable(now):
		return c.awaitInFlight(ctx, order.ID, store, cache)
	}

	won, err := store.CreateIfNotExists(ctx, order.ID, &Record{
		OrderID:    order.ID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Attempts:   1,
		LeaseUntil: now.Add(c.cfg.ReservationLease),
	})
	if err != nil {
		c.metrics.RecordStorageError("reserve")
		logger.Error("Delivery reservation failed",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		c.alert(ctx, order.ID, ErrCodeReservationFailed, map[string]any{"error": err.Error()})
		return failure(order.ID, ErrCodeReservationFailed)
	}

	if !won {
		return c.afterLostReservation(ctx, order.ID, store, cache)
	}

	if rec != nil && rec.Status == StatusPending {
		// The previous holder may have reached the gateway before dying.
		logger.Warn("Took over expired delivery reservation",
			zap.String("order_id", order.ID),
			zap.Time("lease_until", rec.LeaseUntil),
		)
		c.alert(ctx, order.ID, "stale_reservation", map[string]any{
			"previous_updated_at": rec.UpdatedAt,
			"previous_attempts":   rec.Attempts,
		})
	}

	return c.process(ctx, order, notifyPhone, store, cache)
}

func (c *Controller) afterLostReservation(ctx context.Context, orderID string, store Store, cache *ProcessCache) *Result {
	rec, err := store.GetDelivery(ctx, orderID)
	switch {
	case err != nil || rec == nil:
		// Never fall through to a second attempt on an unreadable record.
		if err != nil {
			c.metrics.RecordStorageError("get")
		}
		c.logger.Ctx(ctx).Warn("Reservation lost but record unreadable",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		details := map[string]any{"stage": "reservation_lost"}
		if err != nil {
			details["error"] = err.Error()
		}
		c.alert(ctx, orderID, ErrCodeReservationConflict, details)
		return failure(orderID, ErrCodeReservationConflict)
	case rec.Status.HasShipment():
		return c.cached(rec, cache)
	case rec.Status == StatusFailed:
		return failure(orderID, rec.Error)
	default:
		return c.awaitInFlight(ctx, orderID, store, cache)
	}
}

var (
	errStillPending = errors.New("delivery still pending")
	errLeaseExpired = errors.New("delivery reservation lease expired")
)

// awaitInFlight polls the store until another caller's attempt settles.
func (c *Controller) awaitInFlight(ctx context.Context, orderID string, store Store, cache *ProcessCache) *Result {
	poll := func() (*Record, error) {
		rec, err := store.GetDelivery(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, backoff.Permanent(errors.New("delivery record disappeared"))
		}
		if rec.Status == StatusPending {
			if rec.Reservable(c.now().UTC()) {
				return nil, backoff.Permanent(errLeaseExpired)
			}
			return nil, errStillPending
		}
		return rec, nil
	}

	rec, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.WaitPollInterval)),
		backoff.WithMaxElapsedTime(c.cfg.WaitTimeout),
	)
	if err != nil {
		c.logger.Ctx(ctx).Warn("Gave up waiting for in-flight delivery",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		code := ErrCodeReservationConflict
		if errors.Is(err, errStillPending) || errors.Is(err, errLeaseExpired) {
			code = ErrCodeInProgress
		}
		c.alert(ctx, orderID, code, map[string]any{
			"stage": "wait",
			"error": err.Error(),
		})
		return failure(orderID, code)
	}

	if rec.Status.HasShipment() {
		return c.cached(rec, cache)
	}
	return failure(orderID, rec.Error)
}

// process runs the shipment attempt for a reservation this call owns. ctx
// carries no caller cancellation.
func (c *Controller) process(ctx context.Context, order *Order, notifyPhone string, store Store, cache *ProcessCache) *Result {
	logger := c.logger.Ctx(ctx)

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	out, err := c.processor.ProcessShipment(attemptCtx, order, notifyPhone)
	cancel()

	if err != nil {
		msg := err.Error()
		logger.Error("Shipment creation failed",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		c.save(ctx, store, &Record{
			OrderID:   order.ID,
			Status:    StatusFailed,
			UpdatedAt: c.now().UTC(),
			Error:     msg,
		})
		c.alert(ctx, order.ID, "shipment_failed", map[string]any{
			"error":        msg,
			"notify_phone": notifyPhone,
		})
		return failure(order.ID, msg)
	}

	res := &Result{
		OK:       true,
		OrderID:  order.ID,
		Shipment: out.Shipment,
		Pickup:   out.Pickup,
		Raw:      out,
	}
	cache.Add(order.ID, res)

	c.save(ctx, store, &Record{
		OrderID:   order.ID,
		Status:    StatusCreated,
		UpdatedAt: c.now().UTC(),
		Shipment:  out.Shipment,
		Pickup:    out.Pickup,
	})

	logger.Info("Shipment created",
		zap.String("order_id", order.ID),
		zap.String("shipment_id", out.Shipment.ShipmentID),
		zap.Bool("dry_run", out.Shipment.DryRun),
	)
	return res
}

func (c *Controller) cached(rec *Record, cache *ProcessCache) *Result {
	res := resultFromRecord(rec)
	cache.Add(rec.OrderID, res)
	return res
}

// save is best-effort: a failed write is logged, never surfaced.
func (c *Controller) save(ctx context.Context, store Store, rec *Record) {
	if err := store.SaveDelivery(ctx, rec.OrderID, rec); err != nil {
		c.metrics.RecordStorageError("save")
		c.logger.Ctx(ctx).Error("Saving delivery record failed",
			zap.String("order_id", rec.OrderID),
			zap.String("status", string(rec.Status)),
			zap.Error(err),
		)
	}
}

// alert is fire-and-forget.
func (c *Controller) alert(ctx context.Context, orderID, issue string, details map[string]any) {
	ticketID, err := c.alerter.CreateTicket(context.WithoutCancel(ctx), orderID, issue, details)
	if err != nil {
		c.metrics.RecordSideEffectFailure("alert")
		c.logger.Ctx(ctx).Warn("Alert ticket creation failed",
			zap.String("order_id", orderID),
			zap.String("issue", issue),
			zap.Error(err),
		)
		return
	}
	c.logger.Ctx(ctx).Info("Alert ticket created",
		zap.String("order_id", orderID),
		zap.String("issue", issue),
		zap.String("ticket_id", ticketID),
	)
}

// Lookup returns the stored record for an order, or nil.
func (c *Controller) Lookup(ctx context.Context, orderID string) (*Record, error) {
	return c.store.GetDelivery(ctx, orderID)
}

func outcomeOf(res *Result) string {
	switch {
	case res.OK && res.FromCache:
		return "cached"
	case res.OK:
		return "created"
	case res.Error == ErrCodeReservationFailed, res.Error == ErrCodeReservationConflict, res.Error == ErrCodeInProgress:
		return res.Error
	default:
		return "failed"
	}
}
