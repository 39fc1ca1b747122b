// Package shiprocket provides integration with the Shiprocket shipping API.
package shiprocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spinhouse/delivery/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const gatewayName = "shiprocket"

// DefaultBaseURL is the Shiprocket external API root.
const DefaultBaseURL = "https://apiv2.shiprocket.in/v1/external"

const trackingURLFormat = "https://shiprocket.co/tracking/%s"

// Config holds Shiprocket configuration.
type Config struct {
	Email    string
	Password string
	BaseURL  string
	Timeout  time.Duration
	DryRun   bool // When true, uses the mock API client and never touches the network
}

// Client is the Shiprocket gateway client.
// It implements the shipper.Gateway interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Shiprocket client.
// If cfg.DryRun is true, it uses the mock API client and no credentials are needed.
// Otherwise, it uses the real HTTP API client, which logs in lazily.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.DryRun {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:  cfg.BaseURL,
			Email:    cfg.Email,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Shiprocket client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = otel.Tracer("github.com/spinhouse/delivery/pkg/shipper/shiprocket")
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the gateway name.
func (c *Client) Name() string {
	return gatewayName
}

// DryRun reports whether the client fabricates responses.
func (c *Client) DryRun() bool {
	return c.config.DryRun
}

// CreateShipment creates an adhoc order with Shiprocket.
func (c *Client) CreateShipment(ctx context.Context, payload *shipper.ShipmentPayload) (*shipper.ShipmentResult, error) {
	if payload == nil || payload.OrderID == "" {
		return nil, shipper.NewShipperError(gatewayName, shipper.CodeRejected, "payload has no order id").
			WithCause(shipper.ErrInvalidPayload)
	}

	ctx, span := c.tracer.Start(ctx, "shiprocket.CreateShipment", trace.WithAttributes(
		attribute.String("order.id", payload.OrderID),
		attribute.Bool("shiprocket.dry_run", c.config.DryRun),
	))
	defer span.End()

	c.logger.Ctx(ctx).Info("Creating Shiprocket order",
		zap.String("order_id", payload.OrderID),
		zap.Int("item_count", len(payload.Items)),
		zap.Bool("dry_run", c.config.DryRun),
	)

	apiResp, err := c.apiClient.CreateAdhocOrder(ctx, payloadToAPI(payload))
	if err != nil {
		err = asShipperError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order failed")
		c.logger.Ctx(ctx).Error("Shiprocket API error",
			zap.String("order_id", payload.OrderID),
			zap.Error(err),
		)
		return nil, err
	}

	result := orderResponseToShipper(apiResp, c.config.DryRun)
	span.SetAttributes(attribute.String("shiprocket.shipment_id", result.ShipmentID))
	return result, nil
}

// SchedulePickup requests a courier pickup for a shipment.
func (c *Client) SchedulePickup(ctx context.Context, shipmentID string) (*shipper.Pickup, error) {
	ctx, span := c.tracer.Start(ctx, "shiprocket.SchedulePickup", trace.WithAttributes(
		attribute.String("shiprocket.shipment_id", shipmentID),
	))
	defer span.End()

	c.logger.Ctx(ctx).Info("Scheduling Shiprocket pickup",
		zap.String("shipment_id", shipmentID),
	)

	apiResp, err := c.apiClient.GeneratePickup(ctx, &PickupRequest{ShipmentIDs: []string{shipmentID}})
	if err != nil {
		err = asShipperError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate pickup failed")
		c.logger.Ctx(ctx).Error("Shiprocket API error", zap.Error(err))
		return nil, err
	}

	return pickupResponseToShipper(apiResp, c.config.DryRun), nil
}

func asShipperError(err error) error {
	var shipperErr *shipper.ShipperError
	if errors.As(err, &shipperErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shipper.NewShipperError(gatewayName, shipper.CodeRejected, "API call failed").WithCause(err)
}

// ============================================================================
// Conversion helpers
// ============================================================================

func payloadToAPI(p *shipper.ShipmentPayload) *AdhocOrderRequest {
	items := make([]OrderItem, len(p.Items))
	for i, it := range p.Items {
		items[i] = OrderItem{
			Name:         it.Name,
			SKU:          it.SKU,
			Units:        it.Units,
			SellingPrice: it.SellingPrice,
		}
	}

	return &AdhocOrderRequest{
		OrderID:             p.OrderID,
		OrderDate:           p.OrderDate,
		PickupLocation:      p.PickupLocation,
		ChannelID:           p.ChannelID,
		BillingCustomerName: p.BillingName,
		BillingLastName:     p.BillingLastName,
		BillingAddress:      p.BillingAddress,
		BillingAddress2:     p.BillingAddress2,
		BillingCity:         p.BillingCity,
		BillingPincode:      p.BillingPincode,
		BillingState:        p.BillingState,
		BillingCountry:      p.BillingCountry,
		BillingEmail:        p.BillingEmail,
		BillingPhone:        p.BillingPhone,
		ShippingIsBilling:   p.ShippingIsBilling,
		OrderItems:          items,
		PaymentMethod:       string(p.PaymentMethod),
		SubTotal:            p.SubTotal,
		Length:              p.Length,
		Breadth:             p.Breadth,
		Height:              p.Height,
		Weight:              p.Weight,
	}
}

func orderResponseToShipper(resp *AdhocOrderResponse, dryRun bool) *shipper.ShipmentResult {
	result := &shipper.ShipmentResult{
		Gateway:        gatewayName,
		GatewayOrderID: resp.OrderID.String(),
		ShipmentID:     resp.ShipmentID.String(),
		Status:         resp.Status,
		AWBCode:        resp.AWBCode.String(),
		CourierID:      resp.CourierCompanyID.String(),
		CourierName:    resp.CourierName,
		DryRun:         dryRun,
		CreatedAt:      time.Now().UTC(),
	}
	if result.AWBCode != "" {
		result.TrackingURL = fmt.Sprintf(trackingURLFormat, result.AWBCode)
	}
	return result
}

func pickupResponseToShipper(resp *PickupResponse, dryRun bool) *shipper.Pickup {
	status := "requested"
	if resp.PickupStatus == 1 {
		status = "scheduled"
	}
	return &shipper.Pickup{
		Status:        status,
		ScheduledDate: resp.Response.PickupScheduledDate,
		TokenNumber:   resp.Response.PickupTokenNumber,
		DryRun:        dryRun,
	}
}

// Ensure Client implements shipper.Gateway interface
var _ shipper.Gateway = (*Client)(nil)
