package shiprocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/spinhouse/delivery/pkg/shipper"
	"github.com/spinhouse/delivery/pkg/shipper/shiprocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newTestClient(mockClient *shiprocket.MockAPIClient) *shiprocket.Client {
	logger := otelzap.New(zap.NewNop())
	return shiprocket.NewWithAPIClient(
		shiprocket.Config{DryRun: true},
		mockClient,
		logger,
		nil,
	)
}

func testPayload(orderID string) *shipper.ShipmentPayload {
	return &shipper.ShipmentPayload{
		OrderID:        orderID,
		OrderDate:      "2026-10-19 10:00",
		PickupLocation: "Primary",
		BillingName:    "Asha",
		BillingAddress: "12 MG Road",
		BillingCity:    "Bengaluru",
		BillingPincode: "560001",
		BillingState:   "Karnataka",
		BillingCountry: "India",
		BillingPhone:   "9876543210",
		Items: []shipper.OrderItem{
			{Name: "Racket", SKU: "i1", Units: 1, SellingPrice: 1500},
		},
		PaymentMethod: shipper.PaymentPrepaid,
		SubTotal:      1500,
		Length:        10,
		Breadth:       10,
		Height:        10,
		Weight:        0.5,
	}
}

func TestClient_CreateShipment_DryRunDeterministic(t *testing.T) {
	mockAPI := shiprocket.NewMockAPIClient()
	client := newTestClient(mockAPI)

	first, err := client.CreateShipment(context.Background(), testPayload("ORD-1"))
	require.NoError(t, err)
	second, err := client.CreateShipment(context.Background(), testPayload("ORD-1"))
	require.NoError(t, err)

	assert.True(t, first.DryRun)
	assert.Equal(t, "shiprocket", first.Gateway)
	assert.Equal(t, "DRY-ORD-1", first.GatewayOrderID)
	assert.NotEmpty(t, first.ShipmentID)
	assert.Equal(t, first.ShipmentID, second.ShipmentID)
	assert.Equal(t, first.AWBCode, second.AWBCode)
	assert.Contains(t, first.TrackingURL, first.AWBCode)
	assert.Equal(t, int64(2), mockAPI.CreateCalls())
}

func TestClient_CreateShipment_DifferentOrdersDiffer(t *testing.T) {
	client := newTestClient(shiprocket.NewMockAPIClient())

	a, err := client.CreateShipment(context.Background(), testPayload("ORD-1"))
	require.NoError(t, err)
	b, err := client.CreateShipment(context.Background(), testPayload("ORD-2"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ShipmentID, b.ShipmentID)
}

func TestClient_CreateShipment_NilPayload(t *testing.T) {
	mockAPI := shiprocket.NewMockAPIClient()
	client := newTestClient(mockAPI)

	_, err := client.CreateShipment(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, shipper.ErrInvalidPayload))
	assert.Equal(t, int64(0), mockAPI.CreateCalls())
}

func TestClient_CreateShipment_APIError(t *testing.T) {
	mockAPI := shiprocket.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)

	_, err := client.CreateShipment(context.Background(), testPayload("ORD-1"))

	require.Error(t, err)
	var shipperErr *shipper.ShipperError
	require.True(t, errors.As(err, &shipperErr))
	assert.Equal(t, "shiprocket", shipperErr.Gateway)
	assert.False(t, shipper.IsRetryable(err))
}

func TestClient_CreateShipment_CustomMock(t *testing.T) {
	mockAPI := shiprocket.NewMockAPIClient()
	mockAPI.OnCreateAdhocOrder = func(ctx context.Context, req *shiprocket.AdhocOrderRequest) (*shiprocket.AdhocOrderResponse, error) {
		assert.Equal(t, "Prepaid", req.PaymentMethod)
		require.Len(t, req.OrderItems, 1)
		assert.Equal(t, "i1", req.OrderItems[0].SKU)
		return &shiprocket.AdhocOrderResponse{
			OrderID:     "9001",
			ShipmentID:  "7001",
			Status:      "NEW",
			AWBCode:     "AWB123",
			CourierName: "Delhivery",
		}, nil
	}
	client := newTestClient(mockAPI)

	result, err := client.CreateShipment(context.Background(), testPayload("ORD-1"))

	require.NoError(t, err)
	assert.Equal(t, "7001", result.ShipmentID)
	assert.Equal(t, "Delhivery", result.CourierName)
	assert.Equal(t, "https://shiprocket.co/tracking/AWB123", result.TrackingURL)
}

func TestClient_SchedulePickup(t *testing.T) {
	mockAPI := shiprocket.NewMockAPIClient()
	client := newTestClient(mockAPI)

	pickup, err := client.SchedulePickup(context.Background(), "7001")

	require.NoError(t, err)
	assert.Equal(t, "scheduled", pickup.Status)
	assert.Equal(t, "DRY-PICKUP-7001", pickup.TokenNumber)
	assert.True(t, pickup.DryRun)
	assert.Equal(t, int64(1), mockAPI.PickupCalls())
}

func TestNew_DryRunNeverTouchesNetwork(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := shiprocket.New(shiprocket.Config{
		BaseURL: srv.URL,
		DryRun:  true,
	}, otelzap.New(zap.NewNop()), nil)

	result, err := client.CreateShipment(context.Background(), testPayload("ORD-1"))

	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.True(t, client.DryRun())
	assert.Equal(t, int64(0), hits.Load())
}

func TestNew_LiveWithoutCredentials(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client := shiprocket.New(shiprocket.Config{BaseURL: srv.URL}, otelzap.New(zap.NewNop()), nil)

	_, err := client.CreateShipment(context.Background(), testPayload("ORD-1"))

	require.Error(t, err)
	assert.True(t, shipper.IsAuthError(err))
	assert.Equal(t, int64(0), hits.Load())
}

func TestClient_Name(t *testing.T) {
	client := newTestClient(shiprocket.NewMockAPIClient())
	assert.Equal(t, "shiprocket", client.Name())
}
