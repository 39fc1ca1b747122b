package delivery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/spinhouse/delivery/pkg/shipper"
	"github.com/spinhouse/delivery/pkg/shipper/mock"
	"github.com/spinhouse/delivery/pkg/shipper/shiprocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, phone, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, phone+": "+message)
	return n.err
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func fastRetry(attempts int) delivery.OrchestratorConfig {
	return delivery.OrchestratorConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestProcessShipment_Success(t *testing.T) {
	gw := mock.New("mock")
	notifier := &recordingNotifier{}
	cfg := fastRetry(1)
	cfg.SchedulePickup = true
	orch := delivery.NewOrchestrator(gw, notifier, cfg, testLogger(), nil)

	out, err := orch.ProcessShipment(context.Background(), racketOrder("ORD-1"), "+911111111111")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "mock-shipment-ORD-1", out.Shipment.ShipmentID)
	require.NotNil(t, out.Pickup)
	assert.Equal(t, "PICKUP-mock-shipment-ORD-1", out.Pickup.TokenNumber)

	msgs := notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "+911111111111: Your order ORD-1 has been shipped")
	assert.Contains(t, msgs[0], "AWB-ORD-1")

	payloads := gw.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, "ORD-1", payloads[0].OrderID)
	assert.Equal(t, "Primary", payloads[0].PickupLocation)
}

func TestProcessShipment_PickupFailureIsNotFatal(t *testing.T) {
	gw := mock.New("mock")
	gw.PickupErr = errors.New("no pickup slots")
	cfg := fastRetry(1)
	cfg.SchedulePickup = true
	orch := delivery.NewOrchestrator(gw, nil, cfg, testLogger(), nil)

	out, err := orch.ProcessShipment(context.Background(), racketOrder("ORD-2"), "")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Nil(t, out.Pickup)
	assert.Equal(t, 1, gw.PickupCalls())
}

func TestProcessShipment_PickupDisabled(t *testing.T) {
	gw := mock.New("mock")
	orch := delivery.NewOrchestrator(gw, nil, fastRetry(1), testLogger(), nil)

	out, err := orch.ProcessShipment(context.Background(), racketOrder("ORD-3"), "")
	require.NoError(t, err)
	assert.Nil(t, out.Pickup)
	assert.Equal(t, 0, gw.PickupCalls())
}

func TestProcessShipment_NotificationFailureIsSwallowed(t *testing.T) {
	gw := mock.New("mock")
	notifier := &recordingNotifier{err: errors.New("twilio down")}
	orch := delivery.NewOrchestrator(gw, notifier, fastRetry(1), testLogger(), nil)

	out, err := orch.ProcessShipment(context.Background(), racketOrder("ORD-4"), "+912222222222")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Len(t, notifier.Messages(), 1)
}

func TestProcessShipment_GatewayErrorIsReturnedUnchanged(t *testing.T) {
	gwErr := shipper.NewShipperError("mock", shipper.CodeRejected, "invalid pincode").WithStatusCode(422)
	gw := mock.New("mock")
	gw.Fail = gwErr
	notifier := &recordingNotifier{}
	orch := delivery.NewOrchestrator(gw, notifier, fastRetry(3), testLogger(), nil)

	out, err := orch.ProcessShipment(context.Background(), racketOrder("ORD-5"), "+913333333333")
	assert.Nil(t, out)
	assert.Same(t, gwErr, err)
	assert.Equal(t, 1, gw.CreateCalls(), "non-retryable errors are not retried")

	msgs := notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "could not book a shipment for order ORD-5")
}

func TestProcessShipment_RetriesRetryableErrors(t *testing.T) {
	gw := mock.New("mock")
	gw.Fail = shipper.NewShipperError("mock", shipper.CodeRejected, "too many requests").WithStatusCode(429)
	gw.FailTimes = 2
	orch := delivery.NewOrchestrator(gw, nil, fastRetry(3), testLogger(), nil)

	out, err := orch.ProcessShipment(context.Background(), racketOrder("ORD-6"), "")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 3, gw.CreateCalls())
}

func TestProcessShipment_RetryIsBounded(t *testing.T) {
	gwErr := shipper.NewShipperError("mock", shipper.CodeRejected, "too many requests").WithStatusCode(429)
	gw := mock.New("mock")
	gw.Fail = gwErr
	orch := delivery.NewOrchestrator(gw, nil, fastRetry(2), testLogger(), nil)

	_, err := orch.ProcessShipment(context.Background(), racketOrder("ORD-7"), "")
	assert.Same(t, gwErr, err)
	assert.Equal(t, 2, gw.CreateCalls())
}

func TestProcessShipment_DoesNotMutateOrder(t *testing.T) {
	order := racketOrder("ORD-8")
	order.Items[0].Quantity = 0
	before := *order
	beforeItems := append([]delivery.LineItem(nil), order.Items...)

	orch := delivery.NewOrchestrator(mock.New("mock"), nil, fastRetry(1), testLogger(), nil)
	_, err := orch.ProcessShipment(context.Background(), order, "")
	require.NoError(t, err)

	assert.Equal(t, beforeItems, order.Items)
	assert.Equal(t, before.SubTotal, order.SubTotal)
}

func TestProcessShipment_SlowCreateIsSentOnce(t *testing.T) {
	var creates atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok-1"}`))
	})
	mux.HandleFunc("/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		creates.Add(1)
		time.Sleep(150 * time.Millisecond)
		w.Write([]byte(`{"order_id":1,"shipment_id":2,"status":"NEW"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := shiprocket.New(shiprocket.Config{
		Email:    "ops@spinhouse.in",
		Password: "secret",
		BaseURL:  srv.URL,
		Timeout:  50 * time.Millisecond,
	}, testLogger(), nil)
	orch := delivery.NewOrchestrator(gw, nil, fastRetry(3), testLogger(), nil)

	_, err := orch.ProcessShipment(context.Background(), racketOrder("ORD-9"), "")
	require.Error(t, err)
	assert.Equal(t, int64(1), creates.Load(), "a create whose outcome is unknown is never repeated")
}
