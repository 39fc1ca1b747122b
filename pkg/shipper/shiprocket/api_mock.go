package shiprocket

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync/atomic"
	"time"
)

// MockAPIClient is the dry-run implementation of APIClient. It never
// authenticates nor touches the network, and its responses are a pure
// function of the request.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateAdhocOrder func(ctx context.Context, req *AdhocOrderRequest) (*AdhocOrderResponse, error)
	OnGeneratePickup   func(ctx context.Context, req *PickupRequest) (*PickupResponse, error)

	createCalls atomic.Int64
	pickupCalls atomic.Int64
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// CreateAdhocOrder returns a deterministic mock order.
func (m *MockAPIClient) CreateAdhocOrder(ctx context.Context, req *AdhocOrderRequest) (*AdhocOrderResponse, error) {
	m.createCalls.Add(1)

	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}

	if m.OnCreateAdhocOrder != nil {
		return m.OnCreateAdhocOrder(ctx, req)
	}

	h := orderHash(req.OrderID)

	return &AdhocOrderResponse{
		OrderID:          FlexString("DRY-" + req.OrderID),
		ShipmentID:       FlexString(strconv.FormatUint(uint64(h), 10)),
		Status:           "NEW",
		StatusCode:       1,
		AWBCode:          FlexString(fmt.Sprintf("DRYRUN%010d", h)),
		CourierCompanyID: "0",
		CourierName:      "Dry Run Courier",
	}, nil
}

// GeneratePickup returns a deterministic mock pickup confirmation.
func (m *MockAPIClient) GeneratePickup(ctx context.Context, req *PickupRequest) (*PickupResponse, error) {
	m.pickupCalls.Add(1)

	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}

	if m.OnGeneratePickup != nil {
		return m.OnGeneratePickup(ctx, req)
	}

	var id string
	if len(req.ShipmentIDs) > 0 {
		id = req.ShipmentIDs[0]
	}

	return &PickupResponse{
		PickupStatus: 1,
		Response: PickupResponseBody{
			PickupScheduledDate: "dry-run",
			PickupTokenNumber:   "DRY-PICKUP-" + id,
			Status:              3,
			Data:                "Pickup not requested (dry run)",
		},
	}, nil
}

// CreateCalls returns the number of CreateAdhocOrder invocations.
func (m *MockAPIClient) CreateCalls() int64 {
	return m.createCalls.Load()
}

// PickupCalls returns the number of GeneratePickup invocations.
func (m *MockAPIClient) PickupCalls() int64 {
	return m.pickupCalls.Load()
}

func (m *MockAPIClient) wait(ctx context.Context) error {
	if m.SimulateLatency <= 0 {
		return nil
	}
	select {
	case <-time.After(m.SimulateLatency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func orderHash(orderID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return h.Sum32()
}

var _ APIClient = (*MockAPIClient)(nil)
