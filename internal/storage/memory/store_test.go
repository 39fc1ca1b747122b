package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/spinhouse/delivery/pkg/shipper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(orderID string) *delivery.Record {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &delivery.Record{
		OrderID:   orderID,
		Status:    delivery.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Attempts:   1,
		LeaseUntil: now.Add(time.Minute),
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := New()
	rec, err := s.GetDelivery(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_CreateIfNotExists_SingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 20
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.CreateIfNotExists(ctx, "ORD-1", seed("ORD-1"))
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, s.Len())
}

func TestStore_CreateIfNotExists_ReReservesFailed(t *testing.T) {
	s := New()
	ctx := context.Background()

	won, err := s.CreateIfNotExists(ctx, "ORD-1", seed("ORD-1"))
	require.NoError(t, err)
	require.True(t, won)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveDelivery(ctx, "ORD-1", &delivery.Record{
		OrderID:   "ORD-1",
		Status:    delivery.StatusFailed,
		UpdatedAt: created.Add(time.Minute),
		Error:     "gateway down",
	}))

	retry := seed("ORD-1")
	retry.CreatedAt = created.Add(time.Hour)
	won, err = s.CreateIfNotExists(ctx, "ORD-1", retry)
	require.NoError(t, err)
	assert.True(t, won)

	rec, err := s.GetDelivery(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusPending, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, created, rec.CreatedAt)

	won, err = s.CreateIfNotExists(ctx, "ORD-1", seed("ORD-1"))
	require.NoError(t, err)
	assert.False(t, won, "pending record must not be re-reserved")
}

func TestStore_SavePreservesCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CreateIfNotExists(ctx, "ORD-1", seed("ORD-1"))
	require.NoError(t, err)

	require.NoError(t, s.SaveDelivery(ctx, "ORD-1", &delivery.Record{
		Status:    delivery.StatusCreated,
		UpdatedAt: time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC),
		Shipment:  &shipper.ShipmentResult{ShipmentID: "S-1"},
	}))

	rec, err := s.GetDelivery(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCreated, rec.Status)
	assert.Equal(t, "ORD-1", rec.OrderID)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), rec.CreatedAt)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, "S-1", rec.Shipment.ShipmentID)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveDelivery(ctx, "ORD-1", &delivery.Record{
		Status:   delivery.StatusCreated,
		Shipment: &shipper.ShipmentResult{ShipmentID: "S-1"},
	}))

	rec, err := s.GetDelivery(ctx, "ORD-1")
	require.NoError(t, err)
	rec.Shipment.ShipmentID = "mutated"

	again, err := s.GetDelivery(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "S-1", again.Shipment.ShipmentID)
}

func TestStore_CreateIfNotExists_TakesOverExpiredLease(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.True(t, mustReserve(t, s, seed("ORD-1")))

	stillLeased := seed("ORD-1")
	stillLeased.UpdatedAt = stillLeased.UpdatedAt.Add(30 * time.Second)
	assert.False(t, mustReserve(t, s, stillLeased))

	expired := seed("ORD-1")
	expired.UpdatedAt = expired.UpdatedAt.Add(2 * time.Minute)
	expired.LeaseUntil = expired.UpdatedAt.Add(time.Minute)
	assert.True(t, mustReserve(t, s, expired))

	rec, err := s.GetDelivery(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusPending, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, expired.LeaseUntil, rec.LeaseUntil)
}

func TestStore_SaveClearsLease(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.True(t, mustReserve(t, s, seed("ORD-1")))

	require.NoError(t, s.SaveDelivery(ctx, "ORD-1", &delivery.Record{Status: delivery.StatusCreated}))

	rec, err := s.GetDelivery(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, rec.LeaseUntil.IsZero())
}

func mustReserve(t *testing.T, s *Store, rec *delivery.Record) bool {
	t.Helper()
	won, err := s.CreateIfNotExists(context.Background(), rec.OrderID, rec)
	require.NoError(t, err)
	return won
}
