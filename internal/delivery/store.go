package delivery

import (
	"context"
)

// Store persists delivery records. Every implementation must honour the
// same contract:
//
//   - GetDelivery returns (nil, nil) when no record exists; errors are
//     reserved for infrastructure failures.
//   - CreateIfNotExists atomically writes seed when no record exists for
//     orderID, or when the existing record is Reservable at seed.UpdatedAt
//     (a failed delivery, or a pending one whose lease ran out). It returns
//     true only to the single caller whose write took effect. A re-reserved
//     record keeps its CreatedAt and has Attempts incremented.
//   - SaveDelivery upserts status, shipment, pickup and error and clears the
//     lease. CreatedAt and Attempts of an existing record are preserved.
type Store interface {
	GetDelivery(ctx context.Context, orderID string) (*Record, error)
	CreateIfNotExists(ctx context.Context, orderID string, seed *Record) (bool, error)
	SaveDelivery(ctx context.Context, orderID string, rec *Record) error
}

// NopStore is the Store used when no persistence is configured. Every
// reservation succeeds, so only the Controller's process cache guards
// against duplicates.
type NopStore struct{}

// GetDelivery always misses.
func (NopStore) GetDelivery(context.Context, string) (*Record, error) { return nil, nil }

// CreateIfNotExists always wins.
func (NopStore) CreateIfNotExists(context.Context, string, *Record) (bool, error) { return true, nil }

// SaveDelivery discards the record.
func (NopStore) SaveDelivery(context.Context, string, *Record) error { return nil }

var _ Store = NopStore{}
