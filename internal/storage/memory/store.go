// Package memory provides an in-process delivery store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spinhouse/delivery/internal/delivery"
)

// Store keeps delivery records in a map. It is safe for concurrent use and
// never shares record pointers with callers.
type Store struct {
	mu      sync.Mutex
	records map[string]*delivery.Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[string]*delivery.Record)}
}

// GetDelivery returns a copy of the stored record, or nil.
func (s *Store) GetDelivery(_ context.Context, orderID string) (*delivery.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[orderID].Clone(), nil
}

// CreateIfNotExists stores seed when the order has no record, a failed one,
// or a pending one whose lease expired by seed.UpdatedAt.
func (s *Store) CreateIfNotExists(_ context.Context, orderID string, seed *delivery.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[orderID]
	if ok && !existing.Reservable(seed.UpdatedAt) {
		return false, nil
	}

	rec := seed.Clone()
	rec.OrderID = orderID
	if ok {
		rec.CreatedAt = existing.CreatedAt
		rec.Attempts = existing.Attempts + 1
	}
	s.records[orderID] = rec
	return true, nil
}

// SaveDelivery upserts the record, keeping CreatedAt and Attempts of an
// existing one.
func (s *Store) SaveDelivery(_ context.Context, orderID string, rec *delivery.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := rec.Clone()
	next.OrderID = orderID
	next.LeaseUntil = time.Time{}
	if existing, ok := s.records[orderID]; ok {
		next.CreatedAt = existing.CreatedAt
		next.Attempts = existing.Attempts
	} else if next.CreatedAt.IsZero() {
		next.CreatedAt = next.UpdatedAt
	}
	s.records[orderID] = next
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ delivery.Store = (*Store)(nil)
