// Package postgres implements the delivery store on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/spinhouse/delivery/pkg/shipper"
)

// Schema contains the DDL for the deliveries table.
//
//go:embed schema.sql
var Schema string

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a connection pool for databaseURL and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// Migrate executes the embedded schema.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

const selectDelivery = `
SELECT order_id, status, created_at, updated_at, shipment, pickup, error, attempts, lease_until
FROM deliveries
WHERE order_id = $1`

// The conditional upsert only touches failed rows and pending rows whose
// lease expired, so exactly one caller sees a row affected.
const reserveDelivery = `
INSERT INTO deliveries (order_id, status, created_at, updated_at, error, attempts, lease_until)
VALUES ($1, $2, $3, $4, '', $5, $6)
ON CONFLICT (order_id) DO UPDATE
SET status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at,
    shipment = NULL,
    pickup = NULL,
    error = '',
    attempts = deliveries.attempts + 1,
    lease_until = EXCLUDED.lease_until
WHERE deliveries.status = 'failed'
   OR (deliveries.status = 'pending' AND COALESCE(deliveries.lease_until, '-infinity') <= EXCLUDED.updated_at)`

const upsertDelivery = `
INSERT INTO deliveries (order_id, status, created_at, updated_at, shipment, pickup, error, attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (order_id) DO UPDATE
SET status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at,
    shipment = EXCLUDED.shipment,
    pickup = EXCLUDED.pickup,
    error = EXCLUDED.error,
    lease_until = NULL`

// Store is a delivery.Store backed by the deliveries table.
type Store struct {
	db DB
}

// New creates a Store over db, usually a *pgxpool.Pool.
func New(db DB) *Store {
	return &Store{db: db}
}

// GetDelivery returns the record for orderID, or nil when there is none.
func (s *Store) GetDelivery(ctx context.Context, orderID string) (*delivery.Record, error) {
	var (
		rec      delivery.Record
		status   string
		shipment []byte
		pickup   []byte
		lease    *time.Time
	)
	err := s.db.QueryRow(ctx, selectDelivery, orderID).Scan(
		&rec.OrderID, &status, &rec.CreatedAt, &rec.UpdatedAt,
		&shipment, &pickup, &rec.Error, &rec.Attempts, &lease,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying delivery %s: %w", orderID, err)
	}
	rec.Status = delivery.Status(status)
	if lease != nil {
		rec.LeaseUntil = *lease
	}

	if len(shipment) > 0 {
		rec.Shipment = &shipper.ShipmentResult{}
		if err := json.Unmarshal(shipment, rec.Shipment); err != nil {
			return nil, fmt.Errorf("decoding shipment of %s: %w", orderID, err)
		}
	}
	if len(pickup) > 0 {
		rec.Pickup = &shipper.Pickup{}
		if err := json.Unmarshal(pickup, rec.Pickup); err != nil {
			return nil, fmt.Errorf("decoding pickup of %s: %w", orderID, err)
		}
	}
	return &rec, nil
}

// CreateIfNotExists inserts seed, or takes over a failed row or a pending
// row whose lease expired.
func (s *Store) CreateIfNotExists(ctx context.Context, orderID string, seed *delivery.Record) (bool, error) {
	createdAt, updatedAt := timestamps(seed)
	attempts := seed.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lease *time.Time
	if !seed.LeaseUntil.IsZero() {
		lease = &seed.LeaseUntil
	}

	tag, err := s.db.Exec(ctx, reserveDelivery,
		orderID, string(seed.Status), createdAt, updatedAt, attempts, lease,
	)
	if err != nil {
		return false, fmt.Errorf("reserving delivery %s: %w", orderID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveDelivery upserts the record.
func (s *Store) SaveDelivery(ctx context.Context, orderID string, rec *delivery.Record) error {
	shipment, err := marshalNullable(rec.Shipment)
	if err != nil {
		return fmt.Errorf("encoding shipment of %s: %w", orderID, err)
	}
	pickup, err := marshalNullable(rec.Pickup)
	if err != nil {
		return fmt.Errorf("encoding pickup of %s: %w", orderID, err)
	}

	createdAt, updatedAt := timestamps(rec)
	attempts := rec.Attempts
	if attempts < 1 {
		attempts = 1
	}

	if _, err := s.db.Exec(ctx, upsertDelivery,
		orderID, string(rec.Status), createdAt, updatedAt, shipment, pickup, rec.Error, attempts,
	); err != nil {
		return fmt.Errorf("saving delivery %s: %w", orderID, err)
	}
	return nil
}

func timestamps(rec *delivery.Record) (createdAt, updatedAt time.Time) {
	updatedAt = rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	createdAt = rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = updatedAt
	}
	return createdAt, updatedAt
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

var _ delivery.Store = (*Store)(nil)
