// Package storage selects the delivery store configured for the service.
package storage

import (
	"context"
	"fmt"

	"github.com/spinhouse/delivery/internal/config"
	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/spinhouse/delivery/internal/storage/dynamo"
	"github.com/spinhouse/delivery/internal/storage/memory"
	"github.com/spinhouse/delivery/internal/storage/postgres"
)

// Open returns the store for cfg.StorageBackend and a function releasing
// its resources.
func Open(ctx context.Context, cfg *config.Config) (delivery.Store, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		return memory.New(), func() {}, nil

	case config.StorageNone:
		return delivery.NopStore{}, func() {}, nil

	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil

	case config.StorageDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		return dynamo.New(client, cfg.DynamoDBTable), func() {}, nil
	}
	return nil, nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
}
