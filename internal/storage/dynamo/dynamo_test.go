package dynamo

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/spinhouse/delivery/pkg/shipper"
)

type fakeAPI struct {
	item      map[string]types.AttributeValue
	getErr    error
	updateErr error
	updates   []*dynamodb.UpdateItemInput
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dynamodb.GetItemOutput{Item: f.item}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func TestStore_GetDelivery(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	av, err := attributevalue.MarshalMap(item{
		OrderID:    "ORD-1",
		Status:     "created",
		CreatedAt:  created,
		UpdatedAt:  created.Add(time.Minute),
		Shipment:   `{"gateway":"shiprocket","shipment_id":"S-1"}`,
		Attempts:   2,
		LeaseUntil: created.Add(time.Minute).UnixMilli(),
	})
	require.NoError(t, err)

	store := New(&fakeAPI{item: av}, "deliveries")
	rec, err := store.GetDelivery(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, delivery.StatusCreated, rec.Status)
	assert.True(t, created.Equal(rec.CreatedAt))
	assert.Equal(t, 2, rec.Attempts)
	assert.True(t, created.Add(time.Minute).Equal(rec.LeaseUntil))
	require.NotNil(t, rec.Shipment)
	assert.Equal(t, "S-1", rec.Shipment.ShipmentID)
	assert.Nil(t, rec.Pickup)
}

func TestStore_GetDelivery_Missing(t *testing.T) {
	rec, err := New(&fakeAPI{}, "deliveries").GetDelivery(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_GetDelivery_Error(t *testing.T) {
	apiErr := errors.New("throttled")
	_, err := New(&fakeAPI{getErr: apiErr}, "deliveries").GetDelivery(context.Background(), "ORD-1")
	assert.ErrorIs(t, err, apiErr)
}

func TestStore_CreateIfNotExists(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	lease := now.Add(90 * time.Second)
	seed := &delivery.Record{Status: delivery.StatusPending, CreatedAt: now, UpdatedAt: now, Attempts: 1, LeaseUntil: lease}

	t.Run("Won", func(t *testing.T) {
		api := &fakeAPI{}
		won, err := New(api, "deliveries").CreateIfNotExists(context.Background(), "ORD-1", seed)
		require.NoError(t, err)
		assert.True(t, won)

		require.Len(t, api.updates, 1)
		in := api.updates[0]
		assert.Equal(t, "deliveries", aws.ToString(in.TableName))
		assert.Equal(t, &types.AttributeValueMemberS{Value: "ORD-1"}, in.Key["order_id"])
		require.NotNil(t, in.ConditionExpression)
		cond := aws.ToString(in.ConditionExpression)
		assert.Contains(t, cond, "attribute_not_exists")
		assert.Contains(t, cond, "<=", "an expired pending lease can be taken over")
		assert.Contains(t, in.ExpressionAttributeValues, ":0")

		values := map[string]bool{}
		for _, v := range in.ExpressionAttributeValues {
			if n, ok := v.(*types.AttributeValueMemberN); ok {
				values[n.Value] = true
			}
		}
		assert.True(t, values[strconv.FormatInt(lease.UnixMilli(), 10)], "lease is written")
		assert.True(t, values[strconv.FormatInt(now.UnixMilli(), 10)], "lease is compared with the reservation time")
	})

	t.Run("ConditionFailed", func(t *testing.T) {
		api := &fakeAPI{updateErr: &types.ConditionalCheckFailedException{Message: aws.String("exists")}}
		won, err := New(api, "deliveries").CreateIfNotExists(context.Background(), "ORD-1", seed)
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("Error", func(t *testing.T) {
		api := &fakeAPI{updateErr: errors.New("network down")}
		won, err := New(api, "deliveries").CreateIfNotExists(context.Background(), "ORD-1", seed)
		assert.Error(t, err)
		assert.False(t, won)
	})
}

func TestStore_SaveDelivery(t *testing.T) {
	api := &fakeAPI{}
	rec := &delivery.Record{
		Status:    delivery.StatusCreated,
		UpdatedAt: time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC),
		Shipment:  &shipper.ShipmentResult{ShipmentID: "S-1"},
	}

	require.NoError(t, New(api, "deliveries").SaveDelivery(context.Background(), "ORD-1", rec))
	require.Len(t, api.updates, 1)
	in := api.updates[0]
	assert.Nil(t, in.ConditionExpression)

	update := aws.ToString(in.UpdateExpression)
	assert.Contains(t, update, "SET")
	assert.Contains(t, update, "REMOVE")
	names := map[string]bool{}
	for _, n := range in.ExpressionAttributeNames {
		names[n] = true
	}
	assert.True(t, names["lease_until"], "saving clears the lease")

	var found bool
	for _, v := range in.ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok && s.Value == `{"gateway":"","gateway_order_id":"","shipment_id":"S-1","created_at":"0001-01-01T00:00:00Z"}` {
			found = true
		}
	}
	assert.True(t, found, "shipment is stored as a JSON document")
}
