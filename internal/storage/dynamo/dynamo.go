// Package dynamo implements the delivery store on a DynamoDB table keyed by
// order_id.
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spinhouse/delivery/internal/delivery"
	"github.com/spinhouse/delivery/pkg/shipper"
)

// API is the subset of *dynamodb.Client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
// A non-empty endpoint overrides the service URL, e.g. for DynamoDB Local.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// item is the table layout. Shipment and pickup are stored as JSON strings
// so every backend persists the same document. The lease is epoch
// milliseconds so conditions can compare it numerically.
type item struct {
	OrderID   string    `dynamodbav:"order_id"`
	Status    string    `dynamodbav:"status"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
	Shipment  string    `dynamodbav:"shipment,omitempty"`
	Pickup    string    `dynamodbav:"pickup,omitempty"`
	Error     string    `dynamodbav:"error,omitempty"`
	Attempts  int       `dynamodbav:"attempts"`

	LeaseUntil int64 `dynamodbav:"lease_until,omitempty"`
}

// Store is a delivery.Store backed by a DynamoDB table.
type Store struct {
	api   API
	table string
	now   func() time.Time
}

// New creates a Store over the given table.
func New(api API, table string) *Store {
	return &Store{api: api, table: table, now: time.Now}
}

func (s *Store) key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// GetDelivery reads the record with a strongly consistent read.
func (s *Store) GetDelivery(ctx context.Context, orderID string) (*delivery.Record, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(orderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting delivery %s: %w", orderID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("decoding delivery %s: %w", orderID, err)
	}
	return it.record()
}

// CreateIfNotExists writes seed unless a record exists that is neither
// failed nor pending past its lease. The condition and the write are a
// single UpdateItem call.
func (s *Store) CreateIfNotExists(ctx context.Context, orderID string, seed *delivery.Record) (bool, error) {
	now := seed.UpdatedAt
	if now.IsZero() {
		now = s.now().UTC()
	}
	createdAt := seed.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	update := expression.
		Set(expression.Name("status"), expression.Value(string(seed.Status))).
		Set(expression.Name("updated_at"), expression.Value(now)).
		Set(expression.Name("created_at"), expression.IfNotExists(expression.Name("created_at"), expression.Value(createdAt))).
		Set(expression.Name("attempts"), expression.Plus(
			expression.IfNotExists(expression.Name("attempts"), expression.Value(0)),
			expression.Value(1),
		)).
		Remove(expression.Name("shipment")).
		Remove(expression.Name("pickup")).
		Remove(expression.Name("error"))
	update = setOrRemoveLease(update, seed.LeaseUntil)

	cond := expression.Or(
		expression.AttributeNotExists(expression.Name("order_id")),
		expression.Name("status").Equal(expression.Value(string(delivery.StatusFailed))),
		expression.And(
			expression.Name("status").Equal(expression.Value(string(delivery.StatusPending))),
			expression.Or(
				expression.AttributeNotExists(expression.Name("lease_until")),
				expression.Name("lease_until").LessThanEqual(expression.Value(now.UnixMilli())),
			),
		),
	)

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return false, fmt.Errorf("building reservation for %s: %w", orderID, err)
	}

	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(orderID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reserving delivery %s: %w", orderID, err)
	}
	return true, nil
}

// SaveDelivery updates status, shipment, pickup and error in place.
func (s *Store) SaveDelivery(ctx context.Context, orderID string, rec *delivery.Record) error {
	now := rec.UpdatedAt
	if now.IsZero() {
		now = s.now().UTC()
	}

	update := expression.
		Set(expression.Name("status"), expression.Value(string(rec.Status))).
		Set(expression.Name("updated_at"), expression.Value(now)).
		Set(expression.Name("created_at"), expression.IfNotExists(expression.Name("created_at"), expression.Value(now))).
		Set(expression.Name("attempts"), expression.IfNotExists(expression.Name("attempts"), expression.Value(1)))

	shipment, err := encodeDocument(rec.Shipment)
	if err != nil {
		return fmt.Errorf("encoding shipment of %s: %w", orderID, err)
	}
	pickup, err := encodeDocument(rec.Pickup)
	if err != nil {
		return fmt.Errorf("encoding pickup of %s: %w", orderID, err)
	}
	update = setOrRemove(update, "shipment", shipment)
	update = setOrRemove(update, "pickup", pickup)
	update = setOrRemove(update, "error", rec.Error)
	update = update.Remove(expression.Name("lease_until"))

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("building update for %s: %w", orderID, err)
	}

	if _, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(orderID),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}); err != nil {
		return fmt.Errorf("saving delivery %s: %w", orderID, err)
	}
	return nil
}

func setOrRemove(update expression.UpdateBuilder, name, value string) expression.UpdateBuilder {
	if value == "" {
		return update.Remove(expression.Name(name))
	}
	return update.Set(expression.Name(name), expression.Value(value))
}

func setOrRemoveLease(update expression.UpdateBuilder, lease time.Time) expression.UpdateBuilder {
	if lease.IsZero() {
		return update.Remove(expression.Name("lease_until"))
	}
	return update.Set(expression.Name("lease_until"), expression.Value(lease.UnixMilli()))
}

func encodeDocument[T any](v *T) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (it *item) record() (*delivery.Record, error) {
	rec := &delivery.Record{
		OrderID:   it.OrderID,
		Status:    delivery.Status(it.Status),
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
		Error:     it.Error,
		Attempts:  it.Attempts,
	}
	if it.LeaseUntil > 0 {
		rec.LeaseUntil = time.UnixMilli(it.LeaseUntil).UTC()
	}
	if it.Shipment != "" {
		rec.Shipment = &shipper.ShipmentResult{}
		if err := json.Unmarshal([]byte(it.Shipment), rec.Shipment); err != nil {
			return nil, fmt.Errorf("decoding shipment of %s: %w", it.OrderID, err)
		}
	}
	if it.Pickup != "" {
		rec.Pickup = &shipper.Pickup{}
		if err := json.Unmarshal([]byte(it.Pickup), rec.Pickup); err != nil {
			return nil, fmt.Errorf("decoding pickup of %s: %w", it.OrderID, err)
		}
	}
	return rec, nil
}

var _ delivery.Store = (*Store)(nil)
