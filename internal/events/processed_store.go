package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Relay delivery is at-least-once, so consumers write every envelope they
// finish here and skip the ones they have seen. Records expire through the
// table's TTL attribute; a day covers any realistic redelivery window.
const processedRetention = 24 * time.Hour

type processedAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type processedRecord struct {
	RecordID    string    `dynamodbav:"recordId"`
	Consumer    string    `dynamodbav:"consumer"`
	EnvelopeID  string    `dynamodbav:"envelopeId"`
	ProcessedAt time.Time `dynamodbav:"processedAt"`
	ExpiresAt   int64     `dynamodbav:"expiresAt"`
}

// ProcessedStore records envelopes a consumer already handled.
type ProcessedStore struct {
	client processedAPI
	table  string
}

// NewProcessedStore creates a processed-event store.
func NewProcessedStore(client processedAPI, table string) *ProcessedStore {
	if client == nil {
		panic("events: dynamodb client cannot be nil")
	}
	if table == "" {
		panic("events: processed events table cannot be empty")
	}
	return &ProcessedStore{client: client, table: table}
}

// AlreadyProcessed reports whether the consumer finished this envelope on
// an earlier delivery.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, consumer, envelopeID string) (bool, error) {
	if consumer == "" || envelopeID == "" {
		return false, errors.New("events: consumer and envelope id required")
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"recordId": &types.AttributeValueMemberS{Value: consumer + "#" + envelopeID},
		},
	})
	if err != nil {
		return false, fmt.Errorf("events: check processed %s: %w", envelopeID, err)
	}
	return len(out.Item) > 0, nil
}

// MarkProcessed claims the envelope for the consumer, returning false when
// another delivery already claimed it.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, consumer, envelopeID string) (bool, error) {
	if consumer == "" || envelopeID == "" {
		return false, errors.New("events: consumer and envelope id required")
	}

	now := time.Now().UTC()
	record := processedRecord{
		RecordID:    consumer + "#" + envelopeID,
		Consumer:    consumer,
		EnvelopeID:  envelopeID,
		ProcessedAt: now,
		ExpiresAt:   now.Add(processedRetention).Unix(),
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return false, fmt.Errorf("events: marshal processed record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(recordId)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, fmt.Errorf("events: mark processed %s: %w", envelopeID, err)
	}
	return true, nil
}
