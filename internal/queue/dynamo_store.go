package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

const (
	// GSI on the tokens table: hash queueId, range tokenNumber.
	queueTokensIndex = "queueId-tokenNumber-index"
	// GSI on the queues table: hash clinicId, range serviceDate.
	clinicQueuesIndex = "clinicId-serviceDate-index"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore persists queues and tokens to DynamoDB. Uniqueness and
// optimistic concurrency ride on conditional writes; the per-queue lock
// in the controller is the primary serialization, conditions are the
// cross-instance backstop.
type DynamoStore struct {
	client      dynamoAPI
	queuesTable string
	tokensTable string
	logger      *logging.Logger
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, queuesTable, tokensTable string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("queue: dynamodb client cannot be nil")
	}
	if queuesTable == "" || tokensTable == "" {
		panic("queue: table names cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:      client,
		queuesTable: queuesTable,
		tokensTable: tokensTable,
		logger:      logger.Component("dynamo_store"),
	}
}

// CreateQueue inserts a new queue.
func (s *DynamoStore) CreateQueue(ctx context.Context, q *Queue) error {
	item, err := attributevalue.MarshalMap(q)
	if err != nil {
		return fmt.Errorf("queue: marshal queue %s: %w", q.QueueID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.queuesTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(queueId)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return fmt.Errorf("queue: create queue %s: %w", q.QueueID, ErrQueueExists)
		}
		return fmt.Errorf("queue: create queue %s: %w", q.QueueID, err)
	}
	return nil
}

// GetQueue fetches a queue by ID.
func (s *DynamoStore) GetQueue(ctx context.Context, queueID string) (*Queue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.queuesTable),
		Key: map[string]types.AttributeValue{
			"queueId": &types.AttributeValueMemberS{Value: queueID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: get queue %s: %w", queueID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("queue: get queue %s: %w", queueID, ErrQueueNotFound)
	}
	var q Queue
	if err := attributevalue.UnmarshalMap(out.Item, &q); err != nil {
		return nil, fmt.Errorf("queue: decode queue %s: %w", queueID, err)
	}
	return &q, nil
}

// UpdateQueue persists q, requiring the stored version to match before
// bumping it.
func (s *DynamoStore) UpdateQueue(ctx context.Context, q *Queue) error {
	expected := q.Version
	q.Version = expected + 1
	item, err := attributevalue.MarshalMap(q)
	if err != nil {
		q.Version = expected
		return fmt.Errorf("queue: marshal queue %s: %w", q.QueueID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.queuesTable),
		Item:                item,
		ConditionExpression: aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
		},
	})
	if err != nil {
		q.Version = expected
		if isConditionalFailure(err) {
			s.logger.Debug("queue write lost the version race", "queue_id", q.QueueID, "expected_version", expected)
			return fmt.Errorf("queue: update queue %s: %w", q.QueueID, ErrVersionConflict)
		}
		return fmt.Errorf("queue: update queue %s: %w", q.QueueID, err)
	}
	return nil
}

// CreateToken inserts a new token.
func (s *DynamoStore) CreateToken(ctx context.Context, t *Token) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("queue: marshal token %s: %w", t.TokenID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tokensTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(tokenId)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return fmt.Errorf("queue: create token %s: %w", t.TokenID, ErrTokenExists)
		}
		return fmt.Errorf("queue: create token %s: %w", t.TokenID, err)
	}
	return nil
}

// IssueToken writes the token and the queue's bumped high-water mark in
// one transaction so token numbering can never split across the tables.
func (s *DynamoStore) IssueToken(ctx context.Context, q *Queue, t *Token) error {
	expected := q.Version
	q.Version = expected + 1
	queueItem, err := attributevalue.MarshalMap(q)
	if err != nil {
		q.Version = expected
		return fmt.Errorf("queue: marshal queue %s: %w", q.QueueID, err)
	}
	tokenItem, err := attributevalue.MarshalMap(t)
	if err != nil {
		q.Version = expected
		return fmt.Errorf("queue: marshal token %s: %w", t.TokenID, err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tokensTable),
					Item:                tokenItem,
					ConditionExpression: aws.String("attribute_not_exists(tokenId)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.queuesTable),
					Item:                queueItem,
					ConditionExpression: aws.String("version = :expected"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
					},
				},
			},
		},
	})
	if err != nil {
		q.Version = expected
		if isTransactionConditionFailure(err) {
			s.logger.Debug("token issue lost the version race", "queue_id", q.QueueID, "token_id", t.TokenID)
			return fmt.Errorf("queue: issue token %s: %w", t.TokenID, ErrVersionConflict)
		}
		return fmt.Errorf("queue: issue token %s: %w", t.TokenID, err)
	}
	return nil
}

// SaveTokenAndQueue persists an existing token together with its queue in
// one transaction, so a token transition and the queue's event sequence
// can never drift apart.
func (s *DynamoStore) SaveTokenAndQueue(ctx context.Context, q *Queue, t *Token) error {
	expected := q.Version
	q.Version = expected + 1
	queueItem, err := attributevalue.MarshalMap(q)
	if err != nil {
		q.Version = expected
		return fmt.Errorf("queue: marshal queue %s: %w", q.QueueID, err)
	}
	tokenItem, err := attributevalue.MarshalMap(t)
	if err != nil {
		q.Version = expected
		return fmt.Errorf("queue: marshal token %s: %w", t.TokenID, err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tokensTable),
					Item:                tokenItem,
					ConditionExpression: aws.String("attribute_exists(tokenId)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.queuesTable),
					Item:                queueItem,
					ConditionExpression: aws.String("version = :expected"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
					},
				},
			},
		},
	})
	if err != nil {
		q.Version = expected
		// Cancellation reasons are positional: index 0 is the token put,
		// index 1 the queue put.
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) {
			for i, reason := range cancelled.CancellationReasons {
				if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
					continue
				}
				if i == 0 {
					return fmt.Errorf("queue: save token %s: %w", t.TokenID, ErrTokenNotFound)
				}
				s.logger.Debug("token save lost the version race", "queue_id", q.QueueID, "token_id", t.TokenID)
				return fmt.Errorf("queue: save token %s: %w", t.TokenID, ErrVersionConflict)
			}
		}
		return fmt.Errorf("queue: save token %s: %w", t.TokenID, err)
	}
	return nil
}

// GetToken fetches a token by ID.
func (s *DynamoStore) GetToken(ctx context.Context, tokenID string) (*Token, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tokensTable),
		Key: map[string]types.AttributeValue{
			"tokenId": &types.AttributeValueMemberS{Value: tokenID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: get token %s: %w", tokenID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("queue: get token %s: %w", tokenID, ErrTokenNotFound)
	}
	var t Token
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("queue: decode token %s: %w", tokenID, err)
	}
	return &t, nil
}

// UpdateToken persists t over the existing record.
func (s *DynamoStore) UpdateToken(ctx context.Context, t *Token) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("queue: marshal token %s: %w", t.TokenID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tokensTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(tokenId)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return fmt.Errorf("queue: update token %s: %w", t.TokenID, ErrTokenNotFound)
		}
		return fmt.Errorf("queue: update token %s: %w", t.TokenID, err)
	}
	return nil
}

// ListQueueTokens returns a queue's tokens in ascending token number
// order, paging through the index as needed.
func (s *DynamoStore) ListQueueTokens(ctx context.Context, queueID string) ([]*Token, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tokensTable),
		IndexName:              aws.String(queueTokensIndex),
		KeyConditionExpression: aws.String("queueId = :q"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": &types.AttributeValueMemberS{Value: queueID},
		},
		ScanIndexForward: aws.Bool(true),
	}

	var tokens []*Token
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("queue: list tokens for %s: %w", queueID, err)
		}
		page := make([]*Token, 0, len(out.Items))
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("queue: decode tokens for %s: %w", queueID, err)
		}
		tokens = append(tokens, page...)
		if out.LastEvaluatedKey == nil {
			return tokens, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// ListOpenQueuesByClinic returns the clinic's non-CLOSED queues, most
// recent service date first.
func (s *DynamoStore) ListOpenQueuesByClinic(ctx context.Context, clinicID string) ([]*Queue, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.queuesTable),
		IndexName:              aws.String(clinicQueuesIndex),
		KeyConditionExpression: aws.String("clinicId = :c"),
		FilterExpression:       aws.String("#status <> :closed"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":      &types.AttributeValueMemberS{Value: clinicID},
			":closed": &types.AttributeValueMemberS{Value: string(QueueClosed)},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var queues []*Queue
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("queue: list open queues for clinic %s: %w", clinicID, err)
		}
		page := make([]*Queue, 0, len(out.Items))
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("queue: decode queues for clinic %s: %w", clinicID, err)
		}
		queues = append(queues, page...)
		if out.LastEvaluatedKey == nil {
			return queues, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func isTransactionConditionFailure(err error) bool {
	var cancelled *types.TransactionCanceledException
	if !errors.As(err, &cancelled) {
		return false
	}
	for _, reason := range cancelled.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
