package billing

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// SubscriptionGate is a Gate backed by the subscriptions table.
type SubscriptionGate struct {
	client dynamoAPI
	table  string
	logger *logging.Logger
}

var _ Gate = (*SubscriptionGate)(nil)

// NewSubscriptionGate builds a gate backed by the provided DynamoDB client.
func NewSubscriptionGate(client dynamoAPI, table string, logger *logging.Logger) *SubscriptionGate {
	if client == nil {
		panic("billing: dynamodb client cannot be nil")
	}
	if table == "" {
		panic("billing: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SubscriptionGate{
		client: client,
		table:  table,
		logger: logger.Component("billing"),
	}
}

// CanCreateQueue requires a usable subscription.
func (g *SubscriptionGate) CanCreateQueue(ctx context.Context, clinicID string) error {
	_, err := g.usableSubscription(ctx, clinicID)
	return err
}

// CanBookToken requires a usable subscription with remaining daily quota.
func (g *SubscriptionGate) CanBookToken(ctx context.Context, clinicID string, issuedToday int) error {
	sub, err := g.usableSubscription(ctx, clinicID)
	if err != nil {
		return err
	}
	if sub.DailyTokenLimit > 0 && issuedToday >= sub.DailyTokenLimit {
		return fmt.Errorf("billing: clinic %s at %d/%d tokens: %w",
			clinicID, issuedToday, sub.DailyTokenLimit, ErrTokenQuotaExhausted)
	}
	return nil
}

func (g *SubscriptionGate) usableSubscription(ctx context.Context, clinicID string) (*Subscription, error) {
	out, err := g.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(g.table),
		Key: map[string]types.AttributeValue{
			"clinicId": &types.AttributeValueMemberS{Value: clinicID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("billing: fetch subscription for %s: %w", clinicID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("billing: clinic %s: %w", clinicID, ErrNoSubscription)
	}

	var sub Subscription
	if err := attributevalue.UnmarshalMap(out.Item, &sub); err != nil {
		return nil, fmt.Errorf("billing: decode subscription for %s: %w", clinicID, err)
	}
	if !sub.Status.Usable() {
		g.logger.Debug("subscription unusable", "clinic_id", clinicID, "status", sub.Status)
		return nil, fmt.Errorf("billing: clinic %s status %s: %w", clinicID, sub.Status, ErrSubscriptionInactive)
	}
	return &sub, nil
}
