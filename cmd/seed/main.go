package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/joho/godotenv"

	"github.com/karthik-ak-dev/pulse-ops/cmd/mainconfig"
	"github.com/karthik-ak-dev/pulse-ops/internal/billing"
	appconfig "github.com/karthik-ak-dev/pulse-ops/internal/config"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	client := dynamodb.NewFromConfig(awsCfg)

	if err := ensureTables(ctx, client, cfg); err != nil {
		log.Fatalf("ensure tables: %v", err)
	}
	fmt.Println("tables ready")

	// Check for subscription command: /bin/seed subscription <clinicId> [dailyTokenLimit]
	if len(os.Args) >= 3 && os.Args[1] == "subscription" {
		clinicID := os.Args[2]
		limit := 0
		if len(os.Args) >= 4 {
			limit, err = strconv.Atoi(os.Args[3])
			if err != nil {
				log.Fatalf("invalid daily token limit: %v", err)
			}
		}
		if err := seedSubscription(ctx, client, cfg.SubscriptionsTable, clinicID, limit); err != nil {
			log.Fatalf("seed subscription: %v", err)
		}
		fmt.Printf("subscription ready for %s\n", clinicID)
	}
}

func ensureTables(ctx context.Context, client *dynamodb.Client, cfg *appconfig.Config) error {
	created, err := ensureTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(cfg.QueuesTable),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("queueId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("clinicId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("serviceDate"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("queueId"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String("clinicId-serviceDate-index"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("clinicId"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("serviceDate"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("queues table: %w", err)
	}
	if created {
		fmt.Printf("created %s\n", cfg.QueuesTable)
	}

	created, err = ensureTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(cfg.TokensTable),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("tokenId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("queueId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("tokenNumber"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("tokenId"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String("queueId-tokenNumber-index"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("queueId"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("tokenNumber"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("tokens table: %w", err)
	}
	if created {
		fmt.Printf("created %s\n", cfg.TokensTable)
	}

	created, err = ensureTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(cfg.SubscriptionsTable),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("clinicId"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("clinicId"), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		return fmt.Errorf("subscriptions table: %w", err)
	}
	if created {
		fmt.Printf("created %s\n", cfg.SubscriptionsTable)
	}

	created, err = ensureTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(cfg.ProcessedEventsTable),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("recordId"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("recordId"), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		return fmt.Errorf("processed events table: %w", err)
	}
	if created {
		fmt.Printf("created %s\n", cfg.ProcessedEventsTable)
		_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
			TableName: aws.String(cfg.ProcessedEventsTable),
			TimeToLiveSpecification: &types.TimeToLiveSpecification{
				AttributeName: aws.String("expiresAt"),
				Enabled:       aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("processed events ttl: %w", err)
		}
	}

	return nil
}

// ensureTable creates the table and waits for it, reporting false when the
// table already existed.
func ensureTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput) (bool, error) {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return false, nil
		}
		return false, err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, time.Minute); err != nil {
		return false, fmt.Errorf("wait for %s: %w", aws.ToString(input.TableName), err)
	}
	return true, nil
}

func seedSubscription(ctx context.Context, client *dynamodb.Client, table, clinicID string, dailyLimit int) error {
	sub := billing.Subscription{
		ClinicID:        clinicID,
		Plan:            "standard",
		Status:          billing.StatusActive,
		DailyTokenLimit: dailyLimit,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	item, err := attributevalue.MarshalMap(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	return err
}
