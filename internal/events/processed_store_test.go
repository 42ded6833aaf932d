package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type mockProcessedDynamo struct {
	putInput *dynamodb.PutItemInput
	getInput *dynamodb.GetItemInput
	getItem  map[string]types.AttributeValue
	err      error
}

func (m *mockProcessedDynamo) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockProcessedDynamo) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.getInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &dynamodb.GetItemOutput{Item: m.getItem}, nil
}

func TestMarkProcessedFirstDelivery(t *testing.T) {
	mock := &mockProcessedDynamo{}
	store := NewProcessedStore(mock, "pulseops-processed-events")

	first, err := store.MarkProcessed(context.Background(), "notify", "evt_1")
	if err != nil {
		t.Fatalf("MarkProcessed returned error: %v", err)
	}
	if !first {
		t.Fatal("first delivery must claim the envelope")
	}

	if mock.putInput == nil {
		t.Fatal("expected PutItem to be called")
	}
	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(recordId)" {
		t.Fatalf("expected condition expression to prevent reclaims, got %v", expr)
	}

	var stored processedRecord
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored record: %v", err)
	}
	if stored.RecordID != "notify#evt_1" {
		t.Fatalf("record id = %s", stored.RecordID)
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}
}

func TestMarkProcessedDuplicateDelivery(t *testing.T) {
	mock := &mockProcessedDynamo{err: &types.ConditionalCheckFailedException{}}
	store := NewProcessedStore(mock, "pulseops-processed-events")

	first, err := store.MarkProcessed(context.Background(), "notify", "evt_1")
	if err != nil {
		t.Fatalf("duplicate delivery must not error: %v", err)
	}
	if first {
		t.Fatal("duplicate delivery must not claim the envelope")
	}
}

func TestMarkProcessedStoreFailure(t *testing.T) {
	mock := &mockProcessedDynamo{err: errors.New("throttled")}
	store := NewProcessedStore(mock, "pulseops-processed-events")

	if _, err := store.MarkProcessed(context.Background(), "notify", "evt_1"); err == nil {
		t.Fatal("expected store failure to surface")
	}
}

func TestAlreadyProcessed(t *testing.T) {
	mock := &mockProcessedDynamo{}
	store := NewProcessedStore(mock, "pulseops-processed-events")

	seen, err := store.AlreadyProcessed(context.Background(), "notify", "evt_1")
	if err != nil {
		t.Fatalf("AlreadyProcessed returned error: %v", err)
	}
	if seen {
		t.Fatal("unseen envelope reported as processed")
	}
	key, ok := mock.getInput.Key["recordId"].(*types.AttributeValueMemberS)
	if !ok || key.Value != "notify#evt_1" {
		t.Fatalf("lookup key = %v", mock.getInput.Key["recordId"])
	}

	mock.getItem = map[string]types.AttributeValue{
		"recordId": &types.AttributeValueMemberS{Value: "notify#evt_1"},
	}
	seen, err = store.AlreadyProcessed(context.Background(), "notify", "evt_1")
	if err != nil {
		t.Fatalf("AlreadyProcessed returned error: %v", err)
	}
	if !seen {
		t.Fatal("stored envelope reported as unprocessed")
	}
}

func TestMarkProcessedRequiresIdentity(t *testing.T) {
	store := NewProcessedStore(&mockProcessedDynamo{}, "pulseops-processed-events")

	if _, err := store.MarkProcessed(context.Background(), "", "evt_1"); err == nil {
		t.Fatal("expected missing consumer to be rejected")
	}
	if _, err := store.MarkProcessed(context.Background(), "notify", ""); err == nil {
		t.Fatal("expected missing envelope id to be rejected")
	}
}
