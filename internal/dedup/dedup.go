// Package dedup tracks processed inbound event ids so transport retries
// never create a second violation record. Entries carry a TTL and may be
// garbage-collected; dedup only gates record creation, never dispatch.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"

	"github.com/guardpost/guardpost/internal/aws"
)

// Entry is the shape persisted in the dedup DynamoDB table.
type Entry struct {
	EventID     string    `dynamodbav:"event_id"` // PK
	FirstSeenAt time.Time `dynamodbav:"first_seen_at"`
	ExpiresAt   int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// Deduplicator marks event ids as seen. MarkIfNew must be atomic under
// concurrent invocation with the same event id.
type Deduplicator interface {
	// MarkIfNew returns true if the event id was not seen before.
	MarkIfNew(ctx context.Context, eventID string) (bool, error)
}

// DynamoStore implements Deduplicator with a conditional PutItem, so the
// check and the insert are one storage operation.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // retention window for entries
	nowFunc   func() time.Time
}

// NewDynamoStore returns a configured DynamoStore.
// ttlWindow: retention window for dedup entries (e.g., 48*time.Hour).
func NewDynamoStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func (s *DynamoStore) MarkIfNew(ctx context.Context, eventID string) (bool, error) {
	now := s.nowFunc()
	entry := Entry{
		EventID:     eventID,
		FirstSeenAt: now,
		ExpiresAt:   now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return false, fmt.Errorf("marshal entry: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// Only insert when the event id is unseen.
		ConditionExpression: awsString("attribute_not_exists(event_id)"),
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}

	return true, nil
}

func awsString(s string) *string { return &s }
