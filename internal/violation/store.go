package violation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/guardpost/guardpost/internal/aws"
)

var (
	// ErrDuplicateKey indicates Create lost a race with another delivery of the same event.
	ErrDuplicateKey = errors.New("trace_id already exists")
	// ErrNotFound indicates no record exists for the trace id.
	ErrNotFound = errors.New("violation record not found")
	// ErrBadTarget indicates a transition to a non-terminal status was requested.
	ErrBadTarget = errors.New("invalid transition target")
)

// Store is the keyed violation record store. ConditionalTransition is the
// sole mutation path after Create and must be a single atomic
// compare-and-set at the storage layer.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, traceID string) (*Record, error)
	ConditionalTransition(ctx context.Context, traceID, target, responderID string, now time.Time) (TransitionResult, error)
}

// DynamoStore implements Store against a DynamoDB table keyed by trace_id.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoStore returns a configured DynamoStore.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// Create persists a new record. Fails with ErrDuplicateKey if the trace id
// exists; this backstops the dedup layer against delivery races.
func (s *DynamoStore) Create(ctx context.Context, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(trace_id)"),
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrDuplicateKey
		}
		return fmt.Errorf("put item: %w", err)
	}

	return nil
}

// Get retrieves a record by trace id. Returns ErrNotFound if absent.
func (s *DynamoStore) Get(ctx context.Context, traceID string) (*Record, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"trace_id": &types.AttributeValueMemberS{Value: traceID},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// ConditionalTransition applies UNPROCESSED -> target in one conditional
// UpdateItem. Concurrent presses race on the condition expression, not on
// a read-modify-write, so exactly one of them wins regardless of timing.
func (s *DynamoStore) ConditionalTransition(ctx context.Context, traceID, target, responderID string, now time.Time) (TransitionResult, error) {
	if !ValidTarget(target) {
		return TransitionResult{}, fmt.Errorf("%w: %q", ErrBadTarget, target)
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"trace_id": &types.AttributeValueMemberS{Value: traceID},
		},
		UpdateExpression: awsString("SET #s = :target, responder_id = :rid, decided_at = :da"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":target":      &types.AttributeValueMemberS{Value: target},
			":rid":         &types.AttributeValueMemberS{Value: responderID},
			":da":          &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
			":unprocessed": &types.AttributeValueMemberS{Value: StatusUnprocessed},
		},
		ConditionExpression: awsString("attribute_exists(trace_id) AND #s = :unprocessed"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err == nil {
		return TransitionResult{Applied: true}, nil
	}

	var ccf *types.ConditionalCheckFailedException
	var sc smithy.APIError
	failed := errors.As(err, &ccf) ||
		(errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException")
	if !failed {
		return TransitionResult{}, fmt.Errorf("update item: %w", err)
	}

	// The CAS lost: either the record is gone or already decided. The
	// follow-up read only classifies the failure, it never mutates.
	rec, err := s.Get(ctx, traceID)
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Applied: false, Previous: rec.Status}, nil
}

func awsString(s string) *string { return &s }
