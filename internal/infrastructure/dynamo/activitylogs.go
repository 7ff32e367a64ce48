package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/lostfound-api/internal/domain"
)

// ActivityLogRepo provides append-only DynamoDB operations for the audit
// trail. Entries are never updated or deleted here; retention cleanup is
// external housekeeping.
type ActivityLogRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewActivityLogRepo(client *dynamodb.Client, tableName string) *ActivityLogRepo {
	return &ActivityLogRepo{client: client, tableName: tableName}
}

func (r *ActivityLogRepo) Append(ctx context.Context, e *domain.ActivityLog) error {
	av, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal activity log: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(log_id)"),
	})
	return err
}

// ListRange scans entries created within [from, to], newest first ordering is
// left to the caller. ULID log ids keep a scan acceptably bounded for the
// admin screen this serves.
func (r *ActivityLogRepo) ListRange(ctx context.Context, from, to time.Time) ([]domain.ActivityLog, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("created_at BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": &types.AttributeValueMemberS{Value: from.UTC().Format(time.RFC3339)},
			":to":   &types.AttributeValueMemberS{Value: to.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return nil, err
	}
	var entries []domain.ActivityLog
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
