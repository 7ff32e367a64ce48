package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/lostfound-api/internal/domain"
)

// ItemRepo provides typed DynamoDB operations for the items table. All
// lifecycle transitions go through UpdateStatusIf so two concurrent writers
// cannot both move the same item.
type ItemRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewItemRepo(client *dynamodb.Client, tableName string) *ItemRepo {
	return &ItemRepo{client: client, tableName: tableName}
}

func (r *ItemRepo) Put(ctx context.Context, it *domain.Item) error {
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	return err
}

func (r *ItemRepo) Get(ctx context.Context, itemID string) (*domain.Item, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("item_id", itemID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	var it domain.Item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, err
	}
	it.Status = domain.NormalizeStatus(string(it.Status))
	return &it, nil
}

// UpdateStatusIf applies updates only while the stored status is one of
// expected (compare-and-set). A lost race surfaces as ErrStaleState; the
// caller re-reads and re-validates before retrying.
func (r *ItemRepo) UpdateStatusIf(ctx context.Context, itemID string, expected []domain.ItemStatus, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(stamped(updates, time.Now()))
	if err != nil {
		return err
	}
	allowed := make([]string, len(expected))
	for i, s := range expected {
		allowed[i] = string(s)
	}
	cond := statusCondition(allowed, ue.Names, ue.Values)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("item_id", itemID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("item %s status changed concurrently: %w", itemID, domain.ErrStaleState)
	}
	return err
}

// stamped returns a copy of updates with last_modified_at set. The caller's
// map is left untouched.
func stamped(updates map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		out[k] = v
	}
	out["last_modified_at"] = now.UTC().Format(time.RFC3339)
	return out
}

// ListByStatus queries the status GSI for all items in one status.
func (r *ItemRepo) ListByStatus(ctx context.Context, status domain.ItemStatus) ([]domain.Item, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("status-index"),
		KeyConditionExpression: aws.String("#status = :s"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	if err != nil {
		return nil, err
	}
	return unmarshalItems(out.Items)
}

// ListByUser queries the reporter GSI for all items a user reported.
func (r *ItemRepo) ListByUser(ctx context.Context, userID string) ([]domain.Item, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, err
	}
	return unmarshalItems(out.Items)
}

// Scan returns every item. List endpoints filter and project in the service;
// the table stays small enough for the campus scale this serves.
func (r *ItemRepo) Scan(ctx context.Context) ([]domain.Item, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	})
	if err != nil {
		return nil, err
	}
	return unmarshalItems(out.Items)
}

// ScanReportedBefore returns items in the given status reported at or before
// the cutoff. Used by the donation eligibility sweep.
func (r *ItemRepo) ScanReportedBefore(ctx context.Context, status domain.ItemStatus, cutoff time.Time) ([]domain.Item, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("#status = :s AND reported_at <= :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":      &types.AttributeValueMemberS{Value: string(status)},
			":cutoff": &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return nil, err
	}
	return unmarshalItems(out.Items)
}

func unmarshalItems(avs []map[string]types.AttributeValue) ([]domain.Item, error) {
	var items []domain.Item
	if err := attributevalue.UnmarshalListOfMaps(avs, &items); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = domain.NormalizeStatus(string(items[i].Status))
	}
	return items, nil
}
