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

// ClaimRepo provides typed DynamoDB operations for the claim_requests table.
type ClaimRepo struct {
	client     *dynamodb.Client
	tableName  string
	itemsTable string
}

func NewClaimRepo(client *dynamodb.Client, tableName, itemsTable string) *ClaimRepo {
	return &ClaimRepo{client: client, tableName: tableName, itemsTable: itemsTable}
}

func (r *ClaimRepo) Put(ctx context.Context, c *domain.ClaimRequest) error {
	av, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	return err
}

func (r *ClaimRepo) Get(ctx context.Context, requestID string) (*domain.ClaimRequest, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("request_id", requestID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("claim %s: %w", requestID, domain.ErrNotFound)
	}
	var c domain.ClaimRequest
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateStatusIf applies updates only while the stored claim status equals
// expected. A lost race surfaces as ErrStaleState.
func (r *ClaimRepo) UpdateStatusIf(ctx context.Context, requestID string, expected domain.ClaimStatus, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	cond := statusCondition([]string{string(expected)}, ue.Names, ue.Values)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("request_id", requestID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("claim %s status changed concurrently: %w", requestID, domain.ErrStaleState)
	}
	return err
}

// ApproveWithItemReturn commits the claim approval and the item's move to
// Returned as one transaction. Either both records change or neither does;
// a failed condition on either side cancels the whole transaction and
// surfaces as ErrStaleState.
func (r *ClaimRepo) ApproveWithItemReturn(ctx context.Context, requestID, itemID, reviewerEmail string, now time.Time) error {
	ts := now.UTC().Format(time.RFC3339)

	claimUpdate := &types.Update{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("request_id", requestID),
		UpdateExpression:    aws.String("SET #status = :approved, reviewed_by = :rev, review_date = :ts"),
		ConditionExpression: aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":approved": &types.AttributeValueMemberS{Value: string(domain.ClaimApproved)},
			":pending":  &types.AttributeValueMemberS{Value: string(domain.ClaimPending)},
			":rev":      &types.AttributeValueMemberS{Value: reviewerEmail},
			":ts":       &types.AttributeValueMemberS{Value: ts},
		},
	}

	itemUpdate := &types.Update{
		TableName:           aws.String(r.itemsTable),
		Key:                 strKey("item_id", itemID),
		UpdateExpression:    aws.String("SET #status = :returned, returned_at = :ts, last_modified_by = :rev, last_modified_at = :ts"),
		ConditionExpression: aws.String("#status IN (:approved, :requested)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":returned":  &types.AttributeValueMemberS{Value: string(domain.StatusReturned)},
			":approved":  &types.AttributeValueMemberS{Value: string(domain.StatusApproved)},
			":requested": &types.AttributeValueMemberS{Value: string(domain.StatusRequested)},
			":rev":       &types.AttributeValueMemberS{Value: reviewerEmail},
			":ts":        &types.AttributeValueMemberS{Value: ts},
		},
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: claimUpdate},
			{Update: itemUpdate},
		},
	})
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return fmt.Errorf("claim %s approval lost a race: %w", requestID, domain.ErrStaleState)
	}
	return err
}

// ListByStatus queries the status GSI for claims in one status.
func (r *ClaimRepo) ListByStatus(ctx context.Context, status domain.ClaimStatus) ([]domain.ClaimRequest, error) {
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
	var claims []domain.ClaimRequest
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ListByUser queries the claimant GSI for all claims a user submitted.
func (r *ClaimRepo) ListByUser(ctx context.Context, userID string) ([]domain.ClaimRequest, error) {
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
	var claims []domain.ClaimRequest
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}
