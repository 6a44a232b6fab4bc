package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"event-coordinator/internal/domain"
)

const (
	pkPrefixRecord = "REC#"
	skMeta         = "META#"
	counterPK      = "COUNTER#records"
	entityRecord   = "record"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoClient.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoClient stores conversation records in a single DynamoDB table.
// Record ids are allocated from an atomic counter item.
type DynamoClient struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoClient creates a new DynamoDB-backed record store.
func NewDynamoClient(api dynamodbAPI, tableName string) (*DynamoClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoClient{api: api, tableName: tableName}, nil
}

// recordPK returns the partition key for a record id.
func recordPK(id int64) string {
	return pkPrefixRecord + strconv.FormatInt(id, 10)
}

func recordKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: recordPK(id)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// CreateRecord allocates a new id and writes the record under it.
func (c *DynamoClient) CreateRecord(ctx context.Context, rec domain.Record) (int64, error) {
	id, err := c.nextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("repository: CreateRecord: %w", err)
	}
	rec.ID = id
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                recordItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: CreateRecord: %w", err)
	}
	return id, nil
}

func (c *DynamoClient) nextID(ctx context.Context) (int64, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: counterPK},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	if out == nil {
		return 0, errors.New("allocate id: empty response")
	}
	seq, err := int64Attr(out.Attributes, "seq")
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	return seq, nil
}

// GetRecord reads one record. The boolean is false when no such row exists.
func (c *DynamoClient) GetRecord(ctx context.Context, id int64) (domain.Record, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            recordKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("repository: GetRecord: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Record{}, false, nil
	}
	rec, err := itemToRecord(out.Item)
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("repository: GetRecord decode: %w", err)
	}
	return rec, true, nil
}

// UpdateRecord replaces an existing record. Writing to an id that was never
// created fails.
func (c *DynamoClient) UpdateRecord(ctx context.Context, rec domain.Record) error {
	if rec.ID <= 0 {
		return errors.New("repository: UpdateRecord: id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                recordItem(rec),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: UpdateRecord: %w", err)
	}
	return nil
}

// DeleteRecord removes a record; deleting a missing id is not an error.
func (c *DynamoClient) DeleteRecord(ctx context.Context, id int64) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       recordKey(id),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteRecord: %w", err)
	}
	return nil
}

// ListRecords scans every record, optionally restricted to one tenant.
func (c *DynamoClient) ListRecords(ctx context.Context, tenantID *int64) ([]domain.Record, error) {
	filter := "entity = :entity"
	values := map[string]types.AttributeValue{
		":entity": &types.AttributeValueMemberS{Value: entityRecord},
	}
	if tenantID != nil {
		filter += " AND tenantId = :tenant"
		values[":tenant"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(*tenantID, 10)}
	}

	var (
		records  []domain.Record
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(c.tableName),
			FilterExpression:          aws.String(filter),
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListRecords scan: %w", err)
		}
		for _, item := range out.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListRecords decode: %w", err)
			}
			records = append(records, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return records, nil
}

func recordItem(rec domain.Record) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: recordPK(rec.ID)},
		"SK":        &types.AttributeValueMemberS{Value: skMeta},
		"entity":    &types.AttributeValueMemberS{Value: entityRecord},
		"id":        &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ID, 10)},
		"title":     &types.AttributeValueMemberS{Value: rec.Title},
		"agentType": &types.AttributeValueMemberS{Value: rec.AgentType},
		"state":     &types.AttributeValueMemberS{Value: string(rec.State)},
		"createdAt": &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"updatedAt": &types.AttributeValueMemberS{Value: rec.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if rec.TenantID != nil {
		item["tenantId"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(*rec.TenantID, 10)}
	}
	return item
}

// itemToRecord converts a DynamoDB attribute map to a Record.
func itemToRecord(item map[string]types.AttributeValue) (domain.Record, error) {
	id, err := int64Attr(item, "id")
	if err != nil {
		return domain.Record{}, err
	}
	state, err := strAttr(item, "state")
	if err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{ID: id, State: []byte(state)}
	rec.Title, _ = strAttr(item, "title")         // allow empty
	rec.AgentType, _ = strAttr(item, "agentType") // allow empty
	if _, ok := item["tenantId"]; ok {
		tenant, err := int64Attr(item, "tenantId")
		if err != nil {
			return domain.Record{}, err
		}
		rec.TenantID = &tenant
	}
	if v, err := strAttr(item, "createdAt"); err == nil {
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, err := strAttr(item, "updatedAt"); err == nil {
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return rec, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
