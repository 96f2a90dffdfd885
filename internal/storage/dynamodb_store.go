package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/TheMichaelB/vocabsync/internal/events"
)

// DynamoDB attribute names. The table uses "scope" as partition key and "key" as sort key.
const (
	dynamoScopeAttr   = "scope"
	dynamoKeyAttr     = "key"
	dynamoValueAttr   = "value"
	dynamoUpdatedAttr = "updated_at"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDBStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	dynamodb.QueryAPIClient
}

// DynamoDBStore keeps key-value pairs as items of one partition.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	scope     string
	logger    *events.Logger
}

// NewDynamoDBStore creates a store using the default AWS credential chain.
func NewDynamoDBStore(ctx context.Context, tableName, scope string, logger *events.Logger) (*DynamoDBStore, error) {
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb table name required")
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewDynamoDBStoreWithClient(dynamodb.NewFromConfig(cfg), tableName, scope, logger), nil
}

// NewDynamoDBStoreWithClient creates a store over an existing client.
func NewDynamoDBStoreWithClient(client DynamoDBAPI, tableName, scope string, logger *events.Logger) *DynamoDBStore {
	if scope == "" {
		scope = "default"
	}

	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		scope:     scope,
		logger:    logger.WithField("component", "dynamodb_store"),
	}
}

// Get returns the value for key.
func (s *DynamoDBStore) Get(ctx context.Context, key string) (string, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("dynamodb get: %w", err)
	}

	if result.Item == nil {
		return "", ErrNotFound
	}

	attr, ok := result.Item[dynamoValueAttr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("invalid value attribute type for %s", key)
	}

	return attr.Value, nil
}

// Set writes value under key.
func (s *DynamoDBStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	item := s.itemKey(key)
	item[dynamoValueAttr] = &types.AttributeValueMemberS{Value: value}
	item[dynamoUpdatedAttr] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Unix(), 10),
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"scope": s.scope,
		"key":   key,
		"size":  len(value),
	}).Debug("Saved item to DynamoDB")

	return nil
}

// CompareAndSwap writes value with a condition on the stored value, so
// concurrent writers from different processes cannot both win.
func (s *DynamoDBStore) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	item := s.itemKey(key)
	item[dynamoValueAttr] = &types.AttributeValueMemberS{Value: value}
	item[dynamoUpdatedAttr] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Unix(), 10),
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if old == "" {
		input.ConditionExpression = aws.String("attribute_not_exists(#k)")
		input.ExpressionAttributeNames = map[string]string{"#k": dynamoKeyAttr}
	} else {
		input.ConditionExpression = aws.String("#v = :old")
		input.ExpressionAttributeNames = map[string]string{"#v": dynamoValueAttr}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":old": &types.AttributeValueMemberS{Value: old},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var failed *types.ConditionalCheckFailedException
		if errors.As(err, &failed) {
			s.logger.WithField("key", key).Debug("Conditional put lost")
			return false, nil
		}
		return false, fmt.Errorf("dynamodb conditional put: %w", err)
	}

	return true, nil
}

// Remove deletes key.
func (s *DynamoDBStore) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete: %w", err)
	}
	return nil
}

// Keys lists all keys in the store's scope.
func (s *DynamoDBStore) Keys(ctx context.Context) ([]string, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#s = :scope"),
		ProjectionExpression:   aws.String("#k"),
		ExpressionAttributeNames: map[string]string{
			"#s": dynamoScopeAttr,
			"#k": dynamoKeyAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scope": &types.AttributeValueMemberS{Value: s.scope},
		},
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query: %w", err)
		}
		for _, item := range page.Items {
			if attr, ok := item[dynamoKeyAttr].(*types.AttributeValueMemberS); ok {
				keys = append(keys, attr.Value)
			}
		}
	}

	return keys, nil
}

// Close releases resources.
func (s *DynamoDBStore) Close() error {
	return nil
}

func (s *DynamoDBStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoScopeAttr: &types.AttributeValueMemberS{Value: s.scope},
		dynamoKeyAttr:   &types.AttributeValueMemberS{Value: key},
	}
}
