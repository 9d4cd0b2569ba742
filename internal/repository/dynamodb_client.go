package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefixProfile = "PROFILE#"
	skPrefixKey     = "KEY#"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps profile values in a shared DynamoDB table so that several
// clients of one profile agree on a single value.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	profile   string
	now       func() time.Time
}

// NewDynamoStore creates a DynamoStore for profile backed by tableName.
func NewDynamoStore(api dynamodbAPI, tableName, profile string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{
		api:       api,
		tableName: tableName,
		profile:   normalizeProfile(profile),
		now:       time.Now,
	}, nil
}

// profilePK returns the partition key for a profile.
func profilePK(profile string) string {
	return pkPrefixProfile + profile
}

// keySK returns the sort key for a stored key.
func keySK(key string) string {
	return skPrefixKey + key
}

func (s *DynamoStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: profilePK(s.profile)},
		"SK": &types.AttributeValueMemberS{Value: keySK(key)},
	}
}

func (s *DynamoStore) item(key, value string) map[string]types.AttributeValue {
	item := s.itemKey(key)
	item["value"] = &types.AttributeValueMemberS{Value: value}
	item["profile"] = &types.AttributeValueMemberS{Value: s.profile}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)}
	return item
}

// Load reads key with a strongly consistent read.
func (s *DynamoStore) Load(ctx context.Context, key string) (string, bool, error) {
	key, err := validateKey(key)
	if err != nil {
		return "", false, err
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}
	v, err := strAttr(out.Item, "value")
	if err != nil {
		return "", false, fmt.Errorf("repository: Load decode value: %w", err)
	}
	return v, true, nil
}

// StoreIfAbsent writes value only if key has no value yet. When another client
// won the race, the stored value is returned instead.
func (s *DynamoStore) StoreIfAbsent(ctx context.Context, key, value string) (string, error) {
	key, err := validateKey(key)
	if err != nil {
		return "", err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                s.item(key, value),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err == nil {
		return value, nil
	}
	var condErr *types.ConditionalCheckFailedException
	if !errors.As(err, &condErr) {
		return "", fmt.Errorf("repository: StoreIfAbsent put item: %w", err)
	}

	winner, ok, err := s.Load(ctx, key)
	if err != nil {
		return "", fmt.Errorf("repository: StoreIfAbsent reread: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("repository: StoreIfAbsent: %q vanished after conditional failure", key)
	}
	return winner, nil
}

// Put writes or replaces the value of key.
func (s *DynamoStore) Put(ctx context.Context, key, value string) error {
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      s.item(key, value),
	})
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func (s *DynamoStore) Close() error { return nil }

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	str, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return str.Value, nil
}
