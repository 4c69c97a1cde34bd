package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps records in a table keyed by "key".
// Conditional writes use a ConditionExpression on the version attribute.
// Deleted records keep their version under a "deleted" flag.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

// dynamoRecord represents the DynamoDB item structure
type dynamoRecord struct {
	Key     string `dynamodbav:"key"`
	Value   string `dynamodbav:"value"`
	Version int64  `dynamodbav:"version"`
	Deleted bool   `dynamodbav:"deleted,omitempty"`
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// NewDynamoClient builds a client from the default AWS credential chain.
// endpoint overrides the service URL, e.g. for DynamoDB Local.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *DynamoStore) keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStore) Get(ctx context.Context, key string) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.keyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec dynamoRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	if rec.Deleted {
		return nil, nil
	}
	return &Item{Key: key, Value: json.RawMessage(rec.Value), Version: rec.Version}, nil
}

func (s *DynamoStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.keyAttr(key),
		UpdateExpression:         aws.String("SET #value = :value, #version = if_not_exists(#version, :zero) + :one REMOVE #deleted"),
		ExpressionAttributeNames: map[string]string{"#value": "value", "#version": "version", "#deleted": "deleted"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: string(data)},
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":one":   &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.keyAttr(key),
		UpdateExpression:    aws.String("SET #version = #version + :one, #deleted = :true REMOVE #value"),
		ConditionExpression: aws.String("attribute_exists(#key) AND attribute_not_exists(#deleted)"),
		ExpressionAttributeNames: map[string]string{
			"#key":     "key",
			"#value":   "value",
			"#version": "version",
			"#deleted": "deleted",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if err != nil && !errors.As(err, &ccf) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) CompareAndSwap(ctx context.Context, key string, value any, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	input := &dynamodb.UpdateItemInput{
		TableName:    aws.String(s.tableName),
		Key:          s.keyAttr(key),
		ReturnValues: types.ReturnValueUpdatedNew,
		ExpressionAttributeNames: map[string]string{
			"#value":   "value",
			"#version": "version",
			"#deleted": "deleted",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: string(data)},
		},
	}
	if expectedVersion == 0 {
		// Create, or revive a tombstone above its last version.
		input.UpdateExpression = aws.String("SET #value = :value, #version = if_not_exists(#version, :zero) + :one REMOVE #deleted")
		input.ConditionExpression = aws.String("attribute_not_exists(#key) OR #deleted = :true")
		input.ExpressionAttributeNames["#key"] = "key"
		input.ExpressionAttributeValues[":zero"] = &types.AttributeValueMemberN{Value: "0"}
		input.ExpressionAttributeValues[":one"] = &types.AttributeValueMemberN{Value: "1"}
		input.ExpressionAttributeValues[":true"] = &types.AttributeValueMemberBOOL{Value: true}
	} else {
		input.UpdateExpression = aws.String("SET #value = :value, #version = :next")
		input.ConditionExpression = aws.String("#version = :expected AND attribute_not_exists(#deleted)")
		input.ExpressionAttributeValues[":expected"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)}
		input.ExpressionAttributeValues[":next"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion+1, 10)}
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, ErrVersionConflict
		}
		return 0, fmt.Errorf("failed to swap %s: %w", key, err)
	}

	var updated struct {
		Version int64 `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return 0, fmt.Errorf("failed to read version of %s: %w", key, err)
	}
	return updated.Version, nil
}
