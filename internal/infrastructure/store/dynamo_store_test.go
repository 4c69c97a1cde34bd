package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo records the last update and returns canned responses.
type fakeDynamo struct {
	getOut  *dynamodb.GetItemOutput
	updOut  *dynamodb.UpdateItemOutput
	updErr  error
	lastUpd *dynamodb.UpdateItemInput
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpd = in
	if f.updErr != nil {
		return nil, f.updErr
	}
	if f.updOut == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return f.updOut, nil
}

func updatedVersion(v string) *dynamodb.UpdateItemOutput {
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"version": &types.AttributeValueMemberN{Value: v},
	}}
}

func TestDynamoStore_Get(t *testing.T) {
	fake := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"key":     &types.AttributeValueMemberS{Value: "order:1"},
		"value":   &types.AttributeValueMemberS{Value: `{"status":"pending"}`},
		"version": &types.AttributeValueMemberN{Value: "3"},
	}}}
	s := NewDynamoStore(fake, "state")

	item, err := s.Get(context.Background(), "order:1")

	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(3), item.Version)
	assert.JSONEq(t, `{"status":"pending"}`, string(item.Value))
}

func TestDynamoStore_GetMissing(t *testing.T) {
	s := NewDynamoStore(&fakeDynamo{}, "state")

	item, err := s.Get(context.Background(), "order:1")

	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestDynamoStore_GetDeleted(t *testing.T) {
	fake := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"key":     &types.AttributeValueMemberS{Value: "order:1"},
		"version": &types.AttributeValueMemberN{Value: "4"},
		"deleted": &types.AttributeValueMemberBOOL{Value: true},
	}}}
	s := NewDynamoStore(fake, "state")

	item, err := s.Get(context.Background(), "order:1")

	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestDynamoStore_CompareAndSwap_CreateRevivesTombstone(t *testing.T) {
	fake := &fakeDynamo{updOut: updatedVersion("5")}
	s := NewDynamoStore(fake, "state")

	version, err := s.CompareAndSwap(context.Background(), "reservation:o:p", map[string]int{"quantity": 1}, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(5), version)
	require.NotNil(t, fake.lastUpd)
	assert.Equal(t, "attribute_not_exists(#key) OR #deleted = :true", aws.ToString(fake.lastUpd.ConditionExpression))
	assert.Contains(t, aws.ToString(fake.lastUpd.UpdateExpression), "if_not_exists(#version, :zero) + :one REMOVE #deleted")
	assert.Equal(t, types.ReturnValueUpdatedNew, fake.lastUpd.ReturnValues)
}

func TestDynamoStore_CompareAndSwap_UpdateUsesVersion(t *testing.T) {
	fake := &fakeDynamo{updOut: updatedVersion("8")}
	s := NewDynamoStore(fake, "state")

	version, err := s.CompareAndSwap(context.Background(), "inventory:p1", map[string]int{"quantity": 1}, 7)

	require.NoError(t, err)
	assert.Equal(t, int64(8), version)
	assert.Equal(t, "#version = :expected AND attribute_not_exists(#deleted)", aws.ToString(fake.lastUpd.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberN{Value: "7"}, fake.lastUpd.ExpressionAttributeValues[":expected"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "8"}, fake.lastUpd.ExpressionAttributeValues[":next"])
}

func TestDynamoStore_CompareAndSwap_ConditionFailed(t *testing.T) {
	fake := &fakeDynamo{updErr: &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}}
	s := NewDynamoStore(fake, "state")

	_, err := s.CompareAndSwap(context.Background(), "inventory:p1", map[string]int{"quantity": 1}, 7)

	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestDynamoStore_CompareAndSwap_OtherError(t *testing.T) {
	fake := &fakeDynamo{updErr: errors.New("throttled")}
	s := NewDynamoStore(fake, "state")

	_, err := s.CompareAndSwap(context.Background(), "inventory:p1", map[string]int{"quantity": 1}, 7)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVersionConflict)
}

func TestDynamoStore_DeleteLeavesTombstone(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "state")

	require.NoError(t, s.Delete(context.Background(), "reservation:o:p"))

	require.NotNil(t, fake.lastUpd)
	assert.Equal(t, "SET #version = #version + :one, #deleted = :true REMOVE #value", aws.ToString(fake.lastUpd.UpdateExpression))
	assert.Equal(t, "attribute_exists(#key) AND attribute_not_exists(#deleted)", aws.ToString(fake.lastUpd.ConditionExpression))
}

func TestDynamoStore_DeleteMissingIsNoop(t *testing.T) {
	fake := &fakeDynamo{updErr: &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}}
	s := NewDynamoStore(fake, "state")

	assert.NoError(t, s.Delete(context.Background(), "reservation:o:p"))
}

func TestDynamoStore_PutIncrementsVersion(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "state")

	require.NoError(t, s.Put(context.Background(), "order:1", map[string]string{"status": "pending"}))

	require.NotNil(t, fake.lastUpd)
	assert.Contains(t, aws.ToString(fake.lastUpd.UpdateExpression), "if_not_exists(#version, :zero) + :one REMOVE #deleted")
}
