// Package dynamo implements the store contract on Amazon DynamoDB. The
// table uses "key" as its hash key and carries one GSI keyed on
// (value, update_time) for the sharded status index.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tasktrail/tasktrail/pkg/store"
)

// DefaultIndexName is the status index used unless Options overrides it.
const DefaultIndexName = "status_and_update_time-index"

// batchWriteMax is DynamoDB's BatchWriteItem request ceiling.
const batchWriteMax = 25

// Options configures the DynamoDB store.
type Options struct {
	// Table is the table name. Required.
	Table string
	// Index is the status GSI name. Defaults to DefaultIndexName.
	Index string
	// Region overrides the SDK's resolved region.
	Region string
	// Endpoint overrides the service endpoint (DynamoDB Local).
	Endpoint string
}

// Store implements store.Store over a DynamoDB table.
type Store struct {
	client *dynamodb.Client
	table  string
	index  string
}

// New builds a Store with the default AWS credential chain.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Table == "" {
		return nil, errors.New("dynamo: Options.Table is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewFromClient(client, opts), nil
}

// NewFromClient wraps an existing DynamoDB client.
func NewFromClient(client *dynamodb.Client, opts Options) *Store {
	index := opts.Index
	if index == "" {
		index = DefaultIndexName
	}
	return &Store{client: client, table: opts.Table, index: index}
}

func hashKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		store.FieldKey: &types.AttributeValueMemberS{Value: key},
	}
}

// Get returns the item for key, or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string, opts store.GetOptions) (*store.Item, error) {
	in := &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            hashKey(key),
		ConsistentRead: aws.Bool(opts.ConsistentRead),
	}
	if len(opts.Attributes) > 0 {
		b := newExprBuilder()
		proj := ""
		for i, attr := range opts.Attributes {
			if i > 0 {
				proj += ", "
			}
			proj += b.name(attr)
		}
		in.ProjectionExpression = aws.String(proj)
		in.ExpressionAttributeNames = b.names
	}
	out, err := s.client.GetItem(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("dynamo: get %q: %w", key, err)
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}
	var it store.Item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal %q: %w", key, err)
	}
	return &it, nil
}

// Put writes the item unconditionally.
func (s *Store) Put(ctx context.Context, item *store.Item) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("dynamo: marshal %q: %w", item.Key, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamo: put %q: %w", item.Key, err)
	}
	return nil
}

// ConditionalUpdate applies upd guarded by cond in one UpdateItem call and
// returns the post-update item (ReturnValues ALL_NEW).
func (s *Store) ConditionalUpdate(ctx context.Context, key string, upd store.Update, cond store.Cond) (*store.Item, error) {
	b := newExprBuilder()
	updateExpr, err := compileUpdate(upd, b)
	if err != nil {
		return nil, err
	}
	in := &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              hashKey(key),
		UpdateExpression: aws.String(updateExpr),
		ReturnValues:     types.ReturnValueAllNew,
	}
	if cond != nil {
		condExpr, err := compileCond(cond, b)
		if err != nil {
			return nil, err
		}
		in.ConditionExpression = aws.String(condExpr)
	}
	in.ExpressionAttributeNames = b.names
	in.ExpressionAttributeValues = b.values

	out, err := s.client.UpdateItem(ctx, in)
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return nil, store.ErrConditionFailed
		}
		return nil, fmt.Errorf("dynamo: update %q: %w", key, err)
	}
	var it store.Item
	if err := attributevalue.UnmarshalMap(out.Attributes, &it); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal updated %q: %w", key, err)
	}
	return &it, nil
}

// QueryIndex queries one partition of the status GSI.
func (s *Store) QueryIndex(ctx context.Context, indexValue string, opts store.QueryOptions) ([]*store.Item, error) {
	b := newExprBuilder()
	n := b.name(store.FieldValue)
	v, err := b.value(indexValue)
	if err != nil {
		return nil, err
	}
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.index),
		KeyConditionExpression:    aws.String(fmt.Sprintf("%s = %s", n, v)),
		ExpressionAttributeNames:  b.names,
		ExpressionAttributeValues: b.values,
		ScanIndexForward:          aws.Bool(opts.Ascending),
	}
	if opts.Limit > 0 {
		in.Limit = aws.Int32(int32(opts.Limit))
	}
	out, err := s.client.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("dynamo: query index %q: %w", indexValue, err)
	}
	items := make([]*store.Item, 0, len(out.Items))
	for _, raw := range out.Items {
		var it store.Item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, fmt.Errorf("dynamo: unmarshal index item: %w", err)
		}
		items = append(items, &it)
	}
	return items, nil
}

// Scan walks the whole table filtering on a key prefix, projecting keys
// only. Documented-expensive; used by the count/purge maintenance paths.
func (s *Store) Scan(ctx context.Context, keyPrefix string, fn func(key string) error) error {
	b := newExprBuilder()
	n := b.name(store.FieldKey)
	v, err := b.value(keyPrefix)
	if err != nil {
		return err
	}
	in := &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          aws.String(fmt.Sprintf("begins_with(%s, %s)", n, v)),
		ProjectionExpression:      aws.String(n),
		ExpressionAttributeNames:  b.names,
		ExpressionAttributeValues: b.values,
	}
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return fmt.Errorf("dynamo: scan: %w", err)
		}
		for _, raw := range out.Items {
			var it store.Item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return fmt.Errorf("dynamo: unmarshal scanned item: %w", err)
			}
			if err := fn(it.Key); err != nil {
				return err
			}
		}
		if out.LastEvaluatedKey == nil {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// BatchDelete removes items in chunks of 25, resubmitting unprocessed keys.
func (s *Store) BatchDelete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += batchWriteMax {
		end := start + batchWriteMax
		if end > len(keys) {
			end = len(keys)
		}
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: hashKey(key)},
			})
		}
		pending := map[string][]types.WriteRequest{s.table: reqs}
		for len(pending[s.table]) > 0 {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return fmt.Errorf("dynamo: batch delete: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}
