// Package dynamodb implements the store contract on AWS DynamoDB. Each
// record family lives in its own table keyed by namespace (PK) and sort
// key (SK); counter updates ride a single UpdateItem so concurrent writers
// never lose increments.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"statbucket/application/ports"
	apperrors "statbucket/pkg/errors"
)

const (
	attrPK = "PK"
	attrSK = "SK"

	// DynamoDB caps BatchWriteItem at 25 requests.
	batchWriteLimit = 25

	// Unprocessed BatchWriteItem entries are resubmitted with doubling delay.
	batchRetryBase = 50 * time.Millisecond
	batchRetryCap  = 2 * time.Second
)

// Store is the DynamoDB-backed ports.Store.
type Store struct {
	client *dynamodb.Client
	prefix string
	logger *zap.Logger
}

// New creates a store over client. prefix names the table family: the
// "stats" table of prefix "statbucket" is "statbucket-stats".
func New(client *dynamodb.Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, prefix: prefix, logger: logger}
}

func (s *Store) tableName(table ports.Table) string {
	return fmt.Sprintf("%s-%s", s.prefix, table)
}

func itemKey(namespace, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: namespace},
		attrSK: &types.AttributeValueMemberS{Value: key},
	}
}

func (s *Store) Get(ctx context.Context, table ports.Table, namespace, key string) (ports.Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName(table)),
		Key:       itemKey(namespace, key),
	})
	if err != nil {
		return nil, wrapStore(err, "failed to get item")
	}
	if len(result.Item) == 0 {
		return nil, nil
	}
	return decodeItem(result.Item)
}

func (s *Store) GetLast(ctx context.Context, table ports.Table, namespace, prefix string) (ports.Item, error) {
	keyCond := expression.Key(attrPK).Equal(expression.Value(namespace)).
		And(expression.KeyBeginsWith(expression.Key(attrSK), prefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build key condition")
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName(table)),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, wrapStore(err, "failed to query last item")
	}
	if len(result.Items) == 0 {
		return nil, nil
	}
	return decodeItem(result.Items[0])
}

func (s *Store) Query(ctx context.Context, table ports.Table, q ports.Query) (*ports.QueryResult, error) {
	keyCond := expression.Key(attrPK).Equal(expression.Value(q.Namespace))
	switch {
	case q.Prefix != "":
		keyCond = keyCond.And(expression.KeyBeginsWith(expression.Key(attrSK), q.Prefix))
	case q.RangeFrom != "" && q.RangeTo != "":
		keyCond = keyCond.And(expression.KeyBetween(expression.Key(attrSK),
			expression.Value(q.RangeFrom), expression.Value(q.RangeTo)))
	case q.RangeFrom != "":
		keyCond = keyCond.And(expression.KeyGreaterThanEqual(expression.Key(attrSK), expression.Value(q.RangeFrom)))
	case q.RangeTo != "":
		keyCond = keyCond.And(expression.KeyLessThanEqual(expression.Key(attrSK), expression.Value(q.RangeTo)))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	switch {
	case q.CreatedFrom != "" && q.CreatedTo != "":
		builder = builder.WithFilter(expression.Name(ports.AttrCreatedAt).
			Between(expression.Value(q.CreatedFrom), expression.Value(q.CreatedTo)))
	case q.CreatedFrom != "":
		builder = builder.WithFilter(expression.Name(ports.AttrCreatedAt).
			GreaterThanEqual(expression.Value(q.CreatedFrom)))
	case q.CreatedTo != "":
		builder = builder.WithFilter(expression.Name(ports.AttrCreatedAt).
			LessThanEqual(expression.Value(q.CreatedTo)))
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build query expression")
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName(table)),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!q.Desc),
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(q.Limit)
	}
	if q.StartKey != "" {
		startKey, err := decodeCursor(q.StartKey)
		if err != nil {
			return nil, apperrors.NewValidation("invalid pagination cursor")
		}
		input.ExclusiveStartKey = startKey
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, wrapStore(err, "failed to query items")
	}

	items := make([]ports.Item, 0, len(result.Items))
	for _, raw := range result.Items {
		item, err := decodeItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return &ports.QueryResult{
		Items:   items,
		Count:   len(items),
		NextKey: encodeCursor(result.LastEvaluatedKey),
	}, nil
}

func (s *Store) Put(ctx context.Context, table ports.Table, namespace, key string, item ports.Item, overwrite bool) error {
	encoded, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal item")
	}
	encoded[attrPK] = &types.AttributeValueMemberS{Value: namespace}
	encoded[attrSK] = &types.AttributeValueMemberS{Value: key}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName(table)),
		Item:      encoded,
	}
	if !overwrite {
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var conditional *types.ConditionalCheckFailedException
		if errors.As(err, &conditional) {
			return ports.ErrConditionalFailed
		}
		return wrapStore(err, "failed to put item")
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table ports.Table, namespace, key string, update ports.Update) (ports.Item, error) {
	rendered, err := renderUpdate(update)
	if err != nil {
		return nil, err
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName(table)),
		Key:                       itemKey(namespace, key),
		UpdateExpression:          aws.String(rendered.expression),
		ExpressionAttributeNames:  rendered.names,
		ExpressionAttributeValues: rendered.values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, wrapStore(err, "failed to update item")
	}
	return decodeItem(result.Attributes)
}

// Clear pages through the namespace partition collecting keys, then batch
// deletes them in chunks of 25, resubmitting unprocessed requests.
func (s *Store) Clear(ctx context.Context, table ports.Table, namespace string) (int, error) {
	keyCond := expression.Key(attrPK).Equal(expression.Value(namespace))
	proj := expression.NamesList(expression.Name(attrPK), expression.Name(attrSK))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to build clear expression")
	}

	tableName := s.tableName(table)
	var writes []types.WriteRequest
	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastEvaluatedKey,
		})
		if err != nil {
			return 0, wrapStore(err, "failed to query items for deletion")
		}

		for _, item := range result.Items {
			writes = append(writes, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{attrPK: item[attrPK], attrSK: item[attrSK]},
				},
			})
		}

		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}

	for i := 0; i < len(writes); i += batchWriteLimit {
		end := i + batchWriteLimit
		if end > len(writes) {
			end = len(writes)
		}

		batch := writes[i:end]
		backoff := batchRetryBase
		for len(batch) > 0 {
			result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{tableName: batch},
			})
			if err != nil {
				return 0, wrapStore(err, "failed to batch delete items")
			}
			batch = result.UnprocessedItems[tableName]
			if len(batch) == 0 {
				break
			}

			// Unprocessed entries mean the table is throttling writes.
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, wrapStore(ctx.Err(), "canceled while deleting items")
			}
			if backoff < batchRetryCap {
				backoff *= 2
			}
		}
	}

	s.logger.Debug("cleared partition",
		zap.String("table", tableName),
		zap.String("namespace", namespace),
		zap.Int("count", len(writes)),
	)
	return len(writes), nil
}

// wrapStore classifies a failed DynamoDB call as a store error. API errors
// carry their service code so operators can tell throttling from a missing
// table without digging through wrapped causes.
func wrapStore(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return apperrors.NewStore(fmt.Sprintf("%s: %s", message, ae.ErrorCode()), err)
	}
	return apperrors.NewStore(message, err)
}

// decodeItem converts a raw DynamoDB item to the neutral form: numbers as
// float64, the physical PK/SK pair replaced by logical namespace and key
// entries.
func decodeItem(raw map[string]types.AttributeValue) (ports.Item, error) {
	var item map[string]any
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal item")
	}

	if pk, ok := item[attrPK].(string); ok {
		item["namespace"] = pk
	}
	if sk, ok := item[attrSK].(string); ok {
		item["key"] = sk
	}
	delete(item, attrPK)
	delete(item, attrSK)
	return item, nil
}
