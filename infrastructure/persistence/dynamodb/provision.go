package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"statbucket/application/ports"
)

// tableWaitTimeout bounds how long EnsureTables blocks on a table becoming
// active.
const tableWaitTimeout = 2 * time.Minute

// EnsureTables creates every owned table, waits until each is active and
// enables ttl-based expiry. Existing tables are left untouched, so the call
// is safe to run on every startup.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, table := range ports.Tables() {
		if err := s.ensureTable(ctx, s.tableName(table)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context, tableName string) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSK), KeyType: types.KeyTypeRange},
		},
	})
	switch {
	case err == nil:
		s.logger.Info("creating table", zap.String("table", tableName))
	case isTableExists(err):
		s.logger.Debug("table already exists", zap.String("table", tableName))
	default:
		return wrapStore(err, "failed to create table "+tableName)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	input := &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}
	if err := waiter.Wait(ctx, input, tableWaitTimeout); err != nil {
		return wrapStore(err, "timed out waiting for table "+tableName)
	}

	return s.ensureExpiry(ctx, tableName)
}

// ensureExpiry turns on ttl-attribute expiry once per table. Enabling twice
// is a validation error, so the current state is checked first.
func (s *Store) ensureExpiry(ctx context.Context, tableName string) error {
	desc, err := s.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		return wrapStore(err, "failed to describe ttl for "+tableName)
	}
	if desc.TimeToLiveDescription != nil {
		switch desc.TimeToLiveDescription.TimeToLiveStatus {
		case types.TimeToLiveStatusEnabled, types.TimeToLiveStatusEnabling:
			return nil
		}
	}

	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(ports.AttrTTL),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return wrapStore(err, "failed to enable ttl for "+tableName)
	}

	s.logger.Info("enabled ttl expiry", zap.String("table", tableName))
	return nil
}

func isTableExists(err error) bool {
	var inUse *types.ResourceInUseException
	return errors.As(err, &inUse)
}
