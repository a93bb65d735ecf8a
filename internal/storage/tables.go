package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

type tableSpec struct {
	name string
	pk   string
	sk   string
	ttl  bool
}

// CreateTablesIfNotExist creates DynamoDB tables for local development.
// Call records are kept indefinitely; raw transcripts carry a TTL
// attribute so old ones age out.
func CreateTablesIfNotExist(ctx context.Context, client *dynamodb.Client, config DynamoConfig, logger zerolog.Logger) error {
	tables := []tableSpec{
		{name: config.CallRecordsTable, pk: "DateKey", sk: "CallID"},
		{name: config.TranscriptsTable, pk: "CallID", sk: "DateKey", ttl: true},
	}

	for _, table := range tables {
		if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(table.name),
		}); err == nil {
			logger.Info().Str("table", table.name).Msg("table already exists")
			continue
		}

		if _, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(table.name),
			KeySchema: []dbtypes.KeySchemaElement{
				{AttributeName: aws.String(table.pk), KeyType: dbtypes.KeyTypeHash},
				{AttributeName: aws.String(table.sk), KeyType: dbtypes.KeyTypeRange},
			},
			AttributeDefinitions: []dbtypes.AttributeDefinition{
				{AttributeName: aws.String(table.pk), AttributeType: dbtypes.ScalarAttributeTypeS},
				{AttributeName: aws.String(table.sk), AttributeType: dbtypes.ScalarAttributeTypeS},
			},
			BillingMode: dbtypes.BillingModePayPerRequest,
		}); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
		logger.Info().Str("table", table.name).Msg("table created")

		if table.ttl {
			if _, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
				TableName: aws.String(table.name),
				TimeToLiveSpecification: &dbtypes.TimeToLiveSpecification{
					AttributeName: aws.String("ExpiresAt"),
					Enabled:       aws.Bool(true),
				},
			}); err != nil {
				// DynamoDB Local doesn't enforce TTL anyway
				logger.Warn().Err(err).Str("table", table.name).Msg("could not enable TTL")
			}
		}
	}

	return nil
}
