// Package di wires the application dependency graph.
package di

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"statbucket/application/ports"
	"statbucket/application/stats"
	"statbucket/domain/normalize"
	"statbucket/infrastructure/config"
	"statbucket/infrastructure/observability"
	dynamodbstore "statbucket/infrastructure/persistence/dynamodb"
	"statbucket/interfaces/http/rest"
)

// metricsNamespace prefixes every Prometheus metric this process exports.
const metricsNamespace = "statbucket"

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Environment, cfg.LogLevel)
}

// ProvideAWSConfig loads the AWS configuration chain.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client. A configured endpoint
// override points the client at DynamoDB Local.
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideCollector creates the Prometheus metrics collector.
func ProvideCollector() *observability.Collector {
	return observability.NewCollector(metricsNamespace)
}

// ProvideNormalizer creates the key normalizer and exposes its cache
// counters on the collector.
func ProvideNormalizer(cfg *config.Config, collector *observability.Collector) *normalize.Normalizer {
	n := normalize.New(normalize.Options{CacheSize: cfg.NormalizerCacheSize})
	collector.RegisterNormalizer(n)
	return n
}

// ProvideStore creates the DynamoDB-backed store wrapped with metrics.
func ProvideStore(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger, collector *observability.Collector) ports.Store {
	store := dynamodbstore.New(client, cfg.TablePrefix, logger)
	return observability.NewInstrumentedStore(store, collector)
}

// ProvideService creates the stats engine.
func ProvideService(store ports.Store, normalizer *normalize.Normalizer, cfg *config.Config, logger *zap.Logger, collector *observability.Collector) *stats.Service {
	return stats.NewService(store, normalizer, stats.Config{
		SessionTimeout:    cfg.SessionTimeout(),
		UniqueUserTimeout: cfg.UniqueUserTimeout(),
		TTLDays:           cfg.TTLDays,
		NormalizeKeys:     cfg.NormalizeKeys,
	}, logger, collector)
}

// ProvideHandler creates the fully routed HTTP handler.
func ProvideHandler(service *stats.Service, collector *observability.Collector, cfg *config.Config, logger *zap.Logger) http.Handler {
	return rest.NewRouter(service, collector, cfg, logger).Setup()
}
