package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimburion/adapter-registry/pkg/config"
	"github.com/nimburion/adapter-registry/pkg/eventbus"
	"github.com/nimburion/adapter-registry/pkg/eventbus/sqs"
	"github.com/nimburion/adapter-registry/pkg/health"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/registry"
	"github.com/nimburion/adapter-registry/pkg/server"
	"github.com/nimburion/adapter-registry/pkg/store/dynamodb"
	"github.com/nimburion/adapter-registry/pkg/store/s3"
	"github.com/nimburion/adapter-registry/pkg/version"
)

// Backend is what the commands run against: the registry operations, the
// dependency health checks and, for the worker, the notification queue.
type Backend struct {
	Registry server.Registry
	Checks   []health.Checker
	// Consumer is nil unless the queue was requested.
	Consumer eventbus.Consumer
	closers  []func() error
}

// Close releases every client of the backend.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewAWSBackend connects to S3, DynamoDB and, when withQueue is set, SQS.
func NewAWSBackend(_ context.Context, cfg *config.Config, log logger.Logger, withQueue bool) (*Backend, error) {
	appID := version.Current(cfg.Service.Name).AppID()
	b := &Backend{}

	objects, err := s3.NewAdapter(s3.Config{
		Bucket:           cfg.S3.Bucket,
		Region:           cfg.AWS.Region,
		Endpoint:         cfg.AWS.Endpoint,
		AccessKeyID:      cfg.AWS.AccessKeyID,
		SecretAccessKey:  cfg.AWS.SecretAccessKey,
		SessionToken:     cfg.AWS.SessionToken,
		AppID:            appID,
		UsePathStyle:     cfg.S3.UsePathStyle,
		OperationTimeout: cfg.AWS.OperationTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create s3 adapter: %w", err)
	}
	b.closers = append(b.closers, objects.Close)

	index, err := dynamodb.NewAdapter(dynamodb.Config{
		Region:           cfg.AWS.Region,
		Endpoint:         cfg.AWS.Endpoint,
		AccessKeyID:      cfg.AWS.AccessKeyID,
		SecretAccessKey:  cfg.AWS.SecretAccessKey,
		SessionToken:     cfg.AWS.SessionToken,
		AppID:            appID,
		OperationTimeout: cfg.AWS.OperationTimeout,
		BatchRetry: dynamodb.RetryConfig{
			MaxTries:        cfg.DynamoDB.BatchMaxTries,
			InitialInterval: cfg.DynamoDB.BatchInitialInterval,
			MaxInterval:     cfg.DynamoDB.BatchMaxInterval,
		},
	}, log)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("create dynamodb adapter: %w", err)
	}
	b.closers = append(b.closers, index.Close)

	b.Registry = registry.NewService(objects, index, log)
	b.Checks = []health.Checker{
		health.NewAdapterChecker("s3", objects, 0),
		health.NewAdapterChecker("dynamodb", index, 0),
	}

	if withQueue {
		queue, err := sqs.NewAdapter(sqs.Config{
			Region:            cfg.AWS.Region,
			QueueURL:          cfg.SQS.QueueURL,
			Endpoint:          cfg.AWS.Endpoint,
			AccessKeyID:       cfg.AWS.AccessKeyID,
			SecretAccessKey:   cfg.AWS.SecretAccessKey,
			SessionToken:      cfg.AWS.SessionToken,
			AppID:             appID,
			OperationTimeout:  cfg.AWS.OperationTimeout,
			WaitTimeSeconds:   cfg.SQS.WaitTimeSeconds,
			MaxMessages:       cfg.SQS.MaxMessages,
			VisibilityTimeout: cfg.SQS.VisibilityTimeout,
		}, log)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("create sqs adapter: %w", err)
		}
		b.closers = append(b.closers, queue.Close)
		b.Consumer = queue
		b.Checks = append(b.Checks, health.Optional(health.NewAdapterChecker("sqs", queue, 0)))
	}

	return b, nil
}
