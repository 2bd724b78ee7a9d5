// Package sqs consumes upload notifications from an AWS SQS queue.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cenkalti/backoff/v5"

	"github.com/nimburion/adapter-registry/pkg/eventbus"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
)

// ErrClosed is returned by operations on a closed adapter.
var ErrClosed = errors.New("sqs adapter is closed")

// Adapter implements eventbus.Consumer for AWS SQS with long polling.
type Adapter struct {
	client sqsAPI
	logger logger.Logger
	config Config
	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// Config holds SQS adapter configuration.
type Config struct {
	Region          string
	QueueURL        string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// AppID is sent in the AWS user agent.
	AppID             string
	OperationTimeout  time.Duration
	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
	// ReceiveBackoff paces retries after a failed receive. Defaults to an
	// exponential backoff from 200ms to 30s.
	ReceiveBackoff backoff.BackOff
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// NewAdapter creates the SQS client with optional custom endpoint and
// verifies the queue is reachable. Queues and IAM policies are not created.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is required")
	}
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs queue URL is required")
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AppID != "" {
		loadOptions = append(loadOptions, awsconfig.WithAppID(cfg.AppID))
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	var opts []func(*sqs.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	adapter := newAdapter(sqs.NewFromConfig(awsCfg, opts...), cfg, log)
	if err := adapter.HealthCheck(context.Background()); err != nil {
		return nil, err
	}

	log.Info("SQS adapter initialized", "region", cfg.Region, "queue_url", cfg.QueueURL)
	return adapter, nil
}

func newAdapter(client sqsAPI, cfg Config, log logger.Logger) *Adapter {
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = 10
	}
	if cfg.ReceiveBackoff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxInterval = 30 * time.Second
		cfg.ReceiveBackoff = b
	}
	return &Adapter{
		client: client,
		logger: log.With("queue_url", cfg.QueueURL),
		config: cfg,
		stop:   make(chan struct{}),
	}
}

// Consume polls the queue until ctx is cancelled or the adapter is closed.
// Messages of one receive are handled sequentially; each is deleted only
// after the handler returns nil.
func (a *Adapter) Consume(ctx context.Context, handler eventbus.MessageHandler) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	a.logger.Info("sqs consumer started")
	for {
		if ctx.Err() != nil {
			a.logger.Info("sqs consumer stopped")
			return nil
		}

		if err := a.poll(ctx, handler); err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := a.config.ReceiveBackoff.NextBackOff()
			a.logger.Error("sqs receive failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		a.config.ReceiveBackoff.Reset()
	}
}

// poll runs one receive and handles the returned messages.
func (a *Adapter) poll(ctx context.Context, handler eventbus.MessageHandler) error {
	messages, err := a.receive(ctx)
	if err != nil {
		return err
	}

	for _, m := range messages {
		msg := toMessage(m)
		log := a.logger.With("message_id", msg.ID, "receive_count", msg.ReceiveCount)

		if err := handler(ctx, msg); err != nil {
			log.Warn("message left on queue for redelivery", "error", err)
			continue
		}
		if err := a.delete(ctx, m.ReceiptHandle); err != nil {
			log.Error("failed to delete handled message", "error", err)
		}
	}
	return nil
}

func (a *Adapter) receive(ctx context.Context) ([]types.Message, error) {
	// the long poll may take WaitTimeSeconds on top of the operation timeout
	timeout := a.config.OperationTimeout + time.Duration(a.config.WaitTimeSeconds)*time.Second
	recvCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := a.client.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(a.config.QueueURL),
		MaxNumberOfMessages:         a.config.MaxMessages,
		WaitTimeSeconds:             a.config.WaitTimeSeconds,
		VisibilityTimeout:           a.config.VisibilityTimeout,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive sqs messages: %w", err)
	}
	return out.Messages, nil
}

// delete removes a handled message. It survives cancellation of ctx so that
// a message handled during shutdown is not redelivered.
func (a *Adapter) delete(ctx context.Context, receiptHandle *string) error {
	if receiptHandle == nil {
		return nil
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.OperationTimeout)
	defer cancel()

	_, err := a.client.DeleteMessage(opCtx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(a.config.QueueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete sqs message: %w", err)
	}
	return nil
}

// HealthCheck verifies the queue is reachable.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := a.client.GetQueueAttributes(hcCtx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(a.config.QueueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameQueueArn,
		},
	})
	if err != nil {
		return fmt.Errorf("sqs health check failed: %w", err)
	}
	return nil
}

// Close stops a running Consume. It is safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	close(a.stop)
	return nil
}

func (a *Adapter) ensureOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	return nil
}

func toMessage(m types.Message) *eventbus.Message {
	msg := &eventbus.Message{
		ID:         aws.ToString(m.MessageId),
		Value:      []byte(aws.ToString(m.Body)),
		Attributes: fromSQSAttributes(m.MessageAttributes),
		ReceivedAt: time.Now(),
	}
	if count, err := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
		msg.ReceiveCount = count
	}
	return msg
}

func fromSQSAttributes(attrs map[string]types.MessageAttributeValue) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = aws.ToString(v.StringValue)
	}
	return out
}
