// Package s3 implements the object store client backed by AWS S3.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/observability/tracing"
	"github.com/nimburion/adapter-registry/pkg/store"
)

const system = "s3"

// ErrTruncatedWithoutToken is returned when S3 reports more pages but gives no token to fetch them.
var ErrTruncatedWithoutToken = errors.New("s3 listing truncated without continuation token")

// Config defines S3 adapter configuration.
type Config struct {
	// Bucket is the default bucket used when a call passes an empty bucket name.
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// AppID is sent in the AWS user agent.
	AppID            string
	UsePathStyle     bool
	OperationTimeout time.Duration
}

type s3API interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Adapter provides object storage operations backed by AWS S3 API.
type Adapter struct {
	client s3API
	logger logger.Logger
	config Config

	mu     sync.RWMutex
	closed bool
}

// NewAdapter creates a new S3 adapter. The default bucket, when configured, is
// checked for accessibility.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("aws region is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
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

	clientOptions := make([]func(*awss3.Options), 0, 2)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		clientOptions = append(clientOptions, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	adapter := newAdapter(awss3.NewFromConfig(awsCfg, clientOptions...), cfg, log)

	if cfg.Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
		defer cancel()
		if err := adapter.Ping(ctx); err != nil {
			return nil, err
		}
	}

	log.Info("S3 adapter initialized", "bucket", cfg.Bucket, "region", cfg.Region, "endpoint", cfg.Endpoint)
	return adapter, nil
}

func newAdapter(client s3API, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{client: client, logger: log, config: cfg}
}

// Ping verifies that the default bucket is accessible.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	if a.config.Bucket == "" {
		return errors.New("s3 default bucket is not configured")
	}
	_, err := a.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(a.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 ping failed: %w", err)
	}
	return nil
}

// ListKeys returns every object key under prefix, following continuation
// tokens until the listing is complete. Keys are returned in page order.
func (a *Adapter) ListKeys(ctx context.Context, bucket, prefix string) store.Result[[]string] {
	bucket, err := a.resolve(bucket)
	if err != nil {
		return store.Fail[[]string](err)
	}

	ctx, span := tracing.StartStoreSpan(ctx, system, tracing.SpanOperationObjectList, bucket,
		attribute.String("s3.prefix", prefix))
	var pages int
	keys := make([]string, 0)
	err = func() error {
		var token *string
		for {
			opCtx, cancel := a.withOperationTimeout(ctx)
			resp, err := a.client.ListObjectsV2(opCtx, &awss3.ListObjectsV2Input{
				Bucket:            aws.String(bucket),
				Prefix:            aws.String(prefix),
				ContinuationToken: token,
			})
			cancel()
			if err != nil {
				return fmt.Errorf("failed to list objects with prefix %q: %w", prefix, err)
			}
			pages++

			for _, item := range resp.Contents {
				keys = append(keys, aws.ToString(item.Key))
			}

			if !aws.ToBool(resp.IsTruncated) {
				return nil
			}
			if aws.ToString(resp.NextContinuationToken) == "" {
				return fmt.Errorf("failed to list objects with prefix %q: %w", prefix, ErrTruncatedWithoutToken)
			}
			token = resp.NextContinuationToken
		}
	}()
	span.SetAttributes(attribute.Int("s3.pages", pages), attribute.Int("s3.keys", len(keys)))
	tracing.End(span, err)

	if err != nil {
		a.logger.Error("S3 listing failed", "bucket", bucket, "prefix", prefix, "error", err)
		return store.Fail[[]string](err)
	}
	a.logger.Debug("S3 listing completed", "bucket", bucket, "prefix", prefix, "pages", pages, "keys", len(keys))
	return store.OK(keys)
}

// GetObject reads an object body as text. An empty body yields a nil payload.
func (a *Adapter) GetObject(ctx context.Context, bucket, key string) store.Result[*string] {
	bucket, err := a.resolve(bucket)
	if err != nil {
		return store.Fail[*string](err)
	}
	if strings.TrimSpace(key) == "" {
		return store.Fail[*string](errors.New("object key is required"))
	}

	ctx, span := tracing.StartStoreSpan(ctx, system, tracing.SpanOperationObjectGet, bucket,
		attribute.String("s3.key", key))
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	payload, err := func() ([]byte, error) {
		resp, err := a.client.GetObject(opCtx, &awss3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get object %q: %w", key, err)
		}
		if resp.Body == nil {
			return nil, nil
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read object %q: %w", key, err)
		}
		return payload, nil
	}()
	tracing.End(span, err)

	if IsNotFound(err) {
		a.logger.Warn("S3 object not found", "bucket", bucket, "key", key)
		return store.Fail[*string](err)
	}
	if err != nil {
		a.logger.Error("S3 get object failed", "bucket", bucket, "key", key, "error", err)
		return store.Fail[*string](err)
	}
	if len(payload) == 0 {
		return store.OK[*string](nil)
	}
	body := string(payload)
	return store.OK(&body)
}

// PutObject stores body as a JSON object. Data reports whether the write succeeded.
func (a *Adapter) PutObject(ctx context.Context, bucket, key string, body []byte) store.Result[bool] {
	bucket, err := a.resolve(bucket)
	if err != nil {
		return store.Fail[bool](err)
	}
	if strings.TrimSpace(key) == "" {
		return store.Fail[bool](errors.New("object key is required"))
	}

	ctx, span := tracing.StartStoreSpan(ctx, system, tracing.SpanOperationObjectPut, bucket,
		attribute.String("s3.key", key), attribute.Int("s3.size", len(body)))
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	_, err = a.client.PutObject(opCtx, &awss3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		err = fmt.Errorf("failed to put object %q: %w", key, err)
	}
	tracing.End(span, err)

	if err != nil {
		a.logger.Error("S3 put object failed", "bucket", bucket, "key", key, "error", err)
		return store.Fail[bool](err)
	}
	return store.OK(true)
}

// HealthCheck verifies the adapter can reach the bucket within a short timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("S3 health check failed", "error", err)
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// Close marks the adapter as closed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// IsNotFound reports whether err is an S3 missing key or bucket error.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return true
		}
	}
	return false
}

func (a *Adapter) resolve(bucket string) (string, error) {
	if err := a.ensureOpen(); err != nil {
		return "", err
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		bucket = a.config.Bucket
	}
	if bucket == "" {
		return "", errors.New("s3 bucket is required")
	}
	return bucket, nil
}

// withOperationTimeout applies the operation timeout unless the caller's
// deadline is already sooner.
func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < a.config.OperationTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.OperationTimeout)
}

func (a *Adapter) ensureOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errors.New("s3 adapter is closed")
	}
	return nil
}

var _ store.Adapter = (*Adapter)(nil)
