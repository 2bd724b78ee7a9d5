// Package dynamodb implements the adapter type index backed by a DynamoDB table
// partitioned by adapter name.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nimburion/adapter-registry/pkg/adaptertype"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/observability/tracing"
	"github.com/nimburion/adapter-registry/pkg/store"
)

const system = "dynamodb"

// MaxBatchSize is the largest number of write requests DynamoDB accepts in one BatchWriteItem call.
const MaxBatchSize = 25

const (
	attrName    = "name"
	attrVersion = "version"
)

var (
	// ErrVersionConflict is returned by UpsertIfUnchanged when the stored entry
	// no longer matches the expected version.
	ErrVersionConflict = store.ErrVersionConflict
	// ErrUnprocessedItems is returned when a delete batch still has unprocessed
	// requests after all retry attempts.
	ErrUnprocessedItems = errors.New("batch delete left unprocessed items")
)

type dynamoAPI interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Adapter provides the adapter type index operations.
type Adapter struct {
	client  dynamoAPI
	logger  logger.Logger
	timeout time.Duration
	retry   RetryConfig
	mu      sync.RWMutex
	closed  bool
}

// RetryConfig bounds the resubmission of unprocessed batch items.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config holds DynamoDB adapter configuration.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// AppID is sent in the AWS user agent.
	AppID            string
	OperationTimeout time.Duration
	BatchRetry       RetryConfig
}

// NewAdapter builds the DynamoDB client (AWS SDK v2) with optional custom
// endpoint and verifies connectivity. Tables are not created.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is required")
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = 5 * time.Second
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

	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	adapter := newAdapter(dynamodb.NewFromConfig(awsCfg, opts...), cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := adapter.Ping(ctx); err != nil {
		return nil, err
	}

	log.Info("DynamoDB adapter initialized", "region", cfg.Region, "endpoint", cfg.Endpoint)
	return adapter, nil
}

func newAdapter(client dynamoAPI, cfg Config, log logger.Logger) *Adapter {
	retry := cfg.BatchRetry
	if retry.MaxTries == 0 {
		retry.MaxTries = 5
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 50 * time.Millisecond
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = 2 * time.Second
	}
	return &Adapter{client: client, logger: log, timeout: cfg.OperationTimeout, retry: retry}
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err := a.client.ListTables(opCtx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	if err != nil {
		return fmt.Errorf("dynamodb ping failed: %w", err)
	}
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("DynamoDB health check failed", "error", err)
		return fmt.Errorf("dynamodb health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Scan reads every item of table into T, following LastEvaluatedKey. An empty
// table yields an empty, non-nil slice.
func Scan[T any](ctx context.Context, a *Adapter, table string) store.Result[[]T] {
	return scan[T](ctx, a, table, nil)
}

func scan[T any](ctx context.Context, a *Adapter, table string, projection []string) store.Result[[]T] {
	if err := a.check(table); err != nil {
		return store.Fail[[]T](err)
	}

	ctx, span := tracing.StartStoreSpan(ctx, system, tracing.SpanOperationIndexScan, table)
	items := make([]T, 0)
	var pages int
	err := func() error {
		input := &dynamodb.ScanInput{TableName: aws.String(table)}
		if len(projection) > 0 {
			input.ExpressionAttributeNames = make(map[string]string, len(projection))
			expr := ""
			for i, attr := range projection {
				placeholder := fmt.Sprintf("#p%d", i)
				input.ExpressionAttributeNames[placeholder] = attr
				if expr != "" {
					expr += ", "
				}
				expr += placeholder
			}
			input.ProjectionExpression = aws.String(expr)
		}

		for {
			opCtx, cancel := a.withOperationTimeout(ctx)
			out, err := a.client.Scan(opCtx, input)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to scan table %q: %w", table, err)
			}
			pages++

			var page []T
			if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
				return fmt.Errorf("failed to unmarshal items of table %q: %w", table, err)
			}
			items = append(items, page...)

			if len(out.LastEvaluatedKey) == 0 {
				return nil
			}
			input.ExclusiveStartKey = out.LastEvaluatedKey
		}
	}()
	span.SetAttributes(attribute.Int("db.pages", pages), attribute.Int("db.items", len(items)))
	tracing.End(span, err)

	if err != nil {
		a.logger.Error("DynamoDB scan failed", "table", table, "error", err)
		return store.Fail[[]T](err)
	}
	return store.OK(items)
}

// List returns every index entry of table.
func (a *Adapter) List(ctx context.Context, table string) store.Result[[]adaptertype.Descriptor] {
	return Scan[adaptertype.Descriptor](ctx, a, table)
}

// QueryByName returns the index entry for name, or nil when there is none.
func (a *Adapter) QueryByName(ctx context.Context, table, name string) store.Result[*adaptertype.Descriptor] {
	if err := a.check(table); err != nil {
		return store.Fail[*adaptertype.Descriptor](err)
	}

	ctx, span := tracing.StartStoreSpan(ctx, system, tracing.SpanOperationIndexQuery, table,
		attribute.String("adapter.name", name))
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	entry, err := func() (*adaptertype.Descriptor, error) {
		out, err := a.client.Query(opCtx, &dynamodb.QueryInput{
			TableName:                aws.String(table),
			KeyConditionExpression:   aws.String("#name = :name"),
			ExpressionAttributeNames: map[string]string{"#name": attrName},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":name": &types.AttributeValueMemberS{Value: name},
			},
			Limit: aws.Int32(1),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query %q in table %q: %w", name, table, err)
		}
		if len(out.Items) == 0 {
			return nil, nil
		}
		var d adaptertype.Descriptor
		if err := attributevalue.UnmarshalMap(out.Items[0], &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry %q: %w", name, err)
		}
		return &d, nil
	}()
	tracing.End(span, err)

	if err != nil {
		a.logger.Error("DynamoDB query failed", "table", table, "name", name, "error", err)
		return store.Fail[*adaptertype.Descriptor](err)
	}
	return store.OK(entry)
}

// Upsert writes d unconditionally, replacing the whole item.
func (a *Adapter) Upsert(ctx context.Context, table string, d adaptertype.Descriptor) store.Result[bool] {
	return a.put(ctx, table, d, nil, false)
}

// UpsertIfUnchanged writes d only if the stored entry still matches what the
// caller observed: no entry when expectedVersion is nil, otherwise an entry at
// *expectedVersion. A failed condition returns ErrVersionConflict.
func (a *Adapter) UpsertIfUnchanged(ctx context.Context, table string, d adaptertype.Descriptor, expectedVersion *string) store.Result[bool] {
	return a.put(ctx, table, d, expectedVersion, true)
}

func (a *Adapter) put(ctx context.Context, table string, d adaptertype.Descriptor, expectedVersion *string, conditional bool) store.Result[bool] {
	if err := a.check(table); err != nil {
		return store.Fail[bool](err)
	}
	if d.Name == "" {
		return store.Fail[bool](errors.New("index entry name is required"))
	}

	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return store.Fail[bool](fmt.Errorf("failed to marshal entry %q: %w", d.Name, err))
	}

	input := &dynamodb.PutItemInput{TableName: aws.String(table), Item: item}
	if conditional {
		input.ExpressionAttributeNames = map[string]string{"#name": attrName}
		if expectedVersion == nil {
			input.ConditionExpression = aws.String("attribute_not_exists(#name)")
		} else {
			input.ConditionExpression = aws.String("attribute_not_exists(#name) OR #version = :expected")
			input.ExpressionAttributeNames["#version"] = attrVersion
			input.ExpressionAttributeValues = map[string]types.AttributeValue{
				":expected": &types.AttributeValueMemberS{Value: *expectedVersion},
			}
		}
	}

	ctx, span := tracing.StartStoreSpan(ctx, system, tracing.SpanOperationIndexPut, table,
		attribute.String("adapter.name", d.Name),
		attribute.String("adapter.version", d.Version),
		attribute.Bool("db.conditional", conditional))
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	_, err = a.client.PutItem(opCtx, input)
	if err != nil {
		if IsConditionalCheckFailed(err) {
			err = fmt.Errorf("put %q: %w", d.Name, ErrVersionConflict)
		} else {
			err = fmt.Errorf("failed to put %q in table %q: %w", d.Name, table, err)
		}
	}
	tracing.End(span, err)

	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			a.logger.Warn("DynamoDB conditional put rejected", "table", table, "name", d.Name, "version", d.Version)
		} else {
			a.logger.Error("DynamoDB put failed", "table", table, "name", d.Name, "error", err)
		}
		return store.Fail[bool](err)
	}
	return store.OK(true)
}

// DeleteByName removes the entry for name. Deleting a missing entry succeeds.
func (a *Adapter) DeleteByName(ctx context.Context, table, name string) store.Result[bool] {
	if err := a.check(table); err != nil {
		return store.Fail[bool](err)
	}

	ctx, span := tracing.StartStoreSpan(ctx, system, tracing.SpanOperationIndexDelete, table,
		attribute.String("adapter.name", name))
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	_, err := a.client.DeleteItem(opCtx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       keyOf(adaptertype.Key{Name: name}),
	})
	if err != nil {
		err = fmt.Errorf("failed to delete %q from table %q: %w", name, table, err)
	}
	tracing.End(span, err)

	if err != nil {
		a.logger.Error("DynamoDB delete failed", "table", table, "name", name, "error", err)
		return store.Fail[bool](err)
	}
	return store.OK(true)
}

// DeleteAll removes every entry of table in sequential batches of at most
// MaxBatchSize keys and returns the deleted keys. A scan failure is returned
// unchanged and nothing is deleted. A batch failure returns the keys deleted
// by earlier batches together with the error.
func (a *Adapter) DeleteAll(ctx context.Context, table string) store.Result[[]adaptertype.Key] {
	keysRes := scan[adaptertype.Key](ctx, a, table, []string{attrName})
	if keysRes.Err != nil {
		return keysRes
	}
	keys := keysRes.Data

	deleted := make([]adaptertype.Key, 0, len(keys))
	for start := 0; start < len(keys); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(keys))
		batch := keys[start:end]
		if err := a.deleteBatch(ctx, table, batch); err != nil {
			a.logger.Error("DynamoDB batch delete failed",
				"table", table, "deleted", len(deleted), "remaining", len(keys)-len(deleted), "error", err)
			return store.Partial(deleted, err)
		}
		deleted = append(deleted, batch...)
	}

	a.logger.Info("DynamoDB table emptied", "table", table, "deleted", len(deleted))
	return store.OK(deleted)
}

func (a *Adapter) deleteBatch(ctx context.Context, table string, keys []adaptertype.Key) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: keyOf(k)},
		})
	}

	ctx, span := tracing.StartStoreSpan(ctx, system, tracing.SpanOperationIndexBatchDelete, table,
		attribute.Int("db.batch_size", len(keys)))

	pending := map[string][]types.WriteRequest{table: requests}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.retry.InitialInterval
	b.MaxInterval = a.retry.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		opCtx, cancel := a.withOperationTimeout(ctx)
		defer cancel()

		out, err := a.client.BatchWriteItem(opCtx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			err = fmt.Errorf("failed to batch delete from table %q: %w", table, err)
			if IsThrottlingError(err) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		if len(out.UnprocessedItems[table]) > 0 {
			pending = out.UnprocessedItems
			a.logger.Debug("DynamoDB batch delete has unprocessed items", "table", table, "unprocessed", len(pending[table]))
			return struct{}{}, fmt.Errorf("%d requests in table %q: %w", len(pending[table]), table, ErrUnprocessedItems)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(a.retry.MaxTries))
	tracing.End(span, err)
	return err
}

func keyOf(k adaptertype.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrName: &types.AttributeValueMemberS{Value: k.Name},
	}
}

func (a *Adapter) check(table string) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	if table == "" {
		return errors.New("dynamodb table is required")
	}
	return nil
}

func (a *Adapter) ensureOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return fmt.Errorf("dynamodb adapter is closed")
	}
	return nil
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

// IsThrottlingError reports whether err is a DynamoDB throughput or request limit error.
func IsThrottlingError(err error) bool {
	if err == nil {
		return false
	}
	var pte *types.ProvisionedThroughputExceededException
	if errors.As(err, &pte) {
		return true
	}
	var rle *types.RequestLimitExceeded
	if errors.As(err, &rle) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException"
}

// IsConditionalCheckFailed reports whether err is a failed ConditionExpression.
func IsConditionalCheckFailed(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var _ store.Adapter = (*Adapter)(nil)
