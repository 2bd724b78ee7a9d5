package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nimburion/adapter-registry/pkg/adaptertype"
	"github.com/nimburion/adapter-registry/pkg/testutil"
)

type mockDynamoClient struct {
	listTablesFn     func(context.Context, *dynamodb.ListTablesInput, ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	scanFn           func(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	queryFn          func(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	putItemFn        func(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	deleteItemFn     func(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	batchWriteItemFn func(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

func (m *mockDynamoClient) ListTables(ctx context.Context, in *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if m.listTablesFn != nil {
		return m.listTablesFn(ctx, in, optFns...)
	}
	return &dynamodb.ListTablesOutput{}, nil
}

func (m *mockDynamoClient) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, in, optFns...)
	}
	return &dynamodb.ScanOutput{}, nil
}

func (m *mockDynamoClient) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, in, optFns...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamoClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFn != nil {
		return m.putItemFn(ctx, in, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoClient) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFn != nil {
		return m.deleteItemFn(ctx, in, optFns...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDynamoClient) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if m.batchWriteItemFn != nil {
		return m.batchWriteItemFn(ctx, in, optFns...)
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func newTestAdapter(client dynamoAPI) *Adapter {
	return newAdapter(client, Config{
		OperationTimeout: time.Second,
		BatchRetry:       RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}, testutil.NewRecordingLogger())
}

func nameItems(t *testing.T, n int) []map[string]types.AttributeValue {
	t.Helper()
	items := make([]map[string]types.AttributeValue, 0, n)
	for i := 0; i < n; i++ {
		item, err := attributevalue.MarshalMap(adaptertype.Key{Name: fmt.Sprintf("adapter-%02d", i)})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		items = append(items, item)
	}
	return items
}

func TestNewAdapter_Validation(t *testing.T) {
	if _, err := NewAdapter(Config{}, testutil.NewRecordingLogger()); err == nil {
		t.Fatal("expected error without region")
	}
}

func TestScan_FollowsLastEvaluatedKey(t *testing.T) {
	first, _ := attributevalue.MarshalMap(adaptertype.Descriptor{Name: "b", Version: "1.0", FilePath: "k1"})
	second, _ := attributevalue.MarshalMap(adaptertype.Descriptor{Name: "a", Version: "2.0", FilePath: "k2"})

	var calls int
	client := &mockDynamoClient{
		scanFn: func(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			calls++
			if in.ExclusiveStartKey == nil {
				return &dynamodb.ScanOutput{
					Items:            []map[string]types.AttributeValue{first},
					LastEvaluatedKey: map[string]types.AttributeValue{"name": &types.AttributeValueMemberS{Value: "b"}},
				}, nil
			}
			return &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{second}}, nil
		},
	}

	res := Scan[adaptertype.Descriptor](context.Background(), newTestAdapter(client), "index")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if calls != 2 || len(res.Data) != 2 {
		t.Fatalf("expected 2 calls and 2 items, got %d calls and %d items", calls, len(res.Data))
	}
	if res.Data[0].Name != "b" || res.Data[1].Version != "2.0" || res.Data[1].FilePath != "k2" {
		t.Fatalf("unexpected items: %+v", res.Data)
	}
}

func TestScan_ReadsStringImages(t *testing.T) {
	// Items written through the document client keep image.data as a string.
	items := []map[string]types.AttributeValue{
		{
			"name":     &types.AttributeValueMemberS{Value: "modbus"},
			"version":  &types.AttributeValueMemberS{Value: "1.0"},
			"filePath": &types.AttributeValueMemberS{Value: "k1"},
			"image":    &types.AttributeValueMemberS{Value: "iVBORw0KGgo="},
		},
		{
			"name":     &types.AttributeValueMemberS{Value: "opcua"},
			"version":  &types.AttributeValueMemberS{Value: "2.1"},
			"filePath": &types.AttributeValueMemberS{Value: "k2"},
		},
	}
	client := &mockDynamoClient{
		scanFn: func(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{Items: items}, nil
		},
	}

	res := Scan[adaptertype.Descriptor](context.Background(), newTestAdapter(client), "index")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Data) != 2 || string(res.Data[0].Image) != `"iVBORw0KGgo="` || res.Data[1].Image != nil {
		t.Fatalf("unexpected items: %+v", res.Data)
	}
}

func TestScan_EmptyTable(t *testing.T) {
	res := Scan[adaptertype.Descriptor](context.Background(), newTestAdapter(&mockDynamoClient{}), "index")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Data == nil || len(res.Data) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", res.Data)
	}
}

func TestScan_MissingTable(t *testing.T) {
	res := Scan[adaptertype.Descriptor](context.Background(), newTestAdapter(&mockDynamoClient{}), "")
	if res.Err == nil {
		t.Fatal("expected error for empty table name")
	}
}

func TestQueryByName(t *testing.T) {
	item, _ := attributevalue.MarshalMap(adaptertype.Descriptor{
		Name: "modbus", Version: "1.2", Display: "Modbus", Image: []byte(`"png"`), FilePath: "k",
	})
	client := &mockDynamoClient{
		queryFn: func(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			if aws.ToString(in.KeyConditionExpression) != "#name = :name" {
				t.Fatalf("unexpected key condition %q", aws.ToString(in.KeyConditionExpression))
			}
			v := in.ExpressionAttributeValues[":name"].(*types.AttributeValueMemberS).Value
			if v == "modbus" {
				return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil
			}
			return &dynamodb.QueryOutput{}, nil
		},
	}
	adapter := newTestAdapter(client)

	res := adapter.QueryByName(context.Background(), "index", "modbus")
	if res.Err != nil || res.Data == nil {
		t.Fatalf("unexpected result: %#v", res)
	}
	if res.Data.Display != "Modbus" || string(res.Data.Image) != `"png"` {
		t.Fatalf("unexpected entry: %+v", res.Data)
	}

	res = adapter.QueryByName(context.Background(), "index", "unknown")
	if res.Err != nil || res.Data != nil {
		t.Fatalf("expected nil entry, got %#v", res)
	}
}

func TestUpsert_WritesWholeItem(t *testing.T) {
	var got *dynamodb.PutItemInput
	client := &mockDynamoClient{
		putItemFn: func(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			got = in
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	res := newTestAdapter(client).Upsert(context.Background(), "index", adaptertype.Descriptor{Name: "x", Version: "2", FilePath: "k"})
	if res.Err != nil || !res.Data {
		t.Fatalf("unexpected result: %#v", res)
	}
	if got.ConditionExpression != nil {
		t.Fatalf("expected unconditional put, got %q", aws.ToString(got.ConditionExpression))
	}
	if _, ok := got.Item["display"]; ok {
		t.Fatal("expected empty display to be omitted")
	}
}

func TestUpsertIfUnchanged_Conditions(t *testing.T) {
	var got *dynamodb.PutItemInput
	client := &mockDynamoClient{
		putItemFn: func(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			got = in
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	adapter := newTestAdapter(client)
	d := adaptertype.Descriptor{Name: "x", Version: "2", FilePath: "k"}

	if res := adapter.UpsertIfUnchanged(context.Background(), "index", d, nil); res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if aws.ToString(got.ConditionExpression) != "attribute_not_exists(#name)" {
		t.Fatalf("unexpected condition %q", aws.ToString(got.ConditionExpression))
	}

	if res := adapter.UpsertIfUnchanged(context.Background(), "index", d, aws.String("1")); res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !strings.Contains(aws.ToString(got.ConditionExpression), "#version = :expected") {
		t.Fatalf("unexpected condition %q", aws.ToString(got.ConditionExpression))
	}
	if v := got.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value; v != "1" {
		t.Fatalf("unexpected expected version %q", v)
	}
}

func TestUpsertIfUnchanged_Conflict(t *testing.T) {
	client := &mockDynamoClient{
		putItemFn: func(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("failed")}
		},
	}

	res := newTestAdapter(client).UpsertIfUnchanged(context.Background(), "index", adaptertype.Descriptor{Name: "x", Version: "2"}, aws.String("1"))
	if !errors.Is(res.Err, ErrVersionConflict) || res.Data {
		t.Fatalf("expected ErrVersionConflict, got %#v", res)
	}
}

func TestDeleteByName(t *testing.T) {
	var key string
	client := &mockDynamoClient{
		deleteItemFn: func(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			key = in.Key["name"].(*types.AttributeValueMemberS).Value
			return &dynamodb.DeleteItemOutput{}, nil
		},
	}

	res := newTestAdapter(client).DeleteByName(context.Background(), "index", "modbus")
	if res.Err != nil || !res.Data || key != "modbus" {
		t.Fatalf("unexpected result %#v for key %q", res, key)
	}
}

func TestDeleteAll_BatchesOf25(t *testing.T) {
	items := nameItems(t, 57)
	var batchSizes []int
	client := &mockDynamoClient{
		scanFn: func(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			if in.ProjectionExpression == nil {
				t.Fatal("expected key projection")
			}
			return &dynamodb.ScanOutput{Items: items}, nil
		},
		batchWriteItemFn: func(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			batchSizes = append(batchSizes, len(in.RequestItems["index"]))
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}

	res := newTestAdapter(client).DeleteAll(context.Background(), "index")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if fmt.Sprint(batchSizes) != "[25 25 7]" {
		t.Fatalf("expected batches [25 25 7], got %v", batchSizes)
	}
	if len(res.Data) != 57 || res.Data[0].Name != "adapter-00" || res.Data[56].Name != "adapter-56" {
		t.Fatalf("unexpected deleted keys: %d", len(res.Data))
	}
}

func TestDeleteAll_EmptyTable(t *testing.T) {
	var calls int
	client := &mockDynamoClient{
		batchWriteItemFn: func(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			calls++
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}

	res := newTestAdapter(client).DeleteAll(context.Background(), "index")
	if res.Err != nil || res.Data == nil || len(res.Data) != 0 {
		t.Fatalf("expected empty result, got %#v", res)
	}
	if calls != 0 {
		t.Fatalf("expected no batch calls, got %d", calls)
	}
}

func TestDeleteAll_ScanErrorAbortsDelete(t *testing.T) {
	var calls int
	client := &mockDynamoClient{
		scanFn: func(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return nil, errors.New("scan boom")
		},
		batchWriteItemFn: func(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			calls++
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}

	res := newTestAdapter(client).DeleteAll(context.Background(), "index")
	if res.Err == nil || !strings.Contains(res.Err.Error(), "scan boom") {
		t.Fatalf("expected scan error, got %v", res.Err)
	}
	if calls != 0 {
		t.Fatalf("expected no batch calls, got %d", calls)
	}
}

func TestDeleteAll_RetriesUnprocessedItems(t *testing.T) {
	items := nameItems(t, 3)
	var calls int
	client := &mockDynamoClient{
		scanFn: func(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{Items: items}, nil
		},
		batchWriteItemFn: func(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			calls++
			if calls == 1 {
				return &dynamodb.BatchWriteItemOutput{
					UnprocessedItems: map[string][]types.WriteRequest{"index": in.RequestItems["index"][2:]},
				}, nil
			}
			if len(in.RequestItems["index"]) != 1 {
				t.Fatalf("expected only the unprocessed request to be resubmitted, got %d", len(in.RequestItems["index"]))
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}

	res := newTestAdapter(client).DeleteAll(context.Background(), "index")
	if res.Err != nil || len(res.Data) != 3 {
		t.Fatalf("unexpected result: %#v", res)
	}
	if calls != 2 {
		t.Fatalf("expected 2 batch calls, got %d", calls)
	}
}

func TestDeleteAll_PartialFailure(t *testing.T) {
	items := nameItems(t, 30)
	var calls int
	client := &mockDynamoClient{
		scanFn: func(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{Items: items}, nil
		},
		batchWriteItemFn: func(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			calls++
			if calls == 1 {
				return &dynamodb.BatchWriteItemOutput{}, nil
			}
			return &dynamodb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
		},
	}

	res := newTestAdapter(client).DeleteAll(context.Background(), "index")
	if !errors.Is(res.Err, ErrUnprocessedItems) {
		t.Fatalf("expected ErrUnprocessedItems, got %v", res.Err)
	}
	if len(res.Data) != 25 {
		t.Fatalf("expected first batch reported as deleted, got %d", len(res.Data))
	}
	if calls != 4 {
		t.Fatalf("expected 1 + 3 attempts, got %d", calls)
	}
}

func TestDeleteAll_NonRetryableError(t *testing.T) {
	items := nameItems(t, 2)
	var calls int
	client := &mockDynamoClient{
		scanFn: func(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			return &dynamodb.ScanOutput{Items: items}, nil
		},
		batchWriteItemFn: func(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
			calls++
			return nil, errors.New("validation")
		},
	}

	res := newTestAdapter(client).DeleteAll(context.Background(), "index")
	if res.Err == nil || calls != 1 {
		t.Fatalf("expected single failed attempt, got %d calls err=%v", calls, res.Err)
	}
}

func TestPing_WhenClosed(t *testing.T) {
	a := newTestAdapter(&mockDynamoClient{})
	_ = a.Close()
	if err := a.Ping(context.Background()); err == nil {
		t.Fatal("expected error when adapter is closed")
	}
	if res := a.DeleteByName(context.Background(), "index", "x"); res.Err == nil {
		t.Fatal("expected error when adapter is closed")
	}
}

func TestClose_Idempotent(t *testing.T) {
	a := newTestAdapter(&mockDynamoClient{})
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected second close error: %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	if IsThrottlingError(nil) || IsConditionalCheckFailed(nil) {
		t.Fatal("nil must not classify")
	}
	if !IsThrottlingError(fmt.Errorf("wrap: %w", &types.ProvisionedThroughputExceededException{})) {
		t.Fatal("expected throughput error to be throttling")
	}
	if !IsThrottlingError(&types.RequestLimitExceeded{}) {
		t.Fatal("expected request limit to be throttling")
	}
	if IsThrottlingError(errors.New("other")) {
		t.Fatal("generic errors are not throttling")
	}
	if !IsConditionalCheckFailed(fmt.Errorf("wrap: %w", &types.ConditionalCheckFailedException{})) {
		t.Fatal("expected conditional check failure")
	}
}

func TestWithOperationTimeout_UsesAdapterTimeoutWhenNoDeadline(t *testing.T) {
	a := &Adapter{timeout: 50 * time.Millisecond}
	ctx, cancel := a.withOperationTimeout(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline")
	}
	if time.Until(deadline) > 100*time.Millisecond {
		t.Fatalf("unexpected deadline: %v", time.Until(deadline))
	}
}

func TestWithOperationTimeout_PreservesCallerDeadline(t *testing.T) {
	a := &Adapter{timeout: 5 * time.Second}
	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ctx, opCancel := a.withOperationTimeout(parent)
	defer opCancel()
	parentDeadline, _ := parent.Deadline()
	deadline, _ := ctx.Deadline()
	if !deadline.Equal(parentDeadline) {
		t.Fatalf("expected caller deadline to be preserved")
	}
}
