package sqs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cenkalti/backoff/v5"

	"github.com/nimburion/adapter-registry/pkg/eventbus"
	"github.com/nimburion/adapter-registry/pkg/testutil"
)

type mockSQSClient struct {
	receiveMessageFn     func(ctx context.Context, params *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error)
	deleteMessageFn      func(ctx context.Context, params *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error)
	getQueueAttributesFn func(ctx context.Context, params *sqs.GetQueueAttributesInput) (*sqs.GetQueueAttributesOutput, error)
}

func (m *mockSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return m.receiveMessageFn(ctx, params)
}

func (m *mockSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return m.deleteMessageFn(ctx, params)
}

func (m *mockSQSClient) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	return m.getQueueAttributesFn(ctx, params)
}

const testQueueURL = "https://sqs.eu-west-1.amazonaws.com/123456789012/adapter-uploads"

func sqsMessage(id, body, receiveCount string) types.Message {
	return types.Message{
		MessageId:     aws.String(id),
		Body:          aws.String(body),
		ReceiptHandle: aws.String("rh-" + id),
		Attributes: map[string]string{
			string(types.MessageSystemAttributeNameApproximateReceiveCount): receiveCount,
		},
	}
}

func TestNewAdapter_Validation(t *testing.T) {
	log := testutil.NewRecordingLogger()
	if _, err := NewAdapter(Config{}, log); err == nil {
		t.Fatal("expected error for empty region and queue URL")
	}
	if _, err := NewAdapter(Config{Region: "eu-west-1"}, log); err == nil {
		t.Fatal("expected error for empty queue URL")
	}
}

func TestPoll_DeletesOnlyHandledMessages(t *testing.T) {
	var deleted []string
	client := &mockSQSClient{
		receiveMessageFn: func(_ context.Context, params *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
			if aws.ToString(params.QueueUrl) != testQueueURL {
				t.Errorf("unexpected queue %q", aws.ToString(params.QueueUrl))
			}
			if params.WaitTimeSeconds != 20 || params.MaxNumberOfMessages != 10 {
				t.Errorf("unexpected polling params wait=%d max=%d", params.WaitTimeSeconds, params.MaxNumberOfMessages)
			}
			return &sqs.ReceiveMessageOutput{Messages: []types.Message{
				sqsMessage("1", "ok", "1"),
				sqsMessage("2", "fail", "3"),
				sqsMessage("3", "ok", "1"),
			}}, nil
		},
		deleteMessageFn: func(_ context.Context, params *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
			deleted = append(deleted, aws.ToString(params.ReceiptHandle))
			return &sqs.DeleteMessageOutput{}, nil
		},
	}
	a := newAdapter(client, Config{QueueURL: testQueueURL, WaitTimeSeconds: 20}, testutil.NewRecordingLogger())

	var seen []*eventbus.Message
	err := a.poll(context.Background(), func(_ context.Context, msg *eventbus.Message) error {
		seen = append(seen, msg)
		if string(msg.Value) == "fail" {
			return errors.New("index unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("poll() error = %v", err)
	}

	if len(seen) != 3 || seen[1].ReceiveCount != 3 || seen[0].ID != "1" {
		t.Fatalf("unexpected handled messages %+v", seen)
	}
	if len(deleted) != 2 || deleted[0] != "rh-1" || deleted[1] != "rh-3" {
		t.Fatalf("expected rh-1 and rh-3 deleted, got %v", deleted)
	}
}

func TestPoll_ReceiveError(t *testing.T) {
	client := &mockSQSClient{
		receiveMessageFn: func(context.Context, *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
			return nil, errors.New("AccessDenied")
		},
	}
	a := newAdapter(client, Config{QueueURL: testQueueURL}, testutil.NewRecordingLogger())

	err := a.poll(context.Background(), func(context.Context, *eventbus.Message) error {
		t.Fatal("handler must not be called")
		return nil
	})
	if err == nil {
		t.Fatal("expected receive error")
	}
}

func TestDelete_SurvivesCancelledContext(t *testing.T) {
	client := &mockSQSClient{
		deleteMessageFn: func(ctx context.Context, _ *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
			if ctx.Err() != nil {
				t.Error("delete context must not be cancelled")
			}
			return &sqs.DeleteMessageOutput{}, nil
		},
	}
	a := newAdapter(client, Config{QueueURL: testQueueURL}, testutil.NewRecordingLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.delete(ctx, aws.String("rh")); err != nil {
		t.Fatalf("delete() error = %v", err)
	}
}

func TestConsume_RetriesAfterReceiveErrorAndStopsOnClose(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handled := make(chan struct{}, 1)

	client := &mockSQSClient{
		receiveMessageFn: func(ctx context.Context, _ *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			switch n {
			case 1:
				return nil, errors.New("throttled")
			case 2:
				return &sqs.ReceiveMessageOutput{Messages: []types.Message{sqsMessage("1", "ok", "1")}}, nil
			default:
				<-ctx.Done()
				return nil, ctx.Err()
			}
		},
		deleteMessageFn: func(context.Context, *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
			return &sqs.DeleteMessageOutput{}, nil
		},
	}
	a := newAdapter(client, Config{
		QueueURL:       testQueueURL,
		ReceiveBackoff: backoff.NewConstantBackOff(time.Millisecond),
	}, testutil.NewRecordingLogger())

	done := make(chan error, 1)
	go func() {
		done <- a.Consume(context.Background(), func(context.Context, *eventbus.Message) error {
			handled <- struct{}{}
			return nil
		})
	}()

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("message was not handled")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Consume did not stop after Close")
	}

	if err := a.Consume(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client := &mockSQSClient{
		getQueueAttributesFn: func(_ context.Context, params *sqs.GetQueueAttributesInput) (*sqs.GetQueueAttributesOutput, error) {
			if aws.ToString(params.QueueUrl) != testQueueURL {
				t.Errorf("unexpected queue %q", aws.ToString(params.QueueUrl))
			}
			return nil, errors.New("queue does not exist")
		},
	}
	a := newAdapter(client, Config{QueueURL: testQueueURL}, testutil.NewRecordingLogger())
	if err := a.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}

	_ = a.Close()
	if err := a.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
