package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func expectEvent(want Type, documentID string) mocks.ValueChecker {
	return func(val []byte) error {
		var evt Event
		if err := json.Unmarshal(val, &evt); err != nil {
			return err
		}
		if evt.Type != want || evt.DocumentID != documentID {
			return fmt.Errorf("unexpected event %+v", evt)
		}
		if evt.OccurredAt.IsZero() {
			return errors.New("occurredAt not set")
		}
		return nil
	}
}

func newTestPublisher(t *testing.T, producer sarama.SyncProducer, maxRetry int) *KafkaPublisher {
	t.Helper()
	return NewKafkaPublisher(producer, "draftwise.documents", KafkaOptions{
		QueueSize:   8,
		Workers:     1,
		MaxRetry:    maxRetry,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	})
}

func TestKafkaPublisherSendsJSONEvents(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEvent(DocumentSaved, "doc_1"))
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEvent(SuggestionApplied, "doc_1"))

	pub := newTestPublisher(t, producer, 0)
	ctx := context.Background()
	if err := pub.Publish(ctx, Event{Type: DocumentSaved, DocumentID: "doc_1", Version: 2}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pub.Publish(ctx, Event{Type: SuggestionApplied, DocumentID: "doc_1", AnnotationID: "sug_1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestKafkaPublisherRetriesFailedSends(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEvent(DocumentConflict, "doc_9"))

	pub := newTestPublisher(t, producer, 2)
	if err := pub.Publish(context.Background(), Event{Type: DocumentConflict, DocumentID: "doc_9"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestKafkaPublisherDropsAfterMaxRetry(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := newTestPublisher(t, producer, 1)
	if err := pub.Publish(context.Background(), Event{Type: DocumentSaved, DocumentID: "doc_1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

// slowProducer delays sends of one event type before handing them on.
type slowProducer struct {
	sarama.SyncProducer
	delayType Type
	delay     time.Duration

	mu   sync.Mutex
	sent []Type
}

func (p *slowProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	raw, err := msg.Value.Encode()
	if err != nil {
		return -1, -1, err
	}
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return -1, -1, err
	}
	if evt.Type == p.delayType {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.sent = append(p.sent, evt.Type)
	p.mu.Unlock()
	return p.SyncProducer.SendMessage(msg)
}

func TestKafkaPublisherKeepsPerDocumentOrder(t *testing.T) {
	mock := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndSucceed()
	producer := &slowProducer{SyncProducer: mock, delayType: DocumentSaved, delay: 50 * time.Millisecond}

	pub := NewKafkaPublisher(producer, "draftwise.documents", KafkaOptions{QueueSize: 8, Workers: 4})
	ctx := context.Background()
	for _, evt := range []Event{
		{Type: DocumentSaved, DocumentID: "doc_1", Version: 2},
		{Type: DocumentConflict, DocumentID: "doc_1", Version: 3},
		{Type: SuggestionApplied, DocumentID: "doc_1", Version: 3},
	} {
		if err := pub.Publish(ctx, evt); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := []Type{DocumentSaved, DocumentConflict, SuggestionApplied}
	if !reflect.DeepEqual(producer.sent, want) {
		t.Fatalf("broker received %v, want %v", producer.sent, want)
	}
}

func TestNewKafkaPublisherFillsDefaults(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	pub := NewKafkaPublisher(producer, "draftwise.documents", KafkaOptions{MaxRetry: 1})
	defer pub.Close()

	defaults := DefaultKafkaOptions()
	if pub.opts.BaseBackoff != defaults.BaseBackoff || pub.opts.MaxBackoff != defaults.MaxBackoff {
		t.Fatalf("backoff not defaulted: %+v", pub.opts)
	}
	if pub.opts.Workers != defaults.Workers || len(pub.queues) != defaults.Workers {
		t.Fatalf("workers not defaulted: %+v", pub.opts)
	}
	if pub.opts.MaxRetry != 1 {
		t.Fatalf("MaxRetry overwritten: %d", pub.opts.MaxRetry)
	}
}

func TestKafkaPublisherRejectsAfterClose(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	pub := newTestPublisher(t, producer, 0)
	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := pub.Publish(context.Background(), Event{Type: DocumentSaved, DocumentID: "doc_1"}); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}

func TestNopPublisher(t *testing.T) {
	var pub Publisher = Nop{}
	if err := pub.Publish(context.Background(), Event{Type: DocumentSaved}); err != nil {
		t.Fatalf("Nop.Publish returned %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Nop.Close returned %v", err)
	}
}
