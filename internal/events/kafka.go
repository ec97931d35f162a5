package events

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var ErrPublisherClosed = errors.New("events: publisher closed")

type KafkaOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultKafkaOptions() KafkaOptions {
	return KafkaOptions{
		QueueSize:   256,
		Workers:     2,
		MaxRetry:    3,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	}
}

// KafkaPublisher queues events locally and sends them from background
// workers, retrying with exponential backoff. Each document hashes to one
// worker queue and events are keyed by document id, so one document's events
// reach its partition in publish order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	opts     KafkaOptions

	mu     sync.RWMutex
	closed bool
	queues []chan Event
	wg     sync.WaitGroup
}

// NewSyncProducer dials brokers with the settings a SyncProducer requires.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 0
	return sarama.NewSyncProducer(brokers, cfg)
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, opts KafkaOptions) *KafkaPublisher {
	defaults := DefaultKafkaOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaults.BaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaults.MaxBackoff
	}
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		opts:     opts,
		queues:   make([]chan Event, opts.Workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Event, opts.QueueSize)
		p.wg.Add(1)
		go p.workerLoop(i, p.queues[i])
	}
	return p
}

// Publish enqueues evt. A full queue waits until ctx is done.
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	select {
	case p.queues[p.shard(evt.DocumentID)] <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, drains the queue and closes the producer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return p.producer.Close()
}

func (p *KafkaPublisher) shard(documentID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(documentID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *KafkaPublisher) workerLoop(workerID int, queue <-chan Event) {
	defer p.wg.Done()
	for evt := range queue {
		p.sendWithRetry(workerID, evt)
	}
}

func (p *KafkaPublisher) sendWithRetry(workerID int, evt Event) {
	for attempt := 0; attempt <= p.opts.MaxRetry; attempt++ {
		err := p.sendOnce(evt)
		if err == nil {
			return
		}
		if attempt == p.opts.MaxRetry {
			log.Printf("events: drop %s doc=%s version=%d worker=%d: %v", evt.Type, evt.DocumentID, evt.Version, workerID, err)
			return
		}
		backoff := p.opts.BaseBackoff * time.Duration(1<<attempt)
		if backoff > p.opts.MaxBackoff {
			backoff = p.opts.MaxBackoff
		}
		time.Sleep(backoff)
	}
}

func (p *KafkaPublisher) sendOnce(evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.DocumentID),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}
