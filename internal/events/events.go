// Package events streams the action ledger to Kafka.
//
// Every action event from the manager becomes one message keyed by action
// id, so all changes of an action land on the same partition in order.
// Publishing is asynchronous: ActionChanged only enqueues, and a single
// writer goroutine drains the queue.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
)

const (
	queueSize    = 256
	writeTimeout = 5 * time.Second
)

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("events: publisher closed")

// Logger defines the logging interface used by the publisher.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LedgerRecord is the message value.
type LedgerRecord struct {
	Site     string           `json:"site"`
	Kind     action.EventKind `json:"kind"`
	From     action.Status    `json:"from,omitempty"`
	To       action.Status    `json:"to"`
	ActionID string           `json:"actionId"`
	Action   action.Action    `json:"action"`
	At       time.Time        `json:"at"`
}

// KafkaPublisher writes action events to a Kafka topic.
type KafkaPublisher struct {
	writer MessageWriter
	site   string
	queue  chan kafka.Message
	logger Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewKafkaWriter builds the writer for cfg.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// NewKafkaPublisher starts the writer goroutine.
func NewKafkaPublisher(w MessageWriter, site string, logger Logger) *KafkaPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	p := &KafkaPublisher{
		writer: w,
		site:   site,
		queue:  make(chan kafka.Message, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.drain()
	return p
}

// ActionChanged implements action.Observer. A full queue drops the event
// with a warning rather than blocking the manager.
func (p *KafkaPublisher) ActionChanged(ev action.Event) {
	if err := p.enqueue(ev); err != nil {
		p.logger.Warn("action event dropped", "action_id", ev.Action.ID, "error", err)
	}
}

var errQueueFull = errors.New("events: queue full")

func (p *KafkaPublisher) enqueue(ev action.Event) error {
	value, err := json.Marshal(LedgerRecord{
		Site:     p.site,
		Kind:     ev.Kind,
		From:     ev.From,
		To:       ev.Action.Status,
		ActionID: ev.Action.ID,
		Action:   ev.Action,
		At:       ev.At,
	})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.Action.ID),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Kind)},
		},
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return errQueueFull
	}
}

func (p *KafkaPublisher) drain() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Error("writing action event failed", "key", string(msg.Key), "error", err)
		}
		cancel()
	}
}

// Close flushes queued events and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}
