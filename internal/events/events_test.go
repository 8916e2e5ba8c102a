package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type captureLogger struct {
	mu     sync.Mutex
	errors int
	warns  int
}

func (l *captureLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *captureLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestKafkaPublisher_WritesLedgerRecords(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, "home", nil)

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	p.ActionChanged(action.Event{Kind: action.EventCreated, Action: action.Action{ID: "a1", Status: action.StatusProposed}, At: at})
	p.ActionChanged(action.Event{Kind: action.EventTransition, From: action.StatusProposed, Action: action.Action{ID: "a1", Status: action.StatusApproved}, At: at})

	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "a1", string(w.msgs[0].Key))
	assert.Equal(t, "transition", string(w.msgs[1].Headers[0].Value))

	var rec LedgerRecord
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &rec))
	assert.Equal(t, "home", rec.Site)
	assert.Equal(t, action.StatusProposed, rec.From)
	assert.Equal(t, action.StatusApproved, rec.To)
	assert.Equal(t, at, rec.At)
}

func TestKafkaPublisher_WriteErrorsAreLogged(t *testing.T) {
	log := &captureLogger{}
	p := NewKafkaPublisher(&fakeWriter{err: errors.New("no brokers")}, "home", log)

	p.ActionChanged(action.Event{Kind: action.EventCreated, Action: action.Action{ID: "a1"}})
	require.NoError(t, p.Close())

	assert.Equal(t, 1, log.errors)
}

func TestKafkaPublisher_AfterClose(t *testing.T) {
	log := &captureLogger{}
	p := NewKafkaPublisher(&fakeWriter{}, "home", log)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	p.ActionChanged(action.Event{Action: action.Action{ID: "late"}})
	assert.Equal(t, 1, log.warns)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "advisor.actions"})
	assert.Equal(t, "advisor.actions", w.Topic)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
}
