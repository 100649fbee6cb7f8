package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventMessage(t *testing.T, offset int64, eventID string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(&Event{EventID: eventID, EventType: "product.created", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	return kafka.Message{Topic: "ecommerce.product.created", Offset: offset, Value: value}
}

func testConsumer(r *fakeReader, h Handler, dlq *DeadLetterWriter) *Consumer {
	cfg := ConsumerConfig{Topic: "ecommerce.product.created", GroupID: "tienda-newsletter", RetryBackoff: time.Millisecond}
	return newConsumer(r, cfg, h, dlq, discardLogger())
}

func TestConsumer_ProcessSuccessCommits(t *testing.T) {
	r := &fakeReader{}
	var handled []string
	c := testConsumer(r, func(_ context.Context, e *Event) error {
		handled = append(handled, e.EventID)
		return nil
	}, nil)

	require.NoError(t, c.process(context.Background(), eventMessage(t, 1, "e1")))

	assert.Equal(t, []string{"e1"}, handled)
	assert.Len(t, r.commits(), 1)
}

func TestConsumer_ProcessRetriesThenDeadLetters(t *testing.T) {
	r := &fakeReader{}
	w := &fakeWriter{}
	var attempts int32
	c := testConsumer(r, func(context.Context, *Event) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("sendgrid 503")
	}, &DeadLetterWriter{writer: w})

	require.NoError(t, c.process(context.Background(), eventMessage(t, 7, "e7")))

	assert.Equal(t, int32(maxHandlerRetries), atomic.LoadInt32(&attempts))
	assert.Len(t, r.commits(), 1, "poison message is committed")
	require.Len(t, w.msgs, 1)

	dl := w.msgs[0]
	assert.Equal(t, "ecommerce.dlq.ecommerce.product.created", dl.Topic)
	headers := NewHeaderCarrier(&dl.Headers)
	assert.Equal(t, "7", headers.Get("dlq.original_offset"))
	assert.Equal(t, "tienda-newsletter", headers.Get("dlq.consumer_group"))
	assert.Equal(t, "sendgrid 503", headers.Get("dlq.error"))
}

func TestConsumer_ProcessRecoversOnRetry(t *testing.T) {
	r := &fakeReader{}
	calls := 0
	c := testConsumer(r, func(context.Context, *Event) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	require.NoError(t, c.process(context.Background(), eventMessage(t, 2, "e2")))
	assert.Equal(t, 2, calls)
	assert.Len(t, r.commits(), 1)
}

func TestConsumer_ProcessUndecodableMessage(t *testing.T) {
	r := &fakeReader{}
	c := testConsumer(r, func(context.Context, *Event) error {
		t.Fatal("handler must not run for undecodable messages")
		return nil
	}, nil)

	require.NoError(t, c.process(context.Background(), kafka.Message{Offset: 3, Value: []byte("{")}))
	assert.Len(t, r.commits(), 1)
}

func TestConsumer_StartStopsOnCancel(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, 1, "a"), eventMessage(t, 2, "b")}}
	var handled int32
	c := testConsumer(r, func(context.Context, *Event) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, 1, r.closed)
	assert.NoError(t, c.Close(), "second close is a no-op")
	assert.Equal(t, 1, r.closed)
}
