package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxHandlerRetries bounds handler attempts per message before it is treated
// as a poison pill, dead-lettered when possible, and committed.
const maxHandlerRetries = 3

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
}

// Consumer reads one topic within a consumer group, retrying the handler and
// committing each message once it is handled or given up on.
type Consumer struct {
	reader     messageReader
	handler    Handler
	deadLetter *DeadLetterWriter
	logger     *slog.Logger
	topic      string
	group      string
	backoff    time.Duration
	closeOnce  sync.Once
}

// NewConsumer creates a consumer. deadLetter may be nil.
func NewConsumer(cfg ConsumerConfig, handler Handler, deadLetter *DeadLetterWriter, l *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, cfg, handler, deadLetter, l)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, deadLetter *DeadLetterWriter, l *slog.Logger) *Consumer {
	backoff := cfg.RetryBackoff
	if backoff == 0 {
		backoff = 100 * time.Millisecond
	}
	return &Consumer{
		reader:     r,
		handler:    handler,
		deadLetter: deadLetter,
		logger:     l.With(slog.String("topic", cfg.Topic), slog.String("consumer_group", cfg.GroupID)),
		topic:      cfg.Topic,
		group:      cfg.GroupID,
		backoff:    backoff,
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started")
	defer func() { _ = c.Close() }()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("consumer stopping")
				return nil
			}
			c.logger.ErrorContext(ctx, "fetch message failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		consumerReceived.WithLabelValues(c.topic, c.group).Inc()

		if err := c.process(ctx, msg); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

// process handles one message and commits it unless ctx was cancelled
// mid-retry, in which case the message is left for redelivery.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctx = ExtractTraceContext(ctx, msg)

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.ErrorContext(ctx, "undecodable message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.giveUp(ctx, msg, err)
		return c.commit(ctx, msg)
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		if lastErr = c.handler(ctx, event); lastErr == nil {
			break
		}
		c.logger.WarnContext(ctx, "handler failed",
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt == maxHandlerRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	consumerDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		c.logger.ErrorContext(ctx, "handler exhausted retries, skipping message",
			slog.String("event_id", event.EventID),
			slog.Int64("offset", msg.Offset),
			slog.String("error", lastErr.Error()),
		)
		c.giveUp(ctx, msg, lastErr)
	} else {
		consumerProcessed.WithLabelValues(c.topic, c.group).Inc()
	}
	return c.commit(ctx, msg)
}

func (c *Consumer) giveUp(ctx context.Context, msg kafka.Message, cause error) {
	consumerFailed.WithLabelValues(c.topic, c.group).Inc()
	if c.deadLetter == nil {
		return
	}
	if err := c.deadLetter.Write(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "dead-letter write failed", slog.String("error", err.Error()))
		return
	}
	deadLettered.WithLabelValues(c.topic, c.group).Inc()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "commit failed",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.reader.Close() })
	return err
}
