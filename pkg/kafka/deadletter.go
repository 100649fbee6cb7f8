package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// DeadLetterPrefix prefixes the topic a failed message is parked on.
const DeadLetterPrefix = TopicPrefix + ".dlq"

// DeadLetterTopic returns the dead-letter topic for a source topic.
func DeadLetterTopic(topic string) string {
	return DeadLetterPrefix + "." + topic
}

// DeadLetterWriter parks messages a consumer gave up on, keeping the
// original payload and recording where it came from in headers.
type DeadLetterWriter struct {
	writer messageWriter
}

// NewDeadLetterWriter creates a writer against brokers.
func NewDeadLetterWriter(brokers []string) *DeadLetterWriter {
	return &DeadLetterWriter{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

// Write publishes msg to its dead-letter topic.
func (d *DeadLetterWriter) Write(ctx context.Context, msg kafka.Message, cause error, group string) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(group)},
	)
	if cause != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(cause.Error())})
	}

	topic := DeadLetterTopic(msg.Topic)
	if err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}); err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

// Close closes the underlying writer.
func (d *DeadLetterWriter) Close() error {
	return d.writer.Close()
}
