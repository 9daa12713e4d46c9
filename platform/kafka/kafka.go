// Package kafka wraps segmentio/kafka-go with the producer and consumer loop
// shared by the intake and CRM push streams.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bbys_backend/platform/logger"

	"github.com/segmentio/kafka-go"
)

// Message is one record received from a topic.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// Handler processes one message. A returned error is logged and the offset
// is committed anyway so a poison message cannot stall the partition.
type Handler func(ctx context.Context, msg Message) error

// Producer writes keyed messages. The topic is chosen per message.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}, nil
}

// Publish writes one message. Messages with the same key land on the same
// partition and keep their order.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// ConsumerConfig selects the topic and consumer group.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader *kafka.Reader
	topic  string
	log    *logger.Logger
}

func NewConsumer(cfg ConsumerConfig, log *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("group ID is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return &Consumer{reader: reader, topic: cfg.Topic, log: log}, nil
}

// Run fetches and handles messages until ctx is done, then closes the reader.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.log.Info("kafka consumer started", "topic", c.topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Error("kafka reader close failed", "topic", c.topic, "error", err)
		}
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("kafka fetch failed", "topic", c.topic, "error", err)
			continue
		}
		err = handle(ctx, Message{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Time:      msg.Time,
		})
		if err != nil {
			c.log.Error("kafka handler failed", "topic", c.topic, "offset", msg.Offset, "error", err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("kafka commit failed", "topic", c.topic, "offset", msg.Offset, "error", err)
		}
	}
}
