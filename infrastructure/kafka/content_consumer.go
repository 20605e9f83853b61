package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"content-distributor/domain/dto"
	"content-distributor/infrastructure/configuration"
	"content-distributor/infrastructure/logger"
)

const (
	minBytes = 1
	maxBytes = 10e6
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ContentConsumer reads content-ready events from a Kafka topic as a consumer group member.
type ContentConsumer struct {
	reader   messageReader
	retry    time.Duration
	attempts int
}

func NewContentConsumer(cfg configuration.Kafka) *ContentConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    minBytes,
		MaxBytes:    maxBytes,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})

	logger.GetLogger().WithFields(map[string]interface{}{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
		"groupID": cfg.GroupID,
	}).Info("Kafka content consumer initialized")

	return &ContentConsumer{reader: reader, retry: time.Second, attempts: 5}
}

// Run fetches until ctx is cancelled. A failed handler is retried on the same
// message; after the last attempt the message is committed and logged so the
// partition keeps moving.
func (c *ContentConsumer) Run(ctx context.Context, handle func(ctx context.Context, evt dto.ContentReadyEvent) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.GetLogger().WithField("error", err).Error("Failed to fetch content message")
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		log := logger.GetLogger().WithFields(map[string]interface{}{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		})

		evt, err := dto.DecodeContentReady(msg.Value)
		if err != nil {
			log.WithField("error", err).Warn("Dropping malformed content message")
		} else if !c.handle(ctx, log, evt, handle) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithField("error", err).Error("Failed to commit content message")
		}
	}
}

// handle returns false only when ctx ended before the event was settled.
func (c *ContentConsumer) handle(ctx context.Context, log *logrus.Entry, evt dto.ContentReadyEvent, fn func(ctx context.Context, evt dto.ContentReadyEvent) error) bool {
	attempts := c.attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx, evt)
		if err == nil {
			return true
		}
		log := log.WithFields(map[string]interface{}{"contentID": evt.ContentID, "attempt": attempt, "error": err})
		if attempt >= attempts {
			log.Error("Giving up on content ready event")
			return true
		}
		log.Warn("Failed to handle content ready event")
		if !c.sleep(ctx) {
			return false
		}
	}
}

func (c *ContentConsumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.retry)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *ContentConsumer) Close() error {
	return c.reader.Close()
}
