package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"

	"content-distributor/domain/dto"
	"content-distributor/infrastructure/logger"
)

// ContentReadyHandler starts the distribution of one content item.
type ContentReadyHandler func(ctx context.Context, evt dto.ContentReadyEvent) error

type IContentSubscriber interface {
	Run(ctx context.Context, handle ContentReadyHandler) error
}

type ContentSubscriber struct {
	PubSubClient   *pubsub.Client
	SubscriptionID string
}

func NewContentSubscriber(pubSubClient *pubsub.Client, subscriptionID string) IContentSubscriber {
	return &ContentSubscriber{
		PubSubClient:   pubSubClient,
		SubscriptionID: subscriptionID,
	}
}

// Run blocks receiving content-ready messages until ctx is cancelled.
func (s *ContentSubscriber) Run(ctx context.Context, handle ContentReadyHandler) error {
	logger.GetLogger().WithField("subID", s.SubscriptionID).Info("PubSub starting...")

	sub := s.PubSubClient.Subscription(s.SubscriptionID)
	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if process(ctx, msg.ID, msg.Data, handle) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive from %s: %w", s.SubscriptionID, err)
	}
	return nil
}

// process reports whether the message should be acked. Malformed messages are
// acked so they are not redelivered forever; handler failures are nacked.
func process(ctx context.Context, id string, data []byte, handle ContentReadyHandler) bool {
	evt, err := dto.DecodeContentReady(data)
	if err != nil {
		logger.GetLogger().
			WithField("messageID", id).
			WithField("error", err).
			Warn("Dropping malformed content ready message")
		return true
	}
	if err := handle(ctx, evt); err != nil {
		logger.GetLogger().
			WithField("messageID", id).
			WithField("contentID", evt.ContentID).
			WithField("error", err).
			Error("Error while handling content ready message")
		return false
	}
	logger.GetLogger().WithField("messageID", id).WithField("contentID", evt.ContentID).Info("Content ready message handled")
	return true
}
