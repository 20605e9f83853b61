package servicebus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"content-distributor/domain/dto"
	"content-distributor/infrastructure/logger"
)

type messageSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

type IStatusNotifier interface {
	Notify(ctx context.Context, evt dto.PublishStatusEvent) error
	Close(ctx context.Context) error
}

// StatusNotifier forwards publish status events to a Service Bus queue.
type StatusNotifier struct {
	sender messageSender
	queue  string
}

func NewStatusNotifier(client *azservicebus.Client, queue string) (IStatusNotifier, error) {
	sender, err := client.NewSender(queue, nil)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while making new sender service bus.")
		return nil, err
	}
	return &StatusNotifier{sender: sender, queue: queue}, nil
}

func (n *StatusNotifier) Notify(ctx context.Context, evt dto.PublishStatusEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	contentType := "application/json"
	subject := evt.Type
	msg := &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		Subject:     &subject,
		ApplicationProperties: map[string]any{
			"platform": evt.Platform,
			"status":   evt.Status,
		},
	}
	if evt.ContentID != "" {
		correlationID := evt.ContentID
		msg.CorrelationID = &correlationID
	}
	if err := n.sender.SendMessage(ctx, msg, nil); err != nil {
		logger.GetLogger().
			WithField("queue", n.queue).
			WithField("recordID", evt.RecordID).
			WithField("error", err).
			Error("Error while sending message.")
		return err
	}
	return nil
}

func (n *StatusNotifier) Close(ctx context.Context) error {
	if err := n.sender.Close(ctx); err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while closing sender.")
		return err
	}
	return nil
}
