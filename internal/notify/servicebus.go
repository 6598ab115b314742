package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ServiceBusQueue sends SMS messages to an Azure Service Bus queue read by
// the SMS gateway.
type ServiceBusQueue struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

func NewServiceBusQueue(connString, queueName string) (*ServiceBusQueue, error) {
	if connString == "" {
		return nil, errors.New("service bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(connString, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service bus client")
	}

	sender, err := client.NewSender(queueName, nil)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, errors.Wrap(err, "failed to create service bus sender")
	}

	return &ServiceBusQueue{client: client, sender: sender, queueName: queueName}, nil
}

func (q *ServiceBusQueue) Send(ctx context.Context, msg *SMSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal sms message")
	}

	messageID := uuid.NewString()
	contentType := "application/json"
	subject := msg.MsgType
	props := map[string]interface{}{
		"source": TypeSMSApp,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if msg.CommandType != "" {
		props["commandType"] = msg.CommandType
	}

	err = q.sender.SendMessage(ctx, &azservicebus.Message{
		MessageID:             &messageID,
		ContentType:           &contentType,
		Subject:               &subject,
		Body:                  data,
		ApplicationProperties: props,
	}, nil)
	return errors.Wrapf(err, "send to %s", q.queueName)
}

func (q *ServiceBusQueue) Close(ctx context.Context) error {
	if q.sender != nil {
		if err := q.sender.Close(ctx); err != nil {
			return err
		}
	}
	if q.client != nil {
		return q.client.Close(ctx)
	}
	return nil
}
