package event

import "context"

const (
	routingKeyReminderSent     = "reminder.sent"
	routingKeyInvoiceCreated   = "invoice.created"
	routingKeyPaymentConfirmed = "payment.confirmed"
	publisherAppID             = "billing-crm"
)

type Publisher interface {
	PublishReminderSent(ctx context.Context, event ReminderSentEvent) error
	PublishInvoiceCreated(ctx context.Context, event InvoiceCreatedEvent) error
}

// NoopPublisher is used when RabbitMQ is disabled in configuration.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (NoopPublisher) PublishReminderSent(context.Context, ReminderSentEvent) error {
	return nil
}

func (NoopPublisher) PublishInvoiceCreated(context.Context, InvoiceCreatedEvent) error {
	return nil
}
