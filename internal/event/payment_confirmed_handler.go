package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"billing-crm/internal/domain/billing"
	"billing-crm/internal/pkg/apperrors"
)

type messageSender interface {
	SendMessage(ctx context.Context, phone, text string) error
}

// PaymentConfirmedHandler reacts to payment.confirmed deliveries by sending
// the payment-confirmation message to the invoice's customer.
type PaymentConfirmedHandler struct {
	repo     billing.Repository
	sender   messageSender
	messages *billing.MessageBuilder
	logger   *slog.Logger
}

func NewPaymentConfirmedHandler(repo billing.Repository, sender messageSender, messages *billing.MessageBuilder, logger *slog.Logger) *PaymentConfirmedHandler {
	if repo == nil || sender == nil || messages == nil {
		panic("PaymentConfirmedHandler dependencies cannot be nil")
	}
	return &PaymentConfirmedHandler{
		repo:     repo,
		sender:   sender,
		messages: messages,
		logger:   logger.With("component", "PaymentConfirmedHandler"),
	}
}

func (h *PaymentConfirmedHandler) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	logCtx := h.logger.With(slog.Uint64("deliveryTag", d.DeliveryTag), slog.String("routingKey", d.RoutingKey))
	processed := false

	defer func() {
		if !processed {
			logCtx.WarnContext(ctx, "Message processing ended without explicit Ack/Nack")
			_ = d.Nack(false, false)
		}
	}()

	if d.RoutingKey != routingKeyPaymentConfirmed {
		logCtx.WarnContext(ctx, "Received message with unknown routing key. Discarding.")
		_ = d.Reject(false)
		processed = true
		return
	}

	var ev PaymentConfirmedEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		logCtx.ErrorContext(ctx, "Failed to unmarshal PaymentConfirmedEvent", "error", err, "body", string(d.Body))
		_ = d.Nack(false, false)
		processed = true
		return
	}

	logCtx = logCtx.With(slog.Int64("invoiceID", ev.InvoiceID))
	item, err := h.repo.FindInvoiceByID(ctx, ev.InvoiceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logCtx.WarnContext(ctx, "Invoice for confirmed payment not found. Discarding.")
			_ = d.Reject(false)
		} else {
			logCtx.ErrorContext(ctx, "Failed to load invoice for confirmed payment", "error", err)
			_ = d.Nack(false, true)
		}
		processed = true
		return
	}

	text := h.messages.PaymentConfirmation(item.Customer.Name)
	if err := h.sender.SendMessage(ctx, item.Customer.Phone, text); err != nil {
		logCtx.ErrorContext(ctx, "Failed to send payment confirmation message", "error", err)
		_ = d.Nack(false, true)
		processed = true
		return
	}

	if err := d.Ack(false); err != nil {
		logCtx.ErrorContext(ctx, "Failed to acknowledge message after successful processing", "error", err)
	} else {
		logCtx.InfoContext(ctx, "Payment confirmation message sent and acknowledged")
	}
	processed = true
}
