package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billing-crm/internal/domain/billing"
	"billing-crm/internal/event"
	"billing-crm/internal/infrastructure/monitoring"
	"billing-crm/internal/pkg/apperrors"
)

// MessageSender is the slice of the session manager the jobs depend on.
type MessageSender interface {
	SendMessage(ctx context.Context, phone, text string) error
	Initialize(ctx context.Context) error
	IsReady() bool
}

// ReminderSweepJob runs one pass over unpaid invoices due before
// today+horizon, classifies each into a reminder category and delivers the
// category's message. Delivery is strictly sequential: the transport holds
// a single logical session that cannot be multiplexed.
//
// The sweep keeps no per-day dedup ledger. Running it twice on the same day
// re-sends the same category message for the same invoice; the daily
// schedule is what makes it effectively once-per-day.
type ReminderSweepJob struct {
	repo           billing.Repository
	sender         MessageSender
	publisher      event.Publisher
	messages       *billing.MessageBuilder
	loc            *time.Location
	horizonDays    int
	reconnectGrace time.Duration
	logger         *slog.Logger

	// Clock is replaceable in tests; defaults to time.Now.
	Clock func() time.Time
}

func NewReminderSweepJob(
	repo billing.Repository,
	sender MessageSender,
	publisher event.Publisher,
	messages *billing.MessageBuilder,
	loc *time.Location,
	horizonDays int,
	reconnectGrace time.Duration,
	logger *slog.Logger,
) *ReminderSweepJob {
	if repo == nil || sender == nil || publisher == nil || messages == nil || logger == nil {
		panic("ReminderSweepJob dependencies cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if horizonDays <= 0 {
		horizonDays = 5
	}
	return &ReminderSweepJob{
		repo:           repo,
		sender:         sender,
		publisher:      publisher,
		messages:       messages,
		loc:            loc,
		horizonDays:    horizonDays,
		reconnectGrace: reconnectGrace,
		logger:         logger.With("job", "ReminderSweep"),
		Clock:          time.Now,
	}
}

func (j *ReminderSweepJob) Run(ctx context.Context) error {
	startTime := j.Clock()
	today := startTime.In(j.loc)
	cutoff := today.AddDate(0, 0, j.horizonDays)

	j.logger.InfoContext(ctx, "Starting reminder sweep pass.",
		slog.String("today", today.Format(time.DateOnly)),
		slog.String("cutoff", cutoff.Format(time.DateOnly)))

	items, err := j.repo.FindUnpaidInvoicesDueBefore(ctx, cutoff)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to query unpaid invoices, aborting sweep.", slog.Any("error", err))
		return fmt.Errorf("cannot run sweep, failed to query unpaid invoices: %w", err)
	}
	j.logger.InfoContext(ctx, "Fetched unpaid invoices for sweep.", slog.Int("count", len(items)))

	var sentCount, skippedCount, errorCount int
	for _, item := range items {
		sent, procErr := j.processInvoice(ctx, today, item)
		switch {
		case procErr != nil:
			errorCount++
		case sent:
			sentCount++
		default:
			skippedCount++
		}
	}

	duration := time.Since(startTime)
	monitoring.Business.SweepDuration.Observe(duration.Seconds())

	summaryLog := j.logger.With(
		slog.Duration("duration", duration),
		slog.Int("invoices_examined", len(items)),
		slog.Int("messages_sent", sentCount),
		slog.Int("invoices_skipped", skippedCount),
		slog.Int("errors_encountered", errorCount),
	)
	if errorCount > 0 {
		summaryLog.WarnContext(ctx, "Reminder sweep pass finished with errors.")
		return fmt.Errorf("sweep completed with %d errors", errorCount)
	}
	summaryLog.InfoContext(ctx, "Reminder sweep pass finished successfully.")
	return nil
}

// processInvoice handles a single invoice. An error here never aborts the
// sweep; the caller counts it and moves on.
func (j *ReminderSweepJob) processInvoice(ctx context.Context, today time.Time, item billing.InvoiceWithCustomer) (sent bool, err error) {
	logCtx := j.logger.With(
		slog.Int64("invoiceID", item.Invoice.ID),
		slog.Int64("customerID", item.Customer.ID))

	if !item.Customer.IsActive() {
		logCtx.DebugContext(ctx, "Customer is not active, skipping invoice.")
		return false, nil
	}

	offset := billing.DaysUntilDue(today, item.Invoice.DueDate, j.loc)
	category := billing.Classify(today, item.Invoice.DueDate, j.loc)
	if category == billing.CategoryNone {
		logCtx.DebugContext(ctx, "No reminder category for invoice today.", slog.Int("offset", offset))
		return false, nil
	}

	daysOverdue := 0
	if offset < 0 {
		daysOverdue = -offset
	}
	text, ok := j.messages.ForCategory(category, item.Customer.Name, daysOverdue)
	if !ok {
		return false, nil
	}

	logCtx = logCtx.With(slog.String("category", string(category)), slog.Int("offset", offset))
	logCtx.InfoContext(ctx, "Invoice classified, dispatching reminder.")

	if err := j.deliver(ctx, item.Customer.Phone, text); err != nil {
		monitoring.RecordReminderFailure()
		logCtx.ErrorContext(ctx, "Failed to deliver reminder, continuing with next invoice.", slog.Any("error", err))
		return false, err
	}

	monitoring.RecordReminderSent(string(category))
	logCtx.InfoContext(ctx, "Reminder delivered.")

	ev := event.ReminderSentEvent{
		InvoiceID:  item.Invoice.ID,
		CustomerID: item.Customer.ID,
		Category:   string(category),
		DueDate:    item.Invoice.DueDate,
		Timestamp:  j.Clock(),
	}
	if pubErr := j.publisher.PublishReminderSent(ctx, ev); pubErr != nil {
		logCtx.ErrorContext(ctx, "Reminder sent, but failed to publish reminder.sent event", slog.Any("error", pubErr))
	}
	return true, nil
}

// deliver sends one message, opportunistically reconnecting first: if the
// session is not ready it kicks off initialization, waits the fixed grace
// period, and then attempts the send exactly once.
func (j *ReminderSweepJob) deliver(ctx context.Context, phone, text string) error {
	if !j.sender.IsReady() {
		j.logger.WarnContext(ctx, "Messaging session not ready, attempting to initialize before send.")
		if err := j.sender.Initialize(ctx); err != nil && !errors.Is(err, apperrors.ErrAlreadyConnecting) {
			j.logger.ErrorContext(ctx, "Session initialization failed before send.", slog.Any("error", err))
		}
		select {
		case <-time.After(j.reconnectGrace):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return j.sender.SendMessage(ctx, phone, text)
}
