package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"billing-crm/internal/domain/billing"
	"billing-crm/internal/event"
	"billing-crm/internal/infrastructure/monitoring"
	"billing-crm/internal/pkg/apperrors"
)

// SweepRunner lets the generator chain into the reminder sweep without
// depending on its concrete type.
type SweepRunner interface {
	Run(ctx context.Context) error
}

// InvoiceGenerationJob creates the recurring invoice for every active
// customer whose next_invoice_at falls on today, then advances that date by
// one calendar month and hands off to the reminder sweep so the fresh
// invoices are eligible for same-day reminders.
type InvoiceGenerationJob struct {
	repo      billing.Repository
	sweep     SweepRunner
	publisher event.Publisher
	loc       *time.Location
	logger    *slog.Logger
	running   atomic.Bool

	// Clock is replaceable in tests; defaults to time.Now.
	Clock func() time.Time
}

func NewInvoiceGenerationJob(
	repo billing.Repository,
	sweep SweepRunner,
	publisher event.Publisher,
	loc *time.Location,
	logger *slog.Logger,
) *InvoiceGenerationJob {
	if repo == nil || sweep == nil || publisher == nil || logger == nil {
		panic("InvoiceGenerationJob dependencies cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &InvoiceGenerationJob{
		repo:      repo,
		sweep:     sweep,
		publisher: publisher,
		loc:       loc,
		logger:    logger.With("job", "InvoiceGeneration"),
		Clock:     time.Now,
	}
}

// Run executes one generation pass. A second invocation while a pass is
// still in progress is rejected with ErrAlreadyRunning.
func (j *InvoiceGenerationJob) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.WarnContext(ctx, "Invoice generation already in progress, skipping this run.")
		return apperrors.ErrAlreadyRunning
	}
	defer j.running.Store(false)

	startTime := j.Clock()
	now := startTime.In(j.loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, j.loc)
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, j.loc)

	j.logger.InfoContext(ctx, "Starting invoice generation run.",
		slog.String("window_start", startOfDay.Format(time.RFC3339)),
		slog.String("window_end", endOfDay.Format(time.RFC3339)))

	successCount, errorCount := j.generateInvoices(ctx, startOfDay, endOfDay)

	duration := time.Since(startTime)
	monitoring.Business.InvoiceJobDuration.Observe(duration.Seconds())
	j.logger.InfoContext(ctx, "Invoice generation run finished.",
		slog.Duration("duration", duration),
		slog.Int("invoices_created", successCount),
		slog.Int("errors_encountered", errorCount))

	// Continuation: freshly created invoices are due within the sweep
	// horizon, so sweep immediately instead of waiting a day.
	j.logger.InfoContext(ctx, "Triggering reminder sweep after invoice generation.")
	if err := j.sweep.Run(ctx); err != nil {
		j.logger.ErrorContext(ctx, "Post-generation reminder sweep finished with error", slog.Any("error", err))
	}

	if errorCount > 0 {
		return fmt.Errorf("invoice generation completed with %d errors", errorCount)
	}
	return nil
}

func (j *InvoiceGenerationJob) generateInvoices(ctx context.Context, from, to time.Time) (successCount, errorCount int) {
	customers, err := j.repo.FindCustomersDueForInvoice(ctx, from, to)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to query customers due for invoicing.", slog.Any("error", err))
		return 0, 1
	}
	j.logger.InfoContext(ctx, "Fetched customers due for invoicing.", slog.Int("count", len(customers)))
	if len(customers) == 0 {
		return 0, 0
	}

	systemUser, err := j.repo.FindActiveUser(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "No active user to attribute invoices to, skipping generation.", slog.Any("error", err))
		return 0, 1
	}

	for _, cust := range customers {
		if genErr := j.generateForCustomer(ctx, cust, systemUser); genErr != nil {
			errorCount++
			j.logger.ErrorContext(ctx, "Failed to generate invoice for customer, continuing.",
				slog.Int64("customerID", cust.ID),
				slog.String("customerName", cust.Name),
				slog.Any("error", genErr))
			continue
		}
		successCount++
	}
	return successCount, errorCount
}

func (j *InvoiceGenerationJob) generateForCustomer(ctx context.Context, cust *billing.Customer, systemUser *billing.User) error {
	if cust.NextInvoiceAt == nil {
		return fmt.Errorf("%w: customer has no next invoice date", apperrors.ErrInvalidArgument)
	}
	dueDate := *cust.NextInvoiceAt

	invoice := &billing.Invoice{
		CustomerID:    cust.ID,
		UserID:        systemUser.ID,
		Amount:        cust.Amount,
		Status:        billing.InvoiceStatusUnpaid,
		DueDate:       dueDate,
		UserName:      systemUser.Name,
		PaymentMethod: cust.PaymentMethod,
	}
	if err := j.repo.CreateInvoice(ctx, invoice); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	next := billing.NextMonthSameDay(dueDate)
	if err := j.repo.UpdateCustomerNextInvoiceDate(ctx, cust.ID, next); err != nil {
		return fmt.Errorf("invoice %d created but failed to advance next invoice date: %w", invoice.ID, err)
	}

	monitoring.RecordInvoiceGenerated()
	j.logger.InfoContext(ctx, "Invoice created.",
		slog.Int64("customerID", cust.ID),
		slog.Int64("invoiceID", invoice.ID),
		slog.String("due_date", dueDate.Format(time.DateOnly)),
		slog.String("next_invoice_at", next.Format(time.DateOnly)))

	ev := event.InvoiceCreatedEvent{
		InvoiceID:  invoice.ID,
		CustomerID: cust.ID,
		Amount:     invoice.Amount.String(),
		DueDate:    dueDate,
		Timestamp:  j.Clock(),
	}
	if pubErr := j.publisher.PublishInvoiceCreated(ctx, ev); pubErr != nil {
		j.logger.ErrorContext(ctx, "Invoice created, but failed to publish invoice.created event",
			slog.Int64("invoiceID", invoice.ID), slog.Any("error", pubErr))
	}
	return nil
}
