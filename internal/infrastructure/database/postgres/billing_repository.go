package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"billing-crm/internal/domain/billing"
	"billing-crm/internal/infrastructure/monitoring"
	"billing-crm/internal/pkg/apperrors"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// BillingRepository is the pgx implementation of billing.Repository over
// the customers, payments and users tables owned by the CRUD layer.
type BillingRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ billing.Repository = (*BillingRepository)(nil)

func NewBillingRepository(db DBPool, logger *slog.Logger) *BillingRepository {
	if db == nil {
		panic("DBPool cannot be nil for BillingRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewBillingRepository, using default stderr handler")
	}
	return &BillingRepository{
		db:     db,
		logger: logger.With("component", "BillingRepository"),
	}
}

func (r *BillingRepository) FindUnpaidInvoicesDueBefore(ctx context.Context, cutoff time.Time) ([]billing.InvoiceWithCustomer, error) {
	logCtx := r.logger.With(slog.String("operation", "FindUnpaidInvoicesDueBefore"))
	logCtx.DebugContext(ctx, "Querying unpaid invoices", slog.Time("cutoff", cutoff))
	start := time.Now()

	query := `
        SELECT p.id, p.customer_id, p.user_id, p.amount, p.status, p.due_date,
               p.payment_date, p.user_name, p.payment_method, p.created_at, p.updated_at,
               c.id, c.name, c.phone, c.amount, c.payment_method, c.status,
               c.next_invoice_at, c.created_at, c.updated_at
        FROM payments p
        JOIN customers c ON c.id = p.customer_id
        WHERE p.status = $1 AND p.due_date < $2
        ORDER BY p.due_date ASC`

	rows, err := r.db.Query(ctx, query, billing.InvoiceStatusUnpaid, cutoff)
	if err != nil {
		monitoring.RecordDBQuery("find_unpaid_invoices_due_before", "error", time.Since(start))
		logCtx.ErrorContext(ctx, "Failed to query unpaid invoices", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to query unpaid invoices: %w", apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	var items []billing.InvoiceWithCustomer
	for rows.Next() {
		var item billing.InvoiceWithCustomer
		err := rows.Scan(
			&item.Invoice.ID,
			&item.Invoice.CustomerID,
			&item.Invoice.UserID,
			&item.Invoice.Amount,
			&item.Invoice.Status,
			&item.Invoice.DueDate,
			&item.Invoice.PaymentDate,
			&item.Invoice.UserName,
			&item.Invoice.PaymentMethod,
			&item.Invoice.CreatedAt,
			&item.Invoice.UpdatedAt,
			&item.Customer.ID,
			&item.Customer.Name,
			&item.Customer.Phone,
			&item.Customer.Amount,
			&item.Customer.PaymentMethod,
			&item.Customer.Status,
			&item.Customer.NextInvoiceAt,
			&item.Customer.CreatedAt,
			&item.Customer.UpdatedAt,
		)
		if err != nil {
			monitoring.RecordDBQuery("find_unpaid_invoices_due_before", "error", time.Since(start))
			logCtx.ErrorContext(ctx, "Failed to scan unpaid invoice row", slog.Any("error", err))
			return nil, fmt.Errorf("%w: failed to scan unpaid invoice row: %w", apperrors.ErrDatabase, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		monitoring.RecordDBQuery("find_unpaid_invoices_due_before", "error", time.Since(start))
		return nil, fmt.Errorf("%w: error iterating unpaid invoice rows: %w", apperrors.ErrDatabase, err)
	}

	monitoring.RecordDBQuery("find_unpaid_invoices_due_before", "ok", time.Since(start))
	logCtx.DebugContext(ctx, "Unpaid invoices fetched", slog.Int("count", len(items)))
	return items, nil
}

func (r *BillingRepository) FindCustomersDueForInvoice(ctx context.Context, from, to time.Time) ([]*billing.Customer, error) {
	logCtx := r.logger.With(slog.String("operation", "FindCustomersDueForInvoice"))
	logCtx.DebugContext(ctx, "Querying customers due for invoicing", slog.Time("from", from), slog.Time("to", to))
	start := time.Now()

	query := `
        SELECT id, name, phone, amount, payment_method, status, next_invoice_at, created_at, updated_at
        FROM customers
        WHERE status = $1 AND next_invoice_at >= $2 AND next_invoice_at <= $3
        ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, billing.CustomerStatusActive, from, to)
	if err != nil {
		monitoring.RecordDBQuery("find_customers_due_for_invoice", "error", time.Since(start))
		logCtx.ErrorContext(ctx, "Failed to query customers due for invoicing", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to query customers due for invoicing: %w", apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	var customers []*billing.Customer
	for rows.Next() {
		var cust billing.Customer
		err := rows.Scan(
			&cust.ID,
			&cust.Name,
			&cust.Phone,
			&cust.Amount,
			&cust.PaymentMethod,
			&cust.Status,
			&cust.NextInvoiceAt,
			&cust.CreatedAt,
			&cust.UpdatedAt,
		)
		if err != nil {
			monitoring.RecordDBQuery("find_customers_due_for_invoice", "error", time.Since(start))
			logCtx.ErrorContext(ctx, "Failed to scan customer row", slog.Any("error", err))
			return nil, fmt.Errorf("%w: failed to scan customer row: %w", apperrors.ErrDatabase, err)
		}
		customers = append(customers, &cust)
	}
	if err := rows.Err(); err != nil {
		monitoring.RecordDBQuery("find_customers_due_for_invoice", "error", time.Since(start))
		return nil, fmt.Errorf("%w: error iterating customer rows: %w", apperrors.ErrDatabase, err)
	}

	monitoring.RecordDBQuery("find_customers_due_for_invoice", "ok", time.Since(start))
	logCtx.DebugContext(ctx, "Customers due for invoicing fetched", slog.Int("count", len(customers)))
	return customers, nil
}

func (r *BillingRepository) CreateInvoice(ctx context.Context, invoice *billing.Invoice) error {
	if invoice == nil {
		return fmt.Errorf("%w: invoice cannot be nil", apperrors.ErrInvalidArgument)
	}
	logCtx := r.logger.With(slog.String("operation", "CreateInvoice"), slog.Int64("customerID", invoice.CustomerID))
	logCtx.InfoContext(ctx, "Attempting to insert new invoice")
	start := time.Now()

	query := `
        INSERT INTO payments (customer_id, user_id, amount, status, due_date, user_name, payment_method, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		invoice.CustomerID,
		invoice.UserID,
		invoice.Amount,
		invoice.Status,
		invoice.DueDate,
		invoice.UserName,
		invoice.PaymentMethod,
	).Scan(
		&invoice.ID,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		monitoring.RecordDBQuery("create_invoice", "error", time.Since(start))
		logCtx.ErrorContext(ctx, "Failed to insert invoice", slog.Any("error", err))
		return translateDBError(err, logCtx)
	}

	monitoring.RecordDBQuery("create_invoice", "ok", time.Since(start))
	logCtx.InfoContext(ctx, "Invoice inserted successfully", slog.Int64("invoiceID", invoice.ID))
	return nil
}

func (r *BillingRepository) UpdateCustomerNextInvoiceDate(ctx context.Context, customerID int64, next time.Time) error {
	logCtx := r.logger.With(slog.String("operation", "UpdateCustomerNextInvoiceDate"), slog.Int64("customerID", customerID))
	logCtx.InfoContext(ctx, "Attempting to update next invoice date", slog.Time("next", next))
	start := time.Now()

	query := `
        UPDATE customers
        SET next_invoice_at = $1,
            updated_at = NOW()
        WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, next, customerID)
	if err != nil {
		monitoring.RecordDBQuery("update_customer_next_invoice_date", "error", time.Since(start))
		logCtx.ErrorContext(ctx, "Failed to update next invoice date", slog.Any("error", err))
		return translateDBError(err, logCtx)
	}
	if cmdTag.RowsAffected() == 0 {
		monitoring.RecordDBQuery("update_customer_next_invoice_date", "not_found", time.Since(start))
		logCtx.WarnContext(ctx, "Update affected zero rows, customer likely not found")
		return apperrors.ErrNotFound
	}

	monitoring.RecordDBQuery("update_customer_next_invoice_date", "ok", time.Since(start))
	logCtx.InfoContext(ctx, "Next invoice date updated successfully")
	return nil
}

func (r *BillingRepository) FindActiveUser(ctx context.Context) (*billing.User, error) {
	logCtx := r.logger.With(slog.String("operation", "FindActiveUser"))
	logCtx.DebugContext(ctx, "Querying for an active user")
	start := time.Now()

	query := `
        SELECT id, name, email, status
        FROM users
        WHERE status = $1
        ORDER BY id ASC
        LIMIT 1`

	var user billing.User
	err := r.db.QueryRow(ctx, query, billing.UserStatusActive).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			monitoring.RecordDBQuery("find_active_user", "not_found", time.Since(start))
			logCtx.WarnContext(ctx, "No active user found")
			return nil, apperrors.ErrNotFound
		}
		monitoring.RecordDBQuery("find_active_user", "error", time.Since(start))
		logCtx.ErrorContext(ctx, "Failed to query active user", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to query active user: %w", apperrors.ErrDatabase, err)
	}

	monitoring.RecordDBQuery("find_active_user", "ok", time.Since(start))
	return &user, nil
}

func (r *BillingRepository) FindInvoiceByID(ctx context.Context, invoiceID int64) (*billing.InvoiceWithCustomer, error) {
	logCtx := r.logger.With(slog.String("operation", "FindInvoiceByID"), slog.Int64("invoiceID", invoiceID))
	logCtx.DebugContext(ctx, "Querying invoice by ID")
	start := time.Now()

	query := `
        SELECT p.id, p.customer_id, p.user_id, p.amount, p.status, p.due_date,
               p.payment_date, p.user_name, p.payment_method, p.created_at, p.updated_at,
               c.id, c.name, c.phone, c.amount, c.payment_method, c.status,
               c.next_invoice_at, c.created_at, c.updated_at
        FROM payments p
        JOIN customers c ON c.id = p.customer_id
        WHERE p.id = $1`

	var item billing.InvoiceWithCustomer
	err := r.db.QueryRow(ctx, query, invoiceID).Scan(
		&item.Invoice.ID,
		&item.Invoice.CustomerID,
		&item.Invoice.UserID,
		&item.Invoice.Amount,
		&item.Invoice.Status,
		&item.Invoice.DueDate,
		&item.Invoice.PaymentDate,
		&item.Invoice.UserName,
		&item.Invoice.PaymentMethod,
		&item.Invoice.CreatedAt,
		&item.Invoice.UpdatedAt,
		&item.Customer.ID,
		&item.Customer.Name,
		&item.Customer.Phone,
		&item.Customer.Amount,
		&item.Customer.PaymentMethod,
		&item.Customer.Status,
		&item.Customer.NextInvoiceAt,
		&item.Customer.CreatedAt,
		&item.Customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			monitoring.RecordDBQuery("find_invoice_by_id", "not_found", time.Since(start))
			logCtx.WarnContext(ctx, "Invoice not found")
			return nil, apperrors.ErrNotFound
		}
		monitoring.RecordDBQuery("find_invoice_by_id", "error", time.Since(start))
		logCtx.ErrorContext(ctx, "Failed to query invoice by ID", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to query invoice by ID: %w", apperrors.ErrDatabase, err)
	}

	monitoring.RecordDBQuery("find_invoice_by_id", "ok", time.Since(start))
	return &item, nil
}

func translateDBError(err error, contextLogger *slog.Logger) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23503" {
			contextLogger.Warn("Database foreign key violation", "detail", pgErr.Detail, "constraint", pgErr.ConstraintName)
			return fmt.Errorf("%w: %s", apperrors.ErrInvalidArgument, pgErr.ConstraintName)
		}
		contextLogger.Error("PostgreSQL specific error", "code", pgErr.Code, "message", pgErr.Message, "detail", pgErr.Detail)
		return fmt.Errorf("%w: db error code %s", apperrors.ErrDatabase, pgErr.Code)
	}

	contextLogger.Error("Generic database error", "error", err)
	return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
}
