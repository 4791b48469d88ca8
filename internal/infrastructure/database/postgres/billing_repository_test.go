package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-crm/internal/domain/billing"
	"billing-crm/internal/pkg/apperrors"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

const pgxmockExpectationsNotMetMsg = "pgxmock expectations were not met"

var invoiceColumns = []string{
	"p.id", "p.customer_id", "p.user_id", "p.amount", "p.status", "p.due_date",
	"p.payment_date", "p.user_name", "p.payment_method", "p.created_at", "p.updated_at",
	"c.id", "c.name", "c.phone", "c.amount", "c.payment_method", "c.status",
	"c.next_invoice_at", "c.created_at", "c.updated_at",
}

func setupBillingRepo(t *testing.T) (context.Context, *BillingRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	ctx := context.Background()
	repo := NewBillingRepository(mockPool, logger)

	return ctx, repo, mockPool
}

func invoiceRow(now time.Time) []any {
	nextAt := now.AddDate(0, 1, 0)
	return []any{
		int64(1), int64(10), int64(1), decimal.NewFromInt(100), "unpaid", now,
		(*time.Time)(nil), "system", "pix", now, now,
		int64(10), "Maria", "11999990001", decimal.NewFromInt(100), "pix", "active",
		&nextAt, now, now,
	}
}

func TestFindUnpaidInvoicesDueBefore(t *testing.T) {
	query := `
        SELECT p.id, p.customer_id, p.user_id, p.amount, p.status, p.due_date,
               p.payment_date, p.user_name, p.payment_method, p.created_at, p.updated_at,
               c.id, c.name, c.phone, c.amount, c.payment_method, c.status,
               c.next_invoice_at, c.created_at, c.updated_at
        FROM payments p
        JOIN customers c ON c.id = p.customer_id
        WHERE p.status = $1 AND p.due_date < $2
        ORDER BY p.due_date ASC`

	t.Run("returns joined rows", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		now := time.Now()
		cutoff := now.AddDate(0, 0, 5)
		mockPool.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs(billing.InvoiceStatusUnpaid, cutoff).
			WillReturnRows(pgxmock.NewRows(invoiceColumns).AddRow(invoiceRow(now)...))

		items, err := repo.FindUnpaidInvoicesDueBefore(ctx, cutoff)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(1), items[0].Invoice.ID)
		assert.Equal(t, "Maria", items[0].Customer.Name)
		assert.Equal(t, billing.CustomerStatusActive, items[0].Customer.Status)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("wraps query errors as database errors", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		cutoff := time.Now()
		mockPool.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs(billing.InvoiceStatusUnpaid, cutoff).
			WillReturnError(errors.New("connection refused"))

		items, err := repo.FindUnpaidInvoicesDueBefore(ctx, cutoff)
		assert.Nil(t, items)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}

func TestFindCustomersDueForInvoice(t *testing.T) {
	query := `
        SELECT id, name, phone, amount, payment_method, status, next_invoice_at, created_at, updated_at
        FROM customers
        WHERE status = $1 AND next_invoice_at >= $2 AND next_invoice_at <= $3
        ORDER BY id ASC`

	ctx, repo, mockPool := setupBillingRepo(t)
	defer mockPool.Close()

	now := time.Now()
	from := now.Truncate(24 * time.Hour)
	to := from.Add(24*time.Hour - time.Second)
	nextAt := now

	mockPool.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(billing.CustomerStatusActive, from, to).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "phone", "amount", "payment_method", "status", "next_invoice_at", "created_at", "updated_at",
		}).AddRow(int64(10), "Maria", "11999990001", decimal.NewFromFloat(49.90), "pix", "active", &nextAt, now, now))

	customers, err := repo.FindCustomersDueForInvoice(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, int64(10), customers[0].ID)
	require.NotNil(t, customers[0].NextInvoiceAt)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestCreateInvoice(t *testing.T) {
	query := `
        INSERT INTO payments (customer_id, user_id, amount, status, due_date, user_name, payment_method, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        RETURNING id, created_at, updated_at`

	t.Run("fills generated fields on success", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		now := time.Now()
		invoice := &billing.Invoice{
			CustomerID:    10,
			UserID:        1,
			Amount:        decimal.NewFromFloat(49.90),
			Status:        billing.InvoiceStatusUnpaid,
			DueDate:       now,
			UserName:      "system",
			PaymentMethod: "pix",
		}

		mockPool.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(
			invoice.CustomerID,
			invoice.UserID,
			invoice.Amount,
			invoice.Status,
			invoice.DueDate,
			invoice.UserName,
			invoice.PaymentMethod,
		).WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(42), now, now))

		err := repo.CreateInvoice(ctx, invoice)
		require.NoError(t, err)
		assert.Equal(t, int64(42), invoice.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("nil invoice is rejected", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		err := repo.CreateInvoice(ctx, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})

	t.Run("foreign key violation maps to invalid argument", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		invoice := &billing.Invoice{CustomerID: 999, Status: billing.InvoiceStatusUnpaid}
		mockPool.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(
			invoice.CustomerID,
			invoice.UserID,
			invoice.Amount,
			invoice.Status,
			invoice.DueDate,
			invoice.UserName,
			invoice.PaymentMethod,
		).WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "payments_customer_id_fkey"})

		err := repo.CreateInvoice(ctx, invoice)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}

func TestUpdateCustomerNextInvoiceDate(t *testing.T) {
	query := `
        UPDATE customers
        SET next_invoice_at = $1,
            updated_at = NOW()
        WHERE id = $2`

	t.Run("success", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		next := time.Now().AddDate(0, 1, 0)
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(next, int64(10)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.UpdateCustomerNextInvoiceDate(ctx, 10, next))
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("zero rows affected means not found", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		next := time.Now()
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(next, int64(99)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateCustomerNextInvoiceDate(ctx, 99, next)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}

func TestFindActiveUser(t *testing.T) {
	query := `
        SELECT id, name, email, status
        FROM users
        WHERE status = $1
        ORDER BY id ASC
        LIMIT 1`

	t.Run("returns the first active user", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs(billing.UserStatusActive).
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email", "status"}).
				AddRow(int64(1), "system", "system@example.com", "active"))

		user, err := repo.FindActiveUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs(billing.UserStatusActive).
			WillReturnError(pgx.ErrNoRows)

		user, err := repo.FindActiveUser(ctx)
		assert.Nil(t, user)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}

func TestFindInvoiceByID(t *testing.T) {
	query := `
        SELECT p.id, p.customer_id, p.user_id, p.amount, p.status, p.due_date,
               p.payment_date, p.user_name, p.payment_method, p.created_at, p.updated_at,
               c.id, c.name, c.phone, c.amount, c.payment_method, c.status,
               c.next_invoice_at, c.created_at, c.updated_at
        FROM payments p
        JOIN customers c ON c.id = p.customer_id
        WHERE p.id = $1`

	t.Run("returns the invoice with its customer", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		now := time.Now()
		mockPool.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs(int64(1)).
			WillReturnRows(pgxmock.NewRows(invoiceColumns).AddRow(invoiceRow(now)...))

		item, err := repo.FindInvoiceByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), item.Invoice.ID)
		assert.Equal(t, "11999990001", item.Customer.Phone)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		ctx, repo, mockPool := setupBillingRepo(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs(int64(404)).
			WillReturnError(pgx.ErrNoRows)

		item, err := repo.FindInvoiceByID(ctx, 404)
		assert.Nil(t, item)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}
