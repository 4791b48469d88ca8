package billing

import (
	"context"
	"time"
)

// Repository is the narrow persistence surface the billing jobs depend on.
// Customers, invoices and users are owned by the CRUD layer; the jobs only
// need these queries.
type Repository interface {
	// FindUnpaidInvoicesDueBefore returns unpaid invoices with a due date
	// strictly before cutoff, joined with their customers, ordered by
	// ascending due date.
	FindUnpaidInvoicesDueBefore(ctx context.Context, cutoff time.Time) ([]InvoiceWithCustomer, error)

	// FindCustomersDueForInvoice returns active customers whose
	// next_invoice_at falls within [from, to].
	FindCustomersDueForInvoice(ctx context.Context, from, to time.Time) ([]*Customer, error)

	CreateInvoice(ctx context.Context, invoice *Invoice) error

	UpdateCustomerNextInvoiceDate(ctx context.Context, customerID int64, next time.Time) error

	// FindActiveUser returns the user that auto-generated invoices are
	// attributed to.
	FindActiveUser(ctx context.Context) (*User, error)

	FindInvoiceByID(ctx context.Context, invoiceID int64) (*InvoiceWithCustomer, error)
}
