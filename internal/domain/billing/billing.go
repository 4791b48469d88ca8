package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusInactive CustomerStatus = "inactive"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusPending InvoiceStatus = "pending"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// Customer is a billable subscriber. NextInvoiceAt is nil for customers
// that are not on the recurring invoice cycle.
type Customer struct {
	ID            int64
	Name          string
	Phone         string
	Amount        decimal.Decimal
	PaymentMethod string
	Status        CustomerStatus
	NextInvoiceAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Customer) IsActive() bool {
	return c.Status == CustomerStatusActive
}

// Invoice belongs to exactly one customer. It is created unpaid and either
// transitions to paid through an external payment event or stays unpaid
// indefinitely, in which case the reminder sweep keeps picking it up.
type Invoice struct {
	ID            int64
	CustomerID    int64
	UserID        int64
	Amount        decimal.Decimal
	Status        InvoiceStatus
	DueDate       time.Time
	PaymentDate   *time.Time
	UserName      string
	PaymentMethod string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type User struct {
	ID     int64
	Name   string
	Email  string
	Status UserStatus
}

// InvoiceWithCustomer is the sweep's unit of work: an unpaid invoice joined
// with the customer that owns it.
type InvoiceWithCustomer struct {
	Invoice  Invoice
	Customer Customer
}

// NextMonthSameDay advances a date by one calendar month keeping the
// day-of-month, clamping to the last day of the target month when the
// source day does not exist there (Jan 31 -> Feb 28/29).
func NextMonthSameDay(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
