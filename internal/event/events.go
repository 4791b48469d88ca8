package event

import "time"

type ReminderSentEvent struct {
	InvoiceID  int64     `json:"invoiceId"`
	CustomerID int64     `json:"customerId"`
	Category   string    `json:"category"`
	DueDate    time.Time `json:"dueDate"`
	Timestamp  time.Time `json:"timestamp"`
}

type InvoiceCreatedEvent struct {
	InvoiceID  int64     `json:"invoiceId"`
	CustomerID int64     `json:"customerId"`
	Amount     string    `json:"amount"`
	DueDate    time.Time `json:"dueDate"`
	Timestamp  time.Time `json:"timestamp"`
}

// PaymentConfirmedEvent is consumed from the payments side when an invoice
// transitions to paid; it triggers the confirmation message.
type PaymentConfirmedEvent struct {
	InvoiceID int64     `json:"invoiceId"`
	Timestamp time.Time `json:"timestamp"`
}
