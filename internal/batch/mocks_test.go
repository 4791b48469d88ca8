package batch

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"billing-crm/internal/domain/billing"
	"billing-crm/internal/event"
)

type MockRepository struct {
	mock.Mock
}

var _ billing.Repository = (*MockRepository)(nil)

func (_m *MockRepository) FindUnpaidInvoicesDueBefore(ctx context.Context, cutoff time.Time) ([]billing.InvoiceWithCustomer, error) {
	args := _m.Called(ctx, cutoff)
	items, _ := args.Get(0).([]billing.InvoiceWithCustomer)
	return items, args.Error(1)
}

func (_m *MockRepository) FindCustomersDueForInvoice(ctx context.Context, from, to time.Time) ([]*billing.Customer, error) {
	args := _m.Called(ctx, from, to)
	customers, _ := args.Get(0).([]*billing.Customer)
	return customers, args.Error(1)
}

func (_m *MockRepository) CreateInvoice(ctx context.Context, invoice *billing.Invoice) error {
	args := _m.Called(ctx, invoice)
	return args.Error(0)
}

func (_m *MockRepository) UpdateCustomerNextInvoiceDate(ctx context.Context, customerID int64, next time.Time) error {
	args := _m.Called(ctx, customerID, next)
	return args.Error(0)
}

func (_m *MockRepository) FindActiveUser(ctx context.Context) (*billing.User, error) {
	args := _m.Called(ctx)
	user, _ := args.Get(0).(*billing.User)
	return user, args.Error(1)
}

func (_m *MockRepository) FindInvoiceByID(ctx context.Context, invoiceID int64) (*billing.InvoiceWithCustomer, error) {
	args := _m.Called(ctx, invoiceID)
	item, _ := args.Get(0).(*billing.InvoiceWithCustomer)
	return item, args.Error(1)
}

type MockSender struct {
	mock.Mock
}

var _ MessageSender = (*MockSender)(nil)

func (_m *MockSender) SendMessage(ctx context.Context, phone, text string) error {
	args := _m.Called(ctx, phone, text)
	return args.Error(0)
}

func (_m *MockSender) Initialize(ctx context.Context) error {
	args := _m.Called(ctx)
	return args.Error(0)
}

func (_m *MockSender) IsReady() bool {
	args := _m.Called()
	return args.Bool(0)
}

type MockPublisher struct {
	mock.Mock
}

var _ event.Publisher = (*MockPublisher)(nil)

func (_m *MockPublisher) PublishReminderSent(ctx context.Context, ev event.ReminderSentEvent) error {
	args := _m.Called(ctx, ev)
	return args.Error(0)
}

func (_m *MockPublisher) PublishInvoiceCreated(ctx context.Context, ev event.InvoiceCreatedEvent) error {
	args := _m.Called(ctx, ev)
	return args.Error(0)
}

type MockSweep struct {
	mock.Mock
}

var _ SweepRunner = (*MockSweep)(nil)

func (_m *MockSweep) Run(ctx context.Context) error {
	args := _m.Called(ctx)
	return args.Error(0)
}
