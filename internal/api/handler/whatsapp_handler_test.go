package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"billing-crm/internal/api/handler/dto"
	"billing-crm/internal/pkg/apperrors"
	"billing-crm/internal/whatsapp"
)

type MockSessionService struct {
	mock.Mock
}

var _ SessionService = (*MockSessionService)(nil)

func (_m *MockSessionService) Initialize(ctx context.Context) error {
	args := _m.Called(ctx)
	return args.Error(0)
}

func (_m *MockSessionService) SendMessage(ctx context.Context, phone, text string) error {
	args := _m.Called(ctx, phone, text)
	return args.Error(0)
}

func (_m *MockSessionService) Status() whatsapp.Status {
	args := _m.Called()
	return args.Get(0).(whatsapp.Status)
}

func (_m *MockSessionService) Close(ctx context.Context) error {
	args := _m.Called(ctx)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetStatus(t *testing.T) {
	session := new(MockSessionService)
	session.On("Status").Return(whatsapp.Status{
		Initialized: true,
		Connected:   false,
		HasCode:     true,
		Code:        "qr-data",
		State:       whatsapp.StateAwaitingScan,
	})

	h := NewWhatsAppHandler(session, testLogger())
	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/whatsapp/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.WhatsAppStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Connected)
	assert.Equal(t, "qr-data", resp.QRCode)
	assert.True(t, resp.Details.HasCode)
	assert.Equal(t, "AWAITING_SCAN", resp.Details.State)
}

func TestConnect(t *testing.T) {
	t.Run("accepted on success", func(t *testing.T) {
		session := new(MockSessionService)
		session.On("Initialize", mock.Anything).Return(nil)
		session.On("Status").Return(whatsapp.Status{Initialized: true, State: whatsapp.StateDisconnected})

		h := NewWhatsAppHandler(session, testLogger())
		rec := httptest.NewRecorder()
		h.Connect(rec, httptest.NewRequest(http.MethodPost, "/whatsapp/connect", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("conflict while already connecting", func(t *testing.T) {
		session := new(MockSessionService)
		session.On("Initialize", mock.Anything).Return(apperrors.ErrAlreadyConnecting)

		h := NewWhatsAppHandler(session, testLogger())
		rec := httptest.NewRecorder()
		h.Connect(rec, httptest.NewRequest(http.MethodPost, "/whatsapp/connect", nil))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestSendMessageHandler(t *testing.T) {
	newRequest := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/whatsapp/send", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	t.Run("delivers and returns success", func(t *testing.T) {
		session := new(MockSessionService)
		session.On("SendMessage", mock.Anything, "11999990001", "hello").Return(nil)

		h := NewWhatsAppHandler(session, testLogger())
		rec := httptest.NewRecorder()
		h.SendMessage(rec, newRequest(`{"to":"11999990001","message":"hello"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.SendMessageResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		session.AssertExpectations(t)
	})

	t.Run("missing fields fail validation", func(t *testing.T) {
		session := new(MockSessionService)
		h := NewWhatsAppHandler(session, testLogger())

		rec := httptest.NewRecorder()
		h.SendMessage(rec, newRequest(`{"to":"","message":"hello"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		h.SendMessage(rec, newRequest(`{"to":"11999990001","message":"  "}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		session.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed JSON is a bad request", func(t *testing.T) {
		session := new(MockSessionService)
		h := NewWhatsAppHandler(session, testLogger())
		rec := httptest.NewRecorder()
		h.SendMessage(rec, newRequest(`{not json`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service unavailable when session is down", func(t *testing.T) {
		session := new(MockSessionService)
		session.On("SendMessage", mock.Anything, "11999990001", "hello").
			Return(apperrors.ErrNotConnected)

		h := NewWhatsAppHandler(session, testLogger())
		rec := httptest.NewRecorder()
		h.SendMessage(rec, newRequest(`{"to":"11999990001","message":"hello"}`))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("invalid phone is a bad request", func(t *testing.T) {
		session := new(MockSessionService)
		session.On("SendMessage", mock.Anything, "123", "hello").
			Return(apperrors.ErrInvalidAddress)

		h := NewWhatsAppHandler(session, testLogger())
		rec := httptest.NewRecorder()
		h.SendMessage(rec, newRequest(`{"to":"123","message":"hello"}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDisconnect(t *testing.T) {
	session := new(MockSessionService)
	session.On("Close", mock.Anything).Return(nil)

	h := NewWhatsAppHandler(session, testLogger())
	rec := httptest.NewRecorder()
	h.Disconnect(rec, httptest.NewRequest(http.MethodPost, "/whatsapp/disconnect", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	session.AssertExpectations(t)
}
