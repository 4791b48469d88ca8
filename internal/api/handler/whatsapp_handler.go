package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"billing-crm/internal/api/handler/dto"
	"billing-crm/internal/pkg/apperrors"
	"billing-crm/internal/whatsapp"
)

// SessionService is the slice of the session manager the REST layer needs.
type SessionService interface {
	Initialize(ctx context.Context) error
	SendMessage(ctx context.Context, phone, text string) error
	Status() whatsapp.Status
	Close(ctx context.Context) error
}

type WhatsAppHandler struct {
	session SessionService
	logger  *slog.Logger
}

func NewWhatsAppHandler(s SessionService, l *slog.Logger) *WhatsAppHandler {
	if s == nil {
		panic("session service cannot be nil")
	}
	if l == nil {
		panic("logger cannot be nil")
	}
	return &WhatsAppHandler{
		session: s,
		logger:  l.With("component", "WhatsAppHandler"),
	}
}

// GetStatus handles GET /whatsapp/status
func (h *WhatsAppHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.session.Status()
	h.logger.DebugContext(r.Context(), "Reporting session status", "state", status.State)

	resp := dto.WhatsAppStatusResponse{
		Connected: status.Connected,
		QRCode:    status.Code,
		Details: dto.SessionDetails{
			Initialized: status.Initialized,
			Connected:   status.Connected,
			HasCode:     status.HasCode,
			State:       string(status.State),
		},
	}
	respondJSON(w, http.StatusOK, resp)
}

// Connect handles POST /whatsapp/connect
func (h *WhatsAppHandler) Connect(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "Received session connect request")
	if err := h.session.Initialize(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "Session initialization failed", slog.Any("error", err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, h.session.Status())
}

// SendMessage handles POST /whatsapp/send
func (h *WhatsAppHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req dto.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body", slog.Any("error", err))
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		h.logger.WarnContext(r.Context(), "Send message validation failed", slog.Any("error", err))
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	h.logger.InfoContext(r.Context(), "Attempting to send message", "to", req.To, "messageLength", len(req.Message))
	if err := h.session.SendMessage(r.Context(), req.To, req.Message); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to send message", slog.Any("error", err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.SendMessageResponse{Success: true})
}

// Disconnect handles POST /whatsapp/disconnect
func (h *WhatsAppHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "Received session disconnect request")
	if err := h.session.Close(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to close session", slog.Any("error", err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.SendMessageResponse{Success: true})
}
