package handler

import (
	"context"
	"log/slog"
	"net/http"

	"billing-crm/internal/api/handler/dto"
)

// JobRunner is a manually triggerable batch job.
type JobRunner interface {
	Run(ctx context.Context) error
}

// JobHandler exposes the manual-trigger entry points used for operational
// verification outside the daily schedule. Both jobs run synchronously.
type JobHandler struct {
	generator JobRunner
	sweep     JobRunner
	logger    *slog.Logger
}

func NewJobHandler(generator, sweep JobRunner, l *slog.Logger) *JobHandler {
	if generator == nil || sweep == nil {
		panic("job runners cannot be nil")
	}
	if l == nil {
		panic("logger cannot be nil")
	}
	return &JobHandler{
		generator: generator,
		sweep:     sweep,
		logger:    l.With("component", "JobHandler"),
	}
}

// RunInvoiceGeneration handles POST /jobs/invoices/run
func (h *JobHandler) RunInvoiceGeneration(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "Manual trigger: invoice generation")
	if err := h.generator.Run(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "Manual invoice generation finished with error", slog.Any("error", err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.JobRunResponse{Status: "completed"})
}

// RunReminderSweep handles POST /jobs/sweep/run
func (h *JobHandler) RunReminderSweep(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "Manual trigger: reminder sweep")
	if err := h.sweep.Run(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "Manual reminder sweep finished with error", slog.Any("error", err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.JobRunResponse{Status: "completed"})
}
