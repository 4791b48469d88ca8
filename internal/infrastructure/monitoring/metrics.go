package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	RemindersSentTotal     *prometheus.CounterVec
	ReminderFailuresTotal  prometheus.Counter
	InvoicesGeneratedTotal prometheus.Counter
	SweepDuration          prometheus.Histogram
	InvoiceJobDuration     prometheus.Histogram
	SessionState           *prometheus.GaugeVec
}

var (
	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_crm_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		RemindersSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_crm_reminders_sent_total",
				Help: "Total number of reminder messages delivered, by category.",
			},
			[]string{"category"},
		),
		ReminderFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_crm_reminder_send_failures_total",
				Help: "Total number of reminder messages that failed to send.",
			},
		),
		InvoicesGeneratedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_crm_invoices_generated_total",
				Help: "Total number of invoices created by the recurring generator.",
			},
		),
		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "billing_crm_reminder_sweep_duration_seconds",
				Help:    "Histogram of reminder sweep pass durations.",
				Buckets: prometheus.DefBuckets,
			},
		),
		InvoiceJobDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "billing_crm_invoice_generation_duration_seconds",
				Help:    "Histogram of invoice generation run durations.",
				Buckets: prometheus.DefBuckets,
			},
		),
		SessionState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "billing_crm_whatsapp_session_state",
				Help: "Current messaging session state (1 for the active state).",
			},
			[]string{"state"},
		),
	}

	sessionStates = []string{"DISCONNECTED", "AWAITING_SCAN", "CONNECTED"}
)

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordReminderSent(category string) {
	Business.RemindersSentTotal.WithLabelValues(category).Inc()
}

func RecordReminderFailure() {
	Business.ReminderFailuresTotal.Inc()
}

func RecordInvoiceGenerated() {
	Business.InvoicesGeneratedTotal.Inc()
}

func SetSessionState(state string) {
	for _, s := range sessionStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		Business.SessionState.WithLabelValues(s).Set(value)
	}
}
