package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"billing-crm/internal/config"
	"billing-crm/internal/infrastructure/monitoring"
	"billing-crm/internal/pkg/apperrors"
)

// Status is the snapshot handed to the ops API.
type Status struct {
	Initialized bool   `json:"initialized"`
	Connected   bool   `json:"connected"`
	HasCode     bool   `json:"hasCode"`
	Code        string `json:"code,omitempty"`
	State       State  `json:"state"`
}

// SessionManager owns the single outbound messaging session of the
// process. All state (current lifecycle position, newest QR code, live
// client handle) is guarded by one mutex and mutated only here: the public
// API and the transport event loop both funnel through it.
//
// gen is a generation counter bumped whenever the current client is
// replaced or torn down. Every event stream is tagged with the generation
// it was opened under; events carrying a stale generation are dropped, so
// a superseded stream can never mutate state that belongs to its
// successor.
type SessionManager struct {
	transport Transport
	cfg       config.WhatsAppConfig
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	qrCode      string
	client      Client
	gen         uint64
	initialized bool
	connecting  bool
}

func NewSessionManager(transport Transport, cfg config.WhatsAppConfig, logger *slog.Logger) *SessionManager {
	if transport == nil {
		panic("transport cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewSessionManager, using default stderr handler")
	}

	m := &SessionManager{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "SessionManager", "session", cfg.SessionName),
		state:     StateDisconnected,
	}

	// Restore-on-startup: a saved credential bundle means the next
	// Initialize may reconnect without a scan. This is the only state the
	// session keeps across process restarts.
	if transport.HasSavedCredentials(cfg.SessionName) {
		m.logger.Info("Found saved session credentials, connect may resume without QR scan")
	}
	return m
}

// Initialize opens the messaging session. It is a no-op when already
// connected, and rejects concurrent callers with ErrAlreadyConnecting so
// only one connection attempt is ever in flight.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		m.logger.InfoContext(ctx, "Session already connected, skipping initialization")
		return nil
	}
	if m.connecting {
		m.mu.Unlock()
		m.logger.WarnContext(ctx, "Session initialization already in progress, rejecting concurrent call")
		return apperrors.ErrAlreadyConnecting
	}
	m.connecting = true
	old := m.client
	m.client = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	// A reconnect from AWAITING_SCAN still holds the previous client; it
	// must be torn down so its poller exits and its stream goes stale.
	if old != nil {
		m.logger.InfoContext(ctx, "Closing superseded session client before reconnect")
		if err := old.Close(ctx); err != nil {
			m.logger.WarnContext(ctx, "Failed to close superseded session client", slog.Any("error", err))
		}
	}

	m.logger.InfoContext(ctx, "Initializing messaging session")
	client, events, err := m.transport.Connect(ctx, m.cfg.SessionName)
	if err != nil {
		// A failed connect leaves nothing worth resuming; wipe the
		// credentials so the next attempt starts from a clean scan.
		if clearErr := m.transport.ClearSession(m.cfg.SessionName); clearErr != nil {
			m.logger.ErrorContext(ctx, "Failed to clear session credentials after connect failure", slog.Any("error", clearErr))
		}
		m.mu.Lock()
		m.state = StateDisconnected
		m.qrCode = ""
		m.client = nil
		m.mu.Unlock()
		m.logger.ErrorContext(ctx, "Session initialization failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", apperrors.ErrSessionInit, err)
	}

	m.mu.Lock()
	m.client = client
	m.initialized = true
	m.mu.Unlock()

	go m.consumeEvents(events, gen)

	m.logger.InfoContext(ctx, "Messaging session opened, waiting for transport events")
	return nil
}

// consumeEvents is the single consumer of one transport event stream and
// the only place lifecycle transitions happen. The loop exits as soon as a
// handler reports the stream superseded, so at most one stream ever drives
// state.
func (m *SessionManager) consumeEvents(events <-chan Event, gen uint64) {
	for ev := range events {
		keep := true
		switch ev.Kind {
		case EventQRCode:
			keep = m.onQRCode(gen, ev.QRCode)
		case EventConnected:
			keep = m.onConnected(gen, ev.Detail)
		case EventDisconnected:
			keep = m.onDisconnected(gen, ev.Detail)
		}
		if !keep {
			m.logger.Info("Detaching from superseded session event stream")
			return
		}
	}
	m.logger.Info("Transport event stream closed")
}

func (m *SessionManager) onQRCode(gen uint64, code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false
	}
	// Re-emission of the identical code is a no-op; a new code replaces
	// the previous one, which is invalid from this moment on.
	if m.state == StateAwaitingScan && m.qrCode == code {
		return true
	}
	m.state = StateAwaitingScan
	m.qrCode = code
	monitoring.SetSessionState(string(StateAwaitingScan))
	m.logger.Info("Received new scannable code, awaiting scan")
	return true
}

func (m *SessionManager) onConnected(gen uint64, detail string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false
	}
	m.state = StateConnected
	m.qrCode = ""
	monitoring.SetSessionState(string(StateConnected))
	m.logger.Info("Messaging session connected", "detail", detail)
	return true
}

func (m *SessionManager) onDisconnected(gen uint64, detail string) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	client := m.client
	m.client = nil
	m.state = StateDisconnected
	m.qrCode = ""
	// The stream that delivered the disconnect is dead from here on; bump
	// the generation so nothing it emits afterwards can touch state.
	m.gen++
	m.mu.Unlock()

	monitoring.SetSessionState(string(StateDisconnected))
	m.logger.Warn("Messaging session disconnected, clearing credentials", "detail", detail)
	if client != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Close(closeCtx); err != nil {
			m.logger.Warn("Failed to close disconnected session client", slog.Any("error", err))
		}
		cancel()
	}
	if err := m.transport.ClearSession(m.cfg.SessionName); err != nil {
		m.logger.Error("Failed to clear session credentials after disconnect", slog.Any("error", err))
	}
	return false
}

// SendMessage formats the phone into a transport address and delivers text
// over the connected session. It fails with ErrNotConnected when the
// session is not connected; it never retries or reconnects on its own.
func (m *SessionManager) SendMessage(ctx context.Context, phone, text string) error {
	address, err := FormatAddress(phone, m.cfg.CountryPrefix, m.cfg.MinPhoneDigits, m.cfg.MaxPhoneDigits)
	if err != nil {
		return err
	}

	m.mu.Lock()
	state := m.state
	client := m.client
	m.mu.Unlock()

	if state != StateConnected || client == nil {
		return fmt.Errorf("%w: session state is %s", apperrors.ErrNotConnected, state)
	}

	sendCtx := ctx
	if m.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, m.cfg.SendTimeout)
		defer cancel()
	}

	m.logger.InfoContext(ctx, "Sending message", "address", address)
	if err := client.SendText(sendCtx, address, text); err != nil {
		m.logger.ErrorContext(ctx, "Failed to send message", "address", address, slog.Any("error", err))
		return err
	}
	return nil
}

func (m *SessionManager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.client != nil
}

func (m *SessionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Initialized: m.initialized,
		Connected:   m.state == StateConnected,
		HasCode:     m.qrCode != "",
		Code:        m.qrCode,
		State:       m.state,
	}
}

// Close tears the session down without clearing saved credentials, so a
// later Initialize can resume it.
func (m *SessionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.state = StateDisconnected
	m.qrCode = ""
	m.initialized = false
	m.gen++
	m.mu.Unlock()

	monitoring.SetSessionState(string(StateDisconnected))
	if client == nil {
		return nil
	}
	m.logger.InfoContext(ctx, "Closing messaging session")
	return client.Close(ctx)
}
