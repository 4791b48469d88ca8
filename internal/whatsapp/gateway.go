package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"billing-crm/internal/config"
	"billing-crm/internal/pkg/apperrors"
)

const tokenFileName = "session.token"

// Gateway session status values, as reported by a WPPConnect-style server.
const (
	gatewayStatusConnected    = "CONNECTED"
	gatewayStatusQRCode       = "QRCODE"
	gatewayStatusClosed       = "CLOSED"
	gatewayStatusInitializing = "INITIALIZING"
)

// GatewayTransport talks to a WPPConnect-style REST gateway. It owns the
// per-session credential bundle on disk (a bearer token under tokensDir)
// and turns the gateway's polled status into the Event stream the session
// manager consumes.
type GatewayTransport struct {
	baseURL      string
	secretKey    string
	tokensDir    string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewGatewayTransport(cfg config.WhatsAppConfig, logger *slog.Logger) *GatewayTransport {
	if logger == nil {
		panic("logger cannot be nil")
	}
	pollInterval := cfg.QRPollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &GatewayTransport{
		baseURL:      strings.TrimRight(cfg.GatewayURL, "/"),
		secretKey:    cfg.GatewayKey,
		tokensDir:    cfg.TokensDir,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger.With("component", "GatewayTransport"),
	}
}

func (t *GatewayTransport) sessionDir(sessionName string) string {
	return filepath.Join(t.tokensDir, sessionName)
}

func (t *GatewayTransport) HasSavedCredentials(sessionName string) bool {
	_, err := os.Stat(filepath.Join(t.sessionDir(sessionName), tokenFileName))
	return err == nil
}

func (t *GatewayTransport) ClearSession(sessionName string) error {
	dir := t.sessionDir(sessionName)
	t.logger.Info("Clearing saved session credentials", "path", dir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear session credentials at %s: %w", dir, err)
	}
	return nil
}

func (t *GatewayTransport) Connect(ctx context.Context, sessionName string) (Client, <-chan Event, error) {
	token, err := t.loadOrGenerateToken(ctx, sessionName)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrSessionInit, err)
	}

	if err := t.startSession(ctx, sessionName, token); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrSessionInit, err)
	}

	client := &gatewayClient{
		transport: t,
		session:   sessionName,
		token:     token,
		done:      make(chan struct{}),
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "whatsapp-gateway-send",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
		}),
	}

	events := make(chan Event, 1)
	go t.pollStatus(client, events)

	t.logger.Info("Gateway session opened", "session", sessionName)
	return client, events, nil
}

// pollStatus watches the gateway session and emits an event whenever the
// observed status or QR code changes. The events channel holds at most one
// pending event; a newer one replaces anything not yet consumed, so only
// the latest QR code is ever visible to the consumer.
func (t *GatewayTransport) pollStatus(client *gatewayClient, events chan Event) {
	defer close(events)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	var lastStatus, lastQR string
	for {
		select {
		case <-client.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.pollInterval)
		status, qr, err := t.fetchStatus(ctx, client.session, client.token)
		cancel()
		if err != nil {
			t.logger.Warn("Failed to poll gateway session status", "session", client.session, slog.Any("error", err))
			continue
		}

		if status == lastStatus && qr == lastQR {
			continue
		}
		lastStatus, lastQR = status, qr

		switch status {
		case gatewayStatusConnected:
			client.connected.Store(true)
			emitLatest(events, client.done, Event{Kind: EventConnected, Detail: status})
		case gatewayStatusQRCode:
			client.connected.Store(false)
			emitLatest(events, client.done, Event{Kind: EventQRCode, QRCode: qr, Detail: status})
		case gatewayStatusClosed:
			client.connected.Store(false)
			emitLatest(events, client.done, Event{Kind: EventDisconnected, Detail: status})
		case gatewayStatusInitializing:
			// transient, wait for the next poll
		default:
			t.logger.Debug("Unrecognized gateway session status", "session", client.session, "status", status)
		}
	}
}

// emitLatest delivers ev with latest-value-wins semantics: if the single
// buffer slot still holds an unconsumed event, that stale event is dropped
// in favor of the new one.
func emitLatest(events chan Event, done <-chan struct{}, ev Event) {
	for {
		select {
		case events <- ev:
			return
		case <-done:
			return
		default:
		}
		select {
		case <-events:
		default:
		}
	}
}

func (t *GatewayTransport) loadOrGenerateToken(ctx context.Context, sessionName string) (string, error) {
	tokenPath := filepath.Join(t.sessionDir(sessionName), tokenFileName)
	if raw, err := os.ReadFile(tokenPath); err == nil && len(raw) > 0 {
		t.logger.Info("Restored saved session token", "session", sessionName)
		return strings.TrimSpace(string(raw)), nil
	}

	url := fmt.Sprintf("%s/api/%s/%s/generate-token", t.baseURL, sessionName, t.secretKey)
	var resp struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	if err := t.doJSON(ctx, http.MethodPost, url, "", nil, &resp); err != nil {
		return "", fmt.Errorf("failed to generate gateway token: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("gateway returned empty token (status %q)", resp.Status)
	}

	if err := os.MkdirAll(t.sessionDir(sessionName), 0o700); err != nil {
		return "", fmt.Errorf("failed to create tokens dir: %w", err)
	}
	if err := os.WriteFile(tokenPath, []byte(resp.Token), 0o600); err != nil {
		return "", fmt.Errorf("failed to persist session token: %w", err)
	}
	t.logger.Info("Generated and saved new session token", "session", sessionName)
	return resp.Token, nil
}

func (t *GatewayTransport) startSession(ctx context.Context, sessionName, token string) error {
	url := fmt.Sprintf("%s/api/%s/start-session", t.baseURL, sessionName)
	body := map[string]any{"waitQrCode": false}
	var resp struct {
		Status string `json:"status"`
	}
	if err := t.doJSON(ctx, http.MethodPost, url, token, body, &resp); err != nil {
		return fmt.Errorf("failed to start gateway session: %w", err)
	}
	t.logger.Info("Gateway start-session accepted", "session", sessionName, "status", resp.Status)
	return nil
}

func (t *GatewayTransport) fetchStatus(ctx context.Context, sessionName, token string) (status, qrCode string, err error) {
	url := fmt.Sprintf("%s/api/%s/status-session", t.baseURL, sessionName)
	var resp struct {
		Status string `json:"status"`
		QRCode string `json:"qrcode"`
	}
	if err := t.doJSON(ctx, http.MethodGet, url, token, nil, &resp); err != nil {
		return "", "", err
	}
	return resp.Status, resp.QRCode, nil
}

func (t *GatewayTransport) doJSON(ctx context.Context, method, url, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

// gatewayClient is one open gateway session. Sends go through a circuit
// breaker so a flapping gateway trips open instead of timing out every
// message in a sweep.
type gatewayClient struct {
	transport *GatewayTransport
	session   string
	token     string
	breaker   *gobreaker.CircuitBreaker[struct{}]
	connected atomic.Bool
	done      chan struct{}
	closed    atomic.Bool
}

var _ Client = (*gatewayClient)(nil)

func (c *gatewayClient) SendText(ctx context.Context, address, text string) error {
	url := fmt.Sprintf("%s/api/%s/send-message", c.transport.baseURL, c.session)
	body := map[string]any{
		"phone":   address,
		"message": text,
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		if err := c.transport.doJSON(ctx, http.MethodPost, url, c.token, body, nil); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return apperrors.WrapTransportError(err, fmt.Sprintf("failed to send message to %s", address))
	}
	return nil
}

func (c *gatewayClient) IsConnected(ctx context.Context) bool {
	return c.connected.Load()
}

func (c *gatewayClient) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	url := fmt.Sprintf("%s/api/%s/logout-session", c.transport.baseURL, c.session)
	if err := c.transport.doJSON(ctx, http.MethodPost, url, c.token, nil, nil); err != nil {
		c.transport.logger.Warn("Gateway logout failed", "session", c.session, slog.Any("error", err))
	}
	c.connected.Store(false)
	return nil
}
