package whatsapp

import "context"

// State is the session lifecycle position. Transitions are driven by
// transport events, never set directly by callers.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateAwaitingScan State = "AWAITING_SCAN"
	StateConnected    State = "CONNECTED"
)

type EventKind string

const (
	EventQRCode       EventKind = "qr"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

// Event is a state-change notification from the transport. For EventQRCode
// only the newest code is ever valid, so producers overwrite rather than
// queue (see emitLatest in the gateway transport).
type Event struct {
	Kind   EventKind
	QRCode string
	Detail string
}

// Client is one open session on the messaging transport.
type Client interface {
	SendText(ctx context.Context, address, text string) error
	IsConnected(ctx context.Context) bool
	Close(ctx context.Context) error
}

// Transport opens sessions against the messaging channel and owns the
// on-disk credential bundle for each session name.
type Transport interface {
	// Connect opens the named session and returns a client plus the
	// event stream for it. The stream is closed when the client closes.
	Connect(ctx context.Context, sessionName string) (Client, <-chan Event, error)

	// HasSavedCredentials reports whether a credential bundle exists on
	// disk for the session, meaning a connect may succeed without a scan.
	HasSavedCredentials(sessionName string) bool

	// ClearSession deletes the session's credential bundle, forcing
	// re-authentication on the next connect.
	ClearSession(sessionName string) error
}
