package dto

import (
	"fmt"
	"strings"
)

type SendMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (r *SendMessageRequest) Validate() error {
	if strings.TrimSpace(r.To) == "" {
		return fmt.Errorf("phone number is required")
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

type SessionDetails struct {
	Initialized bool   `json:"initialized"`
	Connected   bool   `json:"connected"`
	HasCode     bool   `json:"hasCode"`
	State       string `json:"state"`
}

// WhatsAppStatusResponse mirrors what the dashboard polls: the top-level
// connected flag plus the current QR code when a scan is pending.
type WhatsAppStatusResponse struct {
	Connected bool           `json:"connected"`
	QRCode    string         `json:"qrCode,omitempty"`
	Details   SessionDetails `json:"details"`
}

type SendMessageResponse struct {
	Success bool `json:"success"`
}

type JobRunResponse struct {
	Status string `json:"status"`
}
