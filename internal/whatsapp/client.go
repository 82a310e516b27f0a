package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"serenata_backend/platform/config"
	"serenata_backend/platform/logger"
	"serenata_backend/platform/phone"
)

// FailureKind classifies how a send attempt failed so the dispatcher can map
// it to its error taxonomy without inspecting transport details.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureNetwork  FailureKind = "network_error"
	FailureRejected FailureKind = "channel_rejected"
	FailureServer   FailureKind = "server_error"
)

// SendResult is the structured outcome of a send attempt. Body carries the
// raw channel response for the message log's diagnostic payload.
type SendResult struct {
	Success bool
	Failure FailureKind
	Status  int
	Error   string
	Body    json.RawMessage
}

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

// Send delivers one message. A nil client (channel unconfigured) reports a
// rejected send rather than panicking so callers degrade gracefully.
func (c *Client) Send(ctx context.Context, phoneNumber string, message string) SendResult {
	if c == nil {
		return SendResult{Failure: FailureRejected, Error: "whatsapp channel not configured"}
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	payload := gowaRequest{
		Phone:   normalized,
		Message: message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{Failure: FailureRejected, Error: fmt.Sprintf("marshal whatsapp payload: %v", err)}
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return SendResult{Failure: FailureRejected, Error: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return SendResult{Failure: FailureNetwork, Error: fmt.Sprintf("whatsapp request failed: %v", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	raw := rawOrNil(data)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return SendResult{
			Failure: FailureServer,
			Status:  resp.StatusCode,
			Error:   fmt.Sprintf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			Body:    raw,
		}
	case resp.StatusCode >= http.StatusBadRequest:
		return SendResult{
			Failure: FailureRejected,
			Status:  resp.StatusCode,
			Error:   fmt.Sprintf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			Body:    raw,
		}
	}

	c.log.Info("whatsapp sent via gowa", "phone", normalized)
	return SendResult{Success: true, Status: resp.StatusCode, Body: raw}
}

func rawOrNil(data []byte) json.RawMessage {
	if !json.Valid(data) {
		return nil
	}
	return json.RawMessage(data)
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
