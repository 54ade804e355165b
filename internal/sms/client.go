// Package sms sends text messages through an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"broker_portal_backend/platform/config"
	"broker_portal_backend/platform/logger"
	"broker_portal_backend/platform/phone"
)

// ErrNotMobile is returned when the destination cannot receive SMS.
var ErrNotMobile = errors.New("sms destination is not a mobile number")

type Client struct {
	baseURL string
	apiKey  string
	sender  string
	region  string
	http    *http.Client
	log     *logger.Logger
}

type gatewayRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// NewClient returns nil when no gateway is configured; a nil Client drops messages.
func NewClient(cfg config.SMSConfig, log *logger.Logger) *Client {
	if cfg.GetSMSGatewayURL() == "" {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayKey(),
		sender:  cfg.GetSMSSender(),
		region:  cfg.GetSMSDefaultRegion(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (c *Client) SendMessage(ctx context.Context, phoneNumber string, message string) error {
	if c == nil {
		return nil
	}

	normalized, err := phone.NormalizeE164(phoneNumber, c.region)
	if err != nil {
		return fmt.Errorf("sms destination: %w", err)
	}
	if !phone.IsMobile(normalized) {
		return ErrNotMobile
	}

	body, err := json.Marshal(gatewayRequest{
		To:      normalized,
		From:    c.sender,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	url := fmt.Sprintf("%s/messages", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("sms sent via gateway", "phone", normalized)
	return nil
}

// formatAuthHeader accepts either a ready "Basic ..."/"Bearer ..." header or a raw key.
func formatAuthHeader(apiKey string) string {
	lower := strings.ToLower(apiKey)
	if strings.HasPrefix(lower, "basic ") || strings.HasPrefix(lower, "bearer ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
