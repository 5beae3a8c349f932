// ABOUTME: Outbound delivery client for the external messaging provider
// ABOUTME: Posts send requests over HTTP and surfaces the provider message ID

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Provider sends text messages through the external messaging provider's
// HTTP API. It implements the conversation service's Deliverer interface.
type Provider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a provider client for the given endpoint. The API key is sent
// on every request in the apikey header.
func New(endpoint, apiKey string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With("component", "delivery"),
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendTextResponse struct {
	MessageID string `json:"message_id"`
}

// SendText sends a text message to the address through the named channel
// instance and returns the provider's message ID.
func (p *Provider) SendText(ctx context.Context, channelInstance, address, text string) (string, error) {
	body, err := json.Marshal(sendTextRequest{Number: address, Text: text})
	if err != nil {
		return "", fmt.Errorf("encoding send request: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", p.endpoint, channelInstance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var sendResp sendTextResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return "", fmt.Errorf("decoding provider response: %w", err)
	}

	p.logger.Debug("message sent",
		"instance", channelInstance,
		"provider_message_id", sendResp.MessageID,
	)
	return sendResp.MessageID, nil
}
