// Package feed talks to the realtime gateway: the service publishes
// committed messages into per-conversation channels over HTTP, and
// delivery sessions subscribe to those channels over websocket.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/consultdesk/messaging-service/internal/config"
	"github.com/consultdesk/messaging-service/internal/model"
	"github.com/consultdesk/messaging-service/internal/pkg/jwt"
)

const publishMethod = "publish"

type Client struct {
	baseURL    string
	gatewayURL string
	apiKey     string
	httpClient *http.Client
	tokens     *jwt.Generator
}

func New(cfg *config.Config, tokens *jwt.Generator) *Client {
	return &Client{
		baseURL:    cfg.Realtime.BaseURL,
		gatewayURL: cfg.Realtime.GatewayURL,
		apiKey:     cfg.Realtime.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Realtime.Timeout) * time.Second,
		},
		tokens: tokens,
	}
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type publishEvent struct {
	Method string        `json:"method"`
	Params publishParams `json:"params"`
}

type publishParams struct {
	Channel string          `json:"channel"`
	Data    model.FeedEvent `json:"data"`
}

// Publish pushes a change-feed event into the conversation channel.
func (c *Client) Publish(ctx context.Context, conversationID string, event model.FeedEvent) error {
	payload := publishEvent{
		Method: publishMethod,
		Params: publishParams{
			Channel: jwt.Channel(conversationID),
			Data:    event,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "apikey "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // .

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if errorData, exists := response["error"]; exists && errorData != nil {
		return fmt.Errorf("gateway error: %v", errorData)
	}

	return nil
}
