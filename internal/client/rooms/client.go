// Package rooms is the HTTP client for the external video room
// provider. The provider is best-effort: deletion of a room that is
// already gone is success, and the periodic sweep compensates for any
// failure here.
package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/consultdesk/messaging-service/internal/config"
	"github.com/consultdesk/messaging-service/internal/model"
)

// ErrRoomNotFound is returned by GetRoom when the provider does not
// know the room. DeleteRoom never returns it: 404 is success there.
var ErrRoomNotFound = errors.New("room not found")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.Rooms.BaseURL,
		apiKey:  cfg.Rooms.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Rooms.Timeout) * time.Second,
		},
	}
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

type createRoomRequest struct {
	Name       string         `json:"name"`
	Properties roomProperties `json:"properties"`
}

type roomProperties struct {
	Exp int64 `json:"exp"`
}

type roomResponse struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Config struct {
		Exp int64 `json:"exp"`
	} `json:"config"`
}

func (c *Client) CreateRoom(ctx context.Context, name string, ttl time.Duration) (*model.Room, error) {
	payload := createRoomRequest{
		Name: name,
		Properties: roomProperties{
			Exp: time.Now().Add(ttl).Unix(),
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rooms", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // .

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var room roomResponse
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &model.Room{
		Name:      room.Name,
		URL:       room.URL,
		ExpiresAt: time.Unix(room.Config.Exp, 0),
	}, nil
}

func (c *Client) GetRoom(ctx context.Context, name string) (*model.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rooms/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // .

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrRoomNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var room roomResponse
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &model.Room{
		Name:      room.Name,
		URL:       room.URL,
		ExpiresAt: time.Unix(room.Config.Exp, 0),
	}, nil
}

// DeleteRoom removes the provider resource. 404 means the room is
// already gone and is treated as success.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/rooms/"+name, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // .

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return nil
	}

	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}
