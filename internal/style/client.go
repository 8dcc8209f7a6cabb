// Package style resolves layer styles for the style lookup transform.
package style

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/geoimport/internal/importer/transform"
)

// ClientConfig holds configuration for the remote style service.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client asks a remote style service which style a layer should use.
type Client struct {
	client *resty.Client
}

type resolveResponse struct {
	Style  string `json:"style"`
	Detail string `json:"detail,omitempty"`
}

// NewClient creates a style service client.
func NewClient(cfg *ClientConfig) *Client {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.SetTimeout(timeout)

	return &Client{client: client}
}

// Ping checks that the style service answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("failed to reach style service: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("style service unhealthy: status %d", resp.StatusCode())
	}
	return nil
}

// Resolve returns the style for a layer. A 404 answer means the service has
// no opinion and yields transform.ErrNoStyle.
func (c *Client) Resolve(ctx context.Context, workspace, layer, geometryType string) (string, error) {
	var result resolveResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"workspace": workspace,
			"layer":     layer,
			"geometry":  geometryType,
		}).
		SetResult(&result).
		SetError(&result).
		Get("/styles/resolve")
	if err != nil {
		return "", fmt.Errorf("failed to call style service: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return "", transform.ErrNoStyle
	case resp.IsError():
		if result.Detail != "" {
			return "", fmt.Errorf("style service error: %s", result.Detail)
		}
		return "", fmt.Errorf("style service error: status %d", resp.StatusCode())
	case result.Style == "":
		return "", transform.ErrNoStyle
	}
	return result.Style, nil
}
