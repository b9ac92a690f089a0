// Package ocr provides the transport client for the classical
// recognition engine, which runs as a sidecar service. The engine's
// internals (preprocessing filters, model inference) live in the sidecar;
// this package only speaks its wire protocol.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beyourahi/extract-usernames/internal/domain"
	"github.com/beyourahi/extract-usernames/internal/ports"
)

// ClientConfig defines the configuration parameters for the sidecar
// client.
type ClientConfig struct {
	// BaseURL is the sidecar's address.
	BaseURL string
	// Timeout bounds each recognition request. Classical inference on a
	// large region can take tens of seconds on CPU.
	Timeout time.Duration
}

// DefaultClientConfig returns a ClientConfig with the local sidecar
// defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://127.0.0.1:8765",
		Timeout: 2 * time.Minute,
	}
}

// Client implements ports.Recognizer over the sidecar's HTTP API.
// It is safe for concurrent use; batch workers share one instance.
type Client struct {
	config ClientConfig
	client *http.Client
}

// NewClient creates a sidecar client with the specified configuration.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// recognizeRequest is the sidecar's request payload.
type recognizeRequest struct {
	Image   string `json:"image"`
	Variant string `json:"variant"`
}

// recognizeResponse is the sidecar's response payload.
type recognizeResponse struct {
	Readings []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		CenterX    float64 `json:"center_x"`
	} `json:"readings"`
}

// Recognize reads the image region after the sidecar applies the named
// preprocessing variant. An empty reading list is a valid outcome; it
// means the variant saw no text.
func (c *Client) Recognize(ctx context.Context, image []byte, variant string) ([]domain.Reading, error) {
	payload, err := json.Marshal(recognizeRequest{
		Image:   base64.StdEncoding.EncodeToString(image),
		Variant: variant,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/recognize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("recognize request failed: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode recognize response: %w", err)
	}

	readings := make([]domain.Reading, 0, len(decoded.Readings))
	for _, r := range decoded.Readings {
		readings = append(readings, domain.Reading{
			Text:       r.Text,
			Confidence: r.Confidence,
			CenterX:    r.CenterX,
		})
	}
	return readings, nil
}

// Compile-time verification that Client implements Recognizer.
var _ ports.Recognizer = (*Client)(nil)
