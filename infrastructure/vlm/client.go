// Package vlm provides a unified interface for vision-language model
// providers with built-in support for rate limiting, circuit breaking,
// metrics, and tracing.
//
// The package abstracts multiple vision providers (OpenAI, Anthropic,
// Google) behind a common interface while adding production-ready
// cross-cutting concerns through a middleware pattern. This allows the
// extraction pipeline to switch providers or add operational features
// without changing engine code.
//
// Architecture:
//   - Core client implementation with middleware chain composition
//   - Provider implementations abstracted through the CoreVLM interface
//   - Pluggable middleware for rate limiting, circuit breaking, metrics, tracing
//   - Factory functions for simple provider creation
//
// Basic usage:
//
//	client, err := vlm.NewClient("openai", vlm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	})
//	response, err := client.Describe(ctx, prompt, imageBytes, nil)
//
// Advanced usage with middleware:
//
//	client, err := vlm.NewClient("anthropic", vlm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-sonnet-20241022",
//	    Middleware: []vlm.Middleware{
//	        vlm.RateLimitMiddleware(2, 4),
//	        vlm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        vlm.MetricsMiddleware(metricsCollector),
//	    },
//	})
package vlm

import (
	"context"
	"fmt"
	"time"
)

// CoreVLM defines the minimal interface that vision providers must
// implement. This interface abstracts the core functionality needed to
// send an image-plus-prompt request to different model services, allowing
// the middleware system to wrap any conforming implementation.
type CoreVLM interface {
	// DoRequest sends a prompt and an image to the provider and returns
	// the response. The opts parameter allows provider-specific
	// configuration such as temperature or max tokens.
	// Returns the response text, input token count, output token count,
	// and any error.
	DoRequest(
		ctx context.Context,
		prompt string,
		image []byte,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model to use for subsequent requests.
	SetModel(model string)
}

// ClientConfig holds all configuration options for creating a vision
// client. This struct centralizes settings for providers, middleware, and
// operational concerns like rate limiting and circuit breaking.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model specifies which model to use for requests.
	// Each provider supports different model names.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Timeout sets the maximum duration for individual requests.
	// Zero value means no timeout.
	Timeout time.Duration

	// Middleware allows custom middleware insertion.
	// These are applied in the order specified.
	Middleware []Middleware
}

// Middleware wraps a CoreVLM implementation to add cross-cutting
// functionality. This pattern allows composition of features like rate
// limiting, circuit breaking, and metrics collection without modifying
// core provider logic.
type Middleware func(CoreVLM) CoreVLM

// Client wraps a provider-specific CoreVLM implementation with middleware
// to provide production-ready features like resilience and observability.
type Client struct {
	core CoreVLM
}

// NewClient creates a new vision client with the specified provider and
// configuration. This function assembles the middleware chain and
// validates configuration before returning a ready-to-use client.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core}, nil
}

// Describe sends a prompt and image to the model and returns the response
// text. This is a convenience method that discards token usage for
// callers that don't need detailed usage tracking.
func (c *Client) Describe(ctx context.Context, prompt string, image []byte, options map[string]any) (string, error) {
	response, _, _, err := c.DescribeWithUsage(ctx, prompt, image, options)
	return response, err
}

// DescribeWithUsage sends a prompt and image to the model and returns
// detailed usage information. The options parameter allows
// provider-specific configuration like temperature or max tokens.
func (c *Client) DescribeWithUsage(
	ctx context.Context,
	prompt string,
	image []byte,
	options map[string]any,
) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, image, options)
}

// GetModel returns the currently configured model name from the
// underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// ProviderFactory creates a CoreVLM implementation from configuration.
// This function signature allows the provider registry to create provider
// instances without knowing their specific implementation details.
type ProviderFactory func(ClientConfig) (CoreVLM, error)

// Provider factory registry for extensibility.
// This allows registration of custom providers at runtime
// while maintaining type safety and initialization validation.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory allows registration of custom vision provider
// factories. This enables extension of the client with additional
// providers without modifying the core library code.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
