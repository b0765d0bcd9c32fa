package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/skin-analyzer/pkg/types"
	"github.com/menta2k/skin-analyzer/pkg/vlm"
)

// Name identifies results produced through Ollama
const Name = "ollama"

// DefaultModel is used when no model is configured
const DefaultModel = "qwen2.5vl:7b"

// Client wraps the Ollama API client as an analysis backend
type Client struct {
	client *api.Client
	model  string
	prompt string
}

// NewClient creates a new Ollama client for the given server and model
func NewClient(ollamaURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// Base URL only, dropping paths like /api/chat
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
		prompt: vlm.DefaultPrompt,
	}, nil
}

// Name implements client.Backend
func (c *Client) Name() string { return Name }

// SimpleQuery performs a free-form query with an image, used to check the model sees images
func (c *Client) SimpleQuery(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	return c.chat(ctx, prompt, jpeg, nil)
}

// Analyze implements client.Backend
func (c *Client) Analyze(ctx context.Context, jpeg []byte) (*types.AnalysisResult, error) {
	options := map[string]any{
		"temperature": 0.2,
		"num_ctx":     4096,
	}

	content, err := c.chat(ctx, c.prompt, jpeg, options)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty response from ollama", types.ErrMalformedResponse)
	}

	return vlm.ParseResult(Name, content)
}

func (c *Client) chat(ctx context.Context, prompt string, jpeg []byte, options map[string]any) (string, error) {
	// Vision models on CPU are slow; callers normally pass their own deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(jpeg)},
			},
		},
		Stream:  &streamFalse,
		Options: options,
	}

	var responseContent string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", classify(err)
	}
	return responseContent, nil
}

// classify maps SDK errors onto the analysis error taxonomy
func classify(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 {
			return fmt.Errorf("%w: ollama: %s", types.ErrProviderUnavailable, statusErr.ErrorMessage)
		}
		return &types.ProviderError{
			Provider:   Name,
			StatusCode: statusErr.StatusCode,
			Message:    statusErr.ErrorMessage,
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: ollama: %v", types.ErrNetwork, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: ollama: %v", types.ErrNetwork, err)
	}
	return fmt.Errorf("ollama chat error: %w", err)
}
