// Package remote talks to an HTTPS skin analysis provider exposing
// POST {base}/analyze with a multipart image upload.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Name identifies results produced through the remote provider
const Name = "remote"

// maxResponseBytes bounds how much of a provider answer is read
const maxResponseBytes = 1 << 20

// Config holds remote provider settings
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// Timeout of the underlying HTTP client; the analysis client also bounds each call by context
	Timeout time.Duration
}

// Client submits images to the remote analyze endpoint
type Client struct {
	config     Config
	endpoint   string
	httpClient *http.Client
}

// NewClient validates the base URL and creates a client
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		config:     cfg,
		endpoint:   strings.TrimSuffix(u.String(), "/") + "/analyze",
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name implements client.Backend
func (c *Client) Name() string { return Name }

// Analyze implements client.Backend
func (c *Client) Analyze(ctx context.Context, jpeg []byte) (*types.AnalysisResult, error) {
	body, contentType, err := multipartImage(jpeg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.config.ClientID != "" {
		req.Header.Set("X-Client-Id", c.config.ClientID)
	}
	if c.config.ClientSecret != "" {
		req.Header.Set("X-Client-Secret", c.config.ClientSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrNetwork, Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response: %v", types.ErrNetwork, Name, err)
	}

	var env Response
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, env.Error, decodeErr)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrMalformedResponse, Name, decodeErr)
	}
	if !env.Success || env.Data == nil {
		if env.Error != nil {
			return nil, statusError(http.StatusUnprocessableEntity, env.Error, nil)
		}
		return nil, fmt.Errorf("%w: %s: success=false without error body", types.ErrMalformedResponse, Name)
	}

	return env.Data.Result(Name)
}

// statusError maps a non-2xx answer onto the error taxonomy
func statusError(status int, body *ErrorBody, decodeErr error) error {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		msg := http.StatusText(status)
		if body != nil && body.Message != "" {
			msg = body.Message
		}
		return fmt.Errorf("%w: %s: %s", types.ErrProviderUnavailable, Name, msg)
	}

	pe := &types.ProviderError{Provider: Name, StatusCode: status}
	if body != nil && decodeErr == nil {
		pe.Message = body.Message
		pe.Detail = body.Detail
		pe.Suggestions = body.Suggestions
	} else {
		pe.Message = http.StatusText(status)
	}
	return pe
}

// multipartImage builds a form with the JPEG in the "image" field
func multipartImage(jpeg []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="capture.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, "", fmt.Errorf("failed to write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
