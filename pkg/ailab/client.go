// Package ailab is a backend for the AILabTools portrait skin analysis API.
package ailab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Name identifies results produced through AILabTools
const Name = "ailab"

// DefaultEndpoint is the public skin analysis endpoint
const DefaultEndpoint = "https://www.ailabapi.com/api/portrait/analysis/skin-analysis"

// Scores assigned to the API's binary findings
const (
	ScoreClear   = 90
	ScorePresent = 55
)

// featureConcern maps API result keys onto concern names
var featureConcern = map[string]string{
	"pores_forehead":    types.ConcernPores,
	"pores_left_cheek":  types.ConcernPores,
	"pores_right_cheek": types.ConcernPores,
	"pores_jaw":         types.ConcernPores,
	"blackhead":         types.ConcernOil,
	"acne":              types.ConcernAcne,
	"dark_circle":       types.ConcernDarkCircles,
	"eye_pouch":         types.ConcernDarkCircles,
	"forehead_wrinkle":  types.ConcernWrinkles,
	"crows_feet":        types.ConcernWrinkles,
	"eye_finelines":     types.ConcernWrinkles,
	"glabella_wrinkle":  types.ConcernWrinkles,
	"nasolabial_fold":   types.ConcernWrinkles,
	"skin_spot":         types.ConcernPigmentation,
	"mole":              types.ConcernPigmentation,
}

type finding struct {
	Value      int     `json:"value"`
	Confidence float64 `json:"confidence"`
}

type apiResponse struct {
	ErrorCode   int    `json:"error_code"`
	ErrorMsg    string `json:"error_msg"`
	ErrorDetail struct {
		StatusCode  int    `json:"status_code"`
		Code        string `json:"code"`
		CodeMessage string `json:"code_message"`
		Message     string `json:"message"`
	} `json:"error_detail"`
	Result map[string]json.RawMessage `json:"result"`
}

// Client calls the AILabTools API
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client; an empty endpoint selects DefaultEndpoint
func NewClient(endpoint, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ailab: API key is required")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Name implements client.Backend
func (c *Client) Name() string { return Name }

// Analyze implements client.Backend
func (c *Client) Analyze(ctx context.Context, jpeg []byte) (*types.AnalysisResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="face.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, fmt.Errorf("failed to write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("ailabapi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrNetwork, Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response: %v", types.ErrNetwork, Name, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s: HTTP %d", types.ErrProviderUnavailable, Name, resp.StatusCode)
	}

	var body apiResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &types.ProviderError{Provider: Name, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrMalformedResponse, Name, err)
	}

	if body.ErrorCode != 0 || resp.StatusCode >= 400 {
		status := body.ErrorDetail.StatusCode
		if status == 0 {
			status = resp.StatusCode
		}
		if status < 400 {
			status = http.StatusBadGateway
		}
		msg := body.ErrorMsg
		if msg == "" {
			msg = body.ErrorDetail.CodeMessage
		}
		return nil, &types.ProviderError{
			Provider:   Name,
			StatusCode: status,
			Message:    msg,
			Detail:     strings.TrimSpace(body.ErrorDetail.Code + " " + body.ErrorDetail.Message),
		}
	}

	return mapResult(body.Result)
}

// mapResult folds binary findings into concern scores, keeping the worst per concern
func mapResult(result map[string]json.RawMessage) (*types.AnalysisResult, error) {
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: %s: empty result", types.ErrMalformedResponse, Name)
	}

	scores := map[string]int{}
	for key, raw := range result {
		concern, ok := featureConcern[key]
		if !ok {
			continue
		}
		var f finding
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %s: result.%s: %v", types.ErrMalformedResponse, Name, key, err)
		}
		score := ScoreClear
		if f.Value != 0 {
			score = ScorePresent
		}
		if prev, seen := scores[concern]; !seen || score < prev {
			scores[concern] = score
		}
	}

	res := &types.AnalysisResult{
		ID: uuid.NewString(),
		Provenance: types.Provenance{
			Source:   types.SourceProvider,
			Provider: Name,
		},
		CreatedAt: time.Now(),
	}

	if raw, ok := result["skin_age"]; ok {
		var age finding
		if err := json.Unmarshal(raw, &age); err != nil {
			return nil, fmt.Errorf("%w: %s: result.skin_age: %v", types.ErrMalformedResponse, Name, err)
		}
		res.SkinAge = age.Value
	}

	total := 0
	for _, name := range types.KnownConcerns {
		score, ok := scores[name]
		if !ok {
			continue
		}
		total += score
		res.Concerns = append(res.Concerns, types.Concern{
			Name:   name,
			Score:  score,
			Status: types.StatusForScore(score),
		})
	}
	if len(res.Concerns) == 0 {
		return nil, fmt.Errorf("%w: %s: no recognised skin features", types.ErrMalformedResponse, Name)
	}
	res.OverallScore = types.ClampScore(total / len(res.Concerns))

	return res, nil
}
