// Package vlm holds the prompt and response handling shared by the local
// vision-LLM backends (Ollama and llama.cpp).
package vlm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// SimpleTestPrompt checks whether the model can see images at all
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model for a skin assessment in the result shape
const DefaultPrompt = `You are a cosmetic skin assessment assistant looking at a close-up face photo.

Return JSON only:
{
  "overall_score": 0,
  "skin_age": 0,
  "concerns": [
    {"name": "hydration", "score": 0, "improvement": "short advice"}
  ],
  "recommendations": ["short advice", "short advice"]
}

HARD RULES
- Scores are integers from 0 (severe) to 100 (flawless).
- Concern names must come from: hydration, oil, pores, wrinkles, pigmentation, acne, redness, dark_circles, texture.
- Include every concern you can judge. Skip the ones you cannot see.
- skin_age is an integer estimate in years.
- Advice is brief, practical skincare guidance. No medical diagnoses.
- If no face is visible, return {"error": "no face"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// response is the JSON shape requested by DefaultPrompt
type response struct {
	OverallScore    *float64          `json:"overall_score"`
	SkinAge         float64           `json:"skin_age"`
	Concerns        []responseConcern `json:"concerns"`
	Recommendations []string          `json:"recommendations"`
	Error           string            `json:"error"`
}

type responseConcern struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Improvement string  `json:"improvement"`
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeModelJSON removes code fences, comments, and trailing commas from a model response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ParseResult maps a model answer onto an AnalysisResult tagged with provider
func ParseResult(provider, raw string) (*types.AnalysisResult, error) {
	cleaned := SanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("%w: %s returned non-JSON response", types.ErrMalformedResponse, provider)
	}

	var resp response
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrMalformedResponse, provider, err)
	}

	if resp.Error != "" {
		return nil, &types.ProviderError{
			Provider:   provider,
			StatusCode: 422,
			Message:    resp.Error,
		}
	}
	if resp.OverallScore == nil {
		return nil, fmt.Errorf("%w: %s: missing overall_score", types.ErrMalformedResponse, provider)
	}

	result := &types.AnalysisResult{
		ID:           uuid.NewString(),
		OverallScore: types.ClampScore(int(*resp.OverallScore + 0.5)),
		SkinAge:      max(0, int(resp.SkinAge+0.5)),
		Provenance: types.Provenance{
			Source:   types.SourceProvider,
			Provider: provider,
		},
		CreatedAt: time.Now(),
	}

	seen := map[string]struct{}{}
	for _, c := range resp.Concerns {
		name := normalizeName(c.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		score := types.ClampScore(int(c.Score + 0.5))
		result.Concerns = append(result.Concerns, types.Concern{
			Name:        name,
			Score:       score,
			Status:      types.StatusForScore(score),
			Improvement: strings.TrimSpace(c.Improvement),
		})
	}

	for _, r := range resp.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			result.Recommendations = append(result.Recommendations, r)
		}
	}

	return result, nil
}

// normalizeName lowercases and snake-cases a concern name
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	return name
}
