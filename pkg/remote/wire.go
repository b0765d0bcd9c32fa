package remote

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Response is the JSON envelope of the analyze endpoint
type Response struct {
	Success bool       `json:"success"`
	Data    *Data      `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// Data carries per-feature scores and the summary
type Data struct {
	Analysis map[string]json.RawMessage `json:"analysis"`
	Summary  Summary                    `json:"summary"`
	Meta     *Meta                      `json:"meta,omitempty"`
}

// Summary is the overall part of a successful answer
type Summary struct {
	OverallScore    *float64 `json:"overall_score"`
	SkinAge         float64  `json:"skin_age"`
	Recommendations []string `json:"recommendations"`
}

// Meta is optional provenance added by servers of this module
type Meta struct {
	ID             string `json:"id,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Mock           bool   `json:"mock"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// ErrorBody is the payload of non-2xx answers
type ErrorBody struct {
	Message     string   `json:"message"`
	Detail      string   `json:"detail,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Feature is the object form of a per-feature score
type Feature struct {
	Score       float64 `json:"score"`
	Status      string  `json:"status,omitempty"`
	Improvement string  `json:"improvement,omitempty"`
}

// NewResponse encodes a result in the endpoint's wire shape
func NewResponse(r *types.AnalysisResult) Response {
	analysis := make(map[string]json.RawMessage, len(r.Concerns))
	for _, c := range r.Concerns {
		raw, _ := json.Marshal(Feature{
			Score:       float64(c.Score),
			Status:      string(c.Status),
			Improvement: c.Improvement,
		})
		analysis[c.Name] = raw
	}
	overall := float64(r.OverallScore)
	return Response{
		Success: true,
		Data: &Data{
			Analysis: analysis,
			Summary: Summary{
				OverallScore:    &overall,
				SkinAge:         float64(r.SkinAge),
				Recommendations: r.Recommendations,
			},
			Meta: &Meta{
				ID:             r.ID,
				Provider:       r.Provenance.Provider,
				Mock:           r.Provenance.Mock,
				FallbackReason: r.Provenance.FallbackReason,
			},
		},
	}
}

// NewErrorResponse builds the envelope of a failed request
func NewErrorResponse(message, detail string, suggestions ...string) Response {
	return Response{
		Error: &ErrorBody{Message: message, Detail: detail, Suggestions: suggestions},
	}
}

// Result maps the envelope onto an AnalysisResult
func (d *Data) Result(provider string) (*types.AnalysisResult, error) {
	if d.Summary.OverallScore == nil {
		return nil, fmt.Errorf("%w: missing summary.overall_score", types.ErrMalformedResponse)
	}

	result := &types.AnalysisResult{
		ID:           uuid.NewString(),
		OverallScore: types.ClampScore(int(*d.Summary.OverallScore + 0.5)),
		SkinAge:      max(0, int(d.Summary.SkinAge+0.5)),
		Provenance: types.Provenance{
			Source:   types.SourceProvider,
			Provider: provider,
		},
		CreatedAt: time.Now(),
	}

	for name, raw := range d.Analysis {
		f, err := decodeFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: analysis.%s: %v", types.ErrMalformedResponse, name, err)
		}
		score := types.ClampScore(int(f.Score + 0.5))
		result.Concerns = append(result.Concerns, types.Concern{
			Name:        name,
			Score:       score,
			Status:      types.StatusForScore(score),
			Improvement: f.Improvement,
		})
	}
	sortConcerns(result.Concerns)

	for _, rec := range d.Summary.Recommendations {
		if rec != "" {
			result.Recommendations = append(result.Recommendations, rec)
		}
	}

	// Another instance of this service may itself have answered from the mock
	if d.Meta != nil {
		if d.Meta.ID != "" {
			result.ID = d.Meta.ID
		}
		if d.Meta.Mock {
			result.Provenance.Source = types.SourceMock
			result.Provenance.Mock = true
			result.Provenance.FallbackReason = d.Meta.FallbackReason
		}
		if d.Meta.Provider != "" {
			result.Provenance.Provider = d.Meta.Provider
		}
	}

	return result, nil
}

// decodeFeature accepts a bare number or a Feature object
func decodeFeature(raw json.RawMessage) (Feature, error) {
	var score float64
	if err := json.Unmarshal(raw, &score); err == nil {
		return Feature{Score: score}, nil
	}
	var f Feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return Feature{}, err
	}
	return f, nil
}

// sortConcerns orders known concerns first in display order, then the rest by name
func sortConcerns(cs []types.Concern) {
	rank := func(name string) int {
		if i := slices.Index(types.KnownConcerns, name); i >= 0 {
			return i
		}
		return len(types.KnownConcerns)
	}
	sort.SliceStable(cs, func(i, j int) bool {
		ri, rj := rank(cs[i].Name), rank(cs[j].Name)
		if ri != rj {
			return ri < rj
		}
		return cs[i].Name < cs[j].Name
	})
}
