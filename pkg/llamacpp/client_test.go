package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

func newServer(t *testing.T, status int, content any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 {
			t.Errorf("Expected one message, got %d", len(req.Messages))
		}

		if status != http.StatusOK {
			http.Error(w, "bad things", status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestAnalyzeStringContent(t *testing.T) {
	server := newServer(t, http.StatusOK, `{"overall_score": 66, "skin_age": 31, "recommendations": ["drink water"]}`)
	defer server.Close()

	res, err := NewClient(server.URL+"/", "llava").Analyze(context.Background(), []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.OverallScore != 66 || res.SkinAge != 31 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if res.Provenance.Provider != Name {
		t.Errorf("Expected provider %s, got %s", Name, res.Provenance.Provider)
	}
}

func TestAnalyzePartContent(t *testing.T) {
	parts := []map[string]any{{"type": "text", "text": `{"overall_score": 90, "skin_age": 24}`}}
	server := newServer(t, http.StatusOK, parts)
	defer server.Close()

	res, err := NewClient(server.URL, "").Analyze(context.Background(), []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.OverallScore != 90 {
		t.Errorf("Expected 90, got %d", res.OverallScore)
	}
}

func TestAnalyzeStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusServiceUnavailable, types.ErrProviderUnavailable},
		{http.StatusBadRequest, types.ErrInvalidImage},
	}

	for _, tt := range tests {
		server := newServer(t, tt.status, nil)
		_, err := NewClient(server.URL, "").Analyze(context.Background(), []byte{0xFF, 0xD8})
		server.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestAnalyzeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, "").Analyze(context.Background(), []byte{0xFF, 0xD8})
	if !errors.Is(err, types.ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "llamacpp") {
		t.Errorf("Expected backend name in error, got %q", err.Error())
	}
}
