package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

const okBody = `{
  "success": true,
  "data": {
    "analysis": {
      "texture": {"score": 58, "status": "needs_improvement", "improvement": "exfoliate weekly"},
      "hydration": 81.4,
      "sebum_balance": 70
    },
    "summary": {"overall_score": 74, "skin_age": 28, "recommendations": ["moisturize", ""]}
  }
}`

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com", "::bad"} {
		if _, err := NewClient(Config{BaseURL: u}); err == nil {
			t.Errorf("Expected error for base URL %q", u)
		}
	}
}

func TestAnalyze(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/analyze" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Client-Id") != "id" || r.Header.Get("X-Client-Secret") != "secret" {
			t.Errorf("Missing credential headers: %v", r.Header)
		}

		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer f.Close()
		got, _ := io.ReadAll(f)
		if string(got) != string(jpeg) {
			t.Errorf("Uploaded bytes differ")
		}
		if hdr.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("Expected image/jpeg part, got %q", hdr.Header.Get("Content-Type"))
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okBody)
	}))
	defer server.Close()

	c, err := NewClient(Config{BaseURL: server.URL + "/v1/", ClientID: "id", ClientSecret: "secret"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	res, err := c.Analyze(context.Background(), jpeg)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if res.OverallScore != 74 || res.SkinAge != 28 {
		t.Errorf("Unexpected summary: %+v", res)
	}
	if len(res.Concerns) != 3 {
		t.Fatalf("Expected 3 concerns, got %+v", res.Concerns)
	}
	// Known concerns come first in display order
	if res.Concerns[0].Name != types.ConcernHydration || res.Concerns[0].Score != 81 {
		t.Errorf("Unexpected first concern: %+v", res.Concerns[0])
	}
	if res.Concerns[1].Name != types.ConcernTexture || res.Concerns[1].Improvement != "exfoliate weekly" {
		t.Errorf("Unexpected second concern: %+v", res.Concerns[1])
	}
	if res.Concerns[2].Name != "sebum_balance" {
		t.Errorf("Unexpected third concern: %+v", res.Concerns[2])
	}
	if len(res.Recommendations) != 1 {
		t.Errorf("Expected empty recommendations dropped, got %v", res.Recommendations)
	}
	if res.Provenance.Mock || res.Provenance.Source != types.SourceProvider {
		t.Errorf("Unexpected provenance: %+v", res.Provenance)
	}
}

func TestAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no face", http.StatusBadRequest, `{"error": {"message": "No face detected", "suggestions": ["face the camera"]}}`, types.ErrInvalidImage},
		{"too large", http.StatusRequestEntityTooLarge, `{"error": {"message": "Payload too large"}}`, types.ErrInvalidImage},
		{"unavailable", http.StatusServiceUnavailable, `{"error": {"message": "maintenance"}}`, types.ErrProviderUnavailable},
		{"malformed", http.StatusOK, `not json`, types.ErrMalformedResponse},
		{"missing summary", http.StatusOK, `{"success": true, "data": {"analysis": {}, "summary": {}}}`, types.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c, _ := NewClient(Config{BaseURL: server.URL})
			_, err := c.Analyze(context.Background(), []byte{0xFF, 0xD8})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAnalyzeProviderErrorDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "bad credentials", "detail": "client id unknown"}}`)
	}))
	defer server.Close()

	c, _ := NewClient(Config{BaseURL: server.URL})
	_, err := c.Analyze(context.Background(), []byte{0xFF, 0xD8})

	var pe *types.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusUnauthorized || pe.Detail != "client id unknown" {
		t.Errorf("Unexpected provider error: %+v", pe)
	}
	if errors.Is(err, types.ErrInvalidImage) {
		t.Error("Credential failure must not be reported as an image rejection")
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, _ := NewClient(Config{BaseURL: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Analyze(ctx, []byte{0xFF, 0xD8})
	if !errors.Is(err, types.ErrNetwork) {
		t.Errorf("Expected ErrNetwork on deadline, got %v", err)
	}
}

func TestMetaMockProvenance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": true, "data": {"analysis": {"oil": 70}, "summary": {"overall_score": 80, "skin_age": 30}, "meta": {"id": "abc", "provider": "mock", "mock": true}}}`)
	}))
	defer server.Close()

	c, _ := NewClient(Config{BaseURL: server.URL})
	res, err := c.Analyze(context.Background(), []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !res.Provenance.Mock || res.ID != "abc" {
		t.Errorf("Expected upstream mock provenance to be kept, got %+v", res)
	}
}
