package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrCameraAccess is returned when the camera cannot be acquired (permission denied, busy, missing)
	ErrCameraAccess = errors.New("camera access failed")
	// ErrCaptureFailed is returned when a frame could not be grabbed from an open camera
	ErrCaptureFailed = errors.New("capture failed")
	// ErrInvalidImage is returned for format, resolution or size violations and provider-side rejections
	ErrInvalidImage = errors.New("invalid image")
	// ErrNetwork is returned on transport failures and timeouts talking to a provider
	ErrNetwork = errors.New("network error")
	// ErrProviderUnavailable is returned when no provider can serve the request
	ErrProviderUnavailable = errors.New("analysis provider unavailable")
	// ErrMalformedResponse is returned when a provider answers with an unusable payload
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrSessionClosed is returned by operations on a closed camera session
	ErrSessionClosed = errors.New("session closed")
)

// ProviderError is a non-2xx answer from an analysis provider
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	Detail      string
	Suggestions []string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "provider returned status %d", e.StatusCode)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes ErrInvalidImage when the provider rejected the image itself
func (e *ProviderError) Unwrap() error {
	if e.RejectsImage() {
		return ErrInvalidImage
	}
	return nil
}

// rejectionKeywords are phrases about the submitted picture, not the request
var rejectionKeywords = []string{
	"no face",
	"face not detected",
	"face not found",
	"image size",
	"image resolution",
	"image format",
	"unsupported image",
	"image too large",
	"image too small",
	"image is too large",
	"image is too small",
}

// RejectsImage reports whether the error means the submitted image is unusable
func (e *ProviderError) RejectsImage() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return true
	}
	msg := strings.ToLower(e.Message + " " + e.Detail)
	for _, kw := range rejectionKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// InvalidImagef builds an ErrInvalidImage with a formatted reason
func InvalidImagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidImage, fmt.Sprintf(format, args...))
}
