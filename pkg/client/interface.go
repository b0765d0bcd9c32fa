package client

import (
	"context"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Backend submits an encoded JPEG to a skin analysis provider and maps the
// provider's answer onto an AnalysisResult.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, jpeg []byte) (*types.AnalysisResult, error)
}
