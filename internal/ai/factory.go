package ai

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/sketchforge/internal/ai/gemini"
	"github.com/kiranshivaraju/sketchforge/internal/ai/mock"
	"github.com/kiranshivaraju/sketchforge/internal/config"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "mock":
		return mock.NewMockProvider(), nil
	case "gemini":
		return gemini.NewProvider(ctx, cfg.Gemini)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of mock, gemini", cfg.Provider)
	}
}
