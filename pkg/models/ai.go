// Package models contains shared data models used across the sketchforge codebase.
package models

import (
	"context"
	"errors"
)

// AIProvider is the boundary to the image generation and text analysis
// services. Handlers depend on this interface, never on a concrete provider.
type AIProvider interface {
	// GenerateSketch renders jewelry sketch variants for a story.
	GenerateSketch(ctx context.Context, req SketchRequest) (SketchOutput, error)
	// AnalyzeEmotion scores the emotional tone of a story text.
	AnalyzeEmotion(ctx context.Context, text string) (EmotionAnalysis, error)
	// Name returns the provider identifier (e.g., "mock", "gemini").
	Name() string
}

// SketchRequest is the input to a sketch generation call.
type SketchRequest struct {
	StoryID  string
	Style    string
	Variants int
	Prompt   string
}

// SketchOutput is what a provider returns for a generated sketch set.
type SketchOutput struct {
	ImageURLs []string `json:"image_urls"`
	Model     string   `json:"model"`
	Cost      float64  `json:"cost"`
}

// EmotionAnalysis is the scored emotional profile of a text.
type EmotionAnalysis struct {
	Primary string             `json:"primary"`
	Scores  map[string]float64 `json:"scores"`
	Model   string             `json:"model"`
}

// Errors reported by AIProvider implementations.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)
