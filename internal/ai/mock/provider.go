package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// costPerVariant is what the mock reports per generated image.
const costPerVariant = 0.04

// MockProvider satisfies models.AIProvider for testing and local runs.
type MockProvider struct {
	Name_       string
	SketchFunc  func(ctx context.Context, req models.SketchRequest) (models.SketchOutput, error)
	EmotionFunc func(ctx context.Context, text string) (models.EmotionAnalysis, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) GenerateSketch(ctx context.Context, req models.SketchRequest) (models.SketchOutput, error) {
	if m.SketchFunc != nil {
		return m.SketchFunc(ctx, req)
	}
	return models.SketchOutput{}, nil
}

func (m *MockProvider) AnalyzeEmotion(ctx context.Context, text string) (models.EmotionAnalysis, error) {
	if m.EmotionFunc != nil {
		return m.EmotionFunc(ctx, text)
	}
	return models.EmotionAnalysis{}, nil
}

var emotionWords = map[string][]string{
	"joy":       {"happy", "joy", "laugh", "celebrate", "wedding", "love"},
	"nostalgia": {"remember", "childhood", "grandmother", "grandfather", "old", "memory"},
	"sadness":   {"loss", "miss", "tears", "goodbye", "funeral", "lonely"},
	"hope":      {"future", "dream", "hope", "promise", "new", "begin"},
}

// NewMockProvider returns a MockProvider with deterministic responses: one
// placeholder URL per variant and keyword-based emotion scores.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		SketchFunc: func(_ context.Context, req models.SketchRequest) (models.SketchOutput, error) {
			urls := make([]string, req.Variants)
			for i := range urls {
				urls[i] = fmt.Sprintf("https://sketches.example.invalid/%s/%s/%d.png", req.StoryID, req.Style, i+1)
			}
			return models.SketchOutput{
				ImageURLs: urls,
				Model:     "mock-v1",
				Cost:      costPerVariant * float64(req.Variants),
			}, nil
		},
		EmotionFunc: func(_ context.Context, text string) (models.EmotionAnalysis, error) {
			return scoreEmotions(text), nil
		},
	}
}

func scoreEmotions(text string) models.EmotionAnalysis {
	words := strings.Fields(strings.ToLower(text))
	counts := make(map[string]int, len(emotionWords))
	total := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'")
		for emotion, keys := range emotionWords {
			for _, k := range keys {
				if w == k {
					counts[emotion]++
					total++
				}
			}
		}
	}

	out := models.EmotionAnalysis{Primary: "neutral", Scores: map[string]float64{}, Model: "mock-v1"}
	best := 0
	for _, emotion := range []string{"joy", "nostalgia", "sadness", "hope"} {
		n := counts[emotion]
		if total > 0 {
			out.Scores[emotion] = float64(n) / float64(total)
		} else {
			out.Scores[emotion] = 0
		}
		if n > best {
			best = n
			out.Primary = emotion
		}
	}
	return out
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		SketchFunc: func(_ context.Context, _ models.SketchRequest) (models.SketchOutput, error) {
			return models.SketchOutput{}, err
		},
		EmotionFunc: func(_ context.Context, _ string) (models.EmotionAnalysis, error) {
			return models.EmotionAnalysis{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		SketchFunc: func(ctx context.Context, _ models.SketchRequest) (models.SketchOutput, error) {
			<-ctx.Done()
			return models.SketchOutput{}, models.ErrInferenceTimeout
		},
		EmotionFunc: func(ctx context.Context, _ string) (models.EmotionAnalysis, error) {
			<-ctx.Done()
			return models.EmotionAnalysis{}, models.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
