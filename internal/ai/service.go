package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

const (
	// maxPromptRunes caps text sent to a provider.
	maxPromptRunes = 8000
	maxVariants    = 8
)

// Service wraps a provider with a per-call timeout, input bounds and logging.
// It satisfies models.AIProvider so handlers cannot tell it apart from the
// provider it wraps.
type Service struct {
	provider models.AIProvider
	timeout  time.Duration
	logger   *slog.Logger
}

// NewService creates a Service. A zero timeout disables the deadline.
func NewService(provider models.AIProvider, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With("component", "ai", "provider", provider.Name()),
	}
}

func (s *Service) Name() string { return s.provider.Name() }

func (s *Service) GenerateSketch(ctx context.Context, req models.SketchRequest) (models.SketchOutput, error) {
	if req.Variants < 1 {
		req.Variants = 1
	}
	if req.Variants > maxVariants {
		req.Variants = maxVariants
	}
	req.Prompt = truncateRunes(req.Prompt, maxPromptRunes)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out, err := s.provider.GenerateSketch(ctx, req)
	if err != nil {
		err = s.classify(ctx, err)
		s.logger.Warn("sketch generation failed", "story_id", req.StoryID, "error", err)
		return models.SketchOutput{}, err
	}
	if len(out.ImageURLs) == 0 {
		return models.SketchOutput{}, fmt.Errorf("%w: no images returned", ErrInvalidResponse)
	}
	s.logger.Info("sketch generated",
		"story_id", req.StoryID,
		"variants", len(out.ImageURLs),
		"model", out.Model,
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (s *Service) AnalyzeEmotion(ctx context.Context, text string) (models.EmotionAnalysis, error) {
	if text == "" {
		return models.EmotionAnalysis{}, fmt.Errorf("%w: empty text", ErrInvalidResponse)
	}
	text = truncateRunes(text, maxPromptRunes)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.provider.AnalyzeEmotion(ctx, text)
	if err != nil {
		err = s.classify(ctx, err)
		s.logger.Warn("emotion analysis failed", "error", err)
		return models.EmotionAnalysis{}, err
	}
	return out, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// classify maps an expired deadline to ErrInferenceTimeout.
func (s *Service) classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrInferenceTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	return err
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

var _ models.AIProvider = (*Service)(nil)
