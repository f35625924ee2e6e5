package processor

import (
	"context"
	"log/slog"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

type EmotionProcessor struct {
	provider models.AIProvider
	logger   *slog.Logger
}

func NewEmotionProcessor(p models.AIProvider, logger *slog.Logger) *EmotionProcessor {
	return &EmotionProcessor{
		provider: p,
		logger:   logger.With("component", "processor", "job_type", models.JobTypeEmotionAnalysis),
	}
}

func (p *EmotionProcessor) Handle(ctx context.Context, job *models.Job) (models.JobResult, error) {
	var payload models.EmotionAnalysisPayload
	if err := decode(job, &payload); err != nil {
		return failed(err)
	}

	analysis, err := p.provider.AnalyzeEmotion(ctx, payload.Text)
	if err != nil {
		return failed(err)
	}
	p.logger.Info("emotion analysed", "job_id", job.ID, "story_id", payload.StoryID, "primary", analysis.Primary)
	return models.JobResult{
		Success:  true,
		Data:     analysis,
		Metadata: map[string]any{"story_id": payload.StoryID, "model": analysis.Model},
	}, nil
}
