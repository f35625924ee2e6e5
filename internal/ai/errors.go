package ai

import "github.com/kiranshivaraju/sketchforge/pkg/models"

var (
	ErrProviderUnavailable = models.ErrProviderUnavailable
	ErrInferenceTimeout    = models.ErrInferenceTimeout
	ErrInvalidResponse     = models.ErrInvalidResponse
)
