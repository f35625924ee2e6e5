package monitor_test

import (
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/sketchforge/internal/monitor"
	"github.com/kiranshivaraju/sketchforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedJob(msg, provider string, at time.Time) *models.SketchGenerationJob {
	return &models.SketchGenerationJob{
		ID:          "sk",
		Status:      models.SketchStatusFailed,
		CreatedAt:   at.Add(-time.Minute),
		CompletedAt: &at,
		Error:       &msg,
		Metadata:    models.SketchMetadata{Provider: provider},
	}
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"uuid", "sketch 550e8400-e29b-41d4-a716-446655440000 not found", "sketch uuid not found"},
		{"hex address", "nil pointer at 0x7fff5fc00000", "nil pointer at 0xaddr"},
		{"durations", "ai inference timeout after 120s", "ai inference timeout after dur"},
		{"milliseconds", "upstream took 1500ms", "upstream took dur"},
		{"counts", "gemini: status 503 after 3 retries", "gemini: status n after n retries"},
		{"whitespace and case", "  Provider \t  UNAVAILABLE ", "provider unavailable"},
		{"words with digits kept", "imagen3 rejected prompt", "imagen3 rejected prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, monitor.NormalizeError(tt.input))
		})
	}
}

func TestNormalizeError_Truncates(t *testing.T) {
	got := monitor.NormalizeError(strings.Repeat("é", 400))
	assert.LessOrEqual(t, len(got), 500)
	assert.True(t, strings.HasPrefix(strings.Repeat("é", 400), got))
}

func TestFingerprint_StableAcrossVariableParts(t *testing.T) {
	a := monitor.Fingerprint("gemini: status 503 for story 1f0e8400-e29b-41d4-a716-446655440000")
	b := monitor.Fingerprint("Gemini: status 429 for story 9a0e8400-e29b-41d4-a716-446655440001")
	c := monitor.Fingerprint("gemini: prompt blocked by safety filter")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestGroupFailures(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*models.SketchGenerationJob{
		failedJob("ai inference timeout after 120s", "gemini", base),
		failedJob("ai inference timeout after 90s", "mock", base.Add(2*time.Minute)),
		failedJob("ai inference timeout after 30s", "gemini", base.Add(-time.Minute)),
		failedJob("prompt blocked", "gemini", base.Add(5*time.Minute)),
		{ID: "no-error", Status: models.SketchStatusFailed},
	}

	groups := monitor.GroupFailures(jobs)
	require.Len(t, groups, 2)

	timeouts := groups[0]
	assert.Equal(t, 3, timeouts.Count)
	assert.Equal(t, "ai inference timeout after 120s", timeouts.Sample)
	assert.Equal(t, []string{"gemini", "mock"}, timeouts.Providers)
	assert.Equal(t, base.Add(-time.Minute), timeouts.FirstSeenAt)
	assert.Equal(t, base.Add(2*time.Minute), timeouts.LastSeenAt)

	assert.Equal(t, 1, groups[1].Count)
	assert.Equal(t, "prompt blocked", groups[1].Sample)
}

func TestGroupFailures_TiesBreakByRecency(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	groups := monitor.GroupFailures([]*models.SketchGenerationJob{
		failedJob("older failure", "", base),
		failedJob("newer failure", "", base.Add(time.Hour)),
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "newer failure", groups[0].Sample)
	assert.Equal(t, []string{}, groups[0].Providers)
}

func TestGroupFailures_Empty(t *testing.T) {
	groups := monitor.GroupFailures(nil)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}
