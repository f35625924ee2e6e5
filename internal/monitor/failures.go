package monitor

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// MaxFailureGroups bounds the failure groups reported on the dashboard.
const MaxFailureGroups = 5

var (
	reHexAddr  = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reUUID     = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reDuration = regexp.MustCompile(`\b\d+(\.\d+)?(ns|us|µs|ms|s|m|h)\b`)
	reNumber   = regexp.MustCompile(`\b\d+\b`)
	reSpace    = regexp.MustCompile(`\s+`)
)

// FailureGroup is a set of failed sketch jobs whose error messages share a
// fingerprint.
type FailureGroup struct {
	Fingerprint string    `json:"fingerprint"`
	Sample      string    `json:"sample"`
	Count       int       `json:"count"`
	Providers   []string  `json:"providers"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// GroupFailures clusters failed jobs by error fingerprint, largest group
// first, ties broken by most recent. Jobs without an error are skipped.
func GroupFailures(jobs []*models.SketchGenerationJob) []FailureGroup {
	groups := make(map[string]*FailureGroup)
	providers := make(map[string]map[string]bool)

	for _, job := range jobs {
		if job.Error == nil || *job.Error == "" {
			continue
		}
		at := job.CreatedAt
		if job.CompletedAt != nil {
			at = *job.CompletedAt
		}

		fp := Fingerprint(*job.Error)
		g, ok := groups[fp]
		if !ok {
			g = &FailureGroup{
				Fingerprint: fp,
				Sample:      truncate(*job.Error, 500),
				FirstSeenAt: at,
				LastSeenAt:  at,
			}
			groups[fp] = g
			providers[fp] = make(map[string]bool)
		}
		g.Count++
		if at.Before(g.FirstSeenAt) {
			g.FirstSeenAt = at
		}
		if at.After(g.LastSeenAt) {
			g.LastSeenAt = at
		}
		if p := job.Metadata.Provider; p != "" && !providers[fp][p] {
			providers[fp][p] = true
			g.Providers = append(g.Providers, p)
		}
	}

	out := make([]FailureGroup, 0, len(groups))
	for _, g := range groups {
		if g.Providers == nil {
			g.Providers = []string{}
		}
		sort.Strings(g.Providers)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out
}

// Fingerprint is a stable hash of the normalized error message.
func Fingerprint(msg string) string {
	sum := sha256.Sum256([]byte(NormalizeError(msg)))
	return fmt.Sprintf("%x", sum[:8])
}

// NormalizeError strips the variable parts of an error message (ids,
// addresses, durations, counts) so repeats of one failure compare equal.
func NormalizeError(msg string) string {
	msg = reUUID.ReplaceAllString(msg, "UUID")
	msg = reHexAddr.ReplaceAllString(msg, "0xADDR")
	msg = reDuration.ReplaceAllString(msg, "DUR")
	msg = reNumber.ReplaceAllString(msg, "N")
	msg = reSpace.ReplaceAllString(msg, " ")
	msg = strings.ToLower(strings.TrimSpace(msg))
	return truncate(msg, 500)
}

// truncate cuts s to maxBytes without splitting a rune.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
