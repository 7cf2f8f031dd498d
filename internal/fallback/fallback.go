// Package fallback implements EmergencyFallback: a deterministic,
// locally-synthesized artifact returned when every provider candidate has
// been exhausted. It must never itself fail or hang — no network calls, no
// unbounded work, just string processing over the original prompt.
package fallback

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/types"
)

const (
	// minConfidence is the sentinel confidence value attached to every
	// synthesized artifact, always below any genuine provider's floor so
	// downstream consumers can recognize it as a degraded result.
	minConfidence = 0.1

	maxScenes         = 3
	minKeywordLen     = 4
	fallbackTitlePfx  = "Untitled Dream: "
	defaultObjectWord = "a fleeting shape"
)

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z'-]*`)

// stopwords are filtered out of keyword extraction so generic connective
// words never end up standing in as scene content.
var stopwords = map[string]bool{
	"the": true, "and": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "about": true, "there": true, "their": true,
	"have": true, "were": true, "been": true, "then": true, "than": true,
	"what": true, "when": true, "where": true, "which": true, "while": true,
}

// Synthesizer builds EmergencyFallback artifacts.
type Synthesizer struct {
	logger *zap.Logger
}

// New constructs a Synthesizer.
func New(logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{logger: logger}
}

// Synthesize deterministically builds a schema-valid dreamResponse artifact
// from prompt alone, bounded and side-effect-free. Callers may rely on this
// never panicking or blocking.
func (s *Synthesizer) Synthesize(prompt string) *types.ValidatedArtifact {
	start := time.Now()
	keywords := extractKeywords(prompt)

	title := buildTitle(keywords)
	description := buildDescription(prompt, keywords)
	scenes := buildScenes(keywords)

	content := map[string]any{
		"id":          uuid.NewString(),
		"title":       title,
		"description": description,
		"scenes":      scenes,
	}

	s.logger.Info("emergency fallback synthesized artifact",
		zap.Int("keyword_count", len(keywords)),
		zap.Int("scene_count", len(scenes)))

	return &types.ValidatedArtifact{
		Content:          content,
		Schema:           types.DreamResponseSchemaName,
		Source:           types.EmergencyFallbackSource,
		Confidence:       minConfidence,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func extractKeywords(prompt string) []string {
	words := wordPattern.FindAllString(prompt, -1)
	seen := make(map[string]bool, len(words))
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		lw := strings.ToLower(w)
		if len(lw) < minKeywordLen || stopwords[lw] || seen[lw] {
			continue
		}
		seen[lw] = true
		keywords = append(keywords, lw)
		if len(keywords) >= maxScenes*2 {
			break
		}
	}
	return keywords
}

func buildTitle(keywords []string) string {
	if len(keywords) == 0 {
		return fallbackTitlePfx + "an unremembered fragment"
	}
	n := len(keywords)
	if n > 3 {
		n = 3
	}
	title := fallbackTitlePfx + strings.Join(capitalizeAll(keywords[:n]), " ")
	if len(title) < 5 {
		title = fallbackTitlePfx + "fragment"
	}
	if len(title) > 200 {
		title = title[:200]
	}
	return title
}

func capitalizeAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		if w == "" {
			out[i] = w
			continue
		}
		out[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return out
}

func buildDescription(prompt string, keywords []string) string {
	trimmed := strings.TrimSpace(prompt)
	var b strings.Builder
	b.WriteString("A half-remembered dream, reconstructed without a provider response")
	if len(keywords) > 0 {
		b.WriteString(", touching on ")
		b.WriteString(strings.Join(keywords, ", "))
	}
	b.WriteString(".")
	if trimmed != "" {
		snippet := trimmed
		if len(snippet) > 120 {
			snippet = snippet[:120]
		}
		b.WriteString(" Original request: \"")
		b.WriteString(snippet)
		b.WriteString("\"")
	}
	desc := b.String()
	if len(desc) < 10 {
		desc = desc + " A quiet, empty scene remains."
	}
	if len(desc) > 2000 {
		desc = desc[:2000]
	}
	return desc
}

func buildScenes(keywords []string) []any {
	n := maxScenes
	if len(keywords) > 0 && len(keywords) < n {
		n = len(keywords)
	}
	if n == 0 {
		n = 1
	}
	scenes := make([]any, 0, n)
	for i := 0; i < n; i++ {
		objects := []any{defaultObjectWord}
		description := "A dim, indistinct scene"
		if i < len(keywords) {
			description = "A scene touching on " + keywords[i]
			objects = []any{keywords[i]}
		}
		scenes = append(scenes, map[string]any{
			"id":          uuid.NewString(),
			"description": description,
			"objects":     objects,
		})
	}
	return scenes
}
