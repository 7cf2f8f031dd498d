package fallback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/internal/validation"
	"github.com/dreamscapes/gateway/types"
)

func TestSynthesize_ProducesSchemaValidArtifact(t *testing.T) {
	s := New(zap.NewNop())
	artifact := s.Synthesize("I was flying over a crystal mountain with a golden dragon")

	p := validation.New(zap.NewNop(), 3)
	report := p.Validate(artifact.Content)
	assert.True(t, report.Valid, "%+v", report.Errors)
}

func TestSynthesize_SetsEmergencyFallbackSourceAndLowConfidence(t *testing.T) {
	s := New(zap.NewNop())
	artifact := s.Synthesize("anything")

	assert.Equal(t, types.EmergencyFallbackSource, artifact.Source)
	assert.Less(t, artifact.Confidence, 0.5)
	assert.Equal(t, types.DreamResponseSchemaName, artifact.Schema)
}

func TestSynthesize_EmptyPromptStillValid(t *testing.T) {
	s := New(zap.NewNop())
	artifact := s.Synthesize("")

	p := validation.New(zap.NewNop(), 3)
	report := p.Validate(artifact.Content)
	assert.True(t, report.Valid, "%+v", report.Errors)
}

func TestSynthesize_IsDeterministicShapeAcrossCalls(t *testing.T) {
	s := New(zap.NewNop())
	a1 := s.Synthesize("soaring above a misty forest")
	a2 := s.Synthesize("soaring above a misty forest")

	require.Equal(t, a1.Content["title"], a2.Content["title"])
	require.Equal(t, a1.Content["description"], a2.Content["description"])
}

func TestSynthesize_VeryLongPromptBounded(t *testing.T) {
	s := New(zap.NewNop())
	longPrompt := strings.Repeat("dragon mountain crystal forest ocean desert volcano glacier ", 200)
	artifact := s.Synthesize(longPrompt)

	p := validation.New(zap.NewNop(), 3)
	report := p.Validate(artifact.Content)
	assert.True(t, report.Valid, "%+v", report.Errors)
}
