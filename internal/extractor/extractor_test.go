package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/types"
)

func TestExtract_PlainJSON(t *testing.T) {
	e := New(zap.NewNop())
	r, err := e.Extract([]byte(`{"title":"A Dream","scenes":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "A Dream", r.Candidate["title"])
}

func TestExtract_TextToJSONSalvage(t *testing.T) {
	e := New(zap.NewNop())
	raw := `Sure, here is the JSON you asked for:\n{"title":"A Dream","scenes":[]}\nLet me know if you need changes.`
	r, err := e.Extract([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "A Dream", r.Candidate["title"])
	assert.NotEmpty(t, r.ExtractionNotes)
}

func TestExtract_StructuralDescentChoicesMessageContent(t *testing.T) {
	e := New(zap.NewNop())
	raw := map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"content": `{"title":"A Dream","scenes":[]}`,
				},
			},
		},
	}
	r, err := e.Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "A Dream", r.Candidate["title"])
}

func TestExtract_StructuralDescentDataContent(t *testing.T) {
	e := New(zap.NewNop())
	raw := map[string]any{
		"data": map[string]any{
			"content": map[string]any{"title": "A Dream", "scenes": []any{}},
		},
	}
	r, err := e.Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "A Dream", r.Candidate["title"])
}

func TestExtract_UnknownWrapperFallsThroughToInvalidResponseDownstream(t *testing.T) {
	e := New(zap.NewNop())
	raw := map[string]any{"unrelated": "nothing useful here"}
	r, err := e.Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, r.Candidate)
}

func TestExtract_EmptyStringIsInvalidResponse(t *testing.T) {
	e := New(zap.NewNop())
	_, err := e.Extract("")
	var gwErr *types.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, types.ErrInvalidResponse, gwErr.Kind)
}

func TestExtract_PromiseLikeChannelIsRejected(t *testing.T) {
	e := New(zap.NewNop())
	ch := make(chan int)
	_, err := e.Extract(ch)
	var gwErr *types.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, types.ErrAsyncExtraction, gwErr.Kind)
}

func TestAssembleStream_StopsAtTerminator(t *testing.T) {
	e := New(zap.NewNop())
	chunks := []string{`{"title":`, `"A Dream","scenes":[]}`, "[DONE]", `{"title":"ignored"}`}
	r, err := e.AssembleStream(chunks, "[DONE]")
	require.NoError(t, err)
	assert.Equal(t, "A Dream", r.Candidate["title"])
}
