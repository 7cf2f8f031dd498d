// Package providers defines the single interface every vendor adapter
// implements, and the shared helpers (error-message extraction, HTTP status
// capture) common to all of them. Each vendor package keeps its own wire
// format, auth scheme, and quirks — only the boundary is unified.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dreamscapes/gateway/types"
)

// Provider is the uniform boundary ProviderInvoker dispatches through. Every
// vendor adapter (anthropic, gemini, openaicompat) implements exactly this;
// classification of the returned error into a types.ErrorKind happens one
// layer up, in internal/errortaxonomy, never inside the adapter itself.
type Provider interface {
	// Name returns the adapter's stable identifier (e.g. "anthropic").
	Name() string

	// Invoke sends one single-shot generation request and returns the raw
	// provider output (the text which internal/extractor will parse into a
	// candidate artifact). httpStatus is 0 when no response was ever
	// received (network failure, DNS, etc.); err is nil only on a 2xx
	// response. deadline bounds the whole call, including connection setup.
	Invoke(ctx context.Context, prompt string, params types.GenerationParams, deadline time.Time) (raw []byte, httpStatus int, err error)
}

// SystemPrompt is the fixed instruction every adapter sends asking the
// model to produce a dreamResponse-shaped JSON artifact. Centralizing it
// here keeps the three wire formats consistent in what they ask for, even
// though each embeds it differently (Claude's separate "system" field,
// Gemini's systemInstruction, OpenAI-compatible's system message).
const SystemPrompt = `You are a dream-parsing assistant. Given a free-form description of a dream, respond with a single JSON object matching this shape and nothing else:
{"id": string, "title": string (5-200 chars), "description": string (10-2000 chars), "scenes": [{"id": string, "description": string, "objects": [string, ...]}, ...]}
Always include at least one scene. Do not wrap the JSON in markdown fences or add commentary.`

// ReadErrorMessage reads body and attempts to extract a human-readable
// message from a generic {"error": {"message": ...}} envelope, falling back
// to the raw body text. Shared across adapters since every vendor in this
// gateway uses some variant of that envelope shape.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", envelope.Error.Message, envelope.Error.Type)
		}
		return envelope.Error.Message
	}

	return string(data)
}

// SafeCloseBody closes an HTTP response body, ignoring the error — callers
// already have the status code and any read error they care about.
func SafeCloseBody(body io.Closer) {
	if body != nil {
		_ = body.Close()
	}
}
