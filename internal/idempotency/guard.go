// Package idempotency collapses concurrent, identical in-flight provider
// dispatches into a single call. It is adapted from the teacher's
// llm/idempotency key-generation scheme (JSON-marshal the deterministic
// inputs, SHA256 the result) and its ResilientProvider decorator, but traded
// the teacher's TTL-backed response cache for golang.org/x/sync/singleflight:
// this guard never stores a result past the call that produced it. Its only
// job is to stop two goroutines racing the same request's timeout budget
// from dispatching the identical prepared prompt to the same provider twice
// — one dispatch wins, the other waits and shares its outcome.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Guard is safe for concurrent use by multiple goroutines.
type Guard struct {
	group singleflight.Group
}

// New constructs an empty Guard.
func New() *Guard {
	return &Guard{}
}

// keyInputs mirrors the teacher's "deterministic subset" idea in
// generateIdempotencyKey: only the fields that fully determine the wire
// request go into the key, so two attempts that would produce byte-identical
// dispatches collapse into one even if unrelated bookkeeping differs.
type keyInputs struct {
	RequestID   string
	Provider    string
	Prompt      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Key derives a stable identity for one prepared dispatch attempt. Two
// goroutines racing the same retry (same request, same provider, same
// prepared prompt and params) compute the same key.
func Key(requestID, provider, prompt string, temperature float64, maxTokens int, jsonMode bool) string {
	data, err := json.Marshal(keyInputs{
		RequestID:   requestID,
		Provider:    provider,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSONMode:    jsonMode,
	})
	if err != nil {
		// json.Marshal on a struct of strings/floats/ints/bools cannot
		// fail; fall back to a non-colliding-in-practice identity rather
		// than panic.
		return fmt.Sprintf("%s|%s|%s", requestID, provider, prompt)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Do runs fn, unless another goroutine is already running fn for the same
// key, in which case Do blocks and returns that call's result instead of
// dispatching again. shared reports whether the result came from a
// concurrent caller rather than this goroutine's own invocation of fn.
func (g *Guard) Do(key string, fn func() any) (result any, shared bool) {
	ran := false
	v, _, _ := g.group.Do(key, func() (any, error) {
		ran = true
		return fn(), nil
	})
	return v, !ran
}
