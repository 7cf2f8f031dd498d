// Package extractor turns raw provider output (bytes, an assembled stream,
// a parsed JSON object, or a quoted-JSON string) into a candidate object
// ready for ValidationPipeline.
package extractor

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/types"
)

// Thenable marks a deferred/future-like value. No provider adapter in this
// gateway should ever hand one to the extractor — its presence here is a
// runtime guard against a provider SDK wrapping its result in a future and a
// caller forgetting to await it before handing the raw value downstream.
type Thenable interface {
	Then()
}

// wrapperPaths are the known response-envelope shapes providers wrap their
// actual content in; structural descent tries each in order.
var wrapperPaths = [][]string{
	{"choices", "0", "message", "content"},
	{"content"},
	{"data", "content"},
	{"output"},
}

// Result is a successfully extracted candidate plus any notes recorded
// during extraction (e.g. "salvaged JSON from prose").
type Result struct {
	Candidate       map[string]any
	ExtractionNotes []string
}

// Extractor has no mutable state; it is safe for concurrent use.
type Extractor struct {
	logger *zap.Logger
}

// New constructs an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract classifies and normalizes raw into a candidate object, or returns
// a *types.Error describing why it could not.
func (e *Extractor) Extract(raw any) (*Result, error) {
	if isPromiseLike(raw) {
		e.logger.Warn("promise-like value reached extractor",
			zap.String("go_type", fmt.Sprintf("%T", raw)))
		return nil, types.NewError(types.ErrAsyncExtraction,
			"provider adapter returned an unresolved deferred value").
			WithContext("go_type", fmt.Sprintf("%T", raw))
	}

	switch v := raw.(type) {
	case []byte:
		return e.extractString(string(v))
	case string:
		return e.extractString(v)
	case map[string]any:
		return e.extractObject(v, nil)
	case nil:
		return nil, types.NewError(types.ErrInvalidResponse, "provider returned no content")
	default:
		return nil, types.NewError(types.ErrInvalidResponse,
			fmt.Sprintf("unsupported payload type %T", raw))
	}
}

// AssembleStream joins SSE/streaming chunks into one string once the
// terminator is seen (or the caller's read loop otherwise stops), then runs
// Extract on the assembled text. Callers are
// responsible for the per-attempt timeout on the chunk source itself.
func (e *Extractor) AssembleStream(chunks []string, terminator string) (*Result, error) {
	var b strings.Builder
	for _, c := range chunks {
		if terminator != "" && strings.TrimSpace(c) == terminator {
			break
		}
		b.WriteString(c)
	}
	return e.extractString(b.String())
}

func (e *Extractor) extractString(s string) (*Result, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, types.NewError(types.ErrInvalidResponse, "empty provider response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return e.extractObject(obj, nil)
	}

	candidate, start, ok := salvageJSON(trimmed)
	if !ok {
		return nil, types.NewError(types.ErrInvalidResponse,
			"no JSON document found in provider response")
	}
	notes := []string{fmt.Sprintf("salvaged embedded JSON starting at byte %d", start)}
	result, err := e.extractObject(candidate, notes)
	return result, err
}

// extractObject tries structural descent through wrapperPaths before
// treating v itself as the candidate. A wrapper path that resolves to a
// string is parsed as further-embedded JSON (providers sometimes double-wrap
// a JSON string inside the envelope).
func (e *Extractor) extractObject(v map[string]any, notes []string) (*Result, error) {
	if looksLikeCandidate(v) {
		return &Result{Candidate: v, ExtractionNotes: notes}, nil
	}

	for _, path := range wrapperPaths {
		if val, ok := descend(v, path); ok {
			switch inner := val.(type) {
			case map[string]any:
				merged := append(append([]string{}, notes...), fmt.Sprintf("descended via %s", strings.Join(path, ".")))
				return &Result{Candidate: inner, ExtractionNotes: merged}, nil
			case string:
				result, err := e.extractString(inner)
				if err != nil {
					continue
				}
				result.ExtractionNotes = append(result.ExtractionNotes, fmt.Sprintf("descended via %s", strings.Join(path, ".")))
				return result, nil
			}
		}
	}

	// No known wrapper matched; fall back to treating the whole object as
	// the candidate so downstream validation can report precisely which
	// fields are missing.
	return &Result{Candidate: v, ExtractionNotes: notes}, nil
}

// looksLikeCandidate is a cheap heuristic: if the object already carries any
// of the artifact's top-level field names, don't bother descending.
func looksLikeCandidate(v map[string]any) bool {
	for _, key := range []string{"title", "scenes"} {
		if _, ok := v[key]; ok {
			return true
		}
	}
	return false
}

func descend(v map[string]any, path []string) (any, bool) {
	var cur any = v
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx := 0
			if _, err := fmt.Sscanf(seg, "%d", &idx); err != nil {
				return nil, false
			}
			if idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// salvageJSON locates the outermost balanced {...} in s and parses it
//.
func salvageJSON(s string) (map[string]any, int, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return nil, 0, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var obj map[string]any
				if err := json.Unmarshal([]byte(s[start:i+1]), &obj); err != nil {
					return nil, 0, false
				}
				return obj, start, true
			}
		}
	}
	return nil, 0, false
}

func isPromiseLike(raw any) bool {
	if raw == nil {
		return false
	}
	if _, ok := raw.(Thenable); ok {
		return true
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Chan, reflect.Func:
		return true
	default:
		return false
	}
}
