package validation

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// RepairResult is the outcome of one RepairEngine pass.
type RepairResult struct {
	Repaired    map[string]any
	Success     bool
	FixedFields []string
}

// Repair applies bounded, non-inventive fixes to candidate for the errors
// found in the last validation pass. It never
// invents scene content beyond minimal placeholders, and callers must
// re-validate after each call — Repair itself does not loop.
func (p *Pipeline) Repair(candidate map[string]any, errs []Error) RepairResult {
	repaired := deepCopy(candidate)
	var fixed []string

	for _, e := range errs {
		switch e.RepairHint {
		case "fill_default":
			if fillDefault(repaired, e.Field) {
				fixed = append(fixed, e.Field)
			}
		case "coerce_type":
			if coerceType(repaired, e.Field) {
				fixed = append(fixed, e.Field)
			}
		case "truncate_or_pad":
			if truncateOrPad(repaired, e.Field) {
				fixed = append(fixed, e.Field)
			}
		case "split_comma_list":
			if splitCommaList(repaired, e.Field) {
				fixed = append(fixed, e.Field)
			}
		case "rename_duplicate":
			if renameDuplicateSceneID(repaired, e.Field) {
				fixed = append(fixed, e.Field)
			}
		}
	}

	return RepairResult{Repaired: repaired, Success: len(fixed) > 0, FixedFields: fixed}
}

func fillDefault(candidate map[string]any, field string) bool {
	switch field {
	case "id":
		candidate["id"] = uuid.NewString()
		return true
	case "title":
		candidate["title"] = "Untitled Dream"
		return true
	case "description":
		candidate["description"] = "A fleeting, half-remembered scene."
		return true
	case "scenes":
		candidate["scenes"] = []any{minimalScene("scene-1")}
		return true
	}

	if scene, idx, sub, ok := parseSceneField(candidate, field); ok {
		switch sub {
		case "id":
			scene["id"] = "scene-" + strconv.Itoa(idx+1)
		case "description":
			scene["description"] = "An undetailed moment in the dream."
		case "objects":
			scene["objects"] = []any{}
		default:
			return false
		}
		return true
	}
	return false
}

func coerceType(candidate map[string]any, field string) bool {
	switch field {
	case "title":
		candidate["title"] = stringify(candidate["title"])
		return true
	case "description":
		candidate["description"] = stringify(candidate["description"])
		return true
	case "scenes":
		if raw, ok := candidate["scenes"]; ok {
			if s, ok := raw.(string); ok {
				candidate["scenes"] = []any{minimalScene(s)}
				return true
			}
		}
		candidate["scenes"] = []any{}
		return true
	}

	if scene, _, sub, ok := parseSceneField(candidate, field); ok && sub == "objects" {
		scene["objects"] = []any{}
		return true
	}
	return false
}

func truncateOrPad(candidate map[string]any, field string) bool {
	switch field {
	case "title":
		s, _ := candidate["title"].(string)
		candidate["title"] = clampLength(s, titleMinLen, titleMaxLen, "Untitled Dream")
		return true
	case "description":
		s, _ := candidate["description"].(string)
		candidate["description"] = clampLength(s, descMinLen, descMaxLen, "A fleeting, half-remembered scene.")
		return true
	}
	return false
}

func splitCommaList(candidate map[string]any, field string) bool {
	scene, _, sub, ok := parseSceneField(candidate, field)
	if !ok || sub != "objects" {
		return false
	}
	raw, _ := scene["objects"].(string)
	parts := strings.Split(raw, ",")
	objs := make([]any, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			objs = append(objs, part)
		}
	}
	scene["objects"] = objs
	return true
}

func renameDuplicateSceneID(candidate map[string]any, field string) bool {
	scene, idx, sub, ok := parseSceneField(candidate, field)
	if !ok || sub != "id" {
		return false
	}
	scene["id"] = "scene-" + strconv.Itoa(idx+1) + "-dup"
	return true
}

// clampLength pads s with repeated trailing content up to min, or truncates
// to max, preserving the original content rather than inventing new prose.
func clampLength(s string, min, max int, fallback string) string {
	if s == "" {
		s = fallback
	}
	if len(s) > max {
		return s[:max]
	}
	for len(s) < min {
		pad := " ..."
		if len(s)+len(pad) > min {
			pad = strings.Repeat(".", min-len(s))
		}
		s += pad
	}
	return s
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return ""
	}
}

func minimalScene(id string) map[string]any {
	return map[string]any{
		"id":          id,
		"description": "An undetailed moment in the dream.",
		"objects":     []any{},
	}
}

// parseSceneField parses a "scenes[N].sub" field path produced by the
// validation phases and returns the addressed scene map.
func parseSceneField(candidate map[string]any, field string) (map[string]any, int, string, bool) {
	if !strings.HasPrefix(field, "scenes[") {
		return nil, 0, "", false
	}
	closeIdx := strings.Index(field, "]")
	if closeIdx == -1 {
		return nil, 0, "", false
	}
	idx, err := strconv.Atoi(field[len("scenes["):closeIdx])
	if err != nil {
		return nil, 0, "", false
	}

	scenesRaw, ok := candidate["scenes"]
	if !ok {
		candidate["scenes"] = []any{}
		scenesRaw = candidate["scenes"]
	}
	scenes, ok := scenesRaw.([]any)
	if !ok {
		return nil, 0, "", false
	}
	for len(scenes) <= idx {
		scenes = append(scenes, minimalScene("scene-"+strconv.Itoa(len(scenes)+1)))
	}
	candidate["scenes"] = scenes

	scene, ok := scenes[idx].(map[string]any)
	if !ok {
		scene = minimalScene("scene-" + strconv.Itoa(idx+1))
		scenes[idx] = scene
	}

	sub := ""
	if len(field) > closeIdx+1 && field[closeIdx+1] == '.' {
		sub = field[closeIdx+2:]
	}
	return scene, idx, sub, true
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
