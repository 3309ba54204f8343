package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/samber/lo"
)

var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// ParseToolCalls extracts tool calls from assistant text. The text may be
// fenced in a code block; accepted forms are {"tool_calls":[...]} and a bare
// array of {name, arguments}. Anything else yields no calls.
func ParseToolCalls(text string) []llm.ToolCall {
	candidate := stripFence(text)
	if candidate == "" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
		object, ok := salvageObject(candidate)
		if !ok {
			return nil
		}
		decoded = object
	}
	return callsFrom(decoded)
}

func stripFence(text string) string {
	candidate := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	return candidate
}

// salvageObject finds the first balanced {...} span that decodes as JSON.
// Braces inside string literals are ignored.
func salvageObject(text string) (any, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchingBrace(text, start); end > start {
			var decoded any
			if err := json.Unmarshal([]byte(text[start:end+1]), &decoded); err == nil {
				return decoded, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// matchingBrace returns the index closing the object opened at start, or -1.
func matchingBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i
			}
		}
	}
	return -1
}

func callsFrom(decoded any) []llm.ToolCall {
	var items []any
	switch v := decoded.(type) {
	case map[string]any:
		list, ok := v["tool_calls"].([]any)
		if !ok {
			return nil
		}
		items = list
	case []any:
		if len(v) == 0 {
			return nil
		}
		first, ok := v[0].(map[string]any)
		if !ok {
			return nil
		}
		if _, ok := first["name"]; !ok {
			return nil
		}
		items = v
	default:
		return nil
	}

	return lo.FilterMap(items, func(item any, _ int) (llm.ToolCall, bool) {
		obj, ok := item.(map[string]any)
		if !ok {
			return llm.ToolCall{}, false
		}
		if fn, ok := obj["function"].(map[string]any); ok {
			obj = fn
		}
		name, _ := obj["name"].(string)
		if name == "" {
			return llm.ToolCall{}, false
		}
		return llm.ToolCall{Name: name, Arguments: arguments(obj["arguments"])}, true
	})
}

// arguments accepts an object or a JSON-encoded object string.
func arguments(v any) map[string]any {
	switch a := v.(type) {
	case map[string]any:
		return a
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(a), &decoded); err == nil && decoded != nil {
			return decoded
		}
	}
	return map[string]any{}
}
