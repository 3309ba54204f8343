package llm

import (
	"encoding/json"
	"testing"
)

func TestNewToolMessage(t *testing.T) {
	msg := NewToolMessage("echo", "hi")
	if msg.Role != RoleTool {
		t.Errorf("Expected role %v, got %v", RoleTool, msg.Role)
	}
	if msg.ToolName != "echo" || msg.Content != "hi" {
		t.Errorf("Unexpected tool message: %+v", msg)
	}
}

func TestRawResponse_JSON(t *testing.T) {
	wrapper := struct {
		Raw RawResponse `json:"raw"`
	}{Raw: RawResponse(`{"a":1}`)}

	data, err := json.Marshal(wrapper)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(data) != `{"raw":{"a":1}}` {
		t.Errorf("Expected raw body to be embedded, got %s", data)
	}

	var decoded struct {
		Raw RawResponse `json:"raw"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.Raw.Get("a").Int() != 1 {
		t.Errorf("Expected a=1, got %s", decoded.Raw)
	}
	if decoded.Raw.Map()["a"] != float64(1) {
		t.Errorf("Expected map access to work, got %v", decoded.Raw.Map())
	}
}

func TestRawResponse_InvalidMarshalsNull(t *testing.T) {
	data, err := json.Marshal(RawResponse("not json"))
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("Expected null, got %s", data)
	}
}

func TestCallOptions_Accessors(t *testing.T) {
	opts := CallOptions{
		OptModel:        "gpt-4o-mini",
		OptTemperature:  0,
		OptMaxTokens:    float64(256),
		OptStop:         []any{"END", 3},
		OptExtraHeaders: map[string]string{"X-Trace": "1"},
		"stream_flag":   "true",
	}

	if opts.String(OptModel) != "gpt-4o-mini" {
		t.Errorf("Unexpected model %q", opts.String(OptModel))
	}
	if v, ok := opts.Float(OptTemperature); !ok || v != 0 {
		t.Errorf("Expected explicit zero temperature, got %v %v", v, ok)
	}
	if v, ok := opts.Int(OptMaxTokens); !ok || v != 256 {
		t.Errorf("Expected max tokens 256, got %v %v", v, ok)
	}
	if got := opts.Strings(OptStop); len(got) != 1 || got[0] != "END" {
		t.Errorf("Expected [END], got %v", got)
	}
	if opts.StringMap(OptExtraHeaders)["X-Trace"] != "1" {
		t.Errorf("Expected header map, got %v", opts.StringMap(OptExtraHeaders))
	}
	if b, ok := opts.Bool("stream_flag"); !ok || !b {
		t.Error("Expected string bool to parse")
	}
	if !opts.HasOverrides() {
		t.Error("extra_headers is an override key")
	}
	if (CallOptions{OptModel: "x"}).HasOverrides() {
		t.Error("model alone is not an override")
	}
}

func TestCallOptions_WithDefaults(t *testing.T) {
	opts := CallOptions{OptModel: "explicit", OptTemperature: 0.0}
	merged := opts.WithDefaults(map[string]any{OptModel: "default", OptTemperature: 0.7, OptMaxTokens: 512})
	if merged.String(OptModel) != "explicit" {
		t.Errorf("Call option must win, got %q", merged.String(OptModel))
	}
	if v, _ := merged.Float(OptTemperature); v != 0 {
		t.Errorf("Explicit zero must be kept, got %v", v)
	}
	if v, _ := merged.Int(OptMaxTokens); v != 512 {
		t.Errorf("Expected default max tokens, got %v", v)
	}
	if opts.Has(OptMaxTokens) {
		t.Error("Original options must not be mutated")
	}
}
