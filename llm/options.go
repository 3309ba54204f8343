package llm

import (
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// Recognized call option keys. Providers read the keys they understand and
// ignore the rest.
const (
	OptModel             = "model"
	OptTemperature       = "temperature"
	OptTopP              = "top_p"
	OptMaxTokens         = "max_tokens"
	OptStop              = "stop"
	OptSeed              = "seed"
	OptResponseFormat    = "response_format"
	OptJSONSchema        = "json_schema"
	OptTools             = "tools"
	OptToolChoice        = "tool_choice"
	OptMaxToolIterations = "max_tool_iterations"
	OptAPI               = "api"
	OptUser              = "user"
	OptVoice             = "voice"
	OptSize              = "size"
	OptFormat            = "format"
	OptKeepAlive         = "keep_alive"
	OptN                 = "n"

	OptAPIKey       = "api_key"
	OptEndpoint     = "endpoint"
	OptBaseURL      = "base_url"
	OptChatEndpoint = "chat_endpoint"
	OptAuthHeader   = "auth_header"
	OptAuthPrefix   = "auth_prefix"
	OptPaths        = "paths"
	OptExtraHeaders = "extra_headers"
)

// OverrideKeys are the options that force a one-off provider instance.
var OverrideKeys = []string{
	OptAPIKey, OptEndpoint, OptBaseURL, OptChatEndpoint,
	OptAuthHeader, OptAuthPrefix, OptPaths, OptExtraHeaders,
}

// CallOptions is a flat, loosely typed set of per-call options.
type CallOptions map[string]any

// Has reports whether key is set to a non-nil value.
func (o CallOptions) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// HasOverrides reports whether any provider-construction override is present.
func (o CallOptions) HasOverrides() bool {
	return lo.SomeBy(OverrideKeys, o.Has)
}

// String returns the string value of key, or "" when absent or not
// representable as a string.
func (o CallOptions) String(key string) string {
	if !o.Has(key) {
		return ""
	}
	return cast.ToString(o[key])
}

// StringOr returns the string value of key or def when empty.
func (o CallOptions) StringOr(key, def string) string {
	if s := o.String(key); s != "" {
		return s
	}
	return def
}

// Float returns key as a float64. Numeric strings are accepted.
func (o CallOptions) Float(key string) (float64, bool) {
	if !o.Has(key) {
		return 0, false
	}
	f, err := cast.ToFloat64E(o[key])
	return f, err == nil
}

// Int returns key as an int. Numeric strings are accepted.
func (o CallOptions) Int(key string) (int, bool) {
	if !o.Has(key) {
		return 0, false
	}
	i, err := cast.ToIntE(o[key])
	return i, err == nil
}

// Bool returns key as a bool.
func (o CallOptions) Bool(key string) (bool, bool) {
	if !o.Has(key) {
		return false, false
	}
	b, err := cast.ToBoolE(o[key])
	return b, err == nil
}

// Strings returns key as a string slice. A single string becomes a one-item slice.
func (o CallOptions) Strings(key string) []string {
	switch v := o[key].(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		return lo.FilterMap(v, func(item any, _ int) (string, bool) {
			s, ok := item.(string)
			return s, ok
		})
	}
	out, err := cast.ToStringSliceE(o[key])
	if err != nil {
		return nil
	}
	return out
}

// Map returns key as a map, accepting map[string]string too.
func (o CallOptions) Map(key string) map[string]any {
	switch v := o[key].(type) {
	case nil:
		return nil
	case CallOptions:
		return v
	case map[string]string:
		return lo.MapValues(v, func(s string, _ string) any { return s })
	}
	m, err := cast.ToStringMapE(o[key])
	if err != nil {
		return nil
	}
	return m
}

// StringMap returns key as a map of strings, dropping non-string values.
func (o CallOptions) StringMap(key string) map[string]string {
	m := o.Map(key)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Clone returns a shallow copy.
func (o CallOptions) Clone() CallOptions {
	out := make(CallOptions, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// WithDefaults returns a copy of o with defaults filled in for absent keys.
// Explicit zero values in o are kept.
func (o CallOptions) WithDefaults(defaults map[string]any) CallOptions {
	merged := o.Clone()
	for k, v := range defaults {
		if !merged.Has(k) {
			merged[k] = v
		}
	}
	return merged
}

// ToolSpecs returns key as tool definitions. Accepts []ToolSpec or a list of
// {name, description, parameters|schema} maps.
func (o CallOptions) ToolSpecs(key string) []ToolSpec {
	switch v := o[key].(type) {
	case []ToolSpec:
		return v
	case []any:
		return lo.FilterMap(v, func(item any, _ int) (ToolSpec, bool) {
			m, ok := item.(map[string]any)
			if !ok {
				spec, isSpec := item.(ToolSpec)
				return spec, isSpec && spec.Name != ""
			}
			spec := ToolSpec{}
			spec.Name, _ = m["name"].(string)
			spec.Description, _ = m["description"].(string)
			if params, ok := m["parameters"].(map[string]any); ok {
				spec.Schema = params
			} else if schema, ok := m["schema"].(map[string]any); ok {
				spec.Schema = schema
			}
			return spec, spec.Name != ""
		})
	}
	return nil
}

// ResponseSchema reports the structured-output request carried by
// response_format/json_schema. json_schema may be {name, schema} or a bare
// schema. A response_format of "json" without a schema yields an object schema.
func (o CallOptions) ResponseSchema() (name string, schema map[string]any, ok bool) {
	format := o.String(OptResponseFormat)
	js := o.Map(OptJSONSchema)
	if format != "json" && format != "json_schema" && js == nil {
		return "", nil, false
	}
	name = "auto_schema"
	if js != nil {
		if n, isStr := js["name"].(string); isStr && n != "" {
			name = n
		}
		if s, isMap := js["schema"].(map[string]any); isMap {
			return name, s, true
		}
		if _, hasType := js["type"]; hasType {
			return name, js, true
		}
	}
	return name, map[string]any{"type": "object"}, true
}
