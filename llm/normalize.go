package llm

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// chatShape pairs a predicate with an extractor for one response family.
type chatShape struct {
	name    string
	match   func(gjson.Result) bool
	extract func(gjson.Result) NormalizedChatResult
	// message reports whether the shape carries an assistant message
	// (as opposed to a bare completion string).
	message bool
}

// chatShapes are tried in order; the first match wins.
var chatShapes = []chatShape{
	{
		name:    "chat_completions",
		match:   func(r gjson.Result) bool { return r.Get("choices.0.message").IsObject() },
		extract: extractChatCompletion,
		message: true,
	},
	{
		name:    "generate_message",
		match:   func(r gjson.Result) bool { return r.Get("message.content").Exists() || r.Get("message.tool_calls").IsArray() },
		extract: extractGenerateMessage,
		message: true,
	},
	{
		name: "content_blocks",
		match: func(r gjson.Result) bool {
			return r.Get("content").IsArray() && r.Get("content.0.type").Exists()
		},
		extract: extractContentBlocks,
		message: true,
	},
	{
		name:    "candidates",
		match:   func(r gjson.Result) bool { return r.Get("candidates.0.content").Exists() },
		extract: extractCandidates,
		message: true,
	},
	{
		name:    "responses",
		match:   func(r gjson.Result) bool { return r.Get("output_text").Exists() || r.Get("output").IsArray() },
		extract: extractResponses,
		message: true,
	},
	{
		name: "plain_response",
		match: func(r gjson.Result) bool {
			return r.Get("response").Type == gjson.String
		},
		extract: func(r gjson.Result) NormalizedChatResult {
			return NormalizedChatResult{
				Text:         r.Get("response").String(),
				Usage:        usageFromCounts(r.Get("prompt_eval_count"), r.Get("eval_count")),
				FinishReason: r.Get("done_reason").String(),
			}
		},
	},
}

// NormalizeChat maps a raw chat response into the canonical shape. It never
// fails: unknown or malformed bodies normalize to empty text.
func NormalizeChat(raw RawResponse) NormalizedChatResult {
	result := NormalizedChatResult{ToolCalls: []ToolCall{}}
	if raw.Valid() {
		parsed := gjson.ParseBytes(raw)
		for _, shape := range chatShapes {
			if shape.match(parsed) {
				result = shape.extract(parsed)
				break
			}
		}
	}
	if result.ToolCalls == nil {
		result.ToolCalls = []ToolCall{}
	}
	result.Raw = raw
	return result
}

// ExtractAssistantText returns the assistant message text of a chat response.
// Only message-bearing shapes are considered; bare completion strings and
// unknown shapes report false.
func ExtractAssistantText(raw RawResponse) (string, bool) {
	if !raw.Valid() {
		return "", false
	}
	parsed := gjson.ParseBytes(raw)
	for _, shape := range chatShapes {
		if shape.message && shape.match(parsed) {
			return shape.extract(parsed).Text, true
		}
	}
	return "", false
}

func extractChatCompletion(r gjson.Result) NormalizedChatResult {
	msg := r.Get("choices.0.message")
	usage := r.Get("usage")
	var u *Usage
	if usage.IsObject() {
		u = &Usage{
			PromptTokens:     usage.Get("prompt_tokens").Int(),
			CompletionTokens: usage.Get("completion_tokens").Int(),
			TotalTokens:      usage.Get("total_tokens").Int(),
		}
	}
	return NormalizedChatResult{
		Text:         contentText(msg.Get("content")),
		ToolCalls:    toolCallsFrom(msg.Get("tool_calls")),
		Usage:        u,
		FinishReason: r.Get("choices.0.finish_reason").String(),
	}
}

func extractGenerateMessage(r gjson.Result) NormalizedChatResult {
	return NormalizedChatResult{
		Text:         contentText(r.Get("message.content")),
		ToolCalls:    toolCallsFrom(r.Get("message.tool_calls")),
		Usage:        usageFromCounts(r.Get("prompt_eval_count"), r.Get("eval_count")),
		FinishReason: r.Get("done_reason").String(),
	}
}

func extractContentBlocks(r gjson.Result) NormalizedChatResult {
	var texts []string
	var calls []ToolCall
	for _, block := range r.Get("content").Array() {
		switch block.Get("type").String() {
		case "text":
			texts = append(texts, block.Get("text").String())
		case "tool_use":
			calls = append(calls, ToolCall{Name: block.Get("name").String(), Arguments: argumentsFrom(block.Get("input"))})
		}
	}
	var u *Usage
	if usage := r.Get("usage"); usage.IsObject() {
		in, out := usage.Get("input_tokens").Int(), usage.Get("output_tokens").Int()
		u = &Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
	}
	return NormalizedChatResult{
		Text:         strings.Join(texts, ""),
		ToolCalls:    calls,
		Usage:        u,
		FinishReason: r.Get("stop_reason").String(),
	}
}

func extractCandidates(r gjson.Result) NormalizedChatResult {
	var texts []string
	var calls []ToolCall
	for _, part := range r.Get("candidates.0.content.parts").Array() {
		if t := part.Get("text"); t.Exists() {
			texts = append(texts, t.String())
		}
		if fc := part.Get("functionCall"); fc.IsObject() {
			calls = append(calls, ToolCall{Name: fc.Get("name").String(), Arguments: argumentsFrom(fc.Get("args"))})
		}
	}
	var u *Usage
	if meta := r.Get("usageMetadata"); meta.IsObject() {
		u = &Usage{
			PromptTokens:     meta.Get("promptTokenCount").Int(),
			CompletionTokens: meta.Get("candidatesTokenCount").Int(),
			TotalTokens:      meta.Get("totalTokenCount").Int(),
		}
	}
	return NormalizedChatResult{
		Text:         strings.Join(texts, ""),
		ToolCalls:    calls,
		Usage:        u,
		FinishReason: r.Get("candidates.0.finishReason").String(),
	}
}

func extractResponses(r gjson.Result) NormalizedChatResult {
	text := r.Get("output_text").String()
	var calls []ToolCall
	if !r.Get("output_text").Exists() {
		var texts []string
		for _, item := range r.Get("output").Array() {
			if item.Get("type").String() == "function_call" {
				calls = append(calls, ToolCall{Name: item.Get("name").String(), Arguments: argumentsFrom(item.Get("arguments"))})
				continue
			}
			for _, c := range item.Get("content").Array() {
				if c.Get("type").String() == "output_text" {
					texts = append(texts, c.Get("text").String())
				}
			}
		}
		text = strings.Join(texts, "")
	}
	var u *Usage
	if usage := r.Get("usage"); usage.IsObject() {
		u = &Usage{
			PromptTokens:     usage.Get("input_tokens").Int(),
			CompletionTokens: usage.Get("output_tokens").Int(),
			TotalTokens:      usage.Get("total_tokens").Int(),
		}
	}
	return NormalizedChatResult{Text: text, ToolCalls: calls, Usage: u, FinishReason: r.Get("status").String()}
}

// contentText handles both string content and arrays of content parts.
func contentText(content gjson.Result) string {
	if content.IsArray() {
		return strings.Join(lo.FilterMap(content.Array(), func(part gjson.Result, _ int) (string, bool) {
			t := part.Get("text")
			return t.String(), t.Exists()
		}), "")
	}
	return content.String()
}

func toolCallsFrom(calls gjson.Result) []ToolCall {
	if !calls.IsArray() {
		return nil
	}
	return lo.FilterMap(calls.Array(), func(call gjson.Result, _ int) (ToolCall, bool) {
		fn := call.Get("function")
		if !fn.Exists() {
			fn = call
		}
		name := fn.Get("name").String()
		return ToolCall{Name: name, Arguments: argumentsFrom(fn.Get("arguments"))}, name != ""
	})
}

// argumentsFrom accepts an object or a JSON-encoded object string.
func argumentsFrom(v gjson.Result) map[string]any {
	raw := v.Raw
	if v.Type == gjson.String {
		raw = v.String()
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func usageFromCounts(prompt, completion gjson.Result) *Usage {
	if !prompt.Exists() && !completion.Exists() {
		return nil
	}
	return &Usage{
		PromptTokens:     prompt.Int(),
		CompletionTokens: completion.Int(),
		TotalTokens:      prompt.Int() + completion.Int(),
	}
}

// NormalizeEmbeddings extracts vectors from data[].embedding, embeddings or embedding.
func NormalizeEmbeddings(raw RawResponse) *EmbeddingsResult {
	result := &EmbeddingsResult{Vectors: [][]float64{}, Raw: raw}
	if !raw.Valid() {
		return result
	}
	parsed := gjson.ParseBytes(raw)
	switch {
	case parsed.Get("data.0.embedding").Exists():
		for _, item := range parsed.Get("data").Array() {
			result.Vectors = append(result.Vectors, floats(item.Get("embedding")))
		}
	case parsed.Get("embeddings").IsArray():
		for _, item := range parsed.Get("embeddings").Array() {
			if values := item.Get("values"); values.IsArray() {
				item = values
			}
			result.Vectors = append(result.Vectors, floats(item))
		}
	case parsed.Get("embedding").Exists():
		emb := parsed.Get("embedding")
		if values := emb.Get("values"); values.IsArray() {
			emb = values
		}
		result.Vectors = append(result.Vectors, floats(emb))
	}
	if usage := parsed.Get("usage"); usage.IsObject() {
		result.Usage = &Usage{
			PromptTokens: usage.Get("prompt_tokens").Int(),
			TotalTokens:  usage.Get("total_tokens").Int(),
		}
	}
	return result
}

func floats(v gjson.Result) []float64 {
	return lo.Map(v.Array(), func(f gjson.Result, _ int) float64 { return f.Float() })
}

// NormalizeImages extracts generated images from the known response shapes.
func NormalizeImages(raw RawResponse) *ImageResult {
	result := &ImageResult{Images: []Image{}, Raw: raw}
	if !raw.Valid() {
		return result
	}
	parsed := gjson.ParseBytes(raw)
	for _, item := range parsed.Get("data").Array() {
		switch {
		case item.Get("url").Exists():
			result.Images = append(result.Images, Image{URL: item.Get("url").String()})
		case item.Get("b64_json").Exists():
			result.Images = append(result.Images, Image{B64: item.Get("b64_json").String(), MIME: "image/png"})
		}
	}
	for _, item := range parsed.Get("images").Array() {
		b64 := item.String()
		if item.IsObject() {
			b64 = item.Get("b64").String()
		}
		if b64 != "" {
			result.Images = append(result.Images, Image{B64: b64, MIME: "image/png"})
		}
	}
	if single := parsed.Get("image"); single.Type == gjson.String && single.String() != "" {
		result.Images = append(result.Images, Image{B64: single.String(), MIME: "image/png"})
	}
	if len(result.Images) == 0 {
		if resp := parsed.Get("response").String(); strings.HasPrefix(resp, "data:image/") {
			if img, ok := parseDataURL(resp); ok {
				result.Images = append(result.Images, img)
			}
		}
	}
	return result
}

func parseDataURL(s string) (Image, bool) {
	header, data, found := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !found {
		return Image{}, false
	}
	mime, _, _ := strings.Cut(header, ";")
	return Image{B64: data, MIME: mime}, true
}

// NormalizeSpeech builds a SpeechResult from either raw audio bytes or a JSON
// envelope carrying base64 audio under "audio" or "data".
func NormalizeSpeech(body []byte, contentType string) *SpeechResult {
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, key := range []string{"audio", "data"} {
			if v := parsed.Get(key); v.Type == gjson.String {
				if decoded, err := base64.StdEncoding.DecodeString(v.String()); err == nil {
					mime := parsed.Get("mime").String()
					if mime == "" {
						mime = "audio/mpeg"
					}
					return &SpeechResult{Audio: decoded, MIME: mime}
				}
			}
		}
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &SpeechResult{Audio: body, MIME: contentType}
}

// NormalizeTranscription extracts transcribed text from "text" or "transcript".
func NormalizeTranscription(raw RawResponse) *TranscriptionResult {
	result := &TranscriptionResult{Raw: raw}
	if !raw.Valid() {
		result.Text = strings.TrimSpace(string(raw))
		return result
	}
	for _, key := range []string{"text", "transcript"} {
		if v := raw.Get(key); v.Exists() {
			result.Text = v.String()
			break
		}
	}
	return result
}
