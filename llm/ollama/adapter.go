package ollama

import (
	"encoding/json"
	"fmt"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
	"github.com/tidwall/sjson"
)

// jsonOnlyInstruction is prepended when JSON output is requested and the
// conversation has no system message of its own.
const jsonOnlyInstruction = "Respond only with valid JSON and no additional text."

// ollamaFile is the top-level "files" entry accepted by Ollama.
type ollamaFile struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// converted is a message list plus the out-of-band data api.Message cannot
// carry: per-message base64 images, tool names, and request-level files.
type converted struct {
	messages  []api.Message
	images    map[int][]string
	toolNames map[int]string
	files     []ollamaFile
}

// ToOllamaMessages converts llm.Messages to Ollama format. Inline attachment
// text is appended to the message content.
func ToOllamaMessages(msgs []llm.Message) (converted, error) {
	out := converted{
		messages:  make([]api.Message, 0, len(msgs)),
		images:    map[int][]string{},
		toolNames: map[int]string{},
	}
	for i, msg := range msgs {
		content := msg.Content
		if len(msg.Attachments) > 0 {
			mapped, err := llm.MapAttachments(msg.Attachments)
			if err != nil {
				return converted{}, fmt.Errorf("failed to map attachments of message %d: %w", i, err)
			}
			content = mapped.AppendInline(content)
			if len(mapped.Images) > 0 {
				out.images[i] = lo.Map(mapped.Images, func(f llm.EncodedFile, _ int) string { return f.Base64 })
			}
			for _, f := range mapped.Files {
				out.files = append(out.files, ollamaFile{Name: f.Name, Type: f.MIME, Content: f.Base64})
			}
		}
		if msg.Role == llm.RoleTool {
			out.toolNames[i] = msg.ToolName
		}
		out.messages = append(out.messages, api.Message{Role: string(msg.Role), Content: content})
	}
	return out, nil
}

// samplingOptions maps call options onto Ollama's "options" object.
func samplingOptions(opts llm.CallOptions) map[string]any {
	options := make(map[string]any)
	if v, ok := opts.Float(llm.OptTemperature); ok {
		options["temperature"] = v
	}
	if v, ok := opts.Float(llm.OptTopP); ok {
		options["top_p"] = v
	}
	if v, ok := opts.Int("top_k"); ok {
		options["top_k"] = v
	}
	if v, ok := opts.Float("repeat_penalty"); ok {
		options["repeat_penalty"] = v
	}
	if v, ok := opts.Int(llm.OptMaxTokens); ok && v > 0 {
		options["num_predict"] = v
	}
	if v, ok := opts.Int(llm.OptSeed); ok {
		options["seed"] = v
	}
	if stop := opts.Strings(llm.OptStop); len(stop) > 0 {
		options["stop"] = stop
	}
	for k, v := range opts.Map("options") {
		options[k] = v
	}
	return options
}

// outputFormat returns the "format" value: "json" or a JSON schema.
func outputFormat(opts llm.CallOptions) (any, bool) {
	if opts.String(llm.OptFormat) == "json" {
		return "json", true
	}
	_, schema, ok := opts.ResponseSchema()
	if !ok {
		return nil, false
	}
	if opts.Has(llm.OptJSONSchema) {
		return schema, true
	}
	return "json", true
}

// buildChatPayload encodes an /api/chat request.
func (p *Provider) buildChatPayload(msgs []llm.Message, opts llm.CallOptions, stream bool) ([]byte, error) {
	conv, err := ToOllamaMessages(msgs)
	if err != nil {
		return nil, err
	}

	format, wantJSON := outputFormat(opts)
	offset := 0
	if wantJSON && !lo.SomeBy(msgs, func(m llm.Message) bool { return m.Role == llm.RoleSystem }) {
		conv.messages = append([]api.Message{{Role: string(llm.RoleSystem), Content: jsonOnlyInstruction}}, conv.messages...)
		offset = 1
	}

	req := api.ChatRequest{
		Model:    p.model(opts),
		Messages: conv.messages,
		Stream:   &stream,
		Options:  samplingOptions(opts),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	patches := map[string]any{}
	for idx, images := range conv.images {
		patches[fmt.Sprintf("messages.%d.images", idx+offset)] = images
	}
	for idx, name := range conv.toolNames {
		patches[fmt.Sprintf("messages.%d.tool_name", idx+offset)] = name
	}
	if len(conv.files) > 0 {
		patches["files"] = conv.files
	}
	if wantJSON {
		patches["format"] = format
	}
	if keepAlive := opts.String(llm.OptKeepAlive); keepAlive != "" {
		patches["keep_alive"] = keepAlive
	}
	if specs := opts.ToolSpecs(llm.OptTools); len(specs) > 0 {
		patches["tools"] = lo.Map(specs, func(s llm.ToolSpec, _ int) map[string]any {
			return map[string]any{
				"type":     "function",
				"function": map[string]any{"name": s.Name, "description": s.Description, "parameters": s.Schema},
			}
		})
	}
	return applyPatches(data, patches)
}

// buildGeneratePayload encodes an /api/generate request.
func (p *Provider) buildGeneratePayload(prompt, model string, opts llm.CallOptions, stream bool) ([]byte, error) {
	req := api.GenerateRequest{
		Model:   model,
		Prompt:  prompt,
		System:  opts.String("system"),
		Stream:  &stream,
		Options: samplingOptions(opts),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generate request: %w", err)
	}

	patches := map[string]any{}
	if format, ok := outputFormat(opts); ok {
		patches["format"] = format
	}
	if negative := opts.String("negative_prompt"); negative != "" {
		patches["negative"] = negative
	}
	if keepAlive := opts.String(llm.OptKeepAlive); keepAlive != "" {
		patches["keep_alive"] = keepAlive
	}
	return applyPatches(data, patches)
}

func applyPatches(data []byte, patches map[string]any) ([]byte, error) {
	var err error
	for path, value := range patches {
		if data, err = sjson.SetBytes(data, path, value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return data, nil
}
