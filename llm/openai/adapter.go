package openai

import (
	"encoding/json"
	"fmt"

	"github.com/aschepis/backscratcher/bridge/llm"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/sjson"
)

// filePart is a chat content part go-openai has no type for.
type filePart struct {
	Type string `json:"type"`
	File struct {
		Filename string `json:"filename,omitempty"`
		FileData string `json:"file_data,omitempty"`
		FileID   string `json:"file_id,omitempty"`
	} `json:"file"`
}

// ToOpenAIMessages converts llm.Messages to OpenAI chat message format. It
// also returns, per message index, the file parts that must be patched into
// the encoded payload.
func ToOpenAIMessages(msgs []llm.Message) ([]openai.ChatCompletionMessage, map[int][]filePart, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	files := map[int][]filePart{}
	for i, msg := range msgs {
		openaiMsg, parts, err := ToOpenAIMessage(msg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to convert message %d: %w", i, err)
		}
		if len(parts) > 0 {
			files[i] = parts
		}
		result = append(result, openaiMsg)
	}
	return result, files, nil
}

// ToOpenAIMessage converts a single llm.Message to OpenAI format.
// Tool results become user messages since role "tool" requires a tool_call_id
// the prompt-based tool protocol does not have.
func ToOpenAIMessage(msg llm.Message) (openai.ChatCompletionMessage, []filePart, error) {
	var role string
	content := msg.Content
	switch msg.Role {
	case llm.RoleSystem:
		role = openai.ChatMessageRoleSystem
	case llm.RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case llm.RoleTool:
		role = openai.ChatMessageRoleUser
		content = fmt.Sprintf("[tool %s result]\n%s", msg.ToolName, msg.Content)
	default:
		role = openai.ChatMessageRoleUser
	}

	if len(msg.Attachments) == 0 {
		return openai.ChatCompletionMessage{Role: role, Content: content}, nil, nil
	}

	mapped, err := llm.MapAttachments(msg.Attachments)
	if err != nil {
		return openai.ChatCompletionMessage{}, nil, err
	}
	content = mapped.AppendInline(content)

	var parts []openai.ChatMessagePart
	for _, img := range mapped.Images {
		parts = append(parts, imagePart(img.DataURL()))
	}
	for _, u := range mapped.ImageURLs {
		parts = append(parts, imagePart(u))
	}

	var files []filePart
	for _, f := range mapped.Files {
		fp := filePart{Type: "file"}
		fp.File.Filename = f.Name
		fp.File.FileData = f.DataURL()
		files = append(files, fp)
	}
	for _, id := range mapped.FileIDs {
		fp := filePart{Type: "file"}
		fp.File.FileID = id
		files = append(files, fp)
	}

	if len(parts) == 0 && len(files) == 0 {
		return openai.ChatCompletionMessage{Role: role, Content: content}, nil, nil
	}
	parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: content}}, parts...)
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}, files, nil
}

func imagePart(url string) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type:     openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
	}
}

// ToOpenAITools converts tool specs to OpenAI function tools.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		params := spec.Schema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// buildChatPayload encodes a chat-completions request.
func (p *Provider) buildChatPayload(msgs []llm.Message, opts llm.CallOptions, stream bool) ([]byte, error) {
	messages, files, err := ToOpenAIMessages(msgs)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:    p.model(opts),
		Messages: messages,
		Stream:   stream,
		Stop:     opts.Strings(llm.OptStop),
		User:     opts.String(llm.OptUser),
	}
	if v, ok := opts.Int(llm.OptMaxTokens); ok && v > 0 {
		req.MaxTokens = v
	}
	if v, ok := opts.Float(llm.OptTemperature); ok {
		req.Temperature = float32(v)
	}
	if v, ok := opts.Float(llm.OptTopP); ok {
		req.TopP = float32(v)
	}
	if v, ok := opts.Int(llm.OptSeed); ok {
		req.Seed = &v
	}
	if v, ok := opts.Int(llm.OptN); ok && v > 0 {
		req.N = v
	}
	if specs := opts.ToolSpecs(llm.OptTools); len(specs) > 0 {
		req.Tools = ToOpenAITools(specs)
		if choice, ok := opts[llm.OptToolChoice]; ok && choice != nil {
			req.ToolChoice = choice
		}
	}
	if format, err := responseFormat(opts); err != nil {
		return nil, err
	} else if format != nil {
		req.ResponseFormat = format
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	// go-openai drops zero sampling values; an explicit 0 must reach the API.
	for _, key := range []string{llm.OptTemperature, llm.OptTopP} {
		if v, ok := opts.Float(key); ok && v == 0 {
			if data, err = sjson.SetBytes(data, key, 0); err != nil {
				return nil, fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
	}
	for idx, parts := range files {
		for _, part := range parts {
			if data, err = sjson.SetBytes(data, fmt.Sprintf("messages.%d.content.-1", idx), part); err != nil {
				return nil, fmt.Errorf("failed to attach file: %w", err)
			}
		}
	}
	return data, nil
}

// responseFormat maps response_format/json_schema options.
func responseFormat(opts llm.CallOptions) (*openai.ChatCompletionResponseFormat, error) {
	if opts.String(llm.OptResponseFormat) == "json_object" {
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}, nil
	}
	name, schema, ok := opts.ResponseSchema()
	if !ok {
		return nil, nil
	}
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json schema: %w", err)
	}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   name,
			Schema: json.RawMessage(encoded),
		},
	}, nil
}

// buildResponsesPayload encodes a Responses API request. Messages map onto
// input items; attachments are inlined as text or input_image parts.
func (p *Provider) buildResponsesPayload(msgs []llm.Message, opts llm.CallOptions, stream bool) ([]byte, error) {
	input := make([]map[string]any, 0, len(msgs))
	for _, msg := range msgs {
		role := string(msg.Role)
		content := msg.Content
		if msg.Role == llm.RoleTool {
			role = string(llm.RoleUser)
			content = fmt.Sprintf("[tool %s result]\n%s", msg.ToolName, msg.Content)
		}
		textType := "input_text"
		if msg.Role == llm.RoleAssistant {
			textType = "output_text"
		}

		mapped, err := llm.MapAttachments(msg.Attachments)
		if err != nil {
			return nil, err
		}
		parts := []map[string]any{{"type": textType, "text": mapped.AppendInline(content)}}
		for _, img := range mapped.Images {
			parts = append(parts, map[string]any{"type": "input_image", "image_url": img.DataURL()})
		}
		for _, u := range mapped.ImageURLs {
			parts = append(parts, map[string]any{"type": "input_image", "image_url": u})
		}
		for _, f := range mapped.Files {
			parts = append(parts, map[string]any{"type": "input_file", "filename": f.Name, "file_data": f.DataURL()})
		}
		for _, id := range mapped.FileIDs {
			parts = append(parts, map[string]any{"type": "input_file", "file_id": id})
		}
		for _, u := range mapped.FileURLs {
			parts = append(parts, map[string]any{"type": "input_file", "file_url": u})
		}
		input = append(input, map[string]any{"role": role, "content": parts})
	}

	payload := map[string]any{"model": p.model(opts), "input": input}
	if stream {
		payload["stream"] = true
	}
	if v, ok := opts.Float(llm.OptTemperature); ok {
		payload["temperature"] = v
	}
	if v, ok := opts.Float(llm.OptTopP); ok {
		payload["top_p"] = v
	}
	if v, ok := opts.Int(llm.OptMaxTokens); ok && v > 0 {
		payload["max_output_tokens"] = v
	}
	if name, schema, ok := opts.ResponseSchema(); ok {
		payload["text"] = map[string]any{
			"format": map[string]any{"type": "json_schema", "name": name, "schema": schema},
		}
	}
	if specs := opts.ToolSpecs(llm.OptTools); len(specs) > 0 {
		tools := make([]map[string]any, 0, len(specs))
		for _, spec := range specs {
			tools = append(tools, map[string]any{
				"type":        "function",
				"name":        spec.Name,
				"description": spec.Description,
				"parameters":  spec.Schema,
			})
		}
		payload["tools"] = tools
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode responses request: %w", err)
	}
	return data, nil
}
