package anthropic

import (
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/samber/lo"
	"github.com/tidwall/sjson"
)

// ToMessageParams converts llm.Messages to Anthropic message params. System
// messages become user messages and tool results become user messages
// labelled with the tool name.
func ToMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, error) {
	folded := llm.FoldSystemRoles(msgs)
	result := make([]anthropic.MessageParam, 0, len(folded))
	for i, msg := range folded {
		param, err := ToMessageParam(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert message %d: %w", i, err)
		}
		result = append(result, param)
	}
	return result, nil
}

// ToMessageParam converts a single (already folded) llm.Message.
func ToMessageParam(msg llm.Message) (anthropic.MessageParam, error) {
	content := msg.Content
	if msg.Role == llm.RoleTool {
		content = fmt.Sprintf("[tool %s result]\n%s", msg.ToolName, msg.Content)
	}

	mapped, err := llm.MapAttachments(msg.Attachments)
	if err != nil {
		return anthropic.MessageParam{}, err
	}
	content = mapped.AppendInline(content)

	var blocks []anthropic.ContentBlockParamUnion
	for _, img := range mapped.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIME, img.Base64))
	}
	for _, u := range mapped.ImageURLs {
		blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: u}))
	}
	for _, f := range mapped.Files {
		if f.MIME == "application/pdf" {
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: f.Base64}))
		}
	}
	// Empty text blocks are rejected by the API.
	if content != "" || len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(content))
	}

	if msg.Role == llm.RoleAssistant {
		return anthropic.NewAssistantMessage(blocks...), nil
	}
	return anthropic.NewUserMessage(blocks...), nil
}

// ToToolUnionParam converts an llm.ToolSpec to an Anthropic ToolUnionParam.
func ToToolUnionParam(spec llm.ToolSpec) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{Properties: spec.Schema["properties"]}
	switch req := spec.Schema["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		schema.Required = lo.FilterMap(req, func(v any, _ int) (string, bool) {
			s, ok := v.(string)
			return s, ok
		})
	}

	toolParam := anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: schema,
	}
	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

// buildPayload encodes a Messages API request.
func buildPayload(msgs []llm.Message, opts llm.CallOptions, stream bool) ([]byte, error) {
	messages, err := ToMessageParams(msgs)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(opts.StringOr(llm.OptModel, DefaultModel)),
		MaxTokens:     DefaultMaxTokens,
		Messages:      messages,
		StopSequences: opts.Strings(llm.OptStop),
	}
	if v, ok := opts.Int(llm.OptMaxTokens); ok && v > 0 {
		params.MaxTokens = int64(v)
	}
	if v, ok := opts.Float(llm.OptTemperature); ok {
		params.Temperature = anthropic.Float(v)
	}
	if v, ok := opts.Float(llm.OptTopP); ok {
		params.TopP = anthropic.Float(v)
	}
	if v, ok := opts.Int("top_k"); ok {
		params.TopK = anthropic.Int(int64(v))
	}
	if specs := opts.ToolSpecs(llm.OptTools); len(specs) > 0 {
		params.Tools = lo.Map(specs, func(s llm.ToolSpec, _ int) anthropic.ToolUnionParam { return ToToolUnionParam(s) })
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages request: %w", err)
	}
	if stream {
		if data, err = sjson.SetBytes(data, "stream", true); err != nil {
			return nil, fmt.Errorf("failed to enable streaming: %w", err)
		}
	}
	return data, nil
}
