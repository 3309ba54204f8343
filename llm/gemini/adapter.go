package gemini

import (
	"fmt"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/samber/lo"
)

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type fileData struct {
	MIMEType string `json:"mime_type,omitempty"`
	FileURI  string `json:"file_uri"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
	FileData   *fileData   `json:"file_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type generationConfig struct {
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"topP,omitempty"`
	TopK             *int           `json:"topK,omitempty"`
	MaxOutputTokens  *int           `json:"maxOutputTokens,omitempty"`
	StopSequences    []string       `json:"stopSequences,omitempty"`
	Seed             *int           `json:"seed,omitempty"`
	CandidateCount   *int           `json:"candidateCount,omitempty"`
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
}

type embedRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

// toContents splits system messages into a system instruction and maps the
// rest onto user/model turns. Tool results are sent as labelled user turns.
func toContents(msgs []llm.Message) ([]content, *content, error) {
	var system []part
	contents := make([]content, 0, len(msgs))
	for i, msg := range msgs {
		parts, err := toParts(msg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to convert message %d: %w", i, err)
		}
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, parts...)
		case llm.RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: parts})
		default:
			contents = append(contents, content{Role: "user", Parts: parts})
		}
	}
	if len(system) == 0 {
		return contents, nil, nil
	}
	return contents, &content{Parts: system}, nil
}

func toParts(msg llm.Message) ([]part, error) {
	text := msg.Content
	if msg.Role == llm.RoleTool {
		text = fmt.Sprintf("[tool %s result]\n%s", msg.ToolName, msg.Content)
	}
	mapped, err := llm.MapAttachments(msg.Attachments)
	if err != nil {
		return nil, err
	}
	text = mapped.AppendInline(text)

	var parts []part
	for _, f := range append(mapped.Images, mapped.Files...) {
		parts = append(parts, part{InlineData: &inlineData{MIMEType: f.MIME, Data: f.Base64}})
	}
	for _, u := range append(mapped.ImageURLs, mapped.FileURLs...) {
		parts = append(parts, part{FileData: &fileData{FileURI: u}})
	}
	if text != "" || len(parts) == 0 {
		parts = append(parts, part{Text: text})
	}
	return parts, nil
}

func toGenerationConfig(opts llm.CallOptions) *generationConfig {
	cfg := &generationConfig{StopSequences: opts.Strings(llm.OptStop)}
	if v, ok := opts.Float(llm.OptTemperature); ok {
		cfg.Temperature = &v
	}
	if v, ok := opts.Float(llm.OptTopP); ok {
		cfg.TopP = &v
	}
	if v, ok := opts.Int("top_k"); ok {
		cfg.TopK = &v
	}
	if v, ok := opts.Int(llm.OptMaxTokens); ok && v > 0 {
		cfg.MaxOutputTokens = &v
	}
	if v, ok := opts.Int(llm.OptSeed); ok {
		cfg.Seed = &v
	}
	if v, ok := opts.Int(llm.OptN); ok && v > 0 {
		cfg.CandidateCount = &v
	}
	if _, schema, ok := opts.ResponseSchema(); ok {
		cfg.ResponseMIMEType = "application/json"
		if opts.Has(llm.OptJSONSchema) {
			cfg.ResponseSchema = schema
		}
	}
	if isEmpty(cfg) {
		return nil
	}
	return cfg
}

func isEmpty(cfg *generationConfig) bool {
	return cfg.Temperature == nil && cfg.TopP == nil && cfg.TopK == nil &&
		cfg.MaxOutputTokens == nil && len(cfg.StopSequences) == 0 && cfg.Seed == nil &&
		cfg.CandidateCount == nil && cfg.ResponseMIMEType == ""
}

// buildRequest assembles a generateContent request body.
func buildRequest(msgs []llm.Message, opts llm.CallOptions) (*generateRequest, error) {
	contents, system, err := toContents(msgs)
	if err != nil {
		return nil, err
	}
	req := &generateRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig:  toGenerationConfig(opts),
	}
	if specs := opts.ToolSpecs(llm.OptTools); len(specs) > 0 {
		req.Tools = []tool{{FunctionDeclarations: lo.Map(specs, func(s llm.ToolSpec, _ int) functionDeclaration {
			return functionDeclaration{Name: s.Name, Description: s.Description, Parameters: s.Schema}
		})}}
	}
	return req, nil
}
