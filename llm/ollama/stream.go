package ollama

import (
	"context"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/ollama/ollama/api"
	"github.com/tidwall/gjson"
)

// ndjsonDone ends an Ollama stream on the final {"done":true} object.
func ndjsonDone(payload gjson.Result) bool {
	return payload.Get("done").Bool()
}

// Chat implements llm.ChatProvider using /api/chat with stream=false.
func (p *Provider) Chat(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.RawResponse, error) {
	payload, err := p.buildChatPayload(msgs, opts, false)
	if err != nil {
		return nil, err
	}
	return p.post(ctx, "chat", "/api/chat", payload)
}

// Stream implements llm.ChatProvider. Ollama streams NDJSON objects.
func (p *Provider) Stream(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.DeltaStream, error) {
	payload, err := p.buildChatPayload(msgs, opts, true)
	if err != nil {
		return nil, err
	}
	return p.openStream(ctx, "stream", "/api/chat", payload, llm.OllamaChatDelta)
}

// Generate sends a single prompt to /api/generate.
func (p *Provider) Generate(ctx context.Context, prompt string, opts llm.CallOptions) (llm.RawResponse, error) {
	payload, err := p.buildGeneratePayload(prompt, p.model(opts), opts, false)
	if err != nil {
		return nil, err
	}
	return p.post(ctx, "generate", "/api/generate", payload)
}

// GenerateStream streams the /api/generate response.
func (p *Provider) GenerateStream(ctx context.Context, prompt string, opts llm.CallOptions) (llm.DeltaStream, error) {
	payload, err := p.buildGeneratePayload(prompt, p.model(opts), opts, true)
	if err != nil {
		return nil, err
	}
	return p.openStream(ctx, "generateStream", "/api/generate", payload, llm.OllamaGenerateDelta)
}

func (p *Provider) openStream(ctx context.Context, op, path string, payload []byte, delta llm.DeltaAccessor) (llm.DeltaStream, error) {
	resp, err := p.http.Stream(ctx, transport.Request{URL: p.base + path, Headers: p.headers(), Body: payload})
	if err != nil {
		return nil, llm.NewTransportError(p.name, op, err)
	}
	p.logger.Debug().Str("path", path).Msg("Stream opened")
	return llm.NewDeltaDecoder(resp.Body, llm.DecoderConfig{
		Framing: llm.FramingNDJSON,
		Delta:   delta,
		Done:    ndjsonDone,
	}), nil
}

// Embeddings implements llm.EmbeddingsProvider using the batch /api/embed endpoint.
func (p *Provider) Embeddings(ctx context.Context, inputs []string, opts llm.CallOptions) (*llm.EmbeddingsResult, error) {
	req := &api.EmbedRequest{
		Model: opts.StringOr(llm.OptModel, DefaultEmbeddingModel),
		Input: inputs,
	}
	raw, err := p.post(ctx, "embeddings", "/api/embed", req)
	if err != nil {
		return nil, err
	}
	return llm.NormalizeEmbeddings(raw), nil
}

// GenerateImage implements llm.ImageProvider through /api/generate with an
// image model loaded in Ollama.
func (p *Provider) GenerateImage(ctx context.Context, prompt string, opts llm.CallOptions) (*llm.ImageResult, error) {
	payload, err := p.buildGeneratePayload(prompt, opts.StringOr(llm.OptModel, DefaultImageModel), opts, false)
	if err != nil {
		return nil, err
	}
	raw, err := p.post(ctx, "generateImage", "/api/generate", payload)
	if err != nil {
		return nil, err
	}
	return llm.NormalizeImages(raw), nil
}
