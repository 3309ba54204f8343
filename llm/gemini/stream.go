package gemini

import (
	"context"
	"net/url"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/samber/lo"
)

// Chat implements llm.ChatProvider using :generateContent.
func (p *Provider) Chat(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.RawResponse, error) {
	req, err := buildRequest(msgs, opts)
	if err != nil {
		return nil, err
	}
	model := modelPath(opts.StringOr(llm.OptModel, DefaultModel))
	return p.post(ctx, "chat", p.endpoint(model+":generateContent", nil), req)
}

// Stream implements llm.ChatProvider using :streamGenerateContent with SSE
// framing. The stream ends when the server closes it.
func (p *Provider) Stream(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.DeltaStream, error) {
	req, err := buildRequest(msgs, opts)
	if err != nil {
		return nil, err
	}
	model := modelPath(opts.StringOr(llm.OptModel, DefaultModel))
	target := p.endpoint(model+":streamGenerateContent", url.Values{"alt": {"sse"}})
	resp, err := p.http.Stream(ctx, transport.Request{URL: target, Headers: p.headers(), Body: req})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), "stream", err)
	}
	p.logger.Debug().Str("model", model).Msg("Stream opened")
	return llm.NewDeltaDecoder(resp.Body, llm.DecoderConfig{
		Framing: llm.FramingSSE,
		Delta:   llm.GeminiDelta,
	}), nil
}

// Embeddings implements llm.EmbeddingsProvider. All inputs go in one
// :batchEmbedContents call.
func (p *Provider) Embeddings(ctx context.Context, inputs []string, opts llm.CallOptions) (*llm.EmbeddingsResult, error) {
	model := modelPath(opts.StringOr(llm.OptModel, DefaultEmbeddingModel))
	req := batchEmbedRequest{Requests: lo.Map(inputs, func(input string, _ int) embedRequest {
		return embedRequest{Model: model, Content: content{Parts: []part{{Text: input}}}}
	})}
	raw, err := p.post(ctx, "embeddings", p.endpoint(model+":batchEmbedContents", nil), req)
	if err != nil {
		return nil, err
	}
	return llm.NormalizeEmbeddings(raw), nil
}
