package anthropic

import (
	"context"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/tidwall/gjson"
)

// streamConfig decodes Messages API server-sent events: text arrives in
// content_block_delta events and message_stop ends the stream.
var streamConfig = llm.DecoderConfig{
	Framing: llm.FramingSSE,
	Delta: func(payload gjson.Result) (string, bool) {
		if payload.Get("type").String() != "content_block_delta" {
			return "", false
		}
		return llm.AnthropicDelta(payload)
	},
	Done: func(payload gjson.Result) bool {
		return payload.Get("type").String() == "message_stop"
	},
}

// Stream implements llm.ChatProvider.
func (p *Provider) Stream(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.DeltaStream, error) {
	payload, err := buildPayload(msgs, opts, true)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Stream(ctx, transport.Request{URL: p.base + "/v1/messages", Headers: p.headers(), Body: payload})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), "stream", err)
	}
	p.logger.Debug().Msg("Stream opened")
	return llm.NewDeltaDecoder(resp.Body, streamConfig), nil
}
