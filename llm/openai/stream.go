package openai

import (
	"context"
	"strings"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// useResponses reports whether the call targets the Responses API.
func useResponses(opts llm.CallOptions) bool {
	return strings.EqualFold(opts.String(llm.OptAPI), "responses")
}

// Chat implements llm.ChatProvider. The decoded body is returned verbatim,
// plus a "schema_validation" object when a JSON schema was requested and the
// reply is JSON.
func (p *Provider) Chat(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.RawResponse, error) {
	payload, path, err := p.payload(msgs, opts, false)
	if err != nil {
		return nil, err
	}

	raw, err := p.post(ctx, "chat", path, payload)
	if err != nil {
		return nil, err
	}
	if _, schema, ok := opts.ResponseSchema(); ok {
		raw = annotateSchemaValidation(raw, schema)
	}
	return raw, nil
}

func (p *Provider) payload(msgs []llm.Message, opts llm.CallOptions, stream bool) ([]byte, string, error) {
	if useResponses(opts) {
		data, err := p.buildResponsesPayload(msgs, opts, stream)
		return data, p.cfg.Paths.Responses, err
	}
	data, err := p.buildChatPayload(msgs, opts, stream)
	return data, p.cfg.Paths.Chat, err
}

// annotateSchemaValidation validates the assistant text against schema.
func annotateSchemaValidation(raw llm.RawResponse, schema map[string]any) llm.RawResponse {
	text := llm.NormalizeChat(raw).Text
	if text == "" || !gjson.Valid(text) {
		return raw
	}
	annotated, err := sjson.SetBytes(raw, "schema_validation", llm.ValidateJSON(schema, []byte(text)))
	if err != nil {
		return raw
	}
	return annotated
}

// Stream implements llm.ChatProvider. Deltas come from SSE chunks.
func (p *Provider) Stream(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.DeltaStream, error) {
	payload, path, err := p.payload(msgs, opts, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Stream(ctx, transport.Request{URL: p.endpoint(path), Headers: p.headers(), Body: payload})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), "stream", err)
	}

	cfg := llm.DecoderConfig{Framing: llm.FramingSSE, Delta: llm.OpenAIChatDelta}
	if useResponses(opts) {
		cfg.Delta = llm.ResponsesDelta
		cfg.Done = func(payload gjson.Result) bool {
			return payload.Get("type").String() == "response.completed"
		}
	}
	p.logger.Debug().Str("path", path).Msg("Stream opened")
	return llm.NewDeltaDecoder(resp.Body, cfg), nil
}

// StreamEvents implements llm.EventStreamer.
func (p *Provider) StreamEvents(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.EventStream, error) {
	deltas, err := p.Stream(ctx, msgs, opts)
	if err != nil {
		return nil, err
	}
	return llm.EventsFromDeltas(deltas), nil
}
