// Package llm provides a provider-neutral abstraction layer over chat-completion HTTP APIs.
//
// This package defines the data model, capability contracts and shared machinery that
// the provider subpackages (openai, ollama, anthropic, gemini) build on.
//
// # Core Concepts
//
//  1. Messages: Message carries a role (system, user, assistant, tool), text content,
//     optional Attachments and, for tool results, the tool name.
//
//  2. Capabilities: a Provider implements only the capability interfaces it supports
//     (ChatProvider, EventStreamer, EmbeddingsProvider, ImageProvider, AudioProvider,
//     ModelsProvider). Callers type-assert and report NewUnsupportedCapabilityError
//     when a capability is missing.
//
//  3. Raw responses: providers return the decoded JSON body untouched as RawResponse.
//     NormalizeChat and friends map the heterogeneous shapes into canonical results
//     using an ordered list of shape matchers.
//
//  4. Streaming: DeltaDecoder turns an SSE or NDJSON body into a pull-based DeltaStream.
//     Close releases the connection whether or not the stream was drained.
//     EventsFromDeltas adds an explicit end marker.
//
//  5. Errors: Error classifies failures (unsupported capability, transport, rate limit,
//     timeout, ...) and is inspected with the Is* helpers.
//
// Usage Example
//
//	p := openai.New(apiKey, transportClient, logger)
//	raw, err := p.Chat(ctx, []llm.Message{
//	    llm.NewTextMessage(llm.RoleUser, "Hello!"),
//	}, llm.CallOptions{llm.OptModel: "gpt-4o-mini"})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(llm.NormalizeChat(raw).Text)
//
// # Extension Points
//
// To add a new provider:
//  1. Implement Provider and whichever capability interfaces the backend supports
//  2. Build payloads from Message/CallOptions and send them through transport.Client
//  3. Pick a DecoderConfig (framing, delta accessor, done predicate) for streaming
//  4. Wrap transport failures with NewTransportError
package llm
