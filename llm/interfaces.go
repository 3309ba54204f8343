package llm

import (
	"context"
	"strings"
)

// Provider is an adapter for one backend API family. What it can do is
// expressed by the capability interfaces below; callers type-assert.
type Provider interface {
	Name() string
}

// ChatProvider is the chat capability. Stream must only be called when
// SupportsStreaming reports true.
type ChatProvider interface {
	Provider

	// Chat sends messages and returns the decoded response body.
	Chat(ctx context.Context, messages []Message, opts CallOptions) (RawResponse, error)

	// Stream opens a streaming request and returns text deltas as they are decoded.
	Stream(ctx context.Context, messages []Message, opts CallOptions) (DeltaStream, error)

	// SupportsStreaming is a static capability flag.
	SupportsStreaming() bool
}

// EventStreamer is implemented by providers with native structured streaming.
// Others get StreamEvents for free through EventsFromDeltas.
type EventStreamer interface {
	StreamEvents(ctx context.Context, messages []Message, opts CallOptions) (EventStream, error)
}

// EmbeddingsProvider computes embedding vectors.
type EmbeddingsProvider interface {
	Provider
	Embeddings(ctx context.Context, inputs []string, opts CallOptions) (*EmbeddingsResult, error)
}

// ImageProvider generates images from a prompt.
type ImageProvider interface {
	Provider
	GenerateImage(ctx context.Context, prompt string, opts CallOptions) (*ImageResult, error)
}

// AudioProvider converts between text and speech.
type AudioProvider interface {
	Provider
	TextToSpeech(ctx context.Context, text string, opts CallOptions) (*SpeechResult, error)
	SpeechToText(ctx context.Context, path string, opts CallOptions) (*TranscriptionResult, error)
}

// ModelsProvider lists and describes models.
type ModelsProvider interface {
	Provider
	ListModels(ctx context.Context) (RawResponse, error)
	GetModel(ctx context.Context, id string) (RawResponse, error)
}

// DeltaStream is a pull iterator over streamed text deltas.
type DeltaStream interface {
	// Next advances to the next delta.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Delta returns the current delta.
	// Should only be called after Next() returns true.
	Delta() string

	// Err returns any error that occurred during streaming.
	Err() error

	// Close releases the underlying connection. Safe to call more than once
	// and before the stream is exhausted.
	Close() error
}

// EventStream is a pull iterator over structured stream events.
type EventStream interface {
	Next() bool
	Event() StreamEvent
	Err() error
	Close() error
}

// deltaEvents adapts a DeltaStream to an EventStream: one delta event per
// delta followed by a single end event.
type deltaEvents struct {
	deltas  DeltaStream
	current StreamEvent
	ended   bool
}

var _ EventStream = (*deltaEvents)(nil)

// EventsFromDeltas wraps a DeltaStream with an explicit end marker.
func EventsFromDeltas(deltas DeltaStream) EventStream {
	return &deltaEvents{deltas: deltas}
}

func (s *deltaEvents) Next() bool {
	if s.ended {
		return false
	}
	if s.deltas.Next() {
		s.current = StreamEvent{Type: StreamEventTypeDelta, Data: s.deltas.Delta()}
		return true
	}
	s.ended = true
	if s.deltas.Err() != nil {
		return false
	}
	s.current = StreamEvent{Type: StreamEventTypeEnd}
	return true
}

func (s *deltaEvents) Event() StreamEvent { return s.current }

func (s *deltaEvents) Err() error { return s.deltas.Err() }

func (s *deltaEvents) Close() error { return s.deltas.Close() }

// CollectText drains a stream and returns the concatenated deltas.
// The stream is closed on return.
func CollectText(stream DeltaStream) (string, error) {
	defer stream.Close() //nolint:errcheck // Close error is irrelevant once drained
	var sb strings.Builder
	for stream.Next() {
		sb.WriteString(stream.Delta())
	}
	return sb.String(), stream.Err()
}
