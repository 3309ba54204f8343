package llm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/tidwall/gjson"
)

// Framing selects how a streaming body is split into payloads.
type Framing int

const (
	// FramingSSE expects "data:" prefixed lines (server-sent events).
	FramingSSE Framing = iota
	// FramingNDJSON treats every non-blank line as a JSON payload.
	FramingNDJSON
)

// DoneSentinel terminates an SSE stream.
const DoneSentinel = "[DONE]"

// DeltaAccessor extracts the text delta from one decoded payload.
type DeltaAccessor func(payload gjson.Result) (string, bool)

// DeltaPaths returns an accessor yielding the first path holding a non-null string.
func DeltaPaths(paths ...string) DeltaAccessor {
	return func(payload gjson.Result) (string, bool) {
		for _, p := range paths {
			v := payload.Get(p)
			if v.Exists() && v.Type == gjson.String {
				return v.String(), true
			}
		}
		return "", false
	}
}

// Accessors for the stream shapes spoken by the bundled providers.
var (
	OpenAIChatDelta     = DeltaPaths("choices.0.delta.content")
	ResponsesDelta      = DeltaAccessor(responsesDelta)
	OllamaChatDelta     = DeltaPaths("message.content")
	OllamaGenerateDelta = DeltaPaths("response")
	AnthropicDelta      = DeltaPaths("delta.text")
	GeminiDelta         = DeltaPaths("candidates.0.content.parts.0.text")
)

// responsesDelta reads Responses API events. Typed events other than
// output text deltas (function arguments, reasoning) carry no visible text.
func responsesDelta(payload gjson.Result) (string, bool) {
	if t := payload.Get("type"); t.Exists() && t.String() != "response.output_text.delta" {
		return "", false
	}
	return DeltaPaths("delta", "output_text")(payload)
}

// DecoderConfig configures a DeltaDecoder.
type DecoderConfig struct {
	Framing Framing
	Delta   DeltaAccessor
	// Done, when set, ends the stream after the payload it matches.
	Done func(payload gjson.Result) bool
}

// DeltaDecoder incrementally decodes an SSE or NDJSON body into text deltas.
// Lines split across reads are reassembled by the buffered reader before
// being parsed.
type DeltaDecoder struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	cfg     DecoderConfig
	current string
	err     error
	done    bool

	closeOnce sync.Once
	closeErr  error
}

var _ DeltaStream = (*DeltaDecoder)(nil)

// NewDeltaDecoder wraps body. The decoder owns body and closes it when the
// stream ends or Close is called.
func NewDeltaDecoder(body io.ReadCloser, cfg DecoderConfig) *DeltaDecoder {
	if cfg.Delta == nil {
		cfg.Delta = OpenAIChatDelta
	}
	return &DeltaDecoder{
		body:   body,
		reader: bufio.NewReaderSize(body, 4096),
		cfg:    cfg,
	}
}

// Next advances to the next delta.
func (d *DeltaDecoder) Next() bool {
	for !d.done {
		line, readErr := d.reader.ReadBytes('\n')
		if len(line) > 0 {
			delta, ok, stop := d.handleLine(line)
			if stop {
				d.finish(nil)
			}
			if ok && delta != "" {
				d.current = delta
				if readErr != nil && !d.done {
					d.finish(readErr)
				}
				return true
			}
		}
		if readErr != nil {
			d.finish(readErr)
		}
	}
	return false
}

// handleLine returns the delta carried by line, if any, and whether the
// stream should stop after it.
func (d *DeltaDecoder) handleLine(line []byte) (string, bool, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == ':' {
		return "", false, false
	}

	payload := line
	if d.cfg.Framing == FramingSSE {
		rest, found := bytes.CutPrefix(line, []byte("data:"))
		if !found {
			return "", false, false
		}
		payload = bytes.TrimSpace(rest)
	}

	if string(payload) == DoneSentinel {
		return "", false, true
	}
	if !gjson.ValidBytes(payload) {
		return "", false, false
	}

	parsed := gjson.ParseBytes(payload)
	stop := d.cfg.Done != nil && d.cfg.Done(parsed)
	delta, ok := d.cfg.Delta(parsed)
	return delta, ok, stop
}

func (d *DeltaDecoder) finish(err error) {
	d.done = true
	if err != nil && !errors.Is(err, io.EOF) && d.err == nil {
		d.err = err
	}
	_ = d.Close()
}

// Delta returns the current delta.
func (d *DeltaDecoder) Delta() string { return d.current }

// Err returns the first read error, if any. A clean end reports nil.
func (d *DeltaDecoder) Err() error { return d.err }

// Close releases the body. Further calls to Next return false.
func (d *DeltaDecoder) Close() error {
	d.closeOnce.Do(func() {
		d.done = true
		d.closeErr = d.body.Close()
	})
	return d.closeErr
}
