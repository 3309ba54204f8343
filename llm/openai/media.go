package openai

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	openai "github.com/sashabaranov/go-openai"
)

// Embeddings implements llm.EmbeddingsProvider.
func (p *Provider) Embeddings(ctx context.Context, inputs []string, opts llm.CallOptions) (*llm.EmbeddingsResult, error) {
	req := openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(opts.StringOr(llm.OptModel, string(openai.SmallEmbedding3))),
		User:  opts.String(llm.OptUser),
	}
	if v, ok := opts.Int("dimensions"); ok {
		req.Dimensions = v
	}

	raw, err := p.post(ctx, "embeddings", p.cfg.Paths.Embeddings, req)
	if err != nil {
		return nil, err
	}
	return llm.NormalizeEmbeddings(raw), nil
}

// GenerateImage implements llm.ImageProvider.
func (p *Provider) GenerateImage(ctx context.Context, prompt string, opts llm.CallOptions) (*llm.ImageResult, error) {
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          opts.StringOr(llm.OptModel, openai.CreateImageModelDallE3),
		N:              1,
		Size:           opts.StringOr(llm.OptSize, openai.CreateImageSize1024x1024),
		ResponseFormat: opts.StringOr(llm.OptResponseFormat, openai.CreateImageResponseFormatURL),
		Quality:        opts.String("quality"),
		Style:          opts.String("style"),
		User:           opts.String(llm.OptUser),
	}
	if v, ok := opts.Int(llm.OptN); ok && v > 0 {
		req.N = v
	}

	raw, err := p.post(ctx, "generateImage", p.cfg.Paths.Image, req)
	if err != nil {
		return nil, err
	}
	return llm.NormalizeImages(raw), nil
}

// TextToSpeech implements llm.AudioProvider. The response body is raw audio.
func (p *Provider) TextToSpeech(ctx context.Context, text string, opts llm.CallOptions) (*llm.SpeechResult, error) {
	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(opts.StringOr(llm.OptModel, string(openai.TTSModel1))),
		Input:          text,
		Voice:          openai.SpeechVoice(opts.StringOr(llm.OptVoice, string(openai.VoiceAlloy))),
		ResponseFormat: openai.SpeechResponseFormat(opts.StringOr(llm.OptFormat, string(openai.SpeechResponseFormatMp3))),
		Instructions:   opts.String("instructions"),
	}
	if v, ok := opts.Float("speed"); ok {
		req.Speed = v
	}

	resp, err := p.http.Do(ctx, transport.Request{URL: p.endpoint(p.cfg.Paths.TTS), Headers: p.headers(), Body: req})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), "textToSpeech", err)
	}
	return llm.NormalizeSpeech(resp.Raw(), resp.Header.Get("Content-Type")), nil
}

// SpeechToText implements llm.AudioProvider by uploading path as multipart.
func (p *Provider) SpeechToText(ctx context.Context, path string, opts llm.CallOptions) (*llm.TranscriptionResult, error) {
	fields := map[string]string{
		"model":           opts.StringOr(llm.OptModel, openai.Whisper1),
		"response_format": opts.StringOr(llm.OptResponseFormat, "json"),
	}
	if lang := opts.String("language"); lang != "" {
		fields["language"] = lang
	}
	if v, ok := opts.Float(llm.OptTemperature); ok {
		fields["temperature"] = strconv.FormatFloat(v, 'f', -1, 64)
	}

	resp, err := p.http.Do(ctx, transport.Request{
		URL:     p.endpoint(p.cfg.Paths.STT),
		Headers: p.headers(),
		Form:    &transport.Multipart{Fields: fields, FileField: "file", FilePath: path},
	})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), "speechToText", fmt.Errorf("%s: %w", path, err))
	}
	return llm.NormalizeTranscription(llm.RawResponse(resp.Raw())), nil
}
