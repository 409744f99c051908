package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	oaigo "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// LocalClient talks to an OpenAI-compatible local inference server.
// Small local vision models handle one image at a time, so frames are captioned
// individually and the captions are merged into segments by a text call.
type LocalClient struct {
	client      oaigo.Client
	model       string
	textModel   string
	maxCaptions int
	sampler     FrameSampler
}

// NewLocalClient creates a local provider. The base URL is required.
func NewLocalClient(cfg *config.LLMConfig, sampler FrameSampler) (*LocalClient, error) {
	if cfg.Local.BaseURL == "" || cfg.Local.Model == "" {
		return nil, fmt.Errorf("%w: LLM_LOCAL_BASE_URL and LLM_LOCAL_MODEL are required", ErrNoProvider)
	}
	apiKey := cfg.Local.APIKey
	if apiKey == "" {
		apiKey = "local"
	}
	textModel := cfg.Local.TextModel
	if textModel == "" {
		textModel = cfg.Local.Model
	}
	return &LocalClient{
		client: oaigo.NewClient(
			option.WithBaseURL(cfg.Local.BaseURL),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		model:       cfg.Local.Model,
		textModel:   textModel,
		maxCaptions: cfg.Local.MaxCaptions,
		sampler:     sampler,
	}, nil
}

// Name returns the provider name
func (l *LocalClient) Name() string { return ProviderLocal }

// Transcribe captions sampled frames one by one, then merges the captions into segments
func (l *LocalClient) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	frames, cleanup, err := sampleFrames(ctx, l.sampler, req)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	frames = thinFrames(frames, l.maxCaptions)

	captions := make([]Segment, 0, len(frames))
	for _, f := range frames {
		url, err := imageDataURL(f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		text, err := l.complete(ctx, l.model, []oaigo.ChatCompletionMessageParamUnion{
			oaigo.UserMessage([]oaigo.ChatCompletionContentPartUnionParam{
				oaigo.TextContentPart(FrameCaptionPrompt(f.Offset)),
				oaigo.ImageContentPart(oaigo.ChatCompletionContentPartImageImageURLParam{URL: url}),
			}),
		})
		if err != nil {
			return nil, err
		}
		captions = append(captions, Segment{Start: f.Offset, Description: strings.TrimSpace(text)})
	}

	system, user := CaptionMergePrompt(req.Duration, captions)
	text, err := l.complete(ctx, l.textModel, []oaigo.ChatCompletionMessageParamUnion{
		oaigo.SystemMessage(system),
		oaigo.UserMessage(user),
	})
	if err != nil {
		return nil, err
	}

	segments, err := ParseTranscription(text, req.Duration)
	if err != nil {
		// the merge step is best effort; fall back to one segment per caption
		if errors.Is(err, ErrMalformedResponse) {
			if fallback := segmentsFromCaptions(captions, req.Duration); len(fallback) > 0 {
				return &TranscribeResult{Segments: fallback, Model: l.model}, nil
			}
		}
		return nil, err
	}
	return &TranscribeResult{Segments: segments, Model: l.model}, nil
}

// Synthesize asks the text model for timeline cards
func (l *LocalClient) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	system, user := SynthesisPrompt(req)
	text, err := l.complete(ctx, l.textModel, []oaigo.ChatCompletionMessageParamUnion{
		oaigo.SystemMessage(system),
		oaigo.UserMessage(user),
	})
	if err != nil {
		return nil, err
	}
	cards, err := ParseCards(text)
	if err != nil {
		return nil, err
	}
	return &SynthesisResult{Cards: cards, Model: l.textModel}, nil
}

func (l *LocalClient) complete(ctx context.Context, model string, messages []oaigo.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := l.client.Chat.Completions.New(ctx, oaigo.ChatCompletionNewParams{
		Model:       oaigo.ChatModel(model),
		Messages:    messages,
		Temperature: oaigo.Float(0.2),
	})
	if err != nil {
		return "", convertLocalError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", malformed("local model returned no content")
	}
	return resp.Choices[0].Message.Content, nil
}

func convertLocalError(err error) error {
	var apiErr *oaigo.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			rl := &RateLimitError{Provider: ProviderLocal, Message: apiErr.Message}
			if apiErr.Response != nil {
				rl.RetryAfter = parseRetryAfterHeader(apiErr.Response.Header)
			}
			return rl
		}
		return &StatusError{Provider: ProviderLocal, StatusCode: apiErr.StatusCode, Body: apiErr.Message}
	}
	return fmt.Errorf("local model request failed: %w", err)
}

// thinFrames keeps at most max frames, evenly spread
func thinFrames(frames []Frame, max int) []Frame {
	if max <= 0 || len(frames) <= max {
		return frames
	}
	out := make([]Frame, 0, max)
	step := float64(len(frames)) / float64(max)
	for i := 0; i < max; i++ {
		out = append(out, frames[int(float64(i)*step)])
	}
	return out
}
