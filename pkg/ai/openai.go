package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// OpenAIClient samples frames from the clip and sends them to a hosted vision model
type OpenAIClient struct {
	client  *goopenai.Client
	model   string
	sampler FrameSampler
}

// NewOpenAIClient creates an OpenAI provider. The API key is required.
func NewOpenAIClient(cfg *config.LLMConfig, sampler FrameSampler) (*OpenAIClient, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("%w: LLM_OPENAI_API_KEY is not set", ErrNoProvider)
	}
	clientCfg := goopenai.DefaultConfig(cfg.OpenAI.APIKey)
	clientCfg.HTTPClient = &retryAfterDoer{next: &http.Client{}}
	if cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	model := cfg.OpenAI.Model
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &OpenAIClient{
		client:  goopenai.NewClientWithConfig(clientCfg),
		model:   model,
		sampler: sampler,
	}, nil
}

// Name returns the provider name
func (o *OpenAIClient) Name() string { return ProviderOpenAI }

// Transcribe sends sampled frames, each labelled with its offset, in one request
func (o *OpenAIClient) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	frames, cleanup, err := sampleFrames(ctx, o.sampler, req)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	system, user := TranscriptionPrompt(req.Duration)
	parts := []goopenai.ChatMessagePart{{Type: goopenai.ChatMessagePartTypeText, Text: user}}
	for _, f := range frames {
		url, err := imageDataURL(f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}
		parts = append(parts,
			goopenai.ChatMessagePart{Type: goopenai.ChatMessagePartTypeText, Text: "Frame at " + FormatOffset(f.Offset)},
			goopenai.ChatMessagePart{
				Type:     goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{URL: url, Detail: goopenai.ImageURLDetailLow},
			},
		)
	}

	text, err := o.complete(ctx, []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: system},
		{Role: goopenai.ChatMessageRoleUser, MultiContent: parts},
	})
	if err != nil {
		return nil, err
	}

	segments, err := ParseTranscription(text, req.Duration)
	if err != nil {
		return nil, err
	}
	return &TranscribeResult{Segments: segments, Model: o.model}, nil
}

// Synthesize asks for timeline cards from observations
func (o *OpenAIClient) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	system, user := SynthesisPrompt(req)
	text, err := o.complete(ctx, []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: system},
		{Role: goopenai.ChatMessageRoleUser, Content: user},
	})
	if err != nil {
		return nil, err
	}
	cards, err := ParseCards(text)
	if err != nil {
		return nil, err
	}
	return &SynthesisResult{Cards: cards, Model: o.model}, nil
}

func (o *OpenAIClient) complete(ctx context.Context, messages []goopenai.ChatCompletionMessage) (string, error) {
	var retryAfter time.Duration
	ctx = context.WithValue(ctx, retryAfterKey{}, &retryAfter)
	resp, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: 0.3,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", convertOpenAIError(err, retryAfter)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", malformed("openai returned no content")
	}
	return resp.Choices[0].Message.Content, nil
}

// retryAfterKey carries a *time.Duration that retryAfterDoer fills on a 429
type retryAfterKey struct{}

// retryAfterDoer records the Retry-After header, which go-openai does not surface in its errors
type retryAfterDoer struct {
	next goopenai.HTTPDoer
}

func (d *retryAfterDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}
	if holder, ok := req.Context().Value(retryAfterKey{}).(*time.Duration); ok {
		*holder = parseRetryAfterHeader(resp.Header)
	}
	return resp, nil
}

func convertOpenAIError(err error, retryAfter time.Duration) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &RateLimitError{Provider: ProviderOpenAI, Message: apiErr.Message, RetryAfter: retryAfter}
		}
		return &StatusError{Provider: ProviderOpenAI, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &RateLimitError{Provider: ProviderOpenAI, Message: reqErr.Error(), RetryAfter: retryAfter}
		}
		return &StatusError{Provider: ProviderOpenAI, StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("openai request failed: %w", err)
}
