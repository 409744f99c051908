package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// GeminiClient uploads whole clips to the Gemini Files API and prompts on them
type GeminiClient struct {
	apiKey       string
	model        string
	baseURL      string
	readyTimeout time.Duration
	pollInterval time.Duration
	client       *http.Client
}

// NewGeminiClient creates a Gemini provider. The API key is required.
func NewGeminiClient(cfg *config.LLMConfig) (*GeminiClient, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("%w: LLM_GEMINI_API_KEY is not set", ErrNoProvider)
	}
	base := strings.TrimRight(cfg.Gemini.BaseURL, "/")
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &GeminiClient{
		apiKey:       cfg.Gemini.APIKey,
		model:        cfg.Gemini.Model,
		baseURL:      base,
		readyTimeout: cfg.ReadyTimeout,
		pollInterval: poll,
		client:       &http.Client{},
	}, nil
}

// Name returns the provider name
func (g *GeminiClient) Name() string { return ProviderGemini }

type geminiFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"file_data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  map[string]interface{} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Transcribe uploads the clip, waits for it to become active and asks for segments
func (g *GeminiClient) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	file, err := g.upload(ctx, req.MediaPath, "video/mp4")
	if err != nil {
		return nil, err
	}
	defer g.deleteFile(context.WithoutCancel(ctx), file.Name)

	if file, err = g.waitActive(ctx, file); err != nil {
		return nil, err
	}

	system, user := TranscriptionPrompt(req.Duration)
	text, err := g.generate(ctx, system, []geminiPart{
		{FileData: &geminiFileData{MimeType: file.MimeType, FileURI: file.URI}},
		{Text: user},
	})
	if err != nil {
		return nil, err
	}

	segments, err := ParseTranscription(text, req.Duration)
	if err != nil {
		return nil, err
	}
	return &TranscribeResult{Segments: segments, Model: g.model}, nil
}

// Synthesize asks for timeline cards from observations
func (g *GeminiClient) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	system, user := SynthesisPrompt(req)
	text, err := g.generate(ctx, system, []geminiPart{{Text: user}})
	if err != nil {
		return nil, err
	}
	cards, err := ParseCards(text)
	if err != nil {
		return nil, err
	}
	return &SynthesisResult{Cards: cards, Model: g.model}, nil
}

// upload runs the two-step resumable upload protocol
func (g *GeminiClient) upload(ctx context.Context, path, mimeType string) (*geminiFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}

	meta, _ := json.Marshal(map[string]interface{}{"file": map[string]string{"display_name": "batch-clip"}})
	start, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/upload/v1beta/files", bytes.NewReader(meta))
	if err != nil {
		return nil, err
	}
	start.Header.Set("x-goog-api-key", g.apiKey)
	start.Header.Set("Content-Type", "application/json")
	start.Header.Set("X-Goog-Upload-Protocol", "resumable")
	start.Header.Set("X-Goog-Upload-Command", "start")
	start.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	start.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := g.client.Do(start)
	if err != nil {
		return nil, fmt.Errorf("gemini upload start failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, statusError(ProviderGemini, resp)
	}
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return nil, malformed("gemini upload start returned no upload URL")
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	put.Header.Set("x-goog-api-key", g.apiKey)
	put.Header.Set("X-Goog-Upload-Offset", "0")
	put.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	put.ContentLength = int64(len(data))

	var out struct {
		File geminiFile `json:"file"`
	}
	if err := g.do(put, &out); err != nil {
		return nil, err
	}
	if out.File.Name == "" {
		return nil, malformed("gemini upload returned no file name")
	}
	if out.File.MimeType == "" {
		out.File.MimeType = mimeType
	}
	return &out.File, nil
}

// waitActive polls the uploaded file until the service has finished processing it
func (g *GeminiClient) waitActive(ctx context.Context, file *geminiFile) (*geminiFile, error) {
	if file.State == "ACTIVE" {
		return file, nil
	}
	if g.readyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.readyTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gemini file %s not ready: %w", file.Name, ctx.Err())
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1beta/"+file.Name, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-goog-api-key", g.apiKey)

		var current geminiFile
		if err := g.do(req, &current); err != nil {
			return nil, err
		}
		switch current.State {
		case "ACTIVE":
			if current.MimeType == "" {
				current.MimeType = file.MimeType
			}
			return &current, nil
		case "FAILED":
			msg := "processing failed"
			if current.Error != nil {
				msg = current.Error.Message
			}
			return nil, fmt.Errorf("gemini file %s: %s", file.Name, msg)
		}
	}
}

func (g *GeminiClient) generate(ctx context.Context, system string, parts []geminiPart) (string, error) {
	body, err := json.Marshal(geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: map[string]interface{}{
			"temperature":      0.3,
			"responseMimeType": "application/json",
		},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var out geminiResponse
	if err := g.do(req, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 {
		return "", malformed("gemini returned no candidates")
	}

	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return "", malformed("gemini returned empty content (finish reason %s)", out.Candidates[0].FinishReason)
	}
	return text.String(), nil
}

func (g *GeminiClient) deleteFile(ctx context.Context, name string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.baseURL+"/v1beta/"+name, nil)
	if err != nil {
		return
	}
	req.Header.Set("x-goog-api-key", g.apiKey)
	if resp, err := g.client.Do(req); err == nil {
		resp.Body.Close()
	}
}

func (g *GeminiClient) do(req *http.Request, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(ProviderGemini, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformed("gemini response: %v", err)
	}
	return nil
}
