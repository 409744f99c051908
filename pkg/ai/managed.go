package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/johnquangdev/timeline-assistant/pkg/config"
)

// ManagedClient forwards clips and prompts to a managed analysis backend
type ManagedClient struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewManagedClient creates a managed provider. Base URL and token are required.
func NewManagedClient(cfg *config.LLMConfig) (*ManagedClient, error) {
	if cfg.Managed.BaseURL == "" || cfg.Managed.Token == "" {
		return nil, fmt.Errorf("%w: LLM_MANAGED_BASE_URL and LLM_MANAGED_TOKEN are required", ErrNoProvider)
	}
	return &ManagedClient{
		token:   cfg.Managed.Token,
		baseURL: strings.TrimRight(cfg.Managed.BaseURL, "/"),
		client:  &http.Client{},
	}, nil
}

// Name returns the provider name
func (m *ManagedClient) Name() string { return ProviderManaged }

type managedSynthesisRequest struct {
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

// Transcribe uploads the clip as multipart form data
func (m *ManagedClient) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	f, err := os.Open(req.MediaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(req.MediaPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to buffer media: %w", err)
	}
	system, user := TranscriptionPrompt(req.Duration)
	fields := map[string]string{
		"duration_seconds": strconv.FormatFloat(req.Duration.Seconds(), 'f', 0, 64),
		"origin":           req.OriginTime.UTC().Format(time.RFC3339),
		"system":           system,
		"prompt":           user,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	raw, model, err := m.post(ctx, "/v1/transcribe", w.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	segments, err := ParseTranscription(raw, req.Duration)
	if err != nil {
		return nil, err
	}
	return &TranscribeResult{Segments: segments, Model: model}, nil
}

// Synthesize sends the rendered prompt and receives cards
func (m *ManagedClient) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	system, user := SynthesisPrompt(req)
	b, err := json.Marshal(managedSynthesisRequest{System: system, Prompt: user})
	if err != nil {
		return nil, err
	}

	raw, model, err := m.post(ctx, "/v1/synthesize", "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	cards, err := ParseCards(raw)
	if err != nil {
		return nil, err
	}
	return &SynthesisResult{Cards: cards, Model: model}, nil
}

// post returns the raw response body and the model reported by the backend
func (m *ManagedClient) post(ctx context.Context, path, contentType string, body io.Reader) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, body)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", contentType)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("managed backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", statusError(ProviderManaged, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read managed backend response: %w", err)
	}

	var meta struct {
		Model string `json:"model"`
	}
	_ = json.Unmarshal(data, &meta)
	if meta.Model == "" {
		meta.Model = ProviderManaged
	}
	return string(data), meta.Model, nil
}
