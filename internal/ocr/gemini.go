package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/bill-extractor/internal/llm"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash"
)

var ErrNoAPIKey = errors.New("google api key is empty")

type GeminiConfig struct {
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// GeminiExtractor sends documents inline to generateContent and returns the model's transcription.
type GeminiExtractor struct {
	cfg       GeminiConfig
	transport *llm.Transport
	logger    *slog.Logger
}

var generateSchema = llm.MustCompileSchema("generate_content.json", map[string]any{
	"type":     "object",
	"required": []string{"candidates"},
	"properties": map[string]any{
		"candidates": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"parts": map[string]any{
								"type": "array",
								"items": map[string]any{
									"type": "object",
									"properties": map[string]any{
										"text": map[string]any{"type": "string"},
									},
								},
							},
						},
					},
				},
			},
		},
	},
})

func NewGeminiExtractor(cfg GeminiConfig, logger *slog.Logger) *GeminiExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &GeminiExtractor{
		cfg:       cfg,
		transport: llm.NewTransport(client, llm.BreakerConfig{Name: "gemini"}, logger),
		logger:    logger,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

func (g *GeminiExtractor) Extract(ctx context.Context, doc Document, apiKey string) (string, error) {
	return g.ExtractAll(ctx, []Document{doc}, apiKey)
}

// ExtractAll sends every document as one inline part of a single
// generateContent call, in the given order, and returns one transcription.
func (g *GeminiExtractor) ExtractAll(ctx context.Context, docs []Document, apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrNoAPIKey
	}
	start := time.Now()

	parts := make([]geminiPart, 0, len(docs))
	names := make([]string, 0, len(docs))
	size := 0
	for _, doc := range docs {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: MimeType(doc.Name),
			Data:     base64.StdEncoding.EncodeToString(doc.Content),
		}})
		names = append(names, doc.Name)
		size += len(doc.Content)
	}
	label := strings.Join(names, ",")

	body := map[string]any{
		"system_instruction": geminiContent{Parts: []geminiPart{{Text: llm.OCRSystemPrompt}}},
		"contents":           []geminiContent{{Role: "user", Parts: parts}},
		"generationConfig":   map[string]any{"temperature": g.cfg.Temperature},
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.Model)

	raw, err := g.transport.PostJSON(ctx, endpoint, body, map[string]string{"x-goog-api-key": apiKey})
	if err != nil {
		g.logger.Error("ocr.gemini.http_error", "names", label, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("gemini ocr %q: %w", label, err)
	}
	if err := llm.ValidateJSON(generateSchema, raw); err != nil {
		g.logger.Error("ocr.gemini.bad_shape", "names", label, "error", err)
		return "", fmt.Errorf("gemini ocr %q: %w", label, err)
	}
	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	g.logger.Info("ocr.gemini.ok",
		"names", label,
		"documents", len(docs),
		"bytes", size,
		"chars", len([]rune(text)),
		"finish", resp.Candidates[0].FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
