package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/llm"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4.1"
)

// ErrNoAPIKey is returned when Analyze is called without a key.
var ErrNoAPIKey = errors.New("openai api key is empty")

// Config for the OpenAI client.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client turns OCR text into markdown table rows with chat/completions.
type Client struct {
	cfg       Config
	transport *llm.Transport
	log       *slog.Logger
}

var completionSchema = llm.MustCompileSchema("chat_completion.json", map[string]any{
	"type":     "object",
	"required": []string{"choices"},
	"properties": map[string]any{
		"choices": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"message"},
				"properties": map[string]any{
					"message": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"content": map[string]any{"type": []string{"string", "null"}},
						},
					},
				},
			},
		},
	},
})

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:       cfg,
		transport: llm.NewTransport(client, llm.BreakerConfig{Name: "openai"}, logger),
		log:       logger,
	}
}

// Analyze sends text with the company's system prompt and returns the model's
// markdown rows.
func (c *Client) Analyze(ctx context.Context, text string, company constants.Company, apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrNoAPIKey
	}
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.analyze.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"company", company,
		"text_len", len(text),
	)

	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]any{
			{"role": "system", "content": llm.AnalysisPrompt(company)},
			{"role": "user", "content": text},
		},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.transport.PostJSON(ctx, endpoint, body, map[string]string{"Authorization": "Bearer " + apiKey})
	if err != nil {
		c.log.Error("llm.analyze.http_error",
			"req_id", rid, "company", company, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("analyze %s: %w", company, err)
	}

	if err := llm.ValidateJSON(completionSchema, raw); err != nil {
		c.log.Error("llm.analyze.bad_shape", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("analyze %s: %w", company, err)
	}
	var cc struct {
		Choices []struct {
			Message struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	var content string
	if p := cc.Choices[0].Message.Content; p != nil {
		content = strings.TrimSpace(*p)
	}

	c.log.Info("llm.analyze.ok",
		"req_id", rid,
		"company", company,
		"rows", strings.Count(content, "\n")+1,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
