package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/entity"
)

// ExtractPath is the endpoint the selection is posted to.
const ExtractPath = "/extract"

// FilesField is the repeated multipart field name.
const FilesField = "files"

// responseSchema describes the only accepted /extract body.
const responseSchema = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success":       {"type": "boolean"},
    "drive_url":     {"type": ["string", "null"]},
    "filename":      {"type": ["string", "null"]},
    "error_message": {"type": ["string", "null"]}
  },
  "if":   {"properties": {"success": {"const": true}}},
  "then": {"required": ["drive_url", "filename"], "properties": {"drive_url": {"type": "string"}, "filename": {"type": "string"}}},
  "else": {"required": ["error_message"], "properties": {"error_message": {"type": "string"}}}
}`

var compiledResponseSchema = jsonschema.MustCompileString("extract_response.json", responseSchema)

type ClientConfig struct {
	BaseURL    string // e.g. http://localhost:8080; empty means same origin
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client posts selections to the extraction server. It implements Submitter.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 5 * time.Minute
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		logger:  logger,
	}
}

// Submit sends files as one multipart request and decodes the JSON answer.
// Every failure other than a well-formed response is a *TransportError.
func (c *Client) Submit(ctx context.Context, files []File) (entity.ExtractResponse, error) {
	reqID := uuid.New().String()
	start := time.Now()

	body, contentType, err := encodeFiles(files)
	if err != nil {
		c.logger.Error("intake.http.encode_error", "req_id", reqID, "error", err)
		return entity.ExtractResponse{}, &TransportError{Err: err}
	}

	url := c.baseURL + ExtractPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return entity.ExtractResponse{}, &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	c.logger.Info("intake.http.request",
		"req_id", reqID,
		"url", url,
		"files", len(files),
		"content_length", body.Len(),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("intake.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.ExtractResponse{}, &TransportError{Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("intake.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	c.logger.Info("intake.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return entity.ExtractResponse{}, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode/100 != 2 {
		return entity.ExtractResponse{}, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("non-2xx status: %d", resp.StatusCode)}
	}

	out, err := DecodeResponse(raw)
	if err != nil {
		c.logger.Warn("intake.http.decode_error", "req_id", reqID, "error", err)
		return entity.ExtractResponse{}, &TransportError{Status: resp.StatusCode, Err: err}
	}
	return out, nil
}

// DecodeResponse parses and shape-checks an /extract body.
func DecodeResponse(raw []byte) (entity.ExtractResponse, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return entity.ExtractResponse{}, fmt.Errorf("decode json: %w", err)
	}
	if err := compiledResponseSchema.Validate(v); err != nil {
		return entity.ExtractResponse{}, fmt.Errorf("response does not match schema: %w", err)
	}
	var out entity.ExtractResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return entity.ExtractResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeFiles(files []File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			FilesField, quoteEscaper.Replace(f.Name())))
		h.Set("Content-Type", ContentType(f.Name()))
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", f.Name(), err)
		}
		if err := copyFile(part, f); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, mw.FormDataContentType(), nil
}

func copyFile(dst io.Writer, f File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer rc.Close()
	if _, err := io.Copy(dst, rc); err != nil {
		return fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return nil
}

// ContentType guesses the MIME type of name, falling back to the built-in table.
func ContentType(name string) string {
	ext := constants.ExtOf(name)
	if ext == "" {
		return "application/octet-stream"
	}
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		return mt
	}
	return constants.FallbackMIME(ext)
}
