// Package drive uploads generated workbooks to a Google Drive folder.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
)

const (
	// FileScope limits the credentials to files created by this application.
	FileScope = "https://www.googleapis.com/auth/drive.file"

	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files"

	XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// JST is the zone used for generated filenames.
var JST = time.FixedZone("JST", 9*60*60)

var ErrNoFolder = errors.New("drive folder id is empty")

// Config configures the uploader. HTTPClient is resolved from Application
// Default Credentials on first use when nil.
type Config struct {
	UploadURL  string
	HTTPClient *http.Client
	Timeout    time.Duration
	Now        func() time.Time
}

type Uploader struct {
	uploadURL string
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	client *http.Client
}

func NewUploader(cfg Config, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Uploader{
		uploadURL: cfg.UploadURL,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
		logger:    logger,
		client:    cfg.HTTPClient,
	}
}

// GenerateFilename returns "{base}_{YYYYMMDD_HHMMSS}.xlsx" stamped in JST.
func (u *Uploader) GenerateFilename(base string) string {
	return GenerateFilename(base, u.now())
}

func GenerateFilename(base string, at time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", base, at.In(JST).Format("20060102_150405"))
}

func (u *Uploader) httpClient(ctx context.Context) (*http.Client, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.client != nil {
		return u.client, nil
	}
	// the client outlives the request that created it
	c, err := google.DefaultClient(context.WithoutCancel(ctx), FileScope)
	if err != nil {
		return nil, fmt.Errorf("drive credentials: %w", err)
	}
	u.client = c
	return c, nil
}

type fileMetadata struct {
	Name     string   `json:"name"`
	Parents  []string `json:"parents"`
	MimeType string   `json:"mimeType"`
}

type createResponse struct {
	ID          string `json:"id"`
	WebViewLink string `json:"webViewLink"`
}

// Upload stores data as filename inside folderID and returns the file's webViewLink.
func (u *Uploader) Upload(ctx context.Context, data []byte, folderID, filename string) (string, error) {
	if strings.TrimSpace(folderID) == "" {
		return "", ErrNoFolder
	}
	client, err := u.httpClient(ctx)
	if err != nil {
		return "", err
	}

	body, contentType, err := encodeRelated(fileMetadata{Name: filename, Parents: []string{folderID}, MimeType: XLSXMimeType}, data)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	endpoint := u.uploadURL + "?uploadType=multipart&fields=id,webViewLink"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	u.logger.Info("drive.upload.request", "filename", filename, "bytes", len(data))
	resp, err := client.Do(req)
	if err != nil {
		u.logger.Error("drive.upload.error", "err", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("drive upload: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.logger.Error("drive.upload.non2xx", "status", resp.StatusCode, "body", string(raw))
		return "", fmt.Errorf("drive upload: status %d", resp.StatusCode)
	}
	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("drive upload: decode: %w", err)
	}
	u.logger.Info("drive.upload.ok", "file_id", out.ID, "elapsed_ms", time.Since(start).Milliseconds())
	return out.WebViewLink, nil
}

func encodeRelated(meta fileMetadata, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "application/json; charset=UTF-8")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(pw).Encode(meta); err != nil {
		return nil, "", fmt.Errorf("encode metadata: %w", err)
	}

	h = textproto.MIMEHeader{}
	h.Set("Content-Type", meta.MimeType)
	pw, err = mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := pw.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "multipart/related; boundary=" + mw.Boundary(), nil
}
