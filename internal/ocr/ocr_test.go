package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", MimeType("bill.PDF"))
	assert.Equal(t, "image/jpeg", MimeType("scan.jpg"))
	assert.Equal(t, "image/webp", MimeType("x.webp"))
	assert.Equal(t, "application/octet-stream", MimeType("noext"))
}

func TestNormalize(t *testing.T) {
	in := "NTT東日本\r\n\tご請求額   1,800円  \n-----\n\n\n\n03-1234-5678\n"
	assert.Equal(t, "NTT東日本\n ご請求額 1,800円\n\n03-1234-5678", Normalize(in))
	assert.Equal(t, "", Normalize(""))
}

func TestGeminiExtractor(t *testing.T) {
	var req struct {
		SystemInstruction geminiContent   `json:"system_instruction"`
		Contents          []geminiContent `json:"contents"`
		GenerationConfig  struct {
			Temperature float32 `json:"temperature"`
		} `json:"generationConfig"`
	}
	var path, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"NTT東日本\n"},{"text":"ご請求額"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	g := NewGeminiExtractor(GeminiConfig{BaseURL: srv.URL}, discard())
	text, err := g.Extract(t.Context(), Document{Name: "a.png", Content: []byte("png")}, "g-key")
	require.NoError(t, err)
	assert.Equal(t, "NTT東日本\nご請求額", text)

	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", path)
	assert.Equal(t, "g-key", key)
	assert.InDelta(t, 0.7, req.GenerationConfig.Temperature, 0.001)
	require.Len(t, req.Contents, 1)
	require.Len(t, req.Contents[0].Parts, 1)
	inline := req.Contents[0].Parts[0].InlineData
	require.NotNil(t, inline)
	assert.Equal(t, "image/png", inline.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), inline.Data)
	require.Len(t, req.SystemInstruction.Parts, 1)
	assert.NotEmpty(t, req.SystemInstruction.Parts[0].Text)
}

func TestGeminiExtractor_ExtractAllSendsOneRequest(t *testing.T) {
	var req struct {
		Contents []geminiContent `json:"contents"`
	}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"NTT東日本 ページ1\n通話明細"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGeminiExtractor(GeminiConfig{BaseURL: srv.URL}, discard())
	text, err := g.ExtractAll(t.Context(), []Document{
		{Name: "p1.pdf", Content: []byte("one")},
		{Name: "p2.jpg", Content: []byte("two")},
	}, "g-key")
	require.NoError(t, err)
	assert.Equal(t, "NTT東日本 ページ1\n通話明細", text)
	assert.Equal(t, 1, calls)

	require.Len(t, req.Contents, 1)
	parts := req.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "application/pdf", parts[0].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("one")), parts[0].InlineData.Data)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("two")), parts[1].InlineData.Data)
}

func TestGeminiExtractor_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()
	g := NewGeminiExtractor(GeminiConfig{BaseURL: srv.URL}, discard())

	_, err := g.Extract(t.Context(), Document{Name: "a.pdf"}, "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = g.Extract(t.Context(), Document{Name: "a.pdf"}, "k")
	assert.Error(t, err)
}

type stubRunner struct {
	calls []string
	run   func(name string, args []string) ([]byte, error)
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, name)
	out, err := s.run(name, args)
	return out, nil, err
}

func TestLocalExtractor_PDFTextLayer(t *testing.T) {
	r := &stubRunner{run: func(name string, args []string) ([]byte, error) {
		return []byte("ソフトバンク株式会社 ご請求書 2025年7月分"), nil
	}}
	e := NewLocalExtractor(LocalConfig{}, discard()).WithRunner(r)

	text, err := e.Extract(t.Context(), Document{Name: "bill.pdf", Content: []byte("%PDF")}, "")
	require.NoError(t, err)
	assert.Contains(t, text, "ソフトバンク")
	assert.Equal(t, []string{"pdftotext"}, r.calls)
}

func TestLocalExtractor_ScannedPDFFallsBackToOCR(t *testing.T) {
	r := &stubRunner{run: func(name string, args []string) ([]byte, error) {
		switch name {
		case "pdftotext":
			return []byte("  "), nil
		case "pdftoppm":
			prefix := args[len(args)-1]
			for _, p := range []string{"-1.png", "-2.png"} {
				if err := os.WriteFile(prefix+p, []byte("img"), 0o600); err != nil {
					return nil, err
				}
			}
			return nil, nil
		default:
			return []byte("page " + args[0][strings.LastIndex(args[0], "-")+1:]), nil
		}
	}}
	e := NewLocalExtractor(LocalConfig{}, discard()).WithRunner(r)

	text, err := e.Extract(t.Context(), Document{Name: "scan.pdf"}, "")
	require.NoError(t, err)
	assert.Equal(t, "page 1.png\n\npage 2.png", text)
	assert.Equal(t, []string{"pdftotext", "pdftoppm", "tesseract", "tesseract"}, r.calls)
}

func TestLocalExtractor_Image(t *testing.T) {
	var args []string
	r := &stubRunner{run: func(name string, a []string) ([]byte, error) {
		args = a
		return []byte("大塚商会"), nil
	}}
	e := NewLocalExtractor(LocalConfig{TessdataDir: "/td"}, discard()).WithRunner(r)

	text, err := e.Extract(t.Context(), Document{Name: "a.JPG"}, "")
	require.NoError(t, err)
	assert.Equal(t, "大塚商会", text)
	assert.Equal(t, []string{"stdout", "-l", "jpn+eng", "--tessdata-dir", "/td"}, args[1:])
}

func TestLocalExtractor_Errors(t *testing.T) {
	r := &stubRunner{run: func(string, []string) ([]byte, error) { return nil, errors.New("exit 1") }}
	e := NewLocalExtractor(LocalConfig{}, discard()).WithRunner(r)

	_, err := e.Extract(t.Context(), Document{Name: "a.svg"}, "")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = e.Extract(t.Context(), Document{Name: "a.exe"}, "")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = e.Extract(t.Context(), Document{Name: "a.png"}, "")
	assert.ErrorContains(t, err, "tesseract")
}
