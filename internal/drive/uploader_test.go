package drive

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGenerateFilename(t *testing.T) {
	at := time.Date(2025, 1, 31, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "明細書EXCEL出力_20250201_000405.xlsx", GenerateFilename("明細書EXCEL出力", at))

	u := NewUploader(Config{Now: func() time.Time { return at }}, discard())
	assert.Equal(t, "out_20250201_000405.xlsx", u.GenerateFilename("out"))
}

func TestUpload(t *testing.T) {
	var (
		meta    fileMetadata
		content []byte
		query   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !assert.NoError(t, err) || !assert.Equal(t, "multipart/related", mt) {
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if !assert.NoError(t, err) {
			return
		}
		assert.NoError(t, json.NewDecoder(part).Decode(&meta))
		part, err = mr.NextPart()
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, XLSXMimeType, part.Header.Get("Content-Type"))
		content, _ = io.ReadAll(part)
		_, _ = w.Write([]byte(`{"id":"f1","webViewLink":"https://drive.google.com/file/d/f1/view"}`))
	}))
	defer srv.Close()

	u := NewUploader(Config{UploadURL: srv.URL, HTTPClient: srv.Client()}, discard())
	link, err := u.Upload(t.Context(), []byte("xlsx-bytes"), "folder-1", "out.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.google.com/file/d/f1/view", link)
	assert.Equal(t, "uploadType=multipart&fields=id,webViewLink", query)
	assert.Equal(t, "out.xlsx", meta.Name)
	assert.Equal(t, []string{"folder-1"}, meta.Parents)
	assert.Equal(t, []byte("xlsx-bytes"), content)
}

func TestUpload_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()
	u := NewUploader(Config{UploadURL: srv.URL, HTTPClient: srv.Client()}, discard())

	_, err := u.Upload(t.Context(), []byte("x"), "", "out.xlsx")
	assert.ErrorIs(t, err, ErrNoFolder)

	_, err = u.Upload(t.Context(), []byte("x"), "folder", "out.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
