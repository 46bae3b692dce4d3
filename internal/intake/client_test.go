package intake

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SubmitEncodesRepeatedFilesField(t *testing.T) {
	type part struct {
		name, contentType, body string
	}
	var got []part

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ExtractPath, r.URL.Path)

		mr, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, FilesField, p.FormName())
			b, _ := io.ReadAll(p)
			got = append(got, part{p.FileName(), p.Header.Get("Content-Type"), string(b)})
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"drive_url":"https://x","filename":"f.pdf","error_message":null}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/"}, nil)
	resp, err := c.Submit(context.Background(), []File{
		NewBytesFile("a.pdf", []byte("pdf-bytes")),
		NewBytesFile(`請求書 "1".PNG`, []byte("png-bytes")),
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "https://x", *resp.DriveURL)
	assert.Equal(t, "f.pdf", *resp.Filename)
	assert.Nil(t, resp.ErrorMessage)

	require.Len(t, got, 2)
	assert.Equal(t, part{"a.pdf", "application/pdf", "pdf-bytes"}, got[0])
	assert.Equal(t, `請求書 "1".PNG`, got[1].name)
	assert.Equal(t, "image/png", got[1].contentType)
	assert.Equal(t, "png-bytes", got[1].body)
}

func TestClient_SubmitClassifiesResponses(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransport bool
		wantSuccess   bool
		wantMessage   string
	}{
		{name: "application failure", status: 200, body: `{"success":false,"error_message":"bad input"}`, wantMessage: "bad input"},
		{name: "failure with null fields", status: 200, body: `{"success":false,"drive_url":null,"filename":null,"error_message":"x"}`, wantMessage: "x"},
		{name: "success", status: 200, body: `{"success":true,"drive_url":"u","filename":"f"}`, wantSuccess: true},
		{name: "server error", status: 500, body: `{"success":false,"error_message":"boom"}`, wantTransport: true},
		{name: "not json", status: 200, body: `<html>gateway</html>`, wantTransport: true},
		{name: "missing success", status: 200, body: `{"drive_url":"u"}`, wantTransport: true},
		{name: "success without link", status: 200, body: `{"success":true,"filename":"f"}`, wantTransport: true},
		{name: "failure without message", status: 200, body: `{"success":false}`, wantTransport: true},
		{name: "wrong type", status: 200, body: `{"success":"yes"}`, wantTransport: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL}, nil)
			resp, err := c.Submit(context.Background(), []File{NewBytesFile("a.pdf", nil)})
			if tt.wantTransport {
				var te *TransportError
				require.ErrorAs(t, err, &te)
				if tt.status != 200 {
					assert.Equal(t, tt.status, te.Status)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			if tt.wantMessage != "" {
				require.NotNil(t, resp.ErrorMessage)
				assert.Equal(t, tt.wantMessage, *resp.ErrorMessage)
			}
		})
	}
}

func TestClient_SubmitNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second}, nil)
	_, err := c.Submit(context.Background(), []File{NewBytesFile("a.pdf", nil)})

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.Status)
}

func TestWidgetWithClient_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error_message":"bad input"}`))
	}))
	defer srv.Close()

	r := newFakeRenderer()
	w := New(r, NewClient(ClientConfig{BaseURL: srv.URL}, nil))
	require.NoError(t, w.AddFiles(NewBytesFile("a.pdf", []byte("x"))))

	err := w.Submit(context.Background())

	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "bad input", r.errorText)
	assert.Equal(t, []Panel{PanelError}, r.visiblePanels())
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType("x.PDF"))
	assert.Equal(t, "image/webp", ContentType("x.webp"))
	assert.Equal(t, "application/octet-stream", ContentType("noext"))
}
