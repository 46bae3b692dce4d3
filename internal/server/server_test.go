package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bill-extractor/internal/admin"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/entity"
	"github.com/joseph-ayodele/bill-extractor/internal/export"
	"github.com/joseph-ayodele/bill-extractor/internal/ingest"
	"github.com/joseph-ayodele/bill-extractor/internal/intake"
	"github.com/joseph-ayodele/bill-extractor/internal/pipeline"
	"github.com/joseph-ayodele/bill-extractor/internal/repository"
	"github.com/joseph-ayodele/bill-extractor/internal/secrets"
)

type fakeQueue struct {
	mu   sync.Mutex
	reqs []pipeline.Request
	res  pipeline.Result
	err  error
}

func (q *fakeQueue) Submit(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	if q.err != nil {
		return pipeline.Result{}, q.err
	}
	res := q.res
	res.JobID = req.JobID
	return res, nil
}

func (q *fakeQueue) fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *fakeQueue) calls() []pipeline.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]pipeline.Request(nil), q.reqs...)
}

type fixture struct {
	e       *echo.Echo
	queue   *fakeQueue
	secrets *secrets.Manager
	jobs    repository.ExtractJobRepository
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T, limits Limits) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := discard()

	db, err := repository.Open(ctx, repository.Config{Driver: repository.DriverSQLite, DSN: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(logger) })
	require.NoError(t, db.Migrate(ctx, logger))

	jobs := repository.NewExtractJobRepository(db, logger)
	files := repository.NewUploadFileRepository(db, logger)
	sm := secrets.NewManager(common.SecretsConfig{
		CacheTTL:        time.Minute,
		IDGoogleKey:     "google-key",
		IDOpenAIKey:     "openai-key",
		IDAdminPassword: "admin-password",
		IDDriveFolder:   "drive-folder",
	}, "default-folder", repository.NewSecretRepository(db, logger), logger)

	q := &fakeQueue{res: pipeline.Result{Filename: "明細書EXCEL出力_20250101_090000.xlsx", DriveURL: "https://drive.google.com/file/d/abc/view"}}
	if limits.MaxFileCount == 0 {
		limits.MaxFileCount = 3
	}
	e := New(&Dependencies{
		Ingest:   ingest.NewService(jobs, files, logger),
		Queue:    q,
		Secrets:  sm,
		Auth:     admin.New(sm, "test-session-key", time.Hour, logger),
		Export:   export.NewService(jobs, logger),
		Limits:   limits,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	})
	return &fixture{e: e, queue: q, secrets: sm, jobs: jobs}
}

func (f *fixture) setKeys(t *testing.T) {
	t.Helper()
	require.NoError(t, f.secrets.Set(context.Background(), "google-key", "AIza-google-1234"))
	require.NoError(t, f.secrets.Set(context.Background(), "openai-key", "sk-openai-5678"))
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, names ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, n := range names {
		w, err := mw.CreateFormFile("files", n)
		require.NoError(t, err)
		_, _ = w.Write([]byte("content of " + n))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/extract", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	return req
}

func formRequest(method, target string, values url.Values, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func decodeExtract(t *testing.T, rec *httptest.ResponseRecorder) entity.ExtractResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var resp entity.ExtractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Limits{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t, Limits{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, id := range []string{"drop-zone", "file-input", "file-list", "submit-btn", "upload-form", "upload-area",
		"processing", "result", "error", "drive-link", "result-filename", "error-message"} {
		assert.Contains(t, body, `id="`+id+`"`)
	}
	assert.Contains(t, body, `<ul id="file-list"`)
	assert.Contains(t, body, `data-action="reset"`)
	assert.Contains(t, body, `accept=".gif,.jpeg,.jpg,.pdf,.png,.svg,.webp"`)
	assert.Contains(t, body, "最大3枚")
}

func TestStaticAssets(t *testing.T) {
	f := newFixture(t, Limits{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/static/loader.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "intake.wasm")
}

func TestExtract_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		keys    bool
		wantMsg string
	}{
		{"no files", nil, true, "ファイルが選択されていません。"},
		{"too many", []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}, true, "ファイルは同時に3枚までです。"},
		{"unsupported", []string{"a.pdf", "notes.txt"}, true, "サポートされていないファイル形式です: notes.txt"},
		{"keys missing", []string{"a.pdf"}, false, MsgKeysMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Limits{})
			if tt.keys {
				f.setKeys(t)
			}
			resp := decodeExtract(t, f.do(uploadRequest(t, tt.files...)))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMsg, entity.StrOrEmpty(resp.ErrorMessage))
			assert.Nil(t, resp.DriveURL)
			assert.Empty(t, f.queue.calls())
		})
	}
}

func TestExtract_Success(t *testing.T) {
	f := newFixture(t, Limits{})
	f.setKeys(t)

	rec := f.do(uploadRequest(t, "ntt.pdf", "scan.PNG"))
	resp := decodeExtract(t, rec)
	require.True(t, resp.Success)
	assert.Equal(t, "https://drive.google.com/file/d/abc/view", entity.StrOrEmpty(resp.DriveURL))
	assert.Equal(t, "明細書EXCEL出力_20250101_090000.xlsx", entity.StrOrEmpty(resp.Filename))
	assert.Nil(t, resp.ErrorMessage)

	calls := f.queue.calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, pipeline.Keys{GoogleAPIKey: "AIza-google-1234", OpenAIAPIKey: "sk-openai-5678"}, req.Keys)
	assert.Equal(t, "default-folder", req.FolderID)
	require.Len(t, req.Files, 2)
	assert.Equal(t, "ntt.pdf", req.Files[0].Name)
	assert.Equal(t, "scan.PNG", req.Files[1].Name)
	assert.Equal(t, []byte("content of ntt.pdf"), req.Files[0].Content)

	job, err := f.jobs.Get(context.Background(), req.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.FileCount)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), job.RequestID)
}

func TestExtract_UsesStoredFolder(t *testing.T) {
	f := newFixture(t, Limits{})
	f.setKeys(t)
	require.NoError(t, f.secrets.SetDriveFolderID(context.Background(), " folder-xyz "))

	decodeExtract(t, f.do(uploadRequest(t, "a.pdf")))
	calls := f.queue.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "folder-xyz", calls[0].FolderID)
}

func TestExtract_PipelineFailure(t *testing.T) {
	f := newFixture(t, Limits{})
	f.setKeys(t)
	f.queue.fail(&pipeline.StageError{Stage: pipeline.StageUpload, Err: errors.New("drive down")})

	resp := decodeExtract(t, f.do(uploadRequest(t, "a.pdf")))
	assert.False(t, resp.Success)
	assert.Equal(t, pipeline.ErrorMessage, entity.StrOrEmpty(resp.ErrorMessage))
	assert.NotContains(t, entity.StrOrEmpty(resp.ErrorMessage), "drive down")
}

func TestExtract_RateLimited(t *testing.T) {
	f := newFixture(t, Limits{ExtractRate: 0.001, ExtractBurst: 1})
	f.setKeys(t)

	first := f.do(uploadRequest(t, "a.pdf"))
	assert.Equal(t, http.StatusOK, first.Code)

	second := f.do(uploadRequest(t, "a.pdf"))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &apiErr))
	assert.Equal(t, "RATE_LIMITED", apiErr.Code)
	assert.Len(t, f.queue.calls(), 1)
}

func TestExtract_BodyTooLarge(t *testing.T) {
	f := newFixture(t, Limits{MaxUploadBytes: 1 << 10})
	f.setKeys(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	w, err := mw.CreateFormFile("files", "big.pdf")
	require.NoError(t, err)
	_, _ = w.Write(bytes.Repeat([]byte("x"), 4<<10))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/extract", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())

	rec := f.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, f.queue.calls())
}

func TestAdmin_RequiresSession(t *testing.T) {
	f := newFixture(t, Limits{})
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/admin", nil),
		httptest.NewRequest(http.MethodGet, "/admin/jobs.xlsx", nil),
		formRequest(http.MethodPost, "/admin/api/keys", url.Values{"key_type": {"google"}, "key_value": {"x"}}),
		formRequest(http.MethodPost, "/admin/drive-folder", url.Values{"folder_id": {"x"}}),
	} {
		rec := f.do(req)
		assert.Equal(t, http.StatusSeeOther, rec.Code, req.URL.Path)
		assert.Equal(t, "/admin/login", rec.Header().Get(echo.HeaderLocation), req.URL.Path)
	}
	v, err := f.secrets.GoogleAPIKey(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v)
}

func login(t *testing.T, f *fixture) *http.Cookie {
	t.Helper()
	require.NoError(t, f.secrets.Set(context.Background(), "admin-password", "hunter2"))
	rec := f.do(formRequest(http.MethodPost, "/admin/login", url.Values{"password": {"hunter2"}}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/admin", rec.Header().Get(echo.HeaderLocation))
	for _, c := range rec.Result().Cookies() {
		if c.Name == admin.CookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestAdmin_LoginRejectsWrongPassword(t *testing.T) {
	f := newFixture(t, Limits{})
	require.NoError(t, f.secrets.Set(context.Background(), "admin-password", "hunter2"))

	rec := f.do(formRequest(http.MethodPost, "/admin/login", url.Values{"password": {"nope"}}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgBadPassword)
	assert.Empty(t, rec.Result().Cookies())
}

func TestAdmin_LoginPageRedirectsWhenSignedIn(t *testing.T) {
	f := newFixture(t, Limits{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/admin/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="password"`)

	cookie := login(t, f)
	req := httptest.NewRequest(http.MethodGet, "/admin/login", nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get(echo.HeaderLocation))
}

func TestAdmin_ManageKeysAndFolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Limits{})
	cookie := login(t, f)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(cookie)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "未設定")
	assert.Contains(t, rec.Body.String(), "default-folder")

	rec = f.do(formRequest(http.MethodPost, "/admin/api/keys", url.Values{"key_type": {"google"}, "key_value": {"  AIza-new-4321 "}}, cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgKeyUpdated)
	assert.Contains(t, rec.Body.String(), "...4321")
	v, err := f.secrets.GoogleAPIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AIza-new-4321", v)

	rec = f.do(formRequest(http.MethodPost, "/admin/api/keys", url.Values{"key_type": {"azure"}, "key_value": {"x"}}, cookie))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get(echo.HeaderLocation))

	rec = f.do(formRequest(http.MethodPost, "/admin/drive-folder", url.Values{"folder_id": {" new-folder "}}, cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgFolderUpdated)
	folder, err := f.secrets.DriveFolderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-folder", folder)
}

func TestAdmin_ExportJobs(t *testing.T) {
	f := newFixture(t, Limits{})
	_, err := f.jobs.Start(context.Background(), "req-1", 1)
	require.NoError(t, err)
	cookie := login(t, f)

	req := httptest.NewRequest(http.MethodGet, "/admin/jobs.xlsx", nil)
	req.AddCookie(cookie)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "extract_jobs_")
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestAdmin_Logout(t *testing.T) {
	f := newFixture(t, Limits{})
	rec := f.do(formRequest(http.MethodPost, "/admin/logout", url.Values{}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login", rec.Header().Get(echo.HeaderLocation))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, admin.CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Limits{})
	f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bill_extractor_http_requests_total{code="200",method="GET",route="/health"} 1`)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "100M", bodyLimit(0))
	assert.Equal(t, "2G", formatBytes(2<<30))
	assert.Equal(t, "1K", formatBytes(1<<10))
	assert.Equal(t, "1500B", formatBytes(1500))
}

func TestExtract_IntakeClientRoundTrip(t *testing.T) {
	f := newFixture(t, Limits{})
	f.setKeys(t)
	srv := httptest.NewServer(f.e)
	defer srv.Close()

	client := intake.NewClient(intake.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, discard())
	resp, err := client.Submit(t.Context(), []intake.File{
		intake.NewBytesFile("ntt.pdf", []byte("%PDF-1.4")),
		intake.NewBytesFile("scan.jpg", []byte{0xff, 0xd8}),
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "明細書EXCEL出力_20250101_090000.xlsx", entity.StrOrEmpty(resp.Filename))

	calls := f.queue.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Files, 2)
	assert.Equal(t, []byte{0xff, 0xd8}, calls[0].Files[1].Content)

	f.queue.fail(errors.New("boom"))
	resp, err = client.Submit(t.Context(), []intake.File{intake.NewBytesFile("a.pdf", nil)})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, pipeline.ErrorMessage, entity.StrOrEmpty(resp.ErrorMessage))
}
