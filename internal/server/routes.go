// Package server is the HTTP surface of the extractor: the upload page, the
// extract endpoint and the admin console.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/bill-extractor/internal/admin"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/ingest"
	"github.com/joseph-ayodele/bill-extractor/internal/pipeline"
	"github.com/joseph-ayodele/bill-extractor/internal/secrets"
)

// Accepter records an upload as an extract job.
type Accepter interface {
	Accept(ctx context.Context, files []ingest.UploadedFile) (uuid.UUID, []pipeline.File, error)
}

// ExtractQueue runs a request through the pipeline and waits for its result.
type ExtractQueue interface {
	Submit(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// JobsExporter renders the job history workbook for the admin console.
type JobsExporter interface {
	ExportJobsXLSX(ctx context.Context, limit int) ([]byte, error)
}

// Limits bounds what a single client may send.
type Limits struct {
	MaxFileCount   int
	MaxUploadBytes int64
	ExtractRate    float64
	ExtractBurst   int
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Ingest   Accepter
	Queue    ExtractQueue
	Secrets  *secrets.Manager
	Auth     *admin.Auth
	Export   JobsExporter
	Limits   Limits
	WasmDir  string
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Handlers holds the handler groups.
type Handlers struct {
	Pages   *PageHandler
	Extract *ExtractHandler
	Admin   *AdminHandler
	Health  *HealthHandler
}

func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Pages:   &PageHandler{maxFiles: deps.Limits.MaxFileCount},
		Extract: NewExtractHandler(deps.Ingest, deps.Queue, deps.Secrets, deps.Limits.MaxFileCount, deps.Logger),
		Admin:   NewAdminHandler(deps.Auth, deps.Secrets, deps.Export, deps.Logger),
		Health:  &HealthHandler{},
	}
}

// New builds the echo instance with middleware and routes registered.
func New(deps *Dependencies) *echo.Echo {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = newTemplateRenderer()

	SetupMiddleware(e, deps)
	RegisterRoutes(e, NewHandlers(deps), deps)
	return e
}

// RegisterRoutes registers all routes on e.
func RegisterRoutes(e *echo.Echo, h *Handlers, deps *Dependencies) {
	e.GET("/", h.Pages.HandleIndex)
	e.StaticFS("/static", echo.MustSubFS(staticFS, "static"))
	if deps.WasmDir != "" {
		e.Static("/wasm", deps.WasmDir)
	}

	e.GET("/health", h.Health.HandleHealth)
	if deps.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry})))
	}

	e.POST("/extract", h.Extract.HandleExtract,
		extractRateLimiter(deps.Limits),
		middleware.BodyLimit(bodyLimit(deps.Limits.MaxUploadBytes)),
	)

	adm := e.Group("/admin")
	adm.GET("/login", h.Admin.HandleLoginPage)
	adm.POST("/login", h.Admin.HandleLogin)
	adm.POST("/logout", h.Admin.HandleLogout)

	session := h.Admin.requireSession
	adm.GET("", h.Admin.HandleDashboard, session)
	adm.GET("/", h.Admin.HandleDashboard, session)
	adm.POST("/api/keys", h.Admin.HandleUpdateKey, session)
	adm.POST("/drive-folder", h.Admin.HandleUpdateDriveFolder, session)
	adm.GET("/jobs.xlsx", h.Admin.HandleExportJobs, session)
}

// SetupMiddleware configures the error handler and the global middleware.
func SetupMiddleware(e *echo.Echo, deps *Dependencies) {
	logger := deps.Logger
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext())
	if deps.Registry != nil {
		e.Use(httpMetrics(deps.Registry))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"req_id", v.RequestID,
			}
			if v.Error != nil {
				logger.Warn("http.request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("http.request", attrs...)
			return nil
		},
	}))
}

// requestContext copies the echo request id into the request context so the
// pipeline and repositories log it.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(common.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}

func extractRateLimiter(l Limits) echo.MiddlewareFunc {
	if l.ExtractRate <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(l.ExtractRate),
		Burst:     l.ExtractBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return NewBadRequestError("client could not be identified", err)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return NewTooManyRequestsError()
		},
	})
}

// bodyLimit formats a byte count for middleware.BodyLimit.
func bodyLimit(n int64) string {
	if n <= 0 {
		n = 100 << 20
	}
	return formatBytes(n)
}

func formatBytes(n int64) string {
	switch {
	case n%(1<<30) == 0:
		return strconv.FormatInt(n>>30, 10) + "G"
	case n%(1<<20) == 0:
		return strconv.FormatInt(n>>20, 10) + "M"
	case n%(1<<10) == 0:
		return strconv.FormatInt(n>>10, 10) + "K"
	}
	return strconv.FormatInt(n, 10) + "B"
}

// HealthHandler answers liveness probes.
type HealthHandler struct{}

func (h *HealthHandler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
