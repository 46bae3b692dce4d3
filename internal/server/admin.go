package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/joseph-ayodele/bill-extractor/internal/admin"
	"github.com/joseph-ayodele/bill-extractor/internal/secrets"
)

const (
	MsgBadPassword   = "パスワードが正しくありません"
	MsgKeyUpdated    = "APIキーを更新しました"
	MsgKeyFailed     = "APIキーの更新に失敗しました"
	MsgFolderUpdated = "DriveフォルダIDを更新しました"
	MsgFolderFailed  = "更新に失敗しました"
)

const (
	jobsExportLimit = 500
	jobsExportBase  = "extract_jobs"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pathAdmin       = "/admin"
	pathAdminLogin  = "/admin/login"
	tmplAdminLogin  = "admin_login.html"
	tmplAdminKeys   = "admin_keys.html"
)

// AdminHandler serves the key management console.
type AdminHandler struct {
	auth    *admin.Auth
	secrets *secrets.Manager
	export  JobsExporter
	logger  *slog.Logger
}

func NewAdminHandler(auth *admin.Auth, sm *secrets.Manager, export JobsExporter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{auth: auth, secrets: sm, export: export, logger: logger}
}

type loginView struct {
	Error string
}

type keysView struct {
	secrets.Status
	Message string
}

// requireSession redirects to the login page when the session cookie is
// missing or invalid.
func (h *AdminHandler) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.auth.VerifyRequest(c.Request()) {
			return c.Redirect(http.StatusSeeOther, pathAdminLogin)
		}
		return next(c)
	}
}

func (h *AdminHandler) HandleLoginPage(c echo.Context) error {
	if h.auth.VerifyRequest(c.Request()) {
		return c.Redirect(http.StatusSeeOther, pathAdmin)
	}
	return c.Render(http.StatusOK, tmplAdminLogin, loginView{})
}

func (h *AdminHandler) HandleLogin(c echo.Context) error {
	ctx := c.Request().Context()
	if !h.auth.VerifyPassword(ctx, c.FormValue("password")) {
		h.logger.Warn("admin.login_failed", "ip", c.RealIP())
		return c.Render(http.StatusUnauthorized, tmplAdminLogin, loginView{Error: MsgBadPassword})
	}
	cookie, err := h.auth.SessionCookie()
	if err != nil {
		return NewInternalError("session could not be issued", err)
	}
	c.SetCookie(cookie)
	h.logger.Info("admin.login", "ip", c.RealIP())
	return c.Redirect(http.StatusSeeOther, pathAdmin)
}

func (h *AdminHandler) HandleLogout(c echo.Context) error {
	c.SetCookie(h.auth.ClearCookie())
	return c.Redirect(http.StatusSeeOther, pathAdminLogin)
}

func (h *AdminHandler) HandleDashboard(c echo.Context) error {
	return h.renderKeys(c, "")
}

func (h *AdminHandler) HandleUpdateKey(c echo.Context) error {
	ctx := c.Request().Context()
	keyType := c.FormValue("key_type")
	secretID, ok := h.secrets.SecretID(keyType)
	if !ok {
		return c.Redirect(http.StatusSeeOther, pathAdmin)
	}

	msg := MsgKeyUpdated
	if err := h.secrets.Set(ctx, secretID, strings.TrimSpace(c.FormValue("key_value"))); err != nil {
		h.logger.Error("admin.key_update_failed", "key_type", keyType, "error", err)
		msg = MsgKeyFailed
	} else {
		h.logger.Info("admin.key_updated", "key_type", keyType)
	}
	return h.renderKeys(c, msg)
}

func (h *AdminHandler) HandleUpdateDriveFolder(c echo.Context) error {
	ctx := c.Request().Context()
	msg := MsgFolderUpdated
	if err := h.secrets.SetDriveFolderID(ctx, c.FormValue("folder_id")); err != nil {
		h.logger.Error("admin.folder_update_failed", "error", err)
		msg = MsgFolderFailed
	} else {
		h.logger.Info("admin.folder_updated")
	}
	return h.renderKeys(c, msg)
}

// HandleExportJobs downloads the recent job history as a workbook.
func (h *AdminHandler) HandleExportJobs(c echo.Context) error {
	data, err := h.export.ExportJobsXLSX(c.Request().Context(), jobsExportLimit)
	if err != nil {
		return NewInternalError("job history export failed", err)
	}
	name := fmt.Sprintf("%s_%s.xlsx", jobsExportBase, time.Now().Format("20060102_150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}

func (h *AdminHandler) renderKeys(c echo.Context, message string) error {
	status, err := h.secrets.Status(c.Request().Context())
	if err != nil {
		return NewInternalError("key status unavailable", err)
	}
	return c.Render(http.StatusOK, tmplAdminKeys, keysView{Status: status, Message: message})
}
