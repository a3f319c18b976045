package audit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hr/meridian-hr/internal/platform/httpx"
	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Handler serves the audit trail and revert endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	reverter *Reverter
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, reverter *Reverter, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, reverter: reverter, rbac: mw}
}

// MountRoutes registers audit routes. Reads are permission gated, the revert
// endpoint is restricted to admins.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissionsAny(shared.PermViewAuditLogs))
		r.Get("/audit-logs", h.list)
		r.Get("/audit-logs/stats", h.stats)
		r.Get("/audit-logs/{id}", h.show)
		r.Get("/roles/audit-logs", h.roleAuditLogs)
		r.Get("/roles/{id}/history", h.roleHistory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleAdmin))
		r.Post("/audit-logs/{id}/revert", h.revert)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	filters := ListFilters{
		Category: q.Get("category"),
		Severity: q.Get("severity"),
		Status:   q.Get("status"),
		Search:   q.Get("search"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     page,
		PerPage:  perPage,
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit logs failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	respondPage(w, result)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid audit log id", err.Error())
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Audit log not found", "no audit log exists with the given id")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := h.service.Stats(r.Context(), parseTime(q.Get("from")), parseTime(q.Get("to")))
	if err != nil {
		h.logger.Error("audit stats failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) roleHistory(w http.ResponseWriter, r *http.Request) {
	roleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid role id", err.Error())
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	result, err := h.service.RoleHistory(r.Context(), roleID, page, perPage)
	if err != nil {
		h.logger.Error("role history failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	respondPage(w, result)
}

func (h *Handler) roleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	result, err := h.service.RoleAuditLogs(r.Context(), q.Get("search"), page, perPage)
	if err != nil {
		h.logger.Error("role audit logs failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	respondPage(w, result)
}

func (h *Handler) revert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid audit log id", err.Error())
		return
	}
	actor := rbac.PrincipalFromContext(r.Context())
	meta := RequestMeta{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
	result, err := h.reverter.RevertRoleAudit(r.Context(), id, actor, meta)
	if err != nil {
		h.respondRevertError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondRevertError(w http.ResponseWriter, err error) {
	var inUse RoleInUseError
	var collision NameCollisionError
	switch {
	case errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Audit log not found", err.Error())
	case errors.Is(err, ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Role not found", err.Error())
	case errors.Is(err, ErrNotRoleManagement),
		errors.Is(err, ErrNotRevertible),
		errors.Is(err, ErrInvalidResourceID),
		errors.Is(err, ErrInvalidDetails):
		httpx.Problem(w, http.StatusBadRequest, "Cannot revert this audit log", err.Error())
	case errors.As(err, &inUse):
		httpx.Problem(w, http.StatusConflict, "Role is in use", inUse.Error())
	case errors.As(err, &collision):
		httpx.Problem(w, http.StatusConflict, "Role name already exists", collision.Error())
	default:
		h.logger.Error("revert failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func respondPage(w http.ResponseWriter, result Result) {
	entries := result.Entries
	if entries == nil {
		entries = []EntryView{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"auditLogs":  entries,
		"pagination": result.Paging,
	})
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}
