package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hr/meridian-hr/internal/platform/httpx"
	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Handler serves the user directory endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers directory routes. The detail endpoint lets users read
// their own record; anyone else's record requires an elevated role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleAdmin, shared.RoleHR, shared.RoleManager))
		r.Get("/users", h.list)
		r.Get("/users/departments", h.departments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireOwnerOrElevated("id"))
		r.Get("/users/{id}", h.show)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	result, err := h.service.List(r.Context(), ListFilters{
		Search:     q.Get("search"),
		Department: q.Get("department"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid user id", err.Error())
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "User not found", "no user exists with the given id")
			return
		}
		h.logger.Error("get user failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) departments(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.Departments(r.Context())
	if err != nil {
		h.logger.Error("list departments failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"departments": names})
}
