package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-hr/meridian-hr/internal/audit"
	"github.com/meridian-hr/meridian-hr/internal/platform/httpx"
	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Handler serves the role management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		rbac:     mw,
		validate: validator.New(),
	}
}

type roleRequest struct {
	Name          string   `json:"name" validate:"required,max=120"`
	Description   string   `json:"description" validate:"max=500"`
	Color         string   `json:"color" validate:"omitempty,max=32"`
	PermissionIDs []string `json:"permissionIds" validate:"dive,required"`
	UserIDs       []int64  `json:"userIds"`
}

// MountRoutes registers role routes. Reads are open to elevated HR staff,
// writes require the admin role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleAdmin, shared.RoleHR))
		r.Get("/roles", h.list)
		r.Get("/roles/stats/overview", h.statsOverview)
		r.Get("/roles/{id}", h.show)
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleAdmin))
		r.Post("/roles", h.create)
		r.Put("/roles/{id}", h.update)
		r.Delete("/roles/{id}", h.remove)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid role id", err.Error())
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	role, err := h.service.Create(r.Context(), rbac.PrincipalFromContext(r.Context()), requestMeta(r), RoleInput{
		Name:          req.Name,
		Description:   req.Description,
		Color:         req.Color,
		PermissionIDs: req.PermissionIDs,
		UserIDs:       req.UserIDs,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid role id", err.Error())
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	role, err := h.service.Update(r.Context(), rbac.PrincipalFromContext(r.Context()), requestMeta(r), id, RoleInput{
		Name:          req.Name,
		Description:   req.Description,
		Color:         req.Color,
		PermissionIDs: req.PermissionIDs,
		UserIDs:       req.UserIDs,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid role id", err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), rbac.PrincipalFromContext(r.Context()), requestMeta(r), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Role deleted successfully"})
}

func (h *Handler) statsOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.StatsOverview(r.Context())
	if err != nil {
		h.logger.Error("role stats failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []PermissionWithRoleCount{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var inUse *InUseError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Role not found", "no role exists with the given id")
	case errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, ErrNameTaken):
		httpx.Problem(w, http.StatusConflict, "Role name already exists", err.Error())
	case errors.Is(err, ErrInvalidPermissionIDs), errors.Is(err, ErrInvalidUserIDs):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.As(err, &inUse):
		httpx.Problem(w, http.StatusConflict, "Role is in use", inUse.Error())
	default:
		h.logger.Error("role operation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func requestMeta(r *http.Request) audit.RequestMeta {
	return audit.RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}
