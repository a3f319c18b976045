package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-hr/meridian-hr/internal/platform/httpx"
	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Handler serves authentication endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type principalResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
}

// MountPublicRoutes registers the unauthenticated endpoints.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)
}

// MountRoutes registers the authenticated endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/auth/me", h.me)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	principal, session, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Invalid credentials", "email or password is incorrect")
			return
		}
		h.logger.Error("login failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
		"user":      toPrincipalResponse(principal),
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Authentication required", "no active session")
		return
	}
	httpx.JSON(w, http.StatusOK, toPrincipalResponse(*principal))
}

func toPrincipalResponse(p rbac.Principal) principalResponse {
	return principalResponse{
		ID:         p.ID,
		Name:       p.Name,
		Email:      p.Email,
		Department: p.Department,
		Role:       p.Role,
	}
}
