package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dms-backend/internal/shared/server/middleware"
	"dms-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes expects rg to sit behind the auth middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

func (h *Handler) me(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	profile, err := h.Svc.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "User not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Failed to load user", nil)
		return
	}
	respond.OK(c, profile)
}
