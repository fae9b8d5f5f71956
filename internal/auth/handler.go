package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dms-backend/internal/shared/server/respond"
	"dms-backend/internal/users"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRoutes attaches /register and /login to rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.register)
	rg.POST("/login", h.login)
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "Invalid request body", nil)
		return
	}

	token, err := h.Svc.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrDuplicateEmail):
			respond.Error(c, http.StatusBadRequest, respond.CodeDuplicateEmail, "Email already exists", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Registration failed", nil)
		}
		return
	}

	respond.Created(c, gin.H{"token": token})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "Invalid request body", nil)
		return
	}

	token, user, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			respond.Error(c, http.StatusBadRequest, respond.CodeInvalidCredentials, "Invalid credentials", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Login failed", nil)
		return
	}

	respond.OK(c, gin.H{"token": token, "user": user})
}
