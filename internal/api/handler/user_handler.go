package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/whatleads/campaignd/internal/pkg/response"
	userSvc "github.com/whatleads/campaignd/internal/service/user"
	"github.com/whatleads/campaignd/internal/storage"
)

type UserHandler struct {
	service *userSvc.Service
}

func NewUserHandler(service *userSvc.Service) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) Register(r *gin.RouterGroup) {
	r.POST("/users", h.create)
	r.GET("/users", h.list)
	r.GET("/users/:id", h.get)
	r.DELETE("/users/:id", h.delete)
}

type createUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

func (h *UserHandler) create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	user, err := h.service.Create(c.Request.Context(), userSvc.CreateInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, userSvc.ErrEmailTaken):
			response.Error(c, http.StatusConflict, err)
		case errors.Is(err, userSvc.ErrInvalidEmail), errors.Is(err, userSvc.ErrInvalidPassword):
			response.Error(c, http.StatusBadRequest, err)
		default:
			response.Error(c, http.StatusInternalServerError, err)
		}
		return
	}

	response.Success(c, http.StatusCreated, user)
}

func (h *UserHandler) list(c *gin.Context) {
	users, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, users)
}

func (h *UserHandler) get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "usuário não encontrado")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

func (h *UserHandler) delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "usuário não encontrado")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
