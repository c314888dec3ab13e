package handler

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/pkg/response"
	instanceSvc "github.com/whatleads/campaignd/internal/service/instance"
	"github.com/whatleads/campaignd/internal/storage"
)

type InstanceHandler struct {
	service *instanceSvc.Service
	log     *zap.Logger
}

func NewInstanceHandler(service *instanceSvc.Service, log *zap.Logger) *InstanceHandler {
	return &InstanceHandler{service: service, log: log}
}

func (h *InstanceHandler) Register(r *gin.RouterGroup) {
	r.GET("/instances", h.list)
	r.GET("/instances/:id", h.get)
	r.POST("/instances", h.create)
	r.PUT("/instances/:id", h.rename)
	r.DELETE("/instances/:id", h.delete)
	r.POST("/instances/:id/token/rotate", h.rotateToken)
	r.POST("/instances/:id/connect", h.connect)
	r.GET("/instances/:id/qr", h.getQR)
	r.POST("/instances/:id/disconnect", h.disconnect)
}

type createInstanceRequest struct {
	Name string `json:"name" binding:"required,min=2"`
}

type renameInstanceRequest struct {
	Name string `json:"name" binding:"required,min=2"`
}

func (h *InstanceHandler) create(c *gin.Context) {
	if c.GetString("authType") == "instance_token" {
		response.ErrorWithMessage(c, http.StatusForbidden, "token de instância não pode criar instâncias")
		return
	}

	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	inst, plainToken, err := h.service.Create(c.Request.Context(), instanceSvc.CreateInput{
		Name:        req.Name,
		OwnerUserID: c.GetString("userID"),
	})
	if err != nil {
		if errors.Is(err, instanceSvc.ErrInvalidName) {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"instance": inst,
		"token":    plainToken,
	})
}

func (h *InstanceHandler) list(c *gin.Context) {
	if c.GetString("authType") == "instance_token" {
		response.ErrorWithMessage(c, http.StatusForbidden, "token de instância não pode listar instâncias")
		return
	}

	infos, err := h.service.ListByUser(c.Request.Context(), c.GetString("userID"), c.GetString("userRole"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, infos)
}

func (h *InstanceHandler) get(c *gin.Context) {
	info, err := h.service.GetByUser(c.Request.Context(), c.Param("id"), c.GetString("userID"), c.GetString("userRole"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, info)
}

func (h *InstanceHandler) rename(c *gin.Context) {
	var req renameInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	inst, err := h.service.Rename(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
		case errors.Is(err, instanceSvc.ErrInvalidName):
			response.Error(c, http.StatusBadRequest, err)
		default:
			response.Error(c, http.StatusInternalServerError, err)
		}
		return
	}
	response.Success(c, http.StatusOK, inst)
}

func (h *InstanceHandler) delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *InstanceHandler) rotateToken(c *gin.Context) {
	plain, err := h.service.RotateToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"token": plain})
}

func (h *InstanceHandler) connect(c *gin.Context) {
	code, err := h.service.Connect(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	h.respondQR(c, code)
}

func (h *InstanceHandler) getQR(c *gin.Context) {
	code, err := h.service.GetQR(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusConflict, err)
		return
	}
	h.respondQR(c, code)
}

// respondQR devolve o código bruto e a imagem PNG em base64, pronta para
// renderizar em <img src="data:...">.
func (h *InstanceHandler) respondQR(c *gin.Context, code string) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		h.log.Warn("erro ao gerar PNG do QR code", zap.Error(err))
		response.Success(c, http.StatusOK, gin.H{"qr": code})
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"qr":    code,
		"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

func (h *InstanceHandler) disconnect(c *gin.Context) {
	if err := h.service.Disconnect(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.ErrorWithMessage(c, http.StatusNotFound, "instância não encontrada")
			return
		}
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"disconnected": true})
}
