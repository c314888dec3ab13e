package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/pkg/response"
	"github.com/whatleads/campaignd/internal/rotation"
	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

type RotationHandler struct {
	service *rotation.Service
	log     *zap.Logger
}

func NewRotationHandler(service *rotation.Service, log *zap.Logger) *RotationHandler {
	return &RotationHandler{service: service, log: log}
}

func (h *RotationHandler) Register(r *gin.RouterGroup) {
	r.PUT("/campaigns/:id/rotation", h.configure)
	r.GET("/campaigns/:id/rotation", h.get)
	r.DELETE("/campaigns/:id/rotation", h.delete)
	r.PATCH("/campaigns/:id/rotation/strategy", h.setStrategy)
	r.POST("/campaigns/:id/rotation/reset", h.resetCounters)
	r.POST("/campaigns/:id/rotation/instances", h.addInstance)
	r.DELETE("/campaigns/:id/rotation/instances/:instanceId", h.removeInstance)
	r.PATCH("/campaigns/:id/rotation/instances/:instanceId", h.toggleInstance)
}

type configureRotationRequest struct {
	InstanceIDs    []string `json:"instance_ids" binding:"required"`
	Strategy       string   `json:"strategy" binding:"required"`
	MaxPerInstance int      `json:"max_per_instance"`
}

func (h *RotationHandler) configure(c *gin.Context) {
	var req configureRotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	strategy, ok := model.ParseStrategy(req.Strategy)
	if !ok {
		h.writeError(c, rotation.ErrInvalidStrategy)
		return
	}

	policy, usages, err := h.service.Configure(c.Request.Context(), rotation.ConfigureInput{
		CampaignID:     c.Param("id"),
		InstanceIDs:    req.InstanceIDs,
		Strategy:       strategy,
		MaxPerInstance: req.MaxPerInstance,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"policy":    policy,
		"instances": usages,
	})
}

func (h *RotationHandler) get(c *gin.Context) {
	policy, usages, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"policy":    policy,
		"instances": usages,
	})
}

func (h *RotationHandler) delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type setStrategyRequest struct {
	Strategy string `json:"strategy" binding:"required"`
}

func (h *RotationHandler) setStrategy(c *gin.Context) {
	var req setStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	strategy, ok := model.ParseStrategy(req.Strategy)
	if !ok {
		h.writeError(c, rotation.ErrInvalidStrategy)
		return
	}

	if err := h.service.SetStrategy(c.Request.Context(), c.Param("id"), strategy); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"strategy": req.Strategy})
}

func (h *RotationHandler) resetCounters(c *gin.Context) {
	if err := h.service.ResetCounters(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

type addInstanceRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

func (h *RotationHandler) addInstance(c *gin.Context) {
	var req addInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	if err := h.service.AddInstance(c.Request.Context(), c.Param("id"), req.InstanceID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"added": req.InstanceID})
}

func (h *RotationHandler) removeInstance(c *gin.Context) {
	if err := h.service.RemoveInstance(c.Request.Context(), c.Param("id"), c.Param("instanceId")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": c.Param("instanceId")})
}

type toggleInstanceRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *RotationHandler) toggleInstance(c *gin.Context) {
	var req toggleInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	if err := h.service.ToggleInstanceActive(c.Request.Context(), c.Param("id"), c.Param("instanceId"), *req.Active); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"active": *req.Active})
}

func (h *RotationHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		response.ErrorWithMessage(c, http.StatusNotFound, "configuração de rodízio não encontrada")
	case errors.Is(err, rotation.ErrNoInstances),
		errors.Is(err, rotation.ErrDuplicateInstance),
		errors.Is(err, rotation.ErrInvalidStrategy),
		errors.Is(err, rotation.ErrInvalidCap):
		response.Error(c, http.StatusBadRequest, err)
	case errors.Is(err, rotation.ErrInstanceNotConnected),
		errors.Is(err, rotation.ErrLastInstance),
		errors.Is(err, rotation.ErrRunActive):
		response.Error(c, http.StatusConflict, err)
	default:
		response.Error(c, http.StatusInternalServerError, err)
	}
}
