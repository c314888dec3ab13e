package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/dispatch"
	"github.com/whatleads/campaignd/internal/pkg/response"
	"github.com/whatleads/campaignd/internal/rotation"
	campaignSvc "github.com/whatleads/campaignd/internal/service/campaign"
	"github.com/whatleads/campaignd/internal/storage"
)

type CampaignHandler struct {
	service *campaignSvc.Service
	log     *zap.Logger
}

func NewCampaignHandler(service *campaignSvc.Service, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{service: service, log: log}
}

func (h *CampaignHandler) Register(r *gin.RouterGroup) {
	r.POST("/campaigns", h.create)
	r.GET("/campaigns", h.list)
	r.GET("/campaigns/:id", h.get)
	r.PUT("/campaigns/:id", h.update)
	r.DELETE("/campaigns/:id", h.delete)
	r.POST("/campaigns/:id/leads", h.importLeads)
	r.POST("/campaigns/:id/start", h.start)
	r.POST("/campaigns/:id/pause", h.pause)
	r.POST("/campaigns/:id/resume", h.resume)
	r.POST("/campaigns/:id/cancel", h.cancel)
	r.GET("/campaigns/:id/progress", h.progress)
}

type campaignRequest struct {
	Name            string `json:"name" binding:"required,min=2"`
	Message         string `json:"message" binding:"required"`
	MediaURL        string `json:"media_url"`
	InstanceID      string `json:"instance_id"`
	UseRotation     bool   `json:"use_rotation"`
	MinDelaySeconds int    `json:"min_delay_seconds" binding:"required"`
	MaxDelaySeconds int    `json:"max_delay_seconds" binding:"required"`
}

func (h *CampaignHandler) create(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	campaign, err := h.service.Create(c.Request.Context(), campaignSvc.CreateInput{
		Name:            req.Name,
		OwnerUserID:     c.GetString("userID"),
		Message:         req.Message,
		MediaURL:        req.MediaURL,
		InstanceID:      req.InstanceID,
		UseRotation:     req.UseRotation,
		MinDelaySeconds: req.MinDelaySeconds,
		MaxDelaySeconds: req.MaxDelaySeconds,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, campaign)
}

func (h *CampaignHandler) list(c *gin.Context) {
	campaigns, err := h.service.ListByUser(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, http.StatusOK, campaigns)
}

func (h *CampaignHandler) get(c *gin.Context) {
	campaign, err := h.service.GetByUser(c.Request.Context(), c.Param("id"), c.GetString("userID"), c.GetString("userRole"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, campaign)
}

func (h *CampaignHandler) update(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	campaign, err := h.service.Update(c.Request.Context(), c.Param("id"), campaignSvc.UpdateInput{
		Name:            req.Name,
		Message:         req.Message,
		MediaURL:        req.MediaURL,
		InstanceID:      req.InstanceID,
		UseRotation:     req.UseRotation,
		MinDelaySeconds: req.MinDelaySeconds,
		MaxDelaySeconds: req.MaxDelaySeconds,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, campaign)
}

func (h *CampaignHandler) delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type importLeadsRequest struct {
	Leads []struct {
		Phone   string `json:"phone" binding:"required"`
		Name    string `json:"name"`
		Segment string `json:"segment"`
	} `json:"leads" binding:"required"`
}

func (h *CampaignHandler) importLeads(c *gin.Context) {
	var req importLeadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err)
		return
	}

	inputs := make([]campaignSvc.LeadInput, 0, len(req.Leads))
	for _, l := range req.Leads {
		inputs = append(inputs, campaignSvc.LeadInput{
			Phone:   l.Phone,
			Name:    l.Name,
			Segment: l.Segment,
		})
	}

	imported, err := h.service.ImportLeads(c.Request.Context(), c.Param("id"), inputs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"imported": imported})
}

type startCampaignRequest struct {
	Segment string `json:"segment"`
}

func (h *CampaignHandler) start(c *gin.Context) {
	var req startCampaignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, err)
			return
		}
	}

	run, err := h.service.Start(c.Request.Context(), c.Param("id"), req.Segment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, run)
}

func (h *CampaignHandler) pause(c *gin.Context) {
	if err := h.service.Pause(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"paused": true})
}

func (h *CampaignHandler) resume(c *gin.Context) {
	if err := h.service.Resume(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"resumed": true})
}

func (h *CampaignHandler) cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

func (h *CampaignHandler) progress(c *gin.Context) {
	snapshot, err := h.service.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, snapshot)
}

func (h *CampaignHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		response.ErrorWithMessage(c, http.StatusNotFound, "campanha não encontrada")
	case errors.Is(err, campaignSvc.ErrInvalidName),
		errors.Is(err, campaignSvc.ErrEmptyMessage),
		errors.Is(err, campaignSvc.ErrInvalidDelay),
		errors.Is(err, campaignSvc.ErrDelayOutOfRange),
		errors.Is(err, campaignSvc.ErrNoInstanceSet),
		errors.Is(err, campaignSvc.ErrNoLeads),
		errors.Is(err, dispatch.ErrNoLeads):
		response.Error(c, http.StatusBadRequest, err)
	case errors.Is(err, campaignSvc.ErrRunActive),
		errors.Is(err, dispatch.ErrAlreadyRunning),
		errors.Is(err, dispatch.ErrInvalidState),
		errors.Is(err, rotation.ErrNoEligibleInstance):
		response.Error(c, http.StatusConflict, err)
	default:
		response.Error(c, http.StatusInternalServerError, err)
	}
}
