package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/whatleads/campaignd/internal/api/handler"
	"github.com/whatleads/campaignd/internal/api/middleware"
	userSvc "github.com/whatleads/campaignd/internal/service/user"
	"github.com/whatleads/campaignd/internal/storage"
)

type Options struct {
	Env             string
	AuthSecret      string
	HealthHandler   *handler.HealthHandler
	AuthHandler     *handler.AuthHandler
	UserHandler     *handler.UserHandler
	InstanceHandler *handler.InstanceHandler
	CampaignHandler *handler.CampaignHandler
	RotationHandler *handler.RotationHandler
	UserService     *userSvc.Service
	InstanceRepo    storage.InstanceRepository
	RateLimit       middleware.RateLimitOption
	IPRateLimit     middleware.IPRateLimitOption
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")

	opts.HealthHandler.Register(api)

	public := api.Group("")
	public.Use(middleware.IPRateLimit(opts.IPRateLimit))
	opts.AuthHandler.Register(public)

	protected := api.Group("")
	if opts.RateLimit.Enabled {
		protected.Use(middleware.RateLimit(opts.RateLimit))
	}
	protected.Use(middleware.AuthWithOptions(middleware.AuthOption{
		JWTSecret:    opts.AuthSecret,
		InstanceRepo: opts.InstanceRepo,
	}))
	if opts.UserService != nil {
		protected.Use(middleware.AddUserInfo(opts.UserService))
	}

	opts.InstanceHandler.Register(protected)
	opts.CampaignHandler.Register(protected)
	opts.RotationHandler.Register(protected)
	if opts.UserHandler != nil {
		admin := protected.Group("")
		admin.Use(middleware.RequireAdmin(opts.UserService))
		opts.UserHandler.Register(admin)
	}

	return router
}
