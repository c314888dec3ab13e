package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/api/handler"
	"github.com/whatleads/campaignd/internal/api/middleware"
	"github.com/whatleads/campaignd/internal/app"
	"github.com/whatleads/campaignd/internal/config"
	"github.com/whatleads/campaignd/internal/dispatch"
	"github.com/whatleads/campaignd/internal/logger"
	"github.com/whatleads/campaignd/internal/rotation"
	"github.com/whatleads/campaignd/internal/server"
	"github.com/whatleads/campaignd/internal/service/auth"
	campaignSvc "github.com/whatleads/campaignd/internal/service/campaign"
	instanceSvc "github.com/whatleads/campaignd/internal/service/instance"
	userSvc "github.com/whatleads/campaignd/internal/service/user"
	"github.com/whatleads/campaignd/internal/session"
	sessionwa "github.com/whatleads/campaignd/internal/session/whatsmeow"
	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("iniciando aplicação",
		zap.String("env", cfg.App.Env),
		zap.String("log_level", cfg.Log.Level),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Storage.Driver),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	repos, err := storage.NewRepositories(cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	pgConnString := ""
	if cfg.Storage.Driver == "postgres" {
		pgConnString = cfg.DB.DSN()
	}
	sessionDir := cfg.WhatsApp.SessionDir
	if sessionDir == "" {
		sessionDir = filepath.Join(cfg.Storage.DataDir, "sessions")
	}

	sessionManager := sessionwa.NewManager(logr, cfg.Storage.Driver, sessionDir, pgConnString, repos.Instance, repos.ReceiptQueue)

	instanceService := instanceSvc.NewServiceWithSession(repos.Instance, sessionManager)

	sessionManager.SetStatusChangeCallback(func(instanceID string, status string) {
		ctx := context.Background()
		var instanceStatus model.InstanceStatus
		switch status {
		case "connected":
			instanceStatus = model.InstanceStatusConnected
		case "connecting":
			instanceStatus = model.InstanceStatusConnecting
		default:
			instanceStatus = model.InstanceStatusDisconnected
		}
		if _, err := instanceService.UpdateStatus(ctx, instanceID, instanceStatus); err != nil {
			logr.Warn("erro ao atualizar status da instância", zap.String("instance_id", instanceID), zap.Error(err))
		}
	})

	logr.Info("restaurando sessões...")
	instances, err := instanceService.List(context.Background())
	if err == nil && len(instances) > 0 {
		ids := make([]string, 0, len(instances))
		for _, inst := range instances {
			ids = append(ids, inst.ID)
		}
		sessionManager.RestoreAllSessions(context.Background(), ids)
	} else if err != nil {
		logr.Warn("erro ao listar instâncias para restauração", zap.Error(err))
	}

	logr.Debug("inicializando serviços")

	tracker := dispatch.NewTracker()
	sender := sessionwa.NewSender(sessionManager, logr)
	// o selector é compartilhado entre o dispatch e o serviço de rodízio para
	// que zerar contadores também descarte o cursor sequencial em uso
	selector := rotation.NewSelector(time.Now().UnixNano(), sessionManager.IsConnected)
	manager := dispatch.NewManager(dispatch.ManagerOptions{
		RunRepo:      repos.Run,
		LeadRepo:     repos.Lead,
		RotationRepo: repos.Rotation,
		Selector:     selector,
		Connected:    sessionManager.IsConnected,
		Sender:       sender,
		Tracker:      tracker,
		Logger:       logr,
		MaxRetries:   cfg.Dispatch.MaxRetries,
		Seed:         time.Now().UnixNano(),
	})
	reporter := dispatch.NewReporter(repos.Run, repos.Rotation)

	statsWorker := dispatch.NewStatsWorker(repos.ReceiptQueue, tracker, repos.Run, logr)
	statsWorker.Start(context.Background())
	logr.Info("worker de estatísticas iniciado")

	rotationService := rotation.NewService(repos.Rotation, repos.Instance, manager, selector)
	campaignService := campaignSvc.NewService(repos.Campaign, repos.Lead, manager, reporter, campaignSvc.DelayBounds{
		Min: cfg.Dispatch.MinDelayFloor,
		Max: cfg.Dispatch.MaxDelayCeiling,
	})
	userService := userSvc.NewService(repos.User)
	authService := auth.NewService(cfg.JWT.Secret, cfg.JWT.ExpHours, repos.User)

	seedAdmin(cfg, userService, logr)

	watchdog := session.NewWatchdog(repos.Instance, sessionManager, logr, 30*time.Second)
	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	go watchdog.Start(watchdogCtx)

	rateLimitOpts := middleware.RateLimitOption{
		Enabled:  cfg.RateLimit.Enabled,
		Requests: cfg.RateLimit.Requests,
		Window:   time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		Prefix:   cfg.RateLimit.Prefix,
		Logger:   logr,
		Limiter:  repos.RateLimiter,
	}
	ipRateLimitOpts := middleware.IPRateLimitOption{
		Enabled:        cfg.IPRateLimit.Enabled,
		Requests:       cfg.IPRateLimit.Requests,
		WindowSeconds:  cfg.IPRateLimit.WindowSeconds,
		Limiter:        repos.RateLimiter,
		Logger:         logr,
		SkipPrivateIPs: cfg.IPRateLimit.SkipPrivateIPs,
	}

	router := server.NewRouter(server.Options{
		Env:             cfg.App.Env,
		AuthSecret:      cfg.JWT.Secret,
		HealthHandler:   handler.NewHealthHandler(),
		AuthHandler:     handler.NewAuthHandler(authService),
		UserHandler:     handler.NewUserHandler(userService),
		InstanceHandler: handler.NewInstanceHandler(instanceService, logr),
		CampaignHandler: handler.NewCampaignHandler(campaignService, logr),
		RotationHandler: handler.NewRotationHandler(rotationService, logr),
		UserService:     userService,
		InstanceRepo:    repos.Instance,
		RateLimit:       rateLimitOpts,
		IPRateLimit:     ipRateLimitOpts,
	})

	application := app.New(cfg, logr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := application.Run(context.Background()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("sinal de encerramento recebido")
	case err := <-errCh:
		logr.Error("servidor finalizado com erro", zap.Error(err))
	}

	logr.Info("iniciando shutdown graceful")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopWatchdog()
	manager.Shutdown(8 * time.Second)
	logr.Info("disparos pausados para encerramento")

	statsWorker.Stop()
	sessionManager.Shutdown()

	if repos.RedisClient != nil {
		if err := repos.RedisClient.Close(); err != nil {
			logr.Warn("erro ao fechar conexão Redis", zap.Error(err))
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Error("erro ao encerrar servidor", zap.Error(err))
	} else {
		logr.Info("servidor encerrado com sucesso")
	}
}

// seedAdmin cria o usuário administrador inicial quando configurado via
// variáveis de ambiente e a base ainda não tem usuários.
func seedAdmin(cfg config.Config, users *userSvc.Service, logr *zap.Logger) {
	if cfg.App.AdminEmail == "" || cfg.App.AdminPassword == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := users.List(ctx)
	if err != nil || len(existing) > 0 {
		return
	}

	_, err = users.Create(ctx, userSvc.CreateInput{
		Email:    cfg.App.AdminEmail,
		Password: cfg.App.AdminPassword,
		Role:     "admin",
	})
	if err != nil && !errors.Is(err, userSvc.ErrEmailTaken) {
		logr.Warn("erro ao criar admin inicial", zap.Error(err))
		return
	}
	logr.Info("admin inicial criado", zap.String("email", cfg.App.AdminEmail))
}
