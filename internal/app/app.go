package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whatleads/campaignd/internal/config"
)

// App embala o servidor HTTP com os timeouts padrão da aplicação.
type App struct {
	srv *http.Server
	log *zap.Logger
}

func New(cfg config.Config, log *zap.Logger, router *gin.Engine) *App {
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &App{srv: srv, log: log}
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("servidor HTTP escutando", zap.String("addr", a.srv.Addr))
	if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}
