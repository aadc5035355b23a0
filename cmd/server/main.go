// Package main runs the Voice Live avatar relay HTTP server with WebSocket
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/contoso-voice/backend/config"
	"github.com/contoso-voice/backend/internal/api"
	"github.com/contoso-voice/backend/internal/middleware"
	"github.com/contoso-voice/backend/internal/tools"
	"github.com/contoso-voice/backend/internal/voicelive"
	"github.com/contoso-voice/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Optional Redis cache for product tool lookups.
	var toolCache *tools.Cache
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("tool cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			toolCache = tools.NewCache(rdb.Client, logger)
		}
	}

	retail := tools.NewRetail(cfg.Tools, toolCache, logger)
	catalog := tools.Catalog()
	dispatcher, err := tools.NewDispatcher(catalog, retail.Funcs(), logger)
	if err != nil {
		logger.Fatal("tool registry", zap.Error(err))
	}

	sessionConfig := voicelive.SessionConfig{
		Modalities:        []string{"text", "audio"},
		Instructions:      cfg.VoiceLive.Instructions,
		Voice:             cfg.VoiceLive.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputAudioTranscription: &voicelive.TranscriptionConfig{
			Model: "whisper-1",
		},
		TurnDetection: &voicelive.TurnDetection{Type: "server_vad"},
		Avatar: &voicelive.AvatarParams{
			Character:  cfg.Avatar.Character,
			Style:      cfg.Avatar.Style,
			Customized: cfg.Avatar.Customized,
			Video: voicelive.AvatarVideo{
				Resolution: voicelive.AvatarResolution{
					Width:  cfg.Avatar.VideoWidth,
					Height: cfg.Avatar.VideoHeight,
				},
				Bitrate: cfg.Avatar.VideoBitrate,
			},
		},
		Tools:      catalog,
		ToolChoice: "auto",
	}
	registry := voicelive.NewRegistry(cfg.VoiceLive.WSURL(), cfg.VoiceLive.APIKey, sessionConfig, dispatcher, logger)

	// Warm up the ecom API so the first tool call avoids its cold start.
	go func() {
		warmupCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		tools.WarmupEcomAPI(warmupCtx, cfg.Tools.EcomAPIURL, logger)
	}()

	handler := api.NewHandler(registry, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", handler.Health)
	router.POST("/sessions", handler.CreateSession)
	router.GET("/sessions", handler.ListSessions)
	router.DELETE("/sessions/:id", handler.RemoveSession)
	router.POST("/sessions/:id/avatar-offer", handler.AvatarOffer)
	router.POST("/sessions/:id/text", handler.SendText)
	router.POST("/sessions/:id/commit-audio", handler.CommitAudio)
	router.POST("/sessions/:id/clear-audio", handler.ClearAudio)
	router.GET("/ws/sessions/:id", api.ServeWS(registry, logger))

	api.RegisterSPA(router, cfg.Server.StaticDir)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	registry.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
