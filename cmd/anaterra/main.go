package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/ibralab/anaterra/internal/config"
	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/infrastructure"
	httptransport "github.com/ibralab/anaterra/internal/interfaces/http"
	applog "github.com/ibralab/anaterra/internal/log"
	"github.com/ibralab/anaterra/internal/repository"
	"github.com/ibralab/anaterra/internal/usecases"
)

func main() {
	logger := applog.New(applog.Config{Level: slog.LevelInfo, JSON: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	sessions := repository.NewSessionRepository(pg.Pool)
	cart := repository.NewCartRepository(pg.Pool)
	escalations := repository.NewEscalationRepository(pg.Pool)
	chatLog := repository.NewChatLogRepository(pg.Pool)
	catalog := repository.NewCatalogRepository(pg.Pool)

	ai := infrastructure.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.ChatModel, cfg.EmbeddingModel, logger)

	matcher := usecases.NewCatalogMatcher(ai, catalog, cfg.QuoteMaxDistance, logger)
	orchestrator := usecases.NewOrchestrator(usecases.OrchestratorDeps{
		Sessions:      sessions,
		Cart:          cart,
		Escalations:   escalations,
		ChatLog:       chatLog,
		LLM:           ai,
		Intents:       usecases.NewIntentClassifier(ai, logger),
		Actions:       usecases.NewActionClassifier(ai, logger),
		Matcher:       matcher,
		QAMaxDistance: cfg.QAMaxDistance,
		GeneralChat:   cfg.GeneralChatEnabled,
		Logger:        logger,
	})
	catalogAdmin := usecases.NewCatalogAdmin(catalog, ai, ai, logger)

	var bridge *infrastructure.WhatsAppBridge
	if cfg.BridgeEnabled {
		bridge, err = infrastructure.NewWhatsAppBridge(ctx, cfg.BridgeDBPath, logger)
		if err != nil {
			logger.Error("whatsapp bridge init failed", "error", err)
			os.Exit(1)
		}
		bridge.HandlerFunc = func(sender, text string) {
			bridge.SendTyping(sender)
			reply := orchestrator.ProcessMessage(ctx, entities.ChannelWhatsApp, sender, text)
			if err := bridge.SendMessage(sender, reply); err != nil {
				logger.Error("bridge reply delivery failed", "to", sender, "error", err)
			}
		}
		if err := bridge.Connect(ctx); err != nil {
			logger.Error("whatsapp bridge connect failed", "error", err)
			os.Exit(1)
		}
		defer bridge.Disconnect()
		logger.Info("whatsapp bridge connected", "logged_in", bridge.IsLoggedIn())
	}

	handler := httptransport.NewHandler(orchestrator, ai, logger)
	waHandler := httptransport.NewWhatsAppHandler(orchestrator, cfg.WhatsAppVerifyToken, cfg.WhatsAppAccessToken, logger)

	var adminBridge httptransport.Bridge
	if bridge != nil {
		adminBridge = bridge
	}
	adminHandler := httptransport.NewAdminHandler(escalations, catalogAdmin, adminBridge, logger)

	r := gin.Default()
	httptransport.SetupRoutes(r, handler, waHandler, adminHandler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- r.Run(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		logger.Error("http server stopped", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		logger.Info("shutting down")
	}
}
