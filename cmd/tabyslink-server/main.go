package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/intermernet/tabyslink/internal/api"
	"github.com/intermernet/tabyslink/internal/assistant"
	"github.com/intermernet/tabyslink/internal/config"
	"github.com/intermernet/tabyslink/internal/database"
	"github.com/intermernet/tabyslink/internal/email"
	"github.com/intermernet/tabyslink/internal/metrics"
	"github.com/intermernet/tabyslink/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

// main is the entry point for the TabysLink backend server.
func main() {
	// --- 1. Load Configuration ---
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found, using environment variables from the system.")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("FATAL: Failed to load application configuration: %v", err)
	}

	// --- 2. Ensure Required Directories Exist ---
	if err := os.MkdirAll(cfg.DbPath, 0755); err != nil {
		log.Fatalf("FATAL: Failed to create database directory at %s: %v", cfg.DbPath, err)
	}
	if err := os.MkdirAll(cfg.AvatarPath, 0755); err != nil {
		log.Fatalf("FATAL: Failed to create avatar directory at %s: %v", cfg.AvatarPath, err)
	}

	log.Println("INFO: Application directories verified.")

	// --- 3. Initialize Database Service ---
	dbService, err := database.NewService(filepath.Join(cfg.DbPath, "tabyslink.db"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database service: %v", err)
	}
	defer dbService.Close()

	if err := dbService.InitSchema(context.Background()); err != nil {
		log.Fatalf("FATAL: Failed to initialize database schema: %v", err)
	}

	log.Println("INFO: Database schema verified.")

	// --- 4. Collaborators ---
	broker := realtime.NewBroker()

	var mailer api.Mailer
	if cfg.EmailEnabled() {
		mailer = email.NewEmailService(email.SMTPServerConfig{
			Host:     cfg.SmtpHost,
			Port:     cfg.SmtpPort,
			Username: cfg.SmtpUser,
			Password: cfg.SmtpPass,
			Sender:   cfg.SmtpSender,
		})
	} else {
		log.Println("WARN: SMTP_HOST is not set. Email notifications are disabled.")
	}

	if cfg.OpenAIAPIKey == "" {
		log.Println("WARN: OPENAI_API_KEY is not set. Assistant replies will fail.")
	}
	chat := assistant.NewService(
		assistant.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
		assistant.NewDBStore(dbService),
		assistant.Options{
			Model:        cfg.AssistantModel,
			MaxTokens:    cfg.AssistantMaxTokens,
			HistoryTurns: cfg.AssistantHistoryTurns,
			Timeout:      cfg.AssistantTimeout,
		},
	)

	appMetrics := metrics.New(broker.Connected)

	log.Println("INFO: Realtime broker, assistant and metrics initialized.")

	// --- 5. Set Up API Server and Routes ---
	serverAPI := api.NewServer(cfg, dbService, broker, mailer, chat, appMetrics)
	router := chi.NewRouter()
	serverAPI.RegisterRoutes(router)

	// No WriteTimeout: notification streams stay open indefinitely.
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv.RegisterOnShutdown(broker.CloseAll)

	// --- 6. Start the HTTP Server ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("INFO: TabysLink server starting on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("INFO: Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: Graceful shutdown failed: %v", err)
	}
}
