package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playverse/tournament-engine/brackets"
	"github.com/playverse/tournament-engine/config"
	"github.com/playverse/tournament-engine/db"
	"github.com/playverse/tournament-engine/handlers"
	"github.com/playverse/tournament-engine/middleware"
	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/platform"
	"github.com/playverse/tournament-engine/repositories"
	api "github.com/playverse/tournament-engine/routes"
	"github.com/playverse/tournament-engine/services"
	"github.com/playverse/tournament-engine/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	var uploader storage.FileUploader
	if cfg.R2Configured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 storage not configured, banner uploads disabled")
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()

	platformClient := platform.NewClient(cfg.PlatformBaseURL, cfg.PlatformAPIKey, logger)

	transactor := repositories.NewSQLTransactor(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)

	newRand := func() *rand.Rand {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	bracketService := services.NewBracketService(tournamentRepo, participantRepo, matchRepo, newRand, logger)
	tournamentService := services.NewTournamentService(
		transactor, tournamentRepo, participantRepo, teamRepo, matchRepo,
		bracketService, uploader, platformClient, wsHub, logger,
	)
	participantService := services.NewParticipantService(
		transactor, tournamentRepo, participantRepo, teamRepo,
		platformClient, platformClient, logger,
	)
	teamService := services.NewTeamService(transactor, tournamentRepo, teamRepo, logger)
	matchService := services.NewMatchService(
		transactor, tournamentRepo, participantRepo, matchRepo, teamRepo,
		func(t *models.Tournament) (brackets.Generator, error) {
			return brackets.NewGenerator(t.BracketType, newRand())
		},
		platformClient, platformClient, platformClient, wsHub, logger,
	)

	auth := middleware.NewAuthenticator(cfg.JWTSecretKey)
	router := api.InitRoutes(api.Handlers{
		Tournament:  handlers.NewTournamentHandler(tournamentService, bracketService),
		Participant: handlers.NewParticipantHandler(participantService),
		Team:        handlers.NewTeamHandler(teamService),
		Match:       handlers.NewMatchHandler(matchService),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, logger),
	}, auth)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		}
	}

	logger.Info("server stopped")
}
