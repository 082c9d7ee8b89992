package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/refermarket/referral-backend/internal/config"
	"github.com/refermarket/referral-backend/internal/db"
	httpHandlers "github.com/refermarket/referral-backend/internal/http/handlers"
	httpRouter "github.com/refermarket/referral-backend/internal/http/router"
	"github.com/refermarket/referral-backend/internal/logger"
	"github.com/refermarket/referral-backend/internal/repository"
	"github.com/refermarket/referral-backend/internal/service"
	"github.com/refermarket/referral-backend/internal/storage"
	"github.com/refermarket/referral-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Инициализируем вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	proofStorage, err := storage.NewProofStorage(cfg.ProofStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	walletRepo := repository.NewWalletRepository(dbConn)
	referralRepo := repository.NewReferralRepository(dbConn)
	chatRepo := repository.NewChatRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	walletService := service.NewWalletService(walletRepo)
	notificationService := service.NewNotificationService(notificationRepo)
	chatService := service.NewChatService(chatRepo, notificationService)

	acceptGuard := service.NewAcceptGuard(cfg.AcceptClaimTTL)
	referralService := service.NewReferralService(
		referralRepo,
		walletService,
		chatRepo,
		userRepo,
		notificationService,
		acceptGuard,
		cfg.EscrowHoldDuration,
	)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()
	notificationService.SetHub(hub)

	// Фоновый возврат просроченных резервов.
	sweeper := service.NewEscrowSweeper(walletRepo, referralRepo, notificationService, cfg.EscrowSweepInterval, cfg.EscrowHoldDuration)
	sweeper.Start(ctx)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	walletHandler := httpHandlers.NewWalletHandler(walletService, proofStorage)
	referralHandler := httpHandlers.NewReferralHandler(referralService)
	chatHandler := httpHandlers.NewChatHandler(chatService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager, userRepo)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, walletHandler, referralHandler, chatHandler, notificationHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
