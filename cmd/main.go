package main

import (
	"fmt"
	"log"

	"token-ledger/internal/api"
	"token-ledger/internal/config"
	"token-ledger/internal/db"
	"token-ledger/internal/logger"
	"token-ledger/internal/middleware"
	"token-ledger/internal/service"
	"token-ledger/pkg"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbConn, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	db.Migrate(dbConn, "migrations")

	zapLogger := logger.NewLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(zapLogger)
	appLogger := pkg.NewZapLogger(zapLogger)

	authDB := db.NewAuthDB(dbConn)
	ledgerDB := db.NewLedgerDB(dbConn)

	authService := service.NewAuthService(authDB, appLogger, cfg.JWTSecret)
	ledgerService := service.NewLedgerService(ledgerDB, appLogger)

	e := echo.New()
	e.Use(logger.RequestLogger(zapLogger))
	e.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret, appLogger))

	handlers := &api.Handlers{
		AuthService:   authService,
		LedgerService: ledgerService,
		Logger:        appLogger,
		JWTSecret:     cfg.JWTSecret,
	}

	api.RegisterHandlers(e, handlers)

	port := fmt.Sprintf(":%s", cfg.ServerPort)
	appLogger.Info("Starting server", zap.String("port", cfg.ServerPort))
	if err := e.Start(port); err != nil {
		appLogger.Error("Failed to run server", zap.Error(err))
	}
}
