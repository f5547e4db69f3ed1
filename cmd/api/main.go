package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/oparaugo/giftcash/internal/api"
	"github.com/oparaugo/giftcash/internal/config"
	"github.com/oparaugo/giftcash/internal/domain"
	"github.com/oparaugo/giftcash/internal/gateway"
	"github.com/oparaugo/giftcash/internal/service"
	"github.com/oparaugo/giftcash/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := buildLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	ledger, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer ledger.Close()

	rate, err := domain.NewRate(cfg.CoinsPerNaira)
	if err != nil {
		logger.Fatal("conversion rate", zap.Error(err))
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.GatewayBaseURL,
		SecretKey: cfg.GatewaySecret,
		Timeout:   cfg.GatewayTimeout,
	}, logger)

	cashouts := service.NewCashoutService(ledger, rate, logger)
	reviews := service.NewReviewService(ledger, gw, cfg.GatewayTimeout, logger)

	handler := api.NewHandler(cashouts, reviews, logger)
	router := api.Routes(handler, api.NewAuth(cfg.JWTSecret))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func buildLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
