// Package main запускает HTTP-сервер сервиса парктрек.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parktrack/parktrack-system/internal/config"
	"github.com/parktrack/parktrack-system/internal/handler"
	"github.com/parktrack/parktrack-system/internal/middleware"
	"github.com/parktrack/parktrack-system/internal/payment"
	"github.com/parktrack/parktrack-system/internal/qrtoken"
	"github.com/parktrack/parktrack-system/internal/repository"
	"github.com/parktrack/parktrack-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var paymentClient *payment.Client
	if cfg.PaymentSystemAddress != "" {
		paymentClient = payment.NewClient(cfg.PaymentSystemAddress)
	}

	codec := qrtoken.NewCodec(cfg.QRSecret)

	svc := service.NewService(repo, paymentClient, codec, service.Config{
		LateFeePercentage: cfg.LateFeePercentage,
		InvoiceDueDays:    cfg.InvoiceDueDays,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware("parktrack-secret")
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового процесса обновления статусов оплаты счетов
	g.Go(func() error {
		svc.StartPaymentUpdates(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting parktrack server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
