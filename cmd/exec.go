package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v5"
	"github.com/pocketbase/dbx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raffle-system/config"
	"raffle-system/handlers"
	"raffle-system/internal/services"
	"raffle-system/internal/services/gateway"
	"raffle-system/internal/services/gateway/falconpay"
	"raffle-system/internal/store"
	"raffle-system/monitoring"
	"raffle-system/security"
	"raffle-system/utils"
)

func Start() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	// Load configuration
	cfg := config.LoadConfig()

	// Open MySQL
	db, err := dbx.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.DB().PingContext(pingCtx); err != nil {
		return err
	}

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Create context for background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize payment gateway
	gw, err := gateway.New(ctx, gateway.Provider(cfg.PaymentProvider), &falconpay.Config{
		BaseURL:    cfg.FalconPay.BaseURL,
		PartnerID:  cfg.FalconPay.PartnerID,
		ClientID:   cfg.FalconPay.ClientID,
		ClientKey:  cfg.FalconPay.ClientKey,
		HMACKey:    cfg.FalconPay.HMACKey,
		MerchantID: cfg.FalconPay.MerchantID,
	})
	if err != nil {
		return err
	}
	defer gw.Close(ctx)

	// Ticket pool
	ticketStore := store.NewTicketStore(db)
	if err := ticketStore.EnsureSchema(ctx); err != nil {
		return err
	}
	if cfg.AutoInit {
		result, err := ticketStore.InitializePool(ctx, cfg.PoolSize)
		if err != nil {
			return err
		}
		slog.Info("pool initialization",
			"count", result.Count, "already_initialized", result.AlreadyInitialized)
	}

	// Initialize services
	raffleService := services.NewRaffleService(ticketStore, gw, cfg)
	throttleService := services.NewThrottleService(redisClient, cfg)

	// Initialize handlers
	raffleHandler := handlers.NewRaffleHandler(raffleService, ticketStore, throttleService)
	adminHandler := handlers.NewAdminHandler(ticketStore, cfg)

	// Start background tasks
	go raffleService.SweepExpiredReservations(ctx)

	if cfg.EnableMetrics {
		monitor := monitoring.NewMonitor(ticketStore)
		go monitor.Collect(ctx)
		go serveMetrics(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	// Register routes
	e := echo.New()

	rateLimiter := security.NewRateLimiter(redisClient)
	e.Use(rateLimiter.AntiBotMiddleware())

	// Raffle endpoints
	e.POST("/api/v1/raffle/enter", raffleHandler.EnterRaffle)
	e.GET("/api/v1/tickets", raffleHandler.ListTickets)

	// Admin endpoints
	e.POST("/api/v1/admin/initialize-pool", adminHandler.InitializePool)
	e.GET("/api/v1/admin/pool-summary", adminHandler.GetPoolSummary)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		hctx, hcancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer hcancel()

		if err := db.DB().PingContext(hctx); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "healthy"})
	})

	slog.Info("server routes registered", "port", cfg.Port)

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("shutdown signal received, cleaning up")
	cancel()
}
