package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/stormsignal/weather-notify/internal/api"
	"github.com/stormsignal/weather-notify/internal/config"
	"github.com/stormsignal/weather-notify/internal/dispatch"
	"github.com/stormsignal/weather-notify/internal/feed"
	"github.com/stormsignal/weather-notify/internal/geo"
	"github.com/stormsignal/weather-notify/internal/logging"
	"github.com/stormsignal/weather-notify/internal/notify"
	"github.com/stormsignal/weather-notify/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := dispatch.NewMetrics(reg)

	smtpSender := notify.NewSMTPSender(cfg.SMTP)
	notifier := notify.NewNotifier(smtpSender, smtpSender)

	dispatcher := dispatch.NewDispatcher(
		feed.NewClient(cfg.Feed),
		db,
		geo.NewMatcher(db),
		notifier,
		clockwork.NewRealClock(),
		metrics,
		cfg.Dispatch,
		cfg.Worker,
	)

	// Schedule the dispatch cycle and the expiry sweep. An immediate
	// first cycle backstops a long poll interval after restarts.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", dispatcher.PollInterval()), func() {
		if err := dispatcher.RunCycle(ctx); err != nil {
			slog.Error("dispatch cycle failed", "error", err)
		}
	}); err != nil {
		logging.Fatalf("Failed to schedule dispatch cycle: %v", err)
	}
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", dispatcher.SweepInterval()), func() {
		if err := dispatcher.RunExpirySweep(ctx); err != nil {
			slog.Error("expiry sweep failed", "error", err)
		}
	}); err != nil {
		logging.Fatalf("Failed to schedule expiry sweep: %v", err)
	}
	scheduler.Start()

	go func() {
		if err := dispatcher.RunCycle(ctx); err != nil {
			slog.Error("initial dispatch cycle failed", "error", err)
		}
	}()

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

	handler := api.NewHandler(db, dispatcher, clockwork.NewRealClock())
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	// Stop scheduling new cycles and let any running one finish.
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
