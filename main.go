package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/praptisiva25/WorkBud/auth"
	"github.com/praptisiva25/WorkBud/config"
	"github.com/praptisiva25/WorkBud/db"
	"github.com/praptisiva25/WorkBud/logger"
	"github.com/praptisiva25/WorkBud/metrics"
	"github.com/praptisiva25/WorkBud/routes"
	"github.com/praptisiva25/WorkBud/services"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $CONFIG_FILE)")
	addr := flag.String("addr", "", "listen address, overrides PORT")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr == "" {
		addr = ":" + cfg.Port
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.StoreDriver, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	authn, err := auth.New(cfg.Auth)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}
	if cfg.Auth.Mode == config.AuthModeHeader {
		log.Warn("header authentication enabled; callers can claim any identity")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	dispatcher := services.NewDispatcher(log.Named("dispatcher"), m)
	threads := services.NewThreadDirectory(store, cfg.Limits.ThreadListMax, log.Named("threads"))
	messages := services.NewMessageLog(store, dispatcher, cfg.Limits, log.Named("messages"), m)
	users := services.NewUserDirectory(store, cfg.Limits.UserSearch)
	gateway := services.NewGateway(authn, threads, messages, dispatcher, cfg.Realtime, cfg.AllowedOrigins, log.Named("gateway"))

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestLogger(log.Named("http")))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Authorization", "X-User-Id"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.Setup(r, routes.Services{
		Store:    store,
		Threads:  threads,
		Messages: messages,
		Users:    users,
		Gateway:  gateway,
	}, authn, reg, log)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("store", cfg.StoreDriver), zap.String("auth", cfg.Auth.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	dispatcher.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	return nil
}
