package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callcenter/internal/audit"
	"callcenter/internal/auth"
	"callcenter/internal/callevents"
	"callcenter/internal/calllog"
	"callcenter/internal/config"
	"callcenter/internal/contacts"
	"callcenter/internal/endpoints"
	"callcenter/internal/events"
	"callcenter/internal/metrics"
	"callcenter/internal/store"
	"callcenter/internal/telephony"
	"callcenter/pkg/logger"
	"callcenter/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := store.Open(rootCtx, cfg)
	if err != nil {
		log.Error("store init failed", "driver", cfg.DB.Driver, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	metrics.Register()

	callBus := events.NewBroadcaster[calllog.Record](events.CategoryCallLogs, log)
	contactBus := events.NewBroadcaster[contacts.Contact](events.CategoryContacts, log)

	directory := endpoints.NewCachedDirectory(
		rdb,
		endpoints.NewSQLDirectory(db, endpoints.ProviderTwilio),
		cfg.Events.EndpointCacheTTL,
		log,
	)
	pipeline := callevents.NewService(
		calllog.NewService(calllog.NewSQLRepo(db), directory, callBus, log),
		contacts.NewCorrelator(contacts.NewSQLRepo(db), contactBus, log),
	)
	auditSvc := audit.NewService(audit.NewSQLRepo(db))

	twilio := telephony.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.CallerID)
	if cfg.Twilio.AuthToken == "" {
		log.Warn("TWILIO_AUTH_TOKEN not set; call-status webhooks will be refused")
	}

	var slots events.Slots
	if cfg.Stream.MaxPerUser > 0 {
		// The TTL outlives a few missed keepalives so a crashed process frees its slots.
		limiter, err := utils.NewSlotLimiter(rdb, "streams", cfg.Stream.MaxPerUser, 4*cfg.Stream.Keepalive)
		if err != nil {
			log.Error("stream limiter init failed", "err", err)
			os.Exit(1)
		}
		slots = limiter
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, deps{
		auth:       authManager,
		pipeline:   pipeline,
		audit:      auditSvc,
		calls:      twilio,
		endpoints:  directory,
		callBus:    callBus,
		contactBus: contactBus,
		slots:      slots,
		cfg:        cfg,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Streams lift this per connection.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "db", cfg.DB.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated", "call_log_streams", callBus.Len(), "contact_streams", contactBus.Len())

	// Open streams never go idle, so end them before Shutdown waits on connections.
	callBus.CloseAll()
	contactBus.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
