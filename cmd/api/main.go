package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc/health"

	"filmbase.org/internal/account"
	"filmbase.org/internal/auth"
	"filmbase.org/internal/cache"
	"filmbase.org/internal/config"
	"filmbase.org/internal/httpapi"
	"filmbase.org/internal/jobs"
	"filmbase.org/internal/migrate"
	"filmbase.org/internal/notify"
	"filmbase.org/internal/obs"
	"filmbase.org/internal/store/memory"
	"filmbase.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		_ = level.Error(obs.Logger()).Log("msg", "fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	logger := obs.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	obs.SetLogger(logger)

	key, err := cfg.SigningKey()
	if err != nil {
		return err
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	reg := prometheus.DefaultRegisterer
	tokenMetrics := obs.NewTokenMetrics(reg)
	accountEvents := obs.NewAccountEvents(reg)
	loginMetrics := obs.NewLoginMetrics(reg)

	codec, err := auth.NewCodec(key,
		auth.WithTokenTTL(cfg.TokenTTL()),
		auth.WithRememberMeTTL(cfg.RememberMeTTL()),
		auth.WithRejectionObserver(tokenMetrics),
		auth.WithLogger(log.With(logger, "component", "token")),
	)
	if err != nil {
		return err
	}

	// Storage: PostgreSQL when a DSN is configured, otherwise in-process.
	var (
		store account.Store
		probe httpapi.ReadyProbe
	)
	if cfg.DatabaseURL != "" {
		pgStore, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		if cfg.AutoMigrate {
			mgr := migrate.NewManager(pgStore.DB(), migrate.WithLogger(log.With(logger, "component", "migrate")))
			if err := mgr.Up(ctx); err != nil {
				return err
			}
		}
		store = pgStore
		probe.DB = pgStore.DB()
		go obs.NewDBStats(reg).Run(ctx, pgStore.DB(), 15*time.Second)
	} else {
		level.Warn(logger).Log("msg", "FILMBASE_PG_DSN not set, using in-memory store")
		store = memory.New()
	}

	var accountCache account.Cache = cache.NewMemory(cfg.CacheTTL)
	if cfg.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		rc := cache.NewRedis(client, "", cfg.CacheTTL, log.With(logger, "component", "cache"))
		accountCache = rc
		probe.Cache = rc
	}

	var transport notify.Transport = notify.LogTransport{Logger: log.With(logger, "component", "mail")}
	if cfg.SMTPAddr != "" {
		transport = notify.SMTPTransport{Addr: cfg.SMTPAddr, Username: cfg.SMTPUsername, Password: cfg.SMTPPassword}
	}
	mailer := notify.NewAsync(
		notify.NewMailer(transport, cfg.MailFrom, cfg.BaseURL, log.With(logger, "component", "mail")),
		2, 256, log.With(logger, "component", "mail"),
	)

	accounts, err := account.NewService(store,
		account.WithCache(accountCache),
		account.WithNotifier(mailer),
		account.WithEventObserver(accountEvents),
		account.WithLogger(log.With(logger, "component", "account")),
	)
	if err != nil {
		return err
	}
	if _, err := accounts.SeedDefaults(ctx, cfg.Seeds()); err != nil {
		return err
	}

	scheduler := jobs.NewScheduler(log.With(logger, "component", "jobs"), time.Minute, time.UTC)
	if err := scheduler.AddSweep(cfg.SweepSchedule, accounts); err != nil {
		return err
	}
	scheduler.Start()

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	api := httpapi.New(accounts, codec,
		httpapi.WithReadyProbe(probe),
		httpapi.WithVersion(version),
		httpapi.WithLoginObserver(loginMetrics),
		httpapi.WithLogger(log.With(logger, "component", "http")),
		httpapi.WithCORSOrigins(cfg.CORSOrigins),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
		httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		httpapi.WithTrustedProxies(proxies),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	hs := health.NewServer()
	grpcSrv := httpapi.NewGRPCServer(codec, hs)
	go httpapi.NewHealthReporter(probe, hs, logger).Run(ctx, 10*time.Second)

	errc := make(chan error, 2)
	go func() {
		level.Info(logger).Log("msg", "http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			errc <- err
			return
		}
		level.Info(logger).Log("msg", "grpc listening", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
		level.Error(logger).Log("msg", "server failed", "err", err)
	}
	level.Info(logger).Log("msg", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		level.Warn(logger).Log("msg", "scheduler stop", "err", err)
	}
	if err := mailer.Close(shutdownCtx); err != nil {
		level.Warn(logger).Log("msg", "mail queue not drained", "err", err)
	}
	level.Info(logger).Log("msg", "stopped")
	return err
}
