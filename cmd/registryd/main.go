package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"authright.org/internal/audit"
	"authright.org/internal/auth"
	"authright.org/internal/broker"
	"authright.org/internal/chain"
	"authright.org/internal/config"
	"authright.org/internal/httpapi"
	"authright.org/internal/obs"
	"authright.org/internal/registry"
	"authright.org/internal/rpc"
	"authright.org/internal/store/pg"
	"authright.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	// Инициализация observability (регистрация метрик)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	log = obs.Logger()

	dir, err := cfg.Directory()
	if err != nil {
		log.Fatal().Err(err).Msg("load accounts")
	}
	tokens := auth.NewTokens(cfg.AuthSecret)
	if !tokens.Enabled() {
		log.Warn().Msg("AUTHRIGHT_AUTH_SECRET not set: writes are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Record store: PostgreSQL when a DSN is configured, memory otherwise.
	var (
		store   registry.Store
		db      *sql.DB
		onBlock func(context.Context, uint64)
		height  uint64
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		defer pgStore.Close()
		height, err = pgStore.LoadHead(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("load chain head")
		}
		store, db = pgStore, pgStore.DB()
		onBlock = func(ctx context.Context, h uint64) {
			if err := pgStore.SaveHead(ctx, h); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Uint64("block", h).Msg("save chain head")
			}
		}
	} else {
		log.Warn().Msg("AUTHRIGHT_PG_DSN not set: using in-memory store")
		store = registry.NewMemoryStore()
	}
	blocks := chain.NewCounter(height)
	obs.SetBlockHeight(height)

	events := stream.New()
	sinks := []registry.Sink{events, audit.Sink{}}
	if cfg.AMQPURL != "" {
		pub, err := broker.Dial(ctx, cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("connect amqp")
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	reg := registry.New(store, blocks, registry.WithSink(registry.Sinks(sinks...)))

	// HTTP API
	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, reg,
		httpapi.WithTokens(tokens, dir, cfg.TokenTTL),
		httpapi.WithStream(events),
		httpapi.WithBlocks(blocks),
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// No WriteTimeout: /v1/events is a long-lived stream.
		IdleTimeout: 60 * time.Second,
	}
	srv.RegisterOnShutdown(events.Close)

	// gRPC API
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("listen grpc")
	}
	grpcServer, health := rpc.NewGRPCServer(rpc.NewServer(reg), tokens)

	errs := make(chan error, 2)
	go func() {
		log.Info().Str("version", version).Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("grpc listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- err
		}
	}()
	go blocks.Run(ctx, cfg.BlockInterval, onBlock)
	obs.SetReady(true)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errs:
		log.Error().Err(err).Msg("server failed")
	}
	stop()
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	health.Shutdown()
	grpcServer.GracefulStop()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}
