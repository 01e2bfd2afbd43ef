package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"devvault.dev/internal/auth"
	"devvault.dev/internal/config"
	"devvault.dev/internal/health"
	"devvault.dev/internal/httpapi"
	"devvault.dev/internal/migrate"
	"devvault.dev/internal/obs"
	"devvault.dev/internal/store/memory"
	"devvault.dev/internal/store/pg"
	"devvault.dev/internal/tracker"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what both stores provide.
type backend interface {
	auth.CredentialStore
	auth.ResourceFinder
	tracker.Store
	httpapi.Pinger
}

func main() {
	fs := config.Flags("devvault-api")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load(fs, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obs.Logger().Error("devvault-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := obs.Setup("devvault-api", version, cfg.LogFormat, os.Stdout)
	obs.SetLogger(logger)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var store backend
	if cfg.DatabaseDSN != "" {
		pgStore, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		if err := pgStore.WaitReady(ctx, 10); err != nil {
			return fmt.Errorf("database not reachable: %w", err)
		}
		if cfg.MigrateOnStart {
			applied, err := migrate.NewManager(pgStore.DB(), nil, migrate.WithLogger(logger)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", "count", len(applied))
		}
		store = pgStore
	} else {
		logger.Warn("no database configured, using the in-memory store")
		store = memory.New()
	}

	tokenCfg := auth.TokenConfig{
		Secret: []byte(cfg.AuthSecret),
		Issuer: cfg.TokenIssuer,
		TTL:    cfg.TokenTTL,
	}
	issuer, err := auth.NewTokenIssuer(tokenCfg)
	if err != nil {
		return err
	}
	revoked := auth.NewRevocationList(nil)
	validator, err := auth.NewTokenValidator(tokenCfg, auth.WithRevocations(revoked))
	if err != nil {
		return err
	}
	hasher := auth.NewArgon2idHasher(auth.DefaultArgon2Params)
	authSvc, err := auth.NewService(store, hasher, issuer, auth.WithLogoutRevocations(revoked))
	if err != nil {
		return err
	}
	trackerSvc, err := tracker.NewService(store, auth.NewGuard(store))
	if err != nil {
		return err
	}

	probe := httpapi.ReadyProbe{Store: store}
	api, err := httpapi.New(httpapi.Options{
		Auth:           authSvc,
		Validator:      validator,
		Tracker:        trackerSvc,
		Ready:          probe,
		Version:        version,
		RateBurst:      cfg.RateLimitBurst,
		RatePerSec:     cfg.RateLimitPerSec,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		hs := health.New(probe, logger)
		hs.Register(grpcSrv)
		go hs.Run(ctx, 5*time.Second)
		go func() {
			logger.Info("grpc health listening", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("stopped")
	return runErr
}
