package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"beantrace/internal/attestation/directory"
	attMetrics "beantrace/internal/attestation/metrics"
	attService "beantrace/internal/attestation/service"
	attStore "beantrace/internal/attestation/store"
	"beantrace/internal/attestation/tracer"
	credMetrics "beantrace/internal/credential/metrics"
	credService "beantrace/internal/credential/service"
	credStore "beantrace/internal/credential/store"
	identityService "beantrace/internal/identity/service"
	identityStore "beantrace/internal/identity/store"
	"beantrace/internal/identity/vault"
	"beantrace/internal/jwtauth"
	"beantrace/internal/platform/config"
	"beantrace/internal/platform/database"
	"beantrace/internal/platform/httpserver"
	"beantrace/internal/platform/logger"
	reputationService "beantrace/internal/reputation/service"
	"beantrace/internal/seeder"
	tokenMetrics "beantrace/internal/token/metrics"
	tokenService "beantrace/internal/token/service"
	tokenStore "beantrace/internal/token/store"
	"beantrace/internal/token/workers/cleanup"
	httptransport "beantrace/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	vaultSecret := cfg.VaultSecret
	channelKey := cfg.ChannelSigningKey
	if vaultSecret == "" || channelKey == "" {
		if !cfg.DevMode {
			log.Error("BEANTRACE_VAULT_SECRET and BEANTRACE_CHANNEL_SIGNING_KEY are required outside dev mode")
			os.Exit(1)
		}
		// Dev mode: ephemeral secrets, state dies with the process.
		if vaultSecret == "" {
			vaultSecret = randomSecret()
		}
		if channelKey == "" {
			channelKey = randomSecret()
		}
		log.Warn("dev mode: using generated secrets")
	}

	v, err := vault.New(vaultSecret)
	if err != nil {
		log.Error("vault init failed", "error", err)
		os.Exit(1)
	}
	channelAuth, err := jwtauth.NewService(channelKey, cfg.ChannelTokenTTL)
	if err != nil {
		log.Error("channel auth init failed", "error", err)
		os.Exit(1)
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close() //nolint:errcheck
	if pool != nil {
		if err := pool.Migrate(context.Background()); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	var identities identityStore.Store = identityStore.NewInMemory()
	var credentials credStore.Store = credStore.NewInMemory()
	var tokens tokenStore.Store = tokenStore.NewInMemory()
	if pool != nil {
		identities = identityStore.NewPostgres(pool.DB())
		credentials = credStore.NewPostgres(pool.DB())
		tokens = tokenStore.NewPostgres(pool.DB())
	}
	if cfg.RedisAddr != "" {
		tokens = tokenStore.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}
	sessions := attStore.NewInMemory()
	subjects := directory.NewInMemory()

	identitySvc := identityService.NewService(identities, v, log)
	// Shared with the cleanup worker, which reports deletions on the same
	// collectors.
	tokenMtx := tokenMetrics.New()
	tokenSvc := tokenService.NewService(tokens, log,
		tokenService.WithMetrics(tokenMtx),
	)
	credentialSvc := credService.NewService(credentials, identitySvc, log,
		credService.WithMetrics(credMetrics.New()),
	)
	attestationSvc := attService.NewService(
		sessions, identitySvc, tokenSvc, subjects, credentialSvc, log,
		attService.WithSessionTTL(cfg.SessionTTL),
		attService.WithMetrics(attMetrics.New()),
		attService.WithTracer(tracer.NewOTel()),
	)
	reputationSvc := reputationService.NewService(credentials, log)

	if cfg.DevMode {
		if err := seeder.New(identitySvc, tokenSvc, subjects, channelAuth, log).Run(context.Background()); err != nil {
			log.Error("seeding failed", "error", err)
			os.Exit(1)
		}
	}

	cleaner, err := cleanup.New(tokens, sessions,
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithLogger(log),
		cleanup.WithMetrics(tokenMtx),
	)
	if err != nil {
		log.Error("cleanup init failed", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(identitySvc, tokenSvc, attestationSvc, credentialSvc, reputationSvc, subjects, log,
		httptransport.WithTokenTTL(cfg.TokenTTL),
	)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, channelAuth, log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := cleaner.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
