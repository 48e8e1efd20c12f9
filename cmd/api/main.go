package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"

	fsprofilerepo "github.com/Lumos-Programming/profile-api/internal/adapters/firestore/profilerepo"
	"github.com/Lumos-Programming/profile-api/internal/adapters/httpapi"
	"github.com/Lumos-Programming/profile-api/internal/adapters/httpclient/lineoauth"
	memidempotency "github.com/Lumos-Programming/profile-api/internal/adapters/memory/idempotency"
	memprofilerepo "github.com/Lumos-Programming/profile-api/internal/adapters/memory/profilerepo"
	postgres "github.com/Lumos-Programming/profile-api/internal/adapters/postgres"
	pgidempotency "github.com/Lumos-Programming/profile-api/internal/adapters/postgres/idempotency"
	"github.com/Lumos-Programming/profile-api/internal/adapters/postgres/migrations"
	pgprofilerepo "github.com/Lumos-Programming/profile-api/internal/adapters/postgres/profilerepo"
	redisidempotency "github.com/Lumos-Programming/profile-api/internal/adapters/redis/idempotency"
	"github.com/Lumos-Programming/profile-api/internal/app/profiles"
	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/Lumos-Programming/profile-api/internal/platform/clock"
	"github.com/Lumos-Programming/profile-api/internal/platform/config"
	"github.com/Lumos-Programming/profile-api/internal/platform/metrics"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/accountlink"
	idempotencyport "github.com/Lumos-Programming/profile-api/internal/ports/out/idempotency"
	profilerepoport "github.com/Lumos-Programming/profile-api/internal/ports/out/profilerepo"
)

func main() {
	cfg := config.LoadServerConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	profileCfg, err := config.LoadProfileConfig()
	if err != nil {
		log.Fatalf("invalid profile config: %v", err)
	}
	reg, err := profileCfg.Registry()
	if err != nil {
		log.Fatalf("invalid profile config: %v", err)
	}
	caps, err := profileCfg.Capabilities()
	if err != nil {
		log.Fatalf("invalid profile config: %v", err)
	}

	// Auth configuration:
	// - Production: require JWT_* env vars and enforce bearer auth
	// - Local dev: set AUTH_MODE=dev to bypass JWT verification and use X-Debug-Subject
	var authMW func(http.Handler) http.Handler
	authIssuer := ""
	switch cfg.AuthMode {
	case "dev":
		authMW = httpapi.NewDevAuthMiddleware(cfg.DevSubject)
		authIssuer = cfg.DevIssuer
	default:
		jwtCfg, err := config.LoadJWTConfigFromEnv()
		if err != nil {
			log.Fatalf("invalid auth config: %v", err)
		}
		verifier := jwtverifier.New(jwtCfg)
		authMW = httpapi.NewAuthMiddleware(verifier)
		authIssuer = jwtCfg.Issuer
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := platformclock.NewSystemClock()
	met := metrics.New()

	var (
		profileRepo profilerepoport.Repository
		idemStore   idempotencyport.Store
		cleanups    []func()
	)
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	var pgStore *pgidempotency.Store
	needPostgres := cfg.StorageBackend == "postgres" || cfg.IdempotencyBackend == "postgres"
	if needPostgres {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: int32(cfg.DatabaseMaxConns)})
		if err != nil {
			log.Fatalf("invalid postgres config: %v", err)
		}
		cleanups = append(cleanups, pool.Close)
		if cfg.MigrateOnStart {
			if err := migrations.Apply(ctx, pool); err != nil {
				log.Fatalf("apply migrations: %v", err)
			}
		}
		if cfg.StorageBackend == "postgres" {
			profileRepo = pgprofilerepo.NewRepo(pool, authIssuer)
		}
		if cfg.IdempotencyBackend == "postgres" {
			pgStore = pgidempotency.NewStore(pool, authIssuer, clk, cfg.IdempotencyTTL)
			idemStore = pgStore
		}
	}

	switch cfg.StorageBackend {
	case "postgres":
	case "firestore":
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			log.Fatalf("firestore client: %v", err)
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		profileRepo = fsprofilerepo.NewRepo(client, cfg.FirestoreProfiles)
	default:
		profileRepo = memprofilerepo.NewRepo()
	}

	switch cfg.IdempotencyBackend {
	case "postgres":
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		cleanups = append(cleanups, func() { _ = rdb.Close() })
		idemStore = redisidempotency.NewStore(rdb, clk, cfg.IdempotencyTTL)
	default:
		idemStore = memidempotency.NewStore(clk, cfg.IdempotencyTTL)
	}

	if pgStore != nil {
		go purgeIdempotencyKeys(ctx, pgStore, logger)
	}

	lineClient := lineoauth.New(lineoauth.Options{
		ChannelID:     profileCfg.LINE.ChannelID,
		ChannelSecret: profileCfg.LINE.ChannelSecret,
		RedirectURI:   profileCfg.LINE.RedirectURI,
	})
	if !profileCfg.LINE.Configured() {
		logger.Warn("line channel not configured; account linking disabled")
	}

	profileSvc := profiles.NewService(profileRepo, clk, profiles.Options{
		Registry:     reg,
		Capabilities: caps,
		Logger:       logger,
		Metrics:      met,

		AccountProviders: map[domain.ServiceID]accountlink.Provider{
			domain.ServiceLINE: lineClient,
		},
	})
	api := httpapi.NewServer(profileSvc, idemStore, clk, logger, met)
	api.LinkStates = map[domain.ServiceID]string{domain.ServiceLINE: profileCfg.LINE.State}

	handler := httpapi.NewRouterWithOptions(
		api,
		httpapi.RouterOptions{AuthMiddleware: authMW, Metrics: met},
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"port", cfg.Port,
			"auth", cfg.AuthMode,
			"storage", cfg.StorageBackend,
			"idempotency", cfg.IdempotencyBackend,
			"bio_capabilities", caps.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func purgeIdempotencyKeys(ctx context.Context, s *pgidempotency.Store, logger *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Purge(ctx)
			if err != nil {
				logger.Warn("purging idempotency keys failed", "err", err)
				continue
			}
			logger.Debug("purged idempotency keys", "count", n)
		}
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
