package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auth-service/internal/api/http"
	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/notify"
	"github.com/spec-kit/auth-service/internal/oauth"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/otp"
	"github.com/spec-kit/auth-service/internal/persistence"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/secret"
	"github.com/spec-kit/auth-service/internal/service"
	"github.com/spec-kit/auth-service/internal/session"
	"github.com/spec-kit/auth-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cipher, err := secret.NewCipher(cfg.Auth.EncryptionKey)
	if err != nil {
		logger.Fatal("invalid encryption key", zap.Error(err))
	}
	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Access:  auth.ClassSpec{Secret: cfg.Auth.AccessTokenSecret, TTL: cfg.Auth.AccessTokenTTL()},
		Refresh: auth.ClassSpec{Secret: cfg.Auth.RefreshTokenSecret, TTL: cfg.Auth.RefreshTokenTTL()},
		Pending: auth.ClassSpec{Secret: cfg.Auth.PendingTokenSecret, TTL: cfg.Auth.PendingTokenTTL()},
	})
	if err != nil {
		logger.Fatal("invalid token configuration", zap.Error(err))
	}
	roleTable, err := auth.LoadRoleTable(cfg.Auth.RoleTablePath)
	if err != nil {
		logger.Fatal("invalid role table", zap.Error(err))
	}
	permissions := auth.NewPermissionEngine(roleTable)

	readiness := map[string]handlers.Pinger{}

	var (
		identityRepo repository.IdentityRepository
		auditRepo    repository.AuditLogRepository
	)
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}

		pool := pg.PoolHandle()
		identityRepo = repository.NewIdentityRepository(pool)
		auditRepo = repository.NewAuditLogRepository(pool)
		readiness["postgres"] = pg
	} else {
		logger.Warn("POSTGRES_DSN not set; identities are kept in memory")
		identityRepo = repository.NewMemoryIdentityRepository()
		auditRepo = repository.NewMemoryAuditLogRepository()
	}

	var sessions session.Store
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		logger.Warn("session whitelist is in memory; sessions do not survive restarts")
		sessions = session.NewMemoryStore(nil)
	default:
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		sessions = session.NewRedisStore(redis.Client, cfg.Session.KeyPrefix)
		readiness["redis"] = redis
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Mail.Host != "" {
		smtpNotifier, err := notify.NewSMTPNotifier(cfg.Mail)
		if err != nil {
			logger.Fatal("failed to prepare mail templates", zap.Error(err))
		}
		notifier = smtpNotifier
	}

	var provider oauth.Verifier
	if cfg.OAuth.GoogleClientID != "" {
		provider = oauth.NewGoogleVerifier(cfg.OAuth.GoogleClientID, nil)
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	auditService := service.NewAuditService(dispatcher, auditRepo, metrics, logger)
	worker.StartAuditWorker(auditService)

	authService, err := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Identities: identityRepo,
		Sessions:   sessions,
		Tokens:     tokens,
		Cipher:     cipher,
		OTP: otp.NewEngine(otp.Config{
			Issuer: cfg.Auth.OTPIssuer,
			Period: uint(cfg.Auth.OTPPeriodSeconds),
			Skew:   &cfg.Auth.OTPSkew,
		}),
		Notifier: notifier,
		Provider: provider,
		Events:   dispatcher,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to build auth service", zap.Error(err))
	}
	identityService, err := service.NewIdentityService(cfg.Auth.BcryptCost, service.IdentityDependencies{
		Identities:  identityRepo,
		Sessions:    sessions,
		Permissions: permissions,
		Events:      dispatcher,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to build identity service", zap.Error(err))
	}

	var sessionChecker auth.SessionChecker
	if cfg.Auth.StrictAccess {
		sessionChecker = sessions
	}
	authMiddleware := auth.NewAuthMiddleware(tokens, sessionChecker)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		RequestTimeout: cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.AllowedOrigins,
	})

	cookies := handlers.CookieConfig{
		Secure:     cfg.Auth.CookieSecure,
		RefreshTTL: cfg.Auth.RefreshTokenTTL(),
		PendingTTL: cfg.Auth.PendingTokenTTL(),
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Auth:           handlers.NewAuthHandler(authService, cookies),
		Users:          handlers.NewUsersHandler(identityService, cookies),
		Admin:          handlers.NewAdminHandler(identityService, auditService),
		AuthMiddleware: authMiddleware,
		Permissions:    permissions,
		RateLimits:     cfg.RateLimit,
		Metrics:        metrics.Handler(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
