package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/auth"
	authRedis "github.com/frahmantamala/rbac-service/internal/auth/redis"
	"github.com/frahmantamala/rbac-service/internal/core/cache"
	"github.com/frahmantamala/rbac-service/internal/core/clock"
	"github.com/frahmantamala/rbac-service/internal/core/database"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/core/metrics"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	rbacPostgres "github.com/frahmantamala/rbac-service/internal/rbac/postgres"
	rbacRedis "github.com/frahmantamala/rbac-service/internal/rbac/redis"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/internal/transport/rest"
	"github.com/frahmantamala/rbac-service/internal/transport/swagger"
	"github.com/frahmantamala/rbac-service/internal/user"
	userPostgres "github.com/frahmantamala/rbac-service/internal/user/postgres"
	"github.com/frahmantamala/rbac-service/pkg/logger"
)

const backendRedis = "redis"

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

// Dependencies is the wired application shared by the server and seed
// commands.
type Dependencies struct {
	Config  *internal.Config
	DB      *gorm.DB
	Redis   *goredis.Client
	Logger  *slog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Bus     *events.EventBus

	Engine   *rbac.Engine
	Resolver *rbac.Resolver
	RBAC     *rbac.Service
	Users    *user.Service
	Hasher   *auth.BcryptHasher
	Sessions *auth.Service
}

func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if err := database.Close(d.DB); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func startHTTPServer() {
	deps, err := initializeDependencies(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	router := chi.NewRouter()
	setupRoutes(router, deps)

	cfg := deps.Config.Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "environment", deps.Config.Environment)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(router *chi.Mux, deps *Dependencies) {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	openAPIPath := ""
	if _, err := os.Stat(openAPIFile); err == nil {
		doc, err := swagger.LoadSpec(context.Background(), openAPIFile)
		if err != nil {
			deps.Logger.Warn("openapi document rejected, swagger disabled", "path", openAPIFile, "error", err)
		} else {
			openAPIPath = openAPIFile
			deps.Logger.Debug("openapi document loaded", "operations", len(swagger.Operations(doc)))
		}
	}

	checks := map[string]rest.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}
	}

	rest.RegisterAllRoutes(router, rest.Dependencies{
		Logger:          deps.Logger,
		Production:      cfg.IsProduction(),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		LoginRateLimit:  cfg.Server.LoginRateLimit,
		LoginRateWindow: cfg.Server.LoginRateWindow,
		TrustProxy:      cfg.Server.TrustProxyHeaders,
		Metrics:         deps.Metrics,
		MetricsPath:     metricsPath,
		OpenAPIPath:     openAPIPath,
		HealthChecks:    checks,
		Sessions:        deps.Sessions,
		Authorizer:      deps.Engine,
		AuthHandler:     auth.NewHandler(base, deps.Sessions),
		UserHandler:     user.NewHandler(base, deps.Users, deps.Resolver),
		RBACHandler:     rbac.NewHandler(base, deps.RBAC, deps.Engine),
	})
}

const openAPIFile = "./api/openapi.yml"

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitFormat(cfg.Environment, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	lg := logger.LoggerWrapper()
	clk := clock.System()

	db, err := database.Open(cfg.Database, clk.Now)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}

	deps := &Dependencies{
		Config: cfg,
		DB:     db,
		Logger: lg,
		Clock:  clk,
		Bus:    events.NewEventBus(lg),
	}

	if cfg.Observability.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}
	events.NewAuditLogger(lg).Register(deps.Bus)

	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Redis = client
	}

	if err := wireServices(deps); err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}

func wireServices(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger
	tx := database.NewTxManager(deps.DB)

	var permCache rbac.Cache = rbac.NewMemoryCache(cfg.Authorization.CacheTTL, deps.Clock)
	if cfg.Authorization.CacheBackend == backendRedis {
		permCache = rbacRedis.NewPermissionCache(deps.Redis, cfg.Redis.KeyPrefix, cfg.Authorization.CacheTTL, deps.Clock, lg)
	}

	rbacRepo := rbacPostgres.NewRBACRepository(deps.DB)
	deps.Resolver = rbac.NewResolver(rbacRepo)
	deps.Engine = rbac.NewEngine(deps.Resolver, permCache, deps.Metrics, lg)
	deps.RBAC = rbac.NewService(rbacRepo, tx, deps.Engine, deps.Bus, deps.Clock, lg)

	deps.Hasher = auth.NewBcryptHasher(cfg.Security.BCryptCost)
	deps.Users = user.NewService(userPostgres.NewUserRepository(deps.DB), tx, deps.Hasher, deps.Engine, deps.Bus, deps.Clock, lg)

	var blacklist auth.Blacklist = auth.NewMemoryBlacklist(deps.Clock)
	if cfg.Authorization.BlacklistBackend == backendRedis {
		blacklist = authRedis.NewBlacklist(deps.Redis, cfg.Redis.KeyPrefix, deps.Clock)
	}

	tokens, err := auth.NewTokenAuthority(auth.TokenConfig{
		Secret:        cfg.Security.JWTSecret,
		Issuer:        cfg.Security.JWTIssuer,
		AccessTTL:     cfg.Security.AccessTokenDuration,
		RefreshTTL:    cfg.Security.RefreshTokenDuration,
		RememberMeTTL: cfg.Security.RememberMeRefreshDuration,
		Production:    cfg.IsProduction(),
	}, deps.Users, blacklist, deps.Clock, deps.Metrics, lg)
	if err != nil {
		return err
	}

	lockout := auth.NewLockoutTracker(auth.LockoutPolicy{
		MaxAttempts: cfg.Security.MaxLoginAttempts,
		Lockout:     cfg.Security.LockoutDuration,
		Window:      cfg.Security.AttemptWindow,
	}, deps.Clock)
	verifier := auth.NewCredentialVerifier(deps.Users, deps.Hasher, lockout, deps.Metrics, lg)

	deps.Sessions = auth.NewService(verifier, tokens, deps.Users, deps.Resolver, deps.Bus, deps.Clock, lg)
	deps.Sessions.Register(deps.Bus)
	return nil
}
