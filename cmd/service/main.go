package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/homesentry/internal/auth"
	"github.com/dropDatabas3/homesentry/internal/cache"
	cachememory "github.com/dropDatabas3/homesentry/internal/cache/memory"
	cacheredis "github.com/dropDatabas3/homesentry/internal/cache/redis"
	"github.com/dropDatabas3/homesentry/internal/config"
	"github.com/dropDatabas3/homesentry/internal/email"
	httpserver "github.com/dropDatabas3/homesentry/internal/http"
	"github.com/dropDatabas3/homesentry/internal/http/handlers"
	mw "github.com/dropDatabas3/homesentry/internal/http/middlewares"
	"github.com/dropDatabas3/homesentry/internal/identity"
	jwtx "github.com/dropDatabas3/homesentry/internal/jwt"
	"github.com/dropDatabas3/homesentry/internal/observability/logger"
	"github.com/dropDatabas3/homesentry/internal/rate"
	"github.com/dropDatabas3/homesentry/internal/security/secretbox"
	"github.com/dropDatabas3/homesentry/internal/session"
	"github.com/dropDatabas3/homesentry/internal/store/core"
	storememory "github.com/dropDatabas3/homesentry/internal/store/memory"
	"github.com/dropDatabas3/homesentry/internal/store/pg"
)

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $CONFIG_PATH)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
	)
	flag.Parse()

	if *flagEnvFile != "" && fileExists(*flagEnvFile) {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			log.Printf("dotenv: cargado %s", *flagEnvFile)
		}
	}

	cfgPath := *flagConfigPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" && fileExists("configs/config.yaml") {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: os.Getenv("LOG_LEVEL"), ServiceName: "homesentry"})
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("main")

	// ─── Cripto: sin master key ni secret JWT no arrancamos ───
	if err := secretbox.Init(cfg.Security.MasterKey); err != nil {
		lg.Fatal("master key inválida", logger.Err(err))
	}
	issuer, err := jwtx.NewIssuer(cfg.JWT.Issuer, cfg.JWT.Secret, cfg.AccessTTL())
	if err != nil {
		lg.Fatal("jwt issuer", logger.Err(err))
	}

	ctx := context.Background()

	// ─── Storage ───
	var (
		repo    core.Repository
		pgStore *pg.Store
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pgStore, err = pg.Open(ctx, cfg.Storage.DSN, cfg.Storage.Postgres.MaxConns, cfg.Storage.Postgres.MinConns)
		if err != nil {
			lg.Fatal("postgres", logger.Err(err))
		}
		defer pgStore.Close()
		if cfg.Flags.Migrate {
			if err := pgStore.Migrate(ctx); err != nil {
				lg.Fatal("migrations", logger.Err(err))
			}
		}
		repo = pgStore
	default:
		lg.Warn("storage en memoria: los datos se pierden al reiniciar")
		repo = storememory.New()
	}

	// ─── Cache + rate limit ───
	var (
		appCache    cache.Cache
		authLimiter rate.Limiter
	)
	if cfg.Cache.Kind == "redis" {
		rc := rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, Password: cfg.Cache.Redis.Password, DB: cfg.Cache.Redis.DB})
		redisCache := cacheredis.NewFromClient(rc)
		if err := redisCache.Ping(ctx); err != nil {
			lg.Fatal("redis", logger.Err(err))
		}
		defer redisCache.Close()
		appCache = redisCache
		if cfg.Rate.Enabled {
			authLimiter = rate.NewRedisLimiter(rc, "rl:auth", cfg.Rate.Auth.Limit, cfg.RateAuthWindow())
		}
	} else {
		appCache = cachememory.New(cfg.CacheMemoryTTL())
		if cfg.Rate.Enabled {
			authLimiter = rate.NewMemoryLimiter(cfg.Rate.Auth.Limit, cfg.RateAuthWindow())
		}
	}

	// ─── Email ───
	var mailer identity.Mailer
	if cfg.SMTP.Host != "" {
		sender := email.FromConfig(email.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.From,
			TLSMode:   cfg.SMTP.TLS,
		})
		mailer = sender
	} else {
		lg.Warn("SMTP sin configurar: los links de verificación van al log")
	}

	// ─── Services ───
	var legacy auth.LegacyVerifier
	if cfg.Auth.LegacyIntrospectURL != "" {
		legacy = auth.NewHTTPLegacyVerifier(cfg.Auth.LegacyIntrospectURL)
	}
	gate := auth.NewGate(repo, issuer, legacy).WithCache(appCache, cfg.CacheMemoryTTL())
	sessions := session.NewManager(repo, issuer, cfg.RefreshTTL())
	ident := identity.New(repo, mailer, cfg.Email.BaseURL, cfg.Auth.Verify.TTL)

	// ─── Métricas ───
	var poolFn func() *pgxpool.Pool
	if pgStore != nil {
		poolFn = pgStore.Pool
	}
	metricsHandler, err := httpserver.RegisterMetrics(prometheus.DefaultRegisterer, poolFn)
	if err != nil {
		lg.Fatal("metrics", logger.Err(err))
	}
	mw.RejectHook = httpserver.RecordAuthReject

	h := &handlers.Handlers{
		Repo:     repo,
		Identity: ident,
		Sessions: sessions,
		Gate:     gate,
		Cookies: handlers.CookieConfig{
			Name:     cfg.Auth.Session.CookieName,
			Domain:   cfg.Auth.Session.Domain,
			SameSite: cfg.Auth.Session.SameSite,
			Secure:   cfg.Auth.Session.Secure,
		},
		OnClaim:   httpserver.RecordDeviceClaim,
		OnRefresh: httpserver.RecordRefreshRotation,
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Handlers:    h,
		Gate:        gate,
		AuthLimiter: authLimiter,
	})

	srv := httpserver.NewServer(cfg.Server.Addr, router)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(srv.ListenAndServe)

	if cfg.Server.MetricsAddr != "" {
		msrv := httpserver.NewServer(cfg.Server.MetricsAddr, metricsHandler)
		g.Go(msrv.ListenAndServe)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return msrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("apagando")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		lg.Fatal("server", logger.Err(err))
	}
	lg.Info("bye")
}
