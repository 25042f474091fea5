// dify-api is the console + service API server: OAuth login, account
// provisioning, app management and API key issuance.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/gofancyever/dify/internal/cache"
	"github.com/gofancyever/dify/internal/config"
	appsctrl "github.com/gofancyever/dify/internal/http/controllers/apps"
	authctrl "github.com/gofancyever/dify/internal/http/controllers/auth"
	healthctrl "github.com/gofancyever/dify/internal/http/controllers/health"
	"github.com/gofancyever/dify/internal/http/router"
	"github.com/gofancyever/dify/internal/http/server"
	svcapps "github.com/gofancyever/dify/internal/http/services/apps"
	svcauth "github.com/gofancyever/dify/internal/http/services/auth"
	"github.com/gofancyever/dify/internal/notify"
	"github.com/gofancyever/dify/internal/oauth"
	"github.com/gofancyever/dify/internal/oauth/github"
	"github.com/gofancyever/dify/internal/oauth/google"
	"github.com/gofancyever/dify/internal/oauth/partner"
	"github.com/gofancyever/dify/internal/observability/logger"
	"github.com/gofancyever/dify/internal/rate"
	"github.com/gofancyever/dify/internal/store/core"
	"github.com/gofancyever/dify/internal/store/memory"
	"github.com/gofancyever/dify/internal/store/pg"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "ruta al config yaml")
	flag.Parse()

	// .env opcional, útil en dev
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "dify-api",
		Version:     version,
	})
	defer logger.Sync()
	log := logger.L().With(logger.Component("main"))

	ctx := context.Background()

	// storage
	var repo core.Repository
	switch cfg.Storage.Driver {
	case "postgres":
		store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MinIdleConns:    cfg.Storage.Postgres.MinIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		repo = store
	default:
		log.Warn("using in-memory storage, data will not survive restarts")
		repo = memory.New()
	}

	// cache
	c := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		RedisAddr:  cfg.Cache.Redis.Addr,
		RedisDB:    cfg.Cache.Redis.DB,
		DefaultTTL: config.Dur(cfg.Cache.Memory.DefaultTTL, 0),
	})

	// rate limiting: sólo con backend redis
	var limiter rate.Limiter = rate.NoopLimiter{}
	if cfg.Rate.Enabled {
		if redisCache, ok := c.(*cache.Redis); ok {
			limiter = rate.NewRedisLimiter(redisCache.Client(), "rl:",
				cfg.Rate.Max, config.Dur(cfg.Rate.Window, 0))
		} else {
			log.Warn("rate limiting enabled but cache is not redis, disabled")
		}
	}

	// notificaciones post-commit
	notifier := notify.New(
		notify.AuditSink{},
		notify.NewEmailSink(notify.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			From:               cfg.SMTP.From,
			AdminEmail:         cfg.SMTP.AdminEmail,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		}),
	)

	// proveedores de identidad
	registry := oauth.NewRegistry()
	if cfg.Providers.GitHub.Enabled {
		registry.Register("github", github.New(
			cfg.Providers.GitHub.ClientID,
			cfg.Providers.GitHub.ClientSecret,
			cfg.Console.APIURL+"/console/api/oauth/authorize/github",
		))
	}
	if cfg.Providers.Google.Enabled {
		registry.Register("google", google.New(
			cfg.Providers.Google.ClientID,
			cfg.Providers.Google.ClientSecret,
			cfg.Console.APIURL+"/console/api/oauth/authorize/google",
		))
	}
	log.Info("identity providers registered", logger.Any("providers", registry.Names()))

	// servicios
	features := svcauth.NewFeatureService(svcauth.SystemFeatures{
		AllowRegister:        cfg.Features.AllowRegister,
		AllowCreateWorkspace: cfg.Features.AllowCreateWorkspace,
	})
	provision := svcauth.NewProvisionService(svcauth.ProvisionDeps{
		Repo:               repo,
		Features:           features,
		Notifier:           notifier,
		SupportedLanguages: cfg.Languages,
	})
	tokens := svcauth.NewTokenService(svcauth.TokenDeps{
		Repo:       repo,
		Cache:      c,
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  config.Dur(cfg.JWT.AccessTTL, 0),
		RefreshTTL: config.Dur(cfg.JWT.RefreshTTL, 0),
	})
	states := svcauth.NewStateSigner(cfg.JWT.Secret, cfg.JWT.Issuer, config.Dur(cfg.JWT.StateTTL, 0))

	appSvc := svcapps.NewAppService(repo)
	keySvc := svcapps.NewAPIKeyService(repo, c)

	// controllers
	oauthCtrl := authctrl.NewOAuthController(authctrl.OAuthDeps{
		Providers: registry,
		Provision: provision,
		Tokens:    tokens,
		States:    states,
		Cache:     c,
		WebURL:    cfg.Console.WebURL,
		StateTTL:  config.Dur(cfg.JWT.StateTTL, 0),
	})
	partnerCtrl := authctrl.NewPartnerController(
		partner.New(cfg.Providers.Partner.BaseURL, cfg.Providers.Partner.EmailDomain),
		provision, tokens,
	)

	handler := router.New(router.Deps{
		OAuth:          oauthCtrl,
		Partner:        partnerCtrl,
		Apps:           appsctrl.NewController(appSvc, keySvc),
		Info:           appsctrl.NewInfoController(appSvc),
		Health:         healthctrl.NewController(repo, version),
		TokenParser:    tokens,
		APIKeys:        keySvc,
		RateLimiter:    limiter,
		PartnerEnabled: cfg.Providers.Partner.Enabled,
	})

	return server.Run(cfg.Server.Addr, handler)
}
