// Server runs the HTTP API and the telemetry scheduler. Configuration comes
// from the environment (optionally via .env); see internal/config.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	apikeysrepo "openhands-enterprise/backend/internal/apikeys/repository"
	devicecoderepo "openhands-enterprise/backend/internal/devicecode/repository"
	settingsrepo "openhands-enterprise/backend/internal/settings/repository"
	sharingrepo "openhands-enterprise/backend/internal/sharing/repository"
	telemetryrepo "openhands-enterprise/backend/internal/telemetry/repository"
	userrepo "openhands-enterprise/backend/internal/user/repository"
	webhookrepo "openhands-enterprise/backend/internal/webhook/repository"

	"openhands-enterprise/backend/internal/apikeys"
	"openhands-enterprise/backend/internal/auth"
	"openhands-enterprise/backend/internal/billing"
	"openhands-enterprise/backend/internal/blocklist"
	"openhands-enterprise/backend/internal/config"
	"openhands-enterprise/backend/internal/db"
	"openhands-enterprise/backend/internal/db/migrate"
	"openhands-enterprise/backend/internal/devicecode"
	"openhands-enterprise/backend/internal/litellm"
	"openhands-enterprise/backend/internal/observability/events"
	"openhands-enterprise/backend/internal/observability/logger"
	"openhands-enterprise/backend/internal/observability/metrics"
	"openhands-enterprise/backend/internal/observability/otel"
	"openhands-enterprise/backend/internal/server"
	"openhands-enterprise/backend/internal/settings"
	"openhands-enterprise/backend/internal/sharing"
	"openhands-enterprise/backend/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "openhands-enterprise-server", cfg.OTLPInsecure)
	if err != nil {
		zlog.Fatal("otel setup", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() { _ = providers.Shutdown(context.Background()) }()

	if cfg.DatabaseURL == "" {
		zlog.Fatal("DATABASE_URL is required")
	}
	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		zlog.Fatal("migrate", zap.Error(err))
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("open database", zap.Error(err))
	}
	defer sqlDB.Close()

	gdb, err := db.OpenGorm(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("open gorm", zap.Error(err))
	}
	defer func() {
		if conn, err := gdb.DB(); err == nil {
			_ = conn.Close()
		}
	}()

	node, err := snowflake.NewNode(1)
	if err != nil {
		zlog.Fatal("snowflake node", zap.Error(err))
	}

	stats := metrics.SchedulerWithConfig(metrics.Config{
		ServiceName: "openhands-enterprise",
		Environment: cfg.Env,
	})

	userRepo := userrepo.NewPostgresRepository(gdb, node)
	telemetryRepo := telemetryrepo.NewPostgresRepository(gdb, node)
	settingsRepo := settingsrepo.NewPostgresRepository(gdb, node)
	deviceRepo := devicecoderepo.NewPostgresRepository(gdb, node)
	webhookRepo := webhookrepo.NewPostgresRepository(gdb, node)
	convRepo := sharingrepo.NewPostgresConversationRepository(gdb)
	eventRepo := sharingrepo.NewPostgresEventRepository(gdb, node)
	apikeyRepo := apikeysrepo.NewPostgresRepository(gdb, node)

	var billingClient billing.Client
	if cfg.BillingEnabled() {
		billingClient, err = billing.NewHTTPClient(cfg.BillingAPIURL, cfg.BillingPublishableKey, cfg.BillingAppSlug)
		if err != nil {
			zlog.Fatal("billing client", zap.Error(err))
		}
	} else {
		billingClient = billing.NewNoopClient()
		zlog.Info("billing not configured, telemetry uploads are no-ops")
	}

	registry := telemetry.NewRegistry()
	registry.Register(telemetry.NewUserCountCollector(userRepo))
	registry.Register(telemetry.NewConversationCountCollector(convRepo))

	scheduler := telemetry.NewScheduler(telemetry.SchedulerConfig{
		CollectionIntervalDays: cfg.TelemetryCollectionIntervalDays,
		UploadIntervalHours:    cfg.TelemetryUploadIntervalHours,
		WarningThresholdDays:   cfg.TelemetryWarningThresholdDays,
		AdminEmailOverride:     cfg.AdminEmail,
	}, telemetryRepo, userRepo, registry, billingClient, stats, zlog)

	scheduler.Start(ctx)
	defer scheduler.Stop(context.Background())

	llm := litellm.NewClient(litellm.Config{
		APIURL: cfg.LiteLLMAPIURL,
		APIKey: cfg.LiteLLMAPIKey,
		TeamID: cfg.LiteLLMTeamID,
	}, zlog)

	settingsSvc := settings.NewService(settingsRepo, llm, cfg.LiteLLMAPIURL, zlog)
	blocker := blocklist.NewDomainBlocker(cfg.BlockedEmailDomainsList(), zlog)
	emitter := events.NewOTelEmitter(providers.LoggerProvider)

	deps := server.Deps{
		License:       scheduler,
		DeviceCodes:   devicecode.NewService(deviceRepo, cfg.DeviceCodeTTLDuration(), zlog),
		APIKeys:       apikeys.NewService(apikeyRepo, llm, zlog),
		Conversations: sharing.NewService(convRepo, eventRepo, zlog),
		Webhooks:      webhookRepo,
		Pinger:        sqlDB,
	}

	kcCfg := auth.KeycloakConfig{
		ServerURL:    cfg.KeycloakServerURL,
		Realm:        cfg.KeycloakRealm,
		ClientID:     cfg.KeycloakClientID,
		ClientSecret: cfg.KeycloakClientSecret,
		RedirectURI:  cfg.KeycloakRedirectURI,
	}
	if kcCfg.Enabled() && cfg.JWTSecret != "" {
		minter, err := auth.NewSessionMinter(cfg.JWTSecret, cfg.SessionTTLDuration())
		if err != nil {
			zlog.Fatal("session minter", zap.Error(err))
		}
		kc := auth.NewKeycloakClient(kcCfg, zlog)
		deps.Auth = auth.NewService(kc, userRepo, settingsSvc, blocker, minter, emitter, cfg.WebHost, zlog)
		deps.Sessions = minter
	} else {
		zlog.Warn("keycloak or JWT_SECRET not configured, oauth routes disabled")
	}

	srv := server.New(server.Config{
		Addr:       cfg.HTTPAddr,
		Env:        cfg.Env,
		WebHost:    cfg.WebHost,
		SessionTTL: cfg.SessionTTLDuration(),
	}, deps, zlog)

	if err := srv.Run(ctx); err != nil {
		zlog.Fatal("http server", zap.Error(err))
	}
	zlog.Info("server stopped")
}
