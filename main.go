package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/mentora-hq/portal-engine/pkg/auth"
	"github.com/mentora-hq/portal-engine/pkg/blob"
	"github.com/mentora-hq/portal-engine/pkg/config"
	"github.com/mentora-hq/portal-engine/pkg/database"
	"github.com/mentora-hq/portal-engine/pkg/handlers"
	"github.com/mentora-hq/portal-engine/pkg/identity"
	"github.com/mentora-hq/portal-engine/pkg/logging"
	"github.com/mentora-hq/portal-engine/pkg/metrics"
	"github.com/mentora-hq/portal-engine/pkg/repositories"
	"github.com/mentora-hq/portal-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.Bool("archive_enabled", cfg.Archive.Enabled()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	m := metrics.New()

	identityClient := identity.NewClient(cfg.Identity.APIURL, cfg.Identity.SecretKey, logger)
	verifier := identity.NewSignatureVerifier(cfg.Identity.WebhookSecret)

	archive, err := blob.New(ctx, &cfg.Archive, logger)
	if err != nil {
		logger.Fatal("Failed to initialize archive store", zap.Error(err))
	}

	scopes := database.NewTenantScopeProvider(db)
	tenantScope := handlers.TenantMiddleware(database.WithTenantContext(db, logger))
	adminScope := handlers.TenantMiddleware(database.WithAdminContext(db, logger))

	orgRepo := repositories.NewOrganisationRepository()
	userRepo := repositories.NewUserRepository()
	courseRepo := repositories.NewCourseRepository()
	invitationRepo := repositories.NewInvitationRepository()
	importLogRepo := repositories.NewImportLogRepository()
	taxonomyRepo := repositories.NewTaxonomyRepository()
	workflowRepo := repositories.NewWorkflowRepository()
	progressRepo := repositories.NewProgressRepository()

	invitationTTL := time.Duration(cfg.Identity.InvitationTTLHours) * time.Hour

	orgService := services.NewOrganisationService(orgRepo, logger)
	userService := services.NewUserService(userRepo, orgRepo, identityClient, m, logger)
	invitationService := services.NewInvitationService(invitationRepo, identityClient, logger)
	progressService := services.NewProgressService(progressRepo, courseRepo)
	webhookService := services.NewWebhookService(userRepo, invitationRepo, orgRepo, m, logger)
	workflowImport := services.NewWorkflowImportService(
		taxonomyRepo, workflowRepo, importLogRepo, archive, m, &cfg.Imports, logger)
	bookWorkflowImport := services.NewBookWorkflowImportService(
		taxonomyRepo, workflowRepo, importLogRepo, archive, m, &cfg.Imports, logger)
	userImport := services.NewUserImportService(
		orgRepo, courseRepo, invitationRepo, importLogRepo,
		identityClient, archive, m, &cfg.Imports, invitationTTL, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewWebhookHandler(verifier, webhookService, scopes, m, logger).RegisterRoutes(mux)
	handlers.NewOrganisationHandler(orgService, m, logger).RegisterRoutes(mux, authMiddleware, adminScope)
	handlers.NewImportsHandler(workflowImport, bookWorkflowImport, userImport, importLogRepo, m, logger).
		RegisterRoutes(mux, authMiddleware, adminScope, tenantScope)
	handlers.NewUserHandler(userService, m, logger).RegisterRoutes(mux, authMiddleware, adminScope, tenantScope)
	handlers.NewInvitationHandler(invitationService, m, logger).RegisterRoutes(mux, authMiddleware, tenantScope)
	handlers.NewProgressHandler(progressService, userRepo, m, logger).RegisterRoutes(mux, authMiddleware, tenantScope)

	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting portal-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}
}

// newLogger builds a production logger outside local development.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runMigrations applies pending migrations over a short-lived database/sql
// connection; the pgx pool is not usable by golang-migrate directly.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer migrationDB.Close()

	return database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger)
}
