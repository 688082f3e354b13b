// Точка входа SmartSite — сервис Blueprint и admin-данных тенантов.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// открывает SOT-хранилище, создаёт шлюз Guardian/Vault и сервисный слой,
// запускает фоновые задачи (синхронизация профилей, topologymetrics),
// HTTP-сервер с JWT middleware, проверкой OpenAPI и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/nextmonthlab/smartsite/internal/api/handlers"
	"github.com/nextmonthlab/smartsite/internal/api/middleware"
	"github.com/nextmonthlab/smartsite/internal/api/openapi"
	"github.com/nextmonthlab/smartsite/internal/config"
	"github.com/nextmonthlab/smartsite/internal/database"
	"github.com/nextmonthlab/smartsite/internal/repository"
	"github.com/nextmonthlab/smartsite/internal/server"
	"github.com/nextmonthlab/smartsite/internal/service"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
	"github.com/nextmonthlab/smartsite/internal/syncgw"
)

func main() {
	// 0. .env для локального запуска; переменные окружения имеют приоритет
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Файл .env не прочитан", slog.String("error", err.Error()))
	}

	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("SmartSite запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("instance_id", cfg.InstanceID),
	)

	if os.Getenv("SS_DEPHEALTH_GROUP") == "" {
		logger.Warn("SS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Миграции БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 *sql.DB поверх пула для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. SOT-хранилище
	store, err := sotstore.New(cfg.SOTDir, logger)
	if err != nil {
		logger.Error("Ошибка открытия SOT-хранилища",
			slog.String("dir", cfg.SOTDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 6. Шлюз Guardian / Vault / SOT sync
	gateway, err := syncgw.New(syncgw.Config{
		GuardianURL: cfg.GuardianURL,
		VaultURL:    cfg.VaultURL,
		SOTSyncURL:  cfg.SOTSyncURL,
		Timeout:     cfg.SyncTimeout,
		CACertPath:  cfg.SyncCACertPath,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания шлюза синхронизации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Шлюз синхронизации создан",
		slog.Bool("guardian", gateway.GuardianConfigured()),
		slog.Bool("vault", gateway.VaultConfigured()),
		slog.Bool("sot_sync", gateway.SOTConfigured()),
	)

	// 7. Сервисы
	uow := repository.NewUnitOfWork(pool)
	tenantCache := service.NewTenantCache(cfg.TenantCacheSize, cfg.TenantCacheTTL)

	identitySvc := service.NewIdentityService(uow, store, tenantCache, logger)
	modulesSvc := service.NewModuleService(uow, logger)
	registrySvc := service.NewRegistryService(uow, logger)
	blueprintSvc := service.NewBlueprintService(
		registrySvc, modulesSvc, identitySvc, store, gateway,
		service.BlueprintOptions{
			ExportModules: cfg.ExportModules,
			InstanceID:    cfg.InstanceID,
		},
		logger,
	)
	adminSvc := service.NewAdminPanelService(store, cfg.EmbedBaseURL, logger)

	// 8. Announcement-модули должны быть в каталоге до первого экспорта
	if _, err := modulesSvc.RegisterAnnouncementModules(ctx); err != nil {
		logger.Error("Ошибка регистрации announcement-модулей", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Фоновая синхронизация профилей
	var profileSyncSvc *service.ProfileSyncService
	if gateway.SOTConfigured() && cfg.ProfileSyncInterval > 0 {
		profileSyncSvc = service.NewProfileSyncService(
			identitySvc, registrySvc, store, gateway,
			cfg.InstanceID, cfg.ProfileSyncInterval,
			logger,
		)
		profileSyncSvc.Start(ctx)
	} else {
		logger.Info("Синхронизация профилей отключена (SS_SOT_SYNC_URL не задан)")
	}

	// 10. topologymetrics
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "smartsite",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		GuardianURL:   cfg.GuardianURL,
		VaultURL:      cfg.VaultURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.Any("dependencies", dephealthSvc.Dependencies()),
		)
	}

	// 11. JWT (опционально) и readiness
	var (
		jwtAuth     *middleware.JWTAuth
		jwksChecker handlers.ReadinessChecker
	)
	if cfg.JWTEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.SyncCACertPath,
			cfg.JWTJWKSRefreshInterval,
			middleware.AuthOptions{
				Issuer:         cfg.JWTIssuer,
				TenantClaim:    cfg.JWTTenantClaim,
				SuperAdminRole: cfg.JWTSuperAdminRole,
				Leeway:         cfg.JWTLeeway,
			},
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		checker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.SyncCACertPath, 5*time.Second)
		if err != nil {
			logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		jwksChecker = checker
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("SS_JWT_JWKS_URL не задан, API доступен без аутентификации")
	}

	var deps handlers.DependencyHealth
	if dephealthSvc != nil {
		deps = dephealthSvc
	}
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), jwksChecker, deps)

	// 12. OpenAPI контракт
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := openapi.NewValidator(doc, logger, "/api/blueprint/", "/api/modules", "/api/businesses")
	if err != nil {
		logger.Error("Ошибка создания валидатора OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. HTTP API
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		blueprintSvc,
		modulesSvc,
		identitySvc,
		adminSvc,
		logger,
	)

	srv := server.New(cfg, logger, apiHandler, server.Options{
		JWTAuth:            jwtAuth,
		Validator:          validator,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if profileSyncSvc != nil {
		profileSyncSvc.Stop()
	}

	logger.Info("SmartSite остановлен")
}
