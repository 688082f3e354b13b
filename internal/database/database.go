// Пакет database — пул PostgreSQL для репозиториев SmartSite, встроенные
// миграции схемы (golang-migrate) и readiness-проверка для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextmonthlab/smartsite/internal/config"
)

// applicationName попадает в pg_stat_activity.
const applicationName = "smartsite"

// readyTimeout — предел одного ping из readiness-проверки.
const readyTimeout = 3 * time.Second

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationState — текущая версия схемы.
type MigrationState struct {
	Version uint
	Dirty   bool
	// Empty — миграции ещё ни разу не применялись
	Empty bool
}

// Connect открывает пул и сразу проверяет его ping-ом, чтобы сервис
// не стартовал с недоступной базой.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN PostgreSQL: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL недоступен: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("url", cfg.DatabaseURL()),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate доводит схему (тенанты, каталог модулей, реестр клиентов,
// журнал версий Blueprint, каталог шаблонов) до последней встроенной миграции.
// Повторный вызов без новых миграций не является ошибкой.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("применение миграций: %w", err)
	}

	state, err := readState(m)
	if err != nil {
		return err
	}
	logger.Info("Схема БД актуальна",
		slog.Uint64("version", uint64(state.Version)),
		slog.Bool("dirty", state.Dirty),
	)
	return nil
}

// Status возвращает версию схемы без применения миграций.
func Status(cfg *config.Config) (*MigrationState, error) {
	m, err := newMigrator(cfg)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return readState(m)
}

func newMigrator(cfg *config.Config) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("источник миграций: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("инициализация миграций: %w", err)
	}
	return m, nil
}

func readState(m *migrate.Migrate) (*MigrationState, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return &MigrationState{Empty: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение версии схемы: %w", err)
	}
	return &MigrationState{Version: version, Dirty: dirty}, nil
}

// migrateURL — адрес в схеме pgx5:// для драйвера golang-migrate.
// Пароль может содержать спецсимволы, поэтому URL собирается через net/url.
func migrateURL(cfg *config.Config) string {
	q := url.Values{}
	q.Set("sslmode", cfg.DBSSLMode)
	q.Set("x-migrations-table", "ss_schema_migrations")
	return (&url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     cfg.DBHost + ":" + strconv.Itoa(cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}).String()
}

// ReadinessChecker реализует handlers.ReadinessChecker поверх пула.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт readiness-проверку PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady пингует базу и сообщает загрузку пула.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	st := c.pool.Stat()
	return "ok", fmt.Sprintf("соединений %d/%d", st.AcquiredConns(), st.MaxConns())
}

// MigrationsFS возвращает встроенные файлы миграций.
func MigrationsFS() fs.FS {
	return migrationsFS
}
