// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
// При успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Repos — набор репозиториев поверх одного DBTX (пула или транзакции).
type Repos struct {
	Tenants      TenantRepository
	AdminUsers   AdminUserRepository
	Identities   BusinessIdentityRepository
	Modules      ModuleRepository
	ActivityLogs ActivityLogRepository
	Registries   ClientRegistryRepository
	Versions     BlueprintVersionRepository
	Templates    BlueprintTemplateRepository
}

// NewRepos создаёт набор репозиториев поверх db.
func NewRepos(db DBTX) *Repos {
	return &Repos{
		Tenants:      NewTenantRepository(db),
		AdminUsers:   NewAdminUserRepository(db),
		Identities:   NewBusinessIdentityRepository(db),
		Modules:      NewModuleRepository(db),
		ActivityLogs: NewActivityLogRepository(db),
		Registries:   NewClientRegistryRepository(db),
		Versions:     NewBlueprintVersionRepository(db),
		Templates:    NewBlueprintTemplateRepository(db),
	}
}

// UnitOfWork — доступ к репозиториям вне и внутри транзакции.
// Сервисы зависят от интерфейса, в unit-тестах подставляется in-memory реализация.
type UnitOfWork interface {
	// Repos возвращает репозитории поверх пула.
	Repos() *Repos
	// InTx выполняет fn с репозиториями, привязанными к одной транзакции.
	InTx(ctx context.Context, fn func(r *Repos) error) error
}

// pgUnitOfWork — реализация UnitOfWork поверх pgxpool.
type pgUnitOfWork struct {
	repos  *Repos
	runner *TxRunner
}

// NewUnitOfWork создаёт UnitOfWork поверх пула подключений.
func NewUnitOfWork(pool *pgxpool.Pool) UnitOfWork {
	return &pgUnitOfWork{
		repos:  NewRepos(pool),
		runner: NewTxRunner(pool),
	}
}

func (u *pgUnitOfWork) Repos() *Repos {
	return u.repos
}

func (u *pgUnitOfWork) InTx(ctx context.Context, fn func(r *Repos) error) error {
	return u.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(NewRepos(tx))
	})
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// jsonArg сериализует значение для параметра JSONB.
// nil превращается в fallback ('[]' или '{}'), а не в JSON null.
func jsonArg(v any, fallback string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("сериализация JSONB: %w", err)
	}
	if string(raw) == "null" {
		return []byte(fallback), nil
	}
	return raw, nil
}
