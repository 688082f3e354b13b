package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

// ClientRegistryRepository — интерфейс для таблицы client_registries.
// Одна строка на clientId, записи не удаляются.
type ClientRegistryRepository interface {
	// Upsert создаёт или обновляет реестр клиента и сбрасывает стадию
	// в in_progress (exportReady=false, handoffStatus=in_progress).
	// replaceModules=false сохраняет текущую карту модулей.
	// Возвращает true, если запись создана.
	Upsert(ctx context.Context, reg *model.ClientRegistry, replaceModules bool) (bool, error)
	// Get возвращает реестр клиента.
	Get(ctx context.Context, clientID string) (*model.ClientRegistry, error)
	// UpdateModules целиком заменяет карту экспортируемых модулей.
	UpdateModules(ctx context.Context, clientID string, modules []model.ModuleMapEntry) (*model.ClientRegistry, error)
	// SetExportReady меняет флаг готовности экспорта; ready=true фиксирует lastExported.
	SetExportReady(ctx context.Context, clientID string, ready bool) (*model.ClientRegistry, error)
	// SetHandoffStatus меняет статус передачи клиенту.
	SetHandoffStatus(ctx context.Context, clientID, status string) (*model.ClientRegistry, error)
}

type clientRegistryRepo struct {
	db DBTX
}

// NewClientRegistryRepository создаёт репозиторий реестров клиентов.
func NewClientRegistryRepository(db DBTX) ClientRegistryRepository {
	return &clientRegistryRepo{db: db}
}

const registryColumns = `client_id, blueprint_version, sector, location, project_start_date,
	user_roles, exportable_modules, export_ready, handoff_status, last_exported,
	created_at, updated_at`

func scanRegistry(row pgx.Row, extra ...any) (*model.ClientRegistry, error) {
	reg := &model.ClientRegistry{}
	dest := append(extra,
		&reg.ClientID, &reg.BlueprintVersion, &reg.Sector, &reg.Location, &reg.ProjectStartDate,
		&reg.UserRoles, &reg.ExportableModules, &reg.ExportReady, &reg.HandoffStatus, &reg.LastExported,
		&reg.CreatedAt, &reg.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if reg.UserRoles == nil {
		reg.UserRoles = []string{}
	}
	if reg.ExportableModules == nil {
		reg.ExportableModules = []model.ModuleMapEntry{}
	}
	return reg, nil
}

func (r *clientRegistryRepo) Upsert(ctx context.Context, reg *model.ClientRegistry, replaceModules bool) (bool, error) {
	roles, err := jsonArg(reg.UserRoles, "[]")
	if err != nil {
		return false, err
	}
	modules, err := jsonArg(reg.ExportableModules, "[]")
	if err != nil {
		return false, err
	}

	// xmax = 0 только у строки, вставленной этой командой.
	query := `
		INSERT INTO client_registries (client_id, blueprint_version, sector, location,
			project_start_date, user_roles, exportable_modules, export_ready, handoff_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, 'in_progress')
		ON CONFLICT (client_id) DO UPDATE SET
			blueprint_version  = EXCLUDED.blueprint_version,
			sector             = COALESCE(NULLIF(EXCLUDED.sector, ''), client_registries.sector),
			location           = COALESCE(NULLIF(EXCLUDED.location, ''), client_registries.location),
			project_start_date = COALESCE(EXCLUDED.project_start_date, client_registries.project_start_date),
			user_roles         = CASE WHEN EXCLUDED.user_roles = '[]'::jsonb
			                          THEN client_registries.user_roles ELSE EXCLUDED.user_roles END,
			exportable_modules = CASE WHEN $8::boolean
			                          THEN EXCLUDED.exportable_modules ELSE client_registries.exportable_modules END,
			export_ready       = FALSE,
			handoff_status     = 'in_progress',
			updated_at         = NOW()
		RETURNING (xmax = 0), ` + registryColumns

	var inserted bool
	saved, err := scanRegistry(r.db.QueryRow(ctx, query,
		reg.ClientID, reg.BlueprintVersion, reg.Sector, reg.Location,
		reg.ProjectStartDate, roles, modules, replaceModules,
	), &inserted)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения реестра клиента: %w", err)
	}

	*reg = *saved
	return inserted, nil
}

func (r *clientRegistryRepo) Get(ctx context.Context, clientID string) (*model.ClientRegistry, error) {
	query := `SELECT ` + registryColumns + ` FROM client_registries WHERE client_id = $1`

	reg, err := scanRegistry(r.db.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения реестра клиента: %w", err)
	}
	return reg, nil
}

func (r *clientRegistryRepo) UpdateModules(ctx context.Context, clientID string, modules []model.ModuleMapEntry) (*model.ClientRegistry, error) {
	raw, err := jsonArg(modules, "[]")
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE client_registries SET exportable_modules = $2, updated_at = NOW()
		WHERE client_id = $1
		RETURNING ` + registryColumns
	return r.updateOne(ctx, query, clientID, raw)
}

func (r *clientRegistryRepo) SetExportReady(ctx context.Context, clientID string, ready bool) (*model.ClientRegistry, error) {
	query := `
		UPDATE client_registries SET
			export_ready  = $2,
			last_exported = CASE WHEN $2 THEN NOW() ELSE last_exported END,
			updated_at    = NOW()
		WHERE client_id = $1
		RETURNING ` + registryColumns
	return r.updateOne(ctx, query, clientID, ready)
}

func (r *clientRegistryRepo) SetHandoffStatus(ctx context.Context, clientID, status string) (*model.ClientRegistry, error) {
	query := `
		UPDATE client_registries SET handoff_status = $2, updated_at = NOW()
		WHERE client_id = $1
		RETURNING ` + registryColumns
	return r.updateOne(ctx, query, clientID, status)
}

func (r *clientRegistryRepo) updateOne(ctx context.Context, query string, args ...any) (*model.ClientRegistry, error) {
	reg, err := scanRegistry(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления реестра клиента: %w", err)
	}
	return reg, nil
}

// BlueprintVersionRepository — интерфейс для таблицы blueprint_versions.
// Записи не удаляются: устаревшие версии помечаются deprecated.
type BlueprintVersionRepository interface {
	// Ensure создаёт запись версии, если её нет. Существующая не меняется.
	Ensure(ctx context.Context, version string) error
	// Deprecate помечает версию устаревшей (и снимает is_default).
	// Неизвестная версия создаётся сразу устаревшей.
	Deprecate(ctx context.Context, version string) (*model.BlueprintVersion, error)
	// ClearDefault снимает is_default со всех версий, кроме except.
	ClearDefault(ctx context.Context, except string) error
	// UpsertDefault сохраняет версию как версию по умолчанию (не устаревшую).
	UpsertDefault(ctx context.Context, v *model.BlueprintVersion) error
	// Get возвращает версию.
	Get(ctx context.Context, version string) (*model.BlueprintVersion, error)
	// GetDefault возвращает версию по умолчанию.
	GetDefault(ctx context.Context) (*model.BlueprintVersion, error)
	// List возвращает все версии, новые первыми.
	List(ctx context.Context) ([]*model.BlueprintVersion, error)
}

type blueprintVersionRepo struct {
	db DBTX
}

// NewBlueprintVersionRepository создаёт репозиторий версий Blueprint.
func NewBlueprintVersionRepository(db DBTX) BlueprintVersionRepository {
	return &blueprintVersionRepo{db: db}
}

const versionColumns = `version, deprecated, is_default, release_notes, modules, created_at, updated_at`

func scanVersion(row pgx.Row) (*model.BlueprintVersion, error) {
	v := &model.BlueprintVersion{}
	if err := row.Scan(
		&v.Version, &v.Deprecated, &v.IsDefault, &v.ReleaseNotes, &v.Modules,
		&v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if v.Modules == nil {
		v.Modules = []model.ModuleMapEntry{}
	}
	return v, nil
}

func (r *blueprintVersionRepo) Ensure(ctx context.Context, version string) error {
	query := `INSERT INTO blueprint_versions (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`
	if _, err := r.db.Exec(ctx, query, version); err != nil {
		return fmt.Errorf("ошибка регистрации версии %s: %w", version, err)
	}
	return nil
}

func (r *blueprintVersionRepo) Deprecate(ctx context.Context, version string) (*model.BlueprintVersion, error) {
	query := `
		INSERT INTO blueprint_versions (version, deprecated, is_default)
		VALUES ($1, TRUE, FALSE)
		ON CONFLICT (version) DO UPDATE SET
			deprecated = TRUE,
			is_default = FALSE,
			updated_at = NOW()
		RETURNING ` + versionColumns

	v, err := scanVersion(r.db.QueryRow(ctx, query, version))
	if err != nil {
		return nil, fmt.Errorf("ошибка пометки версии %s устаревшей: %w", version, err)
	}
	return v, nil
}

func (r *blueprintVersionRepo) ClearDefault(ctx context.Context, except string) error {
	query := `
		UPDATE blueprint_versions SET is_default = FALSE, updated_at = NOW()
		WHERE is_default AND version <> $1`
	if _, err := r.db.Exec(ctx, query, except); err != nil {
		return fmt.Errorf("ошибка сброса версии по умолчанию: %w", err)
	}
	return nil
}

func (r *blueprintVersionRepo) UpsertDefault(ctx context.Context, v *model.BlueprintVersion) error {
	modules, err := jsonArg(v.Modules, "[]")
	if err != nil {
		return err
	}

	query := `
		INSERT INTO blueprint_versions (version, deprecated, is_default, release_notes, modules)
		VALUES ($1, FALSE, TRUE, $2, $3)
		ON CONFLICT (version) DO UPDATE SET
			deprecated    = FALSE,
			is_default    = TRUE,
			release_notes = COALESCE(NULLIF(EXCLUDED.release_notes, ''), blueprint_versions.release_notes),
			modules       = EXCLUDED.modules,
			updated_at    = NOW()
		RETURNING ` + versionColumns

	saved, err := scanVersion(r.db.QueryRow(ctx, query, v.Version, v.ReleaseNotes, modules))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: уже есть другая версия по умолчанию", ErrConflict)
		}
		return fmt.Errorf("ошибка публикации версии %s: %w", v.Version, err)
	}
	*v = *saved
	return nil
}

func (r *blueprintVersionRepo) Get(ctx context.Context, version string) (*model.BlueprintVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM blueprint_versions WHERE version = $1`
	v, err := scanVersion(r.db.QueryRow(ctx, query, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения версии: %w", err)
	}
	return v, nil
}

func (r *blueprintVersionRepo) GetDefault(ctx context.Context) (*model.BlueprintVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM blueprint_versions WHERE is_default`
	v, err := scanVersion(r.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения версии по умолчанию: %w", err)
	}
	return v, nil
}

func (r *blueprintVersionRepo) List(ctx context.Context) ([]*model.BlueprintVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM blueprint_versions ORDER BY created_at DESC, version DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка версий: %w", err)
	}
	defer rows.Close()

	var result []*model.BlueprintVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования версии: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
