package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

// ModuleRepository — интерфейс для таблицы modules (общий каталог).
type ModuleRepository interface {
	// Create добавляет модуль. Повтор id — ErrConflict.
	Create(ctx context.Context, m *model.Module) error
	// GetByID возвращает модуль по идентификатору.
	GetByID(ctx context.Context, id string) (*model.Module, error)
	// GetByIDs возвращает найденные модули по списку идентификаторов.
	// Отсутствующие идентификаторы в результат не попадают.
	GetByIDs(ctx context.Context, ids []string) (map[string]*model.Module, error)
	// List возвращает модули, опционально с фильтром по статусу.
	List(ctx context.Context, status *string) ([]*model.Module, error)
}

type moduleRepo struct {
	db DBTX
}

// NewModuleRepository создаёт репозиторий каталога модулей.
func NewModuleRepository(db DBTX) ModuleRepository {
	return &moduleRepo{db: db}
}

const moduleColumns = `id, name, description, category, status, path, metadata, created_at, updated_at`

func scanModule(row pgx.Row) (*model.Module, error) {
	m := &model.Module{}
	err := row.Scan(
		&m.ID, &m.Name, &m.Description, &m.Category, &m.Status, &m.Path, &m.Metadata,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func (r *moduleRepo) Create(ctx context.Context, m *model.Module) error {
	metadata, err := jsonArg(m.Metadata, "{}")
	if err != nil {
		return err
	}

	query := `
		INSERT INTO modules (id, name, description, category, status, path, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		m.ID, m.Name, m.Description, m.Category, m.Status, m.Path, metadata,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: модуль %s уже зарегистрирован", ErrConflict, m.ID)
		}
		return fmt.Errorf("ошибка регистрации модуля: %w", err)
	}
	return nil
}

func (r *moduleRepo) GetByID(ctx context.Context, id string) (*model.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE id = $1`

	m, err := scanModule(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения модуля: %w", err)
	}
	return m, nil
}

func (r *moduleRepo) GetByIDs(ctx context.Context, ids []string) (map[string]*model.Module, error) {
	result := make(map[string]*model.Module, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT ` + moduleColumns + ` FROM modules WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения модулей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования модуля: %w", err)
		}
		result[m.ID] = m
	}
	return result, rows.Err()
}

func (r *moduleRepo) List(ctx context.Context, status *string) ([]*model.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка модулей: %w", err)
	}
	defer rows.Close()

	var result []*model.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования модуля: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ActivityLogRepository — интерфейс для таблицы activity_logs (журнал аудита).
type ActivityLogRepository interface {
	// Create добавляет запись журнала.
	Create(ctx context.Context, l *model.ActivityLog) error
	// List возвращает последние записи, опционально по действию.
	List(ctx context.Context, action *string, limit int) ([]*model.ActivityLog, error)
}

type activityLogRepo struct {
	db DBTX
}

// NewActivityLogRepository создаёт репозиторий журнала аудита.
func NewActivityLogRepository(db DBTX) ActivityLogRepository {
	return &activityLogRepo{db: db}
}

func (r *activityLogRepo) Create(ctx context.Context, l *model.ActivityLog) error {
	details, err := jsonArg(l.Details, "{}")
	if err != nil {
		return err
	}

	query := `
		INSERT INTO activity_logs (actor, action, details)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	if err := r.db.QueryRow(ctx, query, l.Actor, l.Action, details).Scan(&l.ID, &l.CreatedAt); err != nil {
		return fmt.Errorf("ошибка записи в журнал аудита: %w", err)
	}
	return nil
}

func (r *activityLogRepo) List(ctx context.Context, action *string, limit int) ([]*model.ActivityLog, error) {
	query := `SELECT id, actor, action, details, created_at FROM activity_logs`
	args := []any{}
	if action != nil {
		query += ` WHERE action = $1`
		args = append(args, *action)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.ActivityLog
	for rows.Next() {
		l := &model.ActivityLog{}
		if err := rows.Scan(&l.ID, &l.Actor, &l.Action, &l.Details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования журнала аудита: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
