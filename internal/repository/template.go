package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

// BlueprintTemplateRepository — интерфейс для таблицы blueprint_templates.
type BlueprintTemplateRepository interface {
	// Create регистрирует шаблон. Занятое instance_name — ErrConflict.
	Create(ctx context.Context, t *model.BlueprintTemplate) error
	// List возвращает шаблоны, новые первыми. cloneableOnly отбрасывает
	// шаблоны, закрытые для клонирования.
	List(ctx context.Context, cloneableOnly bool) ([]*model.BlueprintTemplate, error)
	// SetCloneable меняет доступность шаблона для клонирования.
	SetCloneable(ctx context.Context, id int64, cloneable bool) (*model.BlueprintTemplate, error)
}

type blueprintTemplateRepo struct {
	db DBTX
}

// NewBlueprintTemplateRepository создаёт репозиторий каталога шаблонов.
func NewBlueprintTemplateRepository(db DBTX) BlueprintTemplateRepository {
	return &blueprintTemplateRepo{db: db}
}

const templateColumns = `id, instance_name, description, blueprint_version, tools_supported,
	is_cloneable, created_at, updated_at`

func scanTemplate(row pgx.Row) (*model.BlueprintTemplate, error) {
	t := &model.BlueprintTemplate{}
	if err := row.Scan(
		&t.ID, &t.InstanceName, &t.Description, &t.BlueprintVersion, &t.ToolsSupported,
		&t.IsCloneable, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if t.ToolsSupported == nil {
		t.ToolsSupported = []string{}
	}
	return t, nil
}

func (r *blueprintTemplateRepo) Create(ctx context.Context, t *model.BlueprintTemplate) error {
	tools, err := jsonArg(t.ToolsSupported, "[]")
	if err != nil {
		return err
	}

	query := `
		INSERT INTO blueprint_templates (instance_name, description, blueprint_version, tools_supported, is_cloneable)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + templateColumns

	saved, err := scanTemplate(r.db.QueryRow(ctx, query,
		t.InstanceName, t.Description, t.BlueprintVersion, tools, t.IsCloneable,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: шаблон %s", ErrConflict, t.InstanceName)
		}
		return fmt.Errorf("ошибка регистрации шаблона %s: %w", t.InstanceName, err)
	}
	*t = *saved
	return nil
}

func (r *blueprintTemplateRepo) List(ctx context.Context, cloneableOnly bool) ([]*model.BlueprintTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM blueprint_templates
		WHERE is_cloneable OR NOT $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, cloneableOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка шаблонов: %w", err)
	}
	defer rows.Close()

	var result []*model.BlueprintTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования шаблона: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *blueprintTemplateRepo) SetCloneable(ctx context.Context, id int64, cloneable bool) (*model.BlueprintTemplate, error) {
	query := `
		UPDATE blueprint_templates SET is_cloneable = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + templateColumns

	t, err := scanTemplate(r.db.QueryRow(ctx, query, id, cloneable))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления шаблона %d: %w", id, err)
	}
	return t, nil
}
