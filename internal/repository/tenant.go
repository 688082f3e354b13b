package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

// TenantRepository — интерфейс для таблицы tenants.
// Удаления нет: тенант только меняет статус.
type TenantRepository interface {
	// Create создаёт тенанта. Повтор id или domain — ErrConflict.
	Create(ctx context.Context, t *model.Tenant) error
	// GetByID возвращает тенанта по идентификатору.
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	// List возвращает тенантов, опционально с фильтром по статусу.
	List(ctx context.Context, status *string) ([]*model.Tenant, error)
	// UpdateStatus меняет статус тенанта и возвращает обновлённую запись.
	UpdateStatus(ctx context.Context, id, status string) (*model.Tenant, error)
}

type tenantRepo struct {
	db DBTX
}

// NewTenantRepository создаёт репозиторий тенантов.
func NewTenantRepository(db DBTX) TenantRepository {
	return &tenantRepo{db: db}
}

const tenantColumns = `id, name, domain, status, plan, industry, website_url,
	customization, created_at, updated_at`

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	t := &model.Tenant{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Domain, &t.Status, &t.Plan, &t.Industry, &t.WebsiteURL,
		&t.Customization, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func (r *tenantRepo) Create(ctx context.Context, t *model.Tenant) error {
	customization, err := jsonArg(t.Customization, "{}")
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (id, name, domain, status, plan, industry, website_url, customization)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		t.ID, t.Name, t.Domain, t.Status, t.Plan, t.Industry, t.WebsiteURL, customization,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: id или домен тенанта уже заняты", ErrConflict)
		}
		return fmt.Errorf("ошибка создания тенанта: %w", err)
	}
	return nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	t, err := scanTenant(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения тенанта: %w", err)
	}
	return t, nil
}

func (r *tenantRepo) List(ctx context.Context, status *string) ([]*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка тенантов: %w", err)
	}
	defer rows.Close()

	var result []*model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования тенанта: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *tenantRepo) UpdateStatus(ctx context.Context, id, status string) (*model.Tenant, error) {
	query := `
		UPDATE tenants SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + tenantColumns

	t, err := scanTenant(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления статуса тенанта: %w", err)
	}
	return t, nil
}

// AdminUserRepository — интерфейс для таблицы admin_users.
type AdminUserRepository interface {
	// Create создаёт администратора. Повтор username — ErrConflict.
	Create(ctx context.Context, u *model.AdminUser) error
	// GetPrimary возвращает первого администратора тенанта.
	GetPrimary(ctx context.Context, tenantID string) (*model.AdminUser, error)
}

type adminUserRepo struct {
	db DBTX
}

// NewAdminUserRepository создаёт репозиторий администраторов.
func NewAdminUserRepository(db DBTX) AdminUserRepository {
	return &adminUserRepo{db: db}
}

func (r *adminUserRepo) Create(ctx context.Context, u *model.AdminUser) error {
	query := `
		INSERT INTO admin_users (id, tenant_id, username, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.TenantID, u.Username, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: имя пользователя %q уже занято", ErrConflict, u.Username)
		}
		return fmt.Errorf("ошибка создания администратора: %w", err)
	}
	return nil
}

func (r *adminUserRepo) GetPrimary(ctx context.Context, tenantID string) (*model.AdminUser, error) {
	query := `
		SELECT id, tenant_id, username, email, password_hash, role, created_at, updated_at
		FROM admin_users
		WHERE tenant_id = $1
		ORDER BY created_at
		LIMIT 1`

	u := &model.AdminUser{}
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&u.ID, &u.TenantID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения администратора: %w", err)
	}
	return u, nil
}

// BusinessIdentityRepository — интерфейс для таблицы business_identities.
type BusinessIdentityRepository interface {
	// Create создаёт профиль бизнеса. Повтор tenant_id — ErrConflict.
	Create(ctx context.Context, b *model.BusinessIdentity) error
	// GetByTenant возвращает профиль бизнеса тенанта.
	GetByTenant(ctx context.Context, tenantID string) (*model.BusinessIdentity, error)
}

type businessIdentityRepo struct {
	db DBTX
}

// NewBusinessIdentityRepository создаёт репозиторий профилей бизнеса.
func NewBusinessIdentityRepository(db DBTX) BusinessIdentityRepository {
	return &businessIdentityRepo{db: db}
}

func (r *businessIdentityRepo) Create(ctx context.Context, b *model.BusinessIdentity) error {
	contact, err := jsonArg(b.Contact, "{}")
	if err != nil {
		return err
	}

	query := `
		INSERT INTO business_identities (tenant_id, business_name, industry, website_url, description, contact)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		b.TenantID, b.BusinessName, b.Industry, b.WebsiteURL, b.Description, contact,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: профиль бизнеса тенанта уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания профиля бизнеса: %w", err)
	}
	return nil
}

func (r *businessIdentityRepo) GetByTenant(ctx context.Context, tenantID string) (*model.BusinessIdentity, error) {
	query := `
		SELECT tenant_id, business_name, industry, website_url, description, contact,
			created_at, updated_at
		FROM business_identities
		WHERE tenant_id = $1`

	b := &model.BusinessIdentity{}
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&b.TenantID, &b.BusinessName, &b.Industry, &b.WebsiteURL, &b.Description, &b.Contact,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля бизнеса: %w", err)
	}
	return b, nil
}
