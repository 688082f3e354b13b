// identity.go — каталог бизнес-профилей: создание тенанта с администратором,
// чтение профиля (SOT, затем БД), проверка тенанта.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/repository"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
)

// Имена файлов профиля в SOT.
const (
	identityFileName = "identity.json"
	adminFilePrefix  = "admin-"
)

// defaultDomainSuffix — домен тенанта без собственного сайта.
const defaultDomainSuffix = ".nextmonth.io"

// Источник профиля.
const (
	ProfileSourceSOT      = "sot"
	ProfileSourceDatabase = "database"
)

// CreateProfileInput — данные для создания бизнес-профиля.
type CreateProfileInput struct {
	BusinessName  string `json:"businessName" validate:"required,max=200"`
	Industry      string `json:"industry" validate:"max=100"`
	WebsiteURL    string `json:"websiteURL" validate:"omitempty,max=253"`
	Description   string `json:"description" validate:"max=2000"`
	Phone         string `json:"phone" validate:"max=50"`
	AdminEmail    string `json:"adminEmail" validate:"required,email,max=254"`
	AdminUsername string `json:"adminUsername" validate:"required,min=3,max=64"`
	// AdminPassword — bcrypt учитывает только первые 72 байта
	AdminPassword string `json:"adminPassword" validate:"required,min=8,max=72"`
	Plan          string `json:"plan" validate:"max=50"`
}

// CreateProfileResult — идентификаторы созданных тенанта и администратора.
type CreateProfileResult struct {
	BusinessID string `json:"businessId"`
	UserID     string `json:"userId"`
}

// BusinessProfile — бизнес-профиль тенанта (identity.json).
type BusinessProfile struct {
	BusinessID    string         `json:"businessId"`
	BusinessName  string         `json:"businessName"`
	Industry      string         `json:"industry,omitempty"`
	WebsiteURL    string         `json:"websiteURL,omitempty"`
	AdminUserID   string         `json:"adminUserId,omitempty"`
	PaymentStatus string         `json:"paymentStatus"`
	Plan          string         `json:"plan"`
	Contact       *model.Contact `json:"contact,omitempty"`
	Source        string         `json:"source"`
	CreatedAt     string         `json:"createdAt,omitempty"`
}

// AsIdentity возвращает профиль как раздел identity для манифеста Blueprint.
func (p *BusinessProfile) AsIdentity() map[string]any {
	out := map[string]any{
		"businessName": p.BusinessName,
	}
	if p.Industry != "" {
		out["industry"] = p.Industry
	}
	if p.WebsiteURL != "" {
		out["websiteURL"] = p.WebsiteURL
	}
	if p.Contact != nil {
		contact := map[string]any{}
		if p.Contact.Email != "" {
			contact["email"] = p.Contact.Email
		}
		if p.Contact.Phone != "" {
			contact["phone"] = p.Contact.Phone
		}
		if p.Contact.Address != "" {
			contact["address"] = p.Contact.Address
		}
		if p.Contact.LogoURL != "" {
			contact["logoUrl"] = p.Contact.LogoURL
		}
		if len(contact) > 0 {
			out["contact"] = contact
		}
	}
	return out
}

// IdentityService — сервис бизнес-профилей и тенантов.
type IdentityService struct {
	uow    repository.UnitOfWork
	store  *sotstore.Store
	cache  *TenantCache
	logger *slog.Logger
}

// NewIdentityService создаёт сервис бизнес-профилей.
// cache может быть nil — тогда каждая проверка идёт в БД.
func NewIdentityService(
	uow repository.UnitOfWork,
	store *sotstore.Store,
	cache *TenantCache,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		uow:    uow,
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "identity_service")),
	}
}

// CreateBusinessProfile создаёт тенанта, администратора и профиль бизнеса
// в одной транзакции, затем зеркалирует профиль в SOT.
// Ошибка записи в SOT возвращается, но строки в БД остаются:
// GetBusinessProfile читает их из БД, пока зеркала нет.
func (s *IdentityService) CreateBusinessProfile(ctx context.Context, in CreateProfileInput) (*CreateProfileResult, error) {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.AdminUsername = strings.TrimSpace(in.AdminUsername)
	in.AdminEmail = strings.TrimSpace(in.AdminEmail)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("хэширование пароля: %w", err)
	}

	slug := Slugify(in.BusinessName)
	tenantID := slug + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]

	domain := in.WebsiteURL
	if domain == "" {
		domain = slug + defaultDomainSuffix
	}
	plan := in.Plan
	if plan == "" {
		plan = model.DefaultPlan
	}

	tenant := &model.Tenant{
		ID:         tenantID,
		Name:       in.BusinessName,
		Domain:     domain,
		Status:     model.TenantStatusActive,
		Plan:       plan,
		Industry:   in.Industry,
		WebsiteURL: in.WebsiteURL,
	}
	admin := &model.AdminUser{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Username:     in.AdminUsername,
		Email:        in.AdminEmail,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
	}
	identity := &model.BusinessIdentity{
		TenantID:     tenantID,
		BusinessName: in.BusinessName,
		Industry:     in.Industry,
		WebsiteURL:   in.WebsiteURL,
		Description:  in.Description,
		Contact:      model.Contact{Email: in.AdminEmail, Phone: in.Phone},
	}

	err = s.uow.InTx(ctx, func(r *repository.Repos) error {
		if err := r.Tenants.Create(ctx, tenant); err != nil {
			return fmt.Errorf("создание тенанта: %w", err)
		}
		if err := r.AdminUsers.Create(ctx, admin); err != nil {
			return fmt.Errorf("создание администратора: %w", err)
		}
		if err := r.Identities.Create(ctx, identity); err != nil {
			return fmt.Errorf("создание профиля бизнеса: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(tenantID, true)
	}

	result := &CreateProfileResult{BusinessID: tenantID, UserID: admin.ID}

	profile := &BusinessProfile{
		BusinessID:    tenantID,
		BusinessName:  in.BusinessName,
		Industry:      in.Industry,
		WebsiteURL:    domain,
		AdminUserID:   admin.ID,
		PaymentStatus: "active",
		Plan:          plan,
		Contact:       &identity.Contact,
		Source:        ProfileSourceSOT,
		CreatedAt:     tenant.CreatedAt.UTC().Format(sotstore.TimeFormat),
	}
	if _, err := s.store.Write(ctx, tenantID, sotstore.CategoryProfile, profile, identityFileName); err != nil {
		return result, fmt.Errorf("запись профиля в SOT: %w", err)
	}

	adminRecord := map[string]any{
		"userId":   admin.ID,
		"username": admin.Username,
		"email":    admin.Email,
		"role":     admin.Role,
	}
	if _, err := s.store.Write(ctx, tenantID, sotstore.CategoryUsers, adminRecord, adminFilePrefix+admin.ID); err != nil {
		return result, fmt.Errorf("запись администратора в SOT: %w", err)
	}

	s.logger.Info("Бизнес-профиль создан",
		slog.String("tenant_id", tenantID),
		slog.String("user_id", admin.ID),
		slog.String("plan", plan),
	)
	return result, nil
}

// GetBusinessProfile возвращает профиль тенанта. Сначала читается SOT,
// при отсутствии зеркала профиль собирается из БД.
func (s *IdentityService) GetBusinessProfile(ctx context.Context, tenantID string) (*BusinessProfile, error) {
	rec, ok, err := s.store.ReadOne(ctx, tenantID, sotstore.CategoryProfile, identityFileName)
	switch {
	case errors.Is(err, sotstore.ErrInvalidKey):
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	case err != nil:
		s.logger.Warn("Ошибка чтения профиля из SOT, используется БД",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
	if ok {
		var p BusinessProfile
		if decodeErr := rec.Decode(&p); decodeErr == nil {
			if p.Source == "" {
				p.Source = ProfileSourceSOT
			}
			return &p, nil
		}
	}

	repos := s.uow.Repos()
	tenant, err := repos.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: бизнес-профиль %s", ErrNotFound, tenantID)
		}
		return nil, err
	}

	p := &BusinessProfile{
		BusinessID:    tenant.ID,
		BusinessName:  tenant.Name,
		Industry:      tenant.Industry,
		WebsiteURL:    tenant.Domain,
		PaymentStatus: "active",
		Plan:          tenant.Plan,
		Source:        ProfileSourceDatabase,
		CreatedAt:     tenant.CreatedAt.UTC().Format(sotstore.TimeFormat),
	}

	identity, err := repos.Identities.GetByTenant(ctx, tenantID)
	switch {
	case err == nil:
		p.BusinessName = identity.BusinessName
		if identity.Industry != "" {
			p.Industry = identity.Industry
		}
		contact := identity.Contact
		p.Contact = &contact
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	admin, err := repos.AdminUsers.GetPrimary(ctx, tenantID)
	switch {
	case err == nil:
		p.AdminUserID = admin.ID
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	return p, nil
}

// ValidateTenant проверяет, что тенант существует и активен.
// Ошибки БД логируются и трактуются как «не активен».
func (s *IdentityService) ValidateTenant(ctx context.Context, tenantID string) bool {
	if tenantID == "" {
		return false
	}
	if s.cache != nil {
		if active, ok := s.cache.Get(tenantID); ok {
			return active
		}
	}

	tenant, err := s.uow.Repos().Tenants.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if s.cache != nil {
				s.cache.Set(tenantID, false)
			}
			return false
		}
		s.logger.Error("Ошибка проверки тенанта",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return false
	}

	active := tenant.Status == model.TenantStatusActive
	if s.cache != nil {
		s.cache.Set(tenantID, active)
	}
	return active
}

// UpdateTenantStatus меняет статус тенанта и сбрасывает кэш проверки.
func (s *IdentityService) UpdateTenantStatus(ctx context.Context, tenantID, status string) (*model.Tenant, error) {
	if !model.ValidTenantStatus(status) {
		return nil, fmt.Errorf("%w: недопустимый статус %q, допустимые: active, inactive, suspended", ErrValidation, status)
	}

	tenant, err := s.uow.Repos().Tenants.UpdateStatus(ctx, tenantID, status)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: тенант %s", ErrNotFound, tenantID)
		}
		return nil, err
	}
	if s.cache != nil {
		s.cache.Delete(tenantID)
	}

	s.logger.Info("Статус тенанта изменён",
		slog.String("tenant_id", tenantID),
		slog.String("status", status),
	)
	return tenant, nil
}

// ListTenants возвращает тенантов, опционально с фильтром по статусу.
func (s *IdentityService) ListTenants(ctx context.Context, status *string) ([]*model.Tenant, error) {
	if status != nil && !model.ValidTenantStatus(*status) {
		return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, *status)
	}
	return s.uow.Repos().Tenants.List(ctx, status)
}

// Slugify приводит название к slug: строчные латинские буквы и цифры,
// остальные символы схлопываются в один дефис.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "-")
	}
	if slug == "" {
		return "business"
	}
	return slug
}

// nowUTC — текущее время в формате SOT.
func nowUTC() string {
	return time.Now().UTC().Format(sotstore.TimeFormat)
}
