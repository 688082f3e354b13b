// Пакет model — доменные модели SmartSite.
package model

import "time"

// Статусы тенанта.
const (
	TenantStatusActive    = "active"
	TenantStatusInactive  = "inactive"
	TenantStatusSuspended = "suspended"
)

// DefaultPlan — тарифный план нового тенанта.
const DefaultPlan = "smart_site_basic"

// RoleAdmin — роль администратора, создаваемого вместе с тенантом.
const RoleAdmin = "admin"

// ValidTenantStatus проверяет допустимость статуса тенанта.
func ValidTenantStatus(s string) bool {
	switch s {
	case TenantStatusActive, TenantStatusInactive, TenantStatusSuspended:
		return true
	}
	return false
}

// Tenant — корневая единица изоляции данных.
// Хранится в таблице tenants, физически не удаляется.
type Tenant struct {
	// ID — slug названия + 8 hex-символов (acme-coffee-1a2b3c4d)
	ID string `json:"id"`
	// Name — название бизнеса
	Name string `json:"name"`
	// Domain — домен сайта, уникален
	Domain string `json:"domain"`
	// Status — active, inactive, suspended
	Status string `json:"status"`
	// Plan — тарифный план
	Plan       string `json:"plan"`
	Industry   string `json:"industry,omitempty"`
	WebsiteURL string `json:"websiteUrl,omitempty"`
	// Customization — произвольные настройки оформления
	Customization map[string]any `json:"customization,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// AdminUser — администратор тенанта.
// Хранится в таблице admin_users. Хэш пароля наружу не отдаётся.
type AdminUser struct {
	// ID — UUID пользователя
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	// PasswordHash — bcrypt-хэш
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Contact — контактные данные бизнеса.
type Contact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// BusinessIdentity — профиль бизнеса, 1—1 с тенантом.
// Хранится в таблице business_identities.
type BusinessIdentity struct {
	TenantID     string    `json:"tenantId"`
	BusinessName string    `json:"businessName"`
	Industry     string    `json:"industry,omitempty"`
	WebsiteURL   string    `json:"websiteUrl,omitempty"`
	Description  string    `json:"description,omitempty"`
	Contact      Contact   `json:"contact"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
