package model

import "time"

// Категории модулей.
const (
	ModuleCategoryCore       = "core"
	ModuleCategoryCustom     = "custom"
	ModuleCategoryAutomation = "automation"
)

// Статусы модулей.
const (
	ModuleStatusActive   = "active"
	ModuleStatusInactive = "inactive"
)

// Module — запись общего каталога модулей.
// Хранится в таблице modules, ID глобально уникален и стабилен
// (например, announcement/UpgradeBanner).
type Module struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Category — core, custom, automation
	Category string `json:"category"`
	// Status — active, inactive
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	// Metadata — module_type, family, optional, enabled_by_default, persistence и т.д.
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// MetaString возвращает строковое поле метаданных.
func (m *Module) MetaString(key string) string {
	s, _ := m.Metadata[key].(string)
	return s
}

// MetaBool возвращает булево поле метаданных.
func (m *Module) MetaBool(key string) bool {
	b, _ := m.Metadata[key].(bool)
	return b
}

// ActivityLog — запись журнала аудита.
// Хранится в таблице activity_logs.
type ActivityLog struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
