package model

import "time"

// Статусы передачи (handoff) клиенту.
const (
	HandoffInProgress = "in_progress"
	HandoffCompleted  = "completed"
)

// ModuleMapEntry — элемент карты экспортируемых модулей клиента.
// Формируется при экспорте из каталога модулей.
type ModuleMapEntry struct {
	ModuleID     string   `json:"moduleId"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies"`
	// ExportPath — /modules/{moduleId}.zip
	ExportPath       string         `json:"exportPath"`
	Optional         *bool          `json:"optional,omitempty"`
	EnabledByDefault *bool          `json:"enabledByDefault,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ClientRegistry — состояние Blueprint конкретного клиента.
// Хранится в таблице client_registries, одна строка на clientId.
type ClientRegistry struct {
	ClientID         string   `json:"clientId"`
	BlueprintVersion string   `json:"blueprintVersion"`
	Sector           string   `json:"sector,omitempty"`
	Location         string   `json:"location,omitempty"`
	ProjectStartDate *string  `json:"projectStartDate,omitempty"`
	UserRoles        []string `json:"userRoles"`
	// ExportableModules — упорядоченная карта модулей
	ExportableModules []ModuleMapEntry `json:"exportableModules"`
	ExportReady       bool             `json:"exportReady"`
	// HandoffStatus — in_progress, completed
	HandoffStatus string     `json:"handoffStatus"`
	LastExported  *time.Time `json:"lastExported"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// BlueprintVersion — запись реестра версий Blueprint.
// Хранится в таблице blueprint_versions, не удаляется: устаревшие версии
// помечаются deprecated.
type BlueprintVersion struct {
	Version      string           `json:"version"`
	Deprecated   bool             `json:"deprecated"`
	IsDefault    bool             `json:"isDefault"`
	ReleaseNotes string           `json:"releaseNotes,omitempty"`
	Modules      []ModuleMapEntry `json:"modules"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// BlueprintTemplate — запись каталога шаблонов Blueprint.
// Хранится в таблице blueprint_templates.
type BlueprintTemplate struct {
	ID               int64  `json:"id"`
	InstanceName     string `json:"instanceName"`
	Description      string `json:"description,omitempty"`
	BlueprintVersion string `json:"blueprintVersion"`
	// ToolsSupported — moduleId из карты модулей версии на момент регистрации
	ToolsSupported []string  `json:"toolsSupported"`
	IsCloneable    bool      `json:"isCloneable"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
