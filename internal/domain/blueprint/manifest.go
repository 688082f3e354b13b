package blueprint

import (
	"fmt"
	"strings"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

// ModuleVersion — версия модуля в карте экспорта.
const ModuleVersion = "1.0.0"

// DefaultPersistence — окно хранения announcement-модулей по умолчанию.
const DefaultPersistence = "14 days"

// announcementPrefix — префикс идентификаторов announcement-модулей.
const announcementPrefix = "announcement/"

// Manifest — манифест экспорта Blueprint. Не хранится, собирается на каждый экспорт.
type Manifest struct {
	ClientID         string                 `json:"clientId"`
	BlueprintVersion string                 `json:"blueprintVersion"`
	ExportTimestamp  string                 `json:"exportTimestamp"`
	Modules          []model.ModuleMapEntry `json:"modules"`
	Deprecated       []string               `json:"deprecated"`
	ExportID         string                 `json:"exportId"`
	// TenantID — nil в обезличенном манифесте
	TenantID         *string        `json:"tenantId"`
	TenantAgnostic   bool           `json:"tenantAgnostic"`
	BusinessIdentity map[string]any `json:"businessIdentity,omitempty"`
}

// ExportID формирует идентификатор экспорта client-blueprint-v{version}-{millis}.
func ExportID(version string, millis int64) string {
	return fmt.Sprintf("client-blueprint-v%s-%d", version, millis)
}

// ModuleLookup ищет модуль в каталоге. false — модуль неизвестен.
type ModuleLookup func(id string) (*model.Module, bool)

// BuildModuleMap собирает карту экспортируемых модулей по списку разрешённых ID.
// Неизвестные модули пропускаются и возвращаются вторым значением.
// Повторы ID схлопываются, порядок сохраняется.
func BuildModuleMap(ids []string, lookup ModuleLookup) ([]model.ModuleMapEntry, []string) {
	entries := make([]model.ModuleMapEntry, 0, len(ids))
	var skipped []string
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		m, ok := lookup(id)
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		entries = append(entries, EntryFromModule(m))
	}
	return entries, skipped
}

// EntryFromModule строит элемент карты модулей из записи каталога.
func EntryFromModule(m *model.Module) model.ModuleMapEntry {
	entry := model.ModuleMapEntry{
		ModuleID:     m.ID,
		Type:         moduleType(m),
		Status:       m.Status,
		Version:      ModuleVersion,
		Dependencies: dependencies(m),
		ExportPath:   "/modules/" + m.ID + ".zip",
	}

	if IsAnnouncement(m.ID) {
		yes := true
		entry.Optional = &yes
		entry.EnabledByDefault = &yes
		persistence := m.MetaString("persistence")
		if persistence == "" {
			persistence = DefaultPersistence
		}
		entry.Metadata = map[string]any{
			"persistence": persistence,
		}
		if family := m.MetaString("family"); family != "" {
			entry.Metadata["family"] = family
		}
	} else if opt, ok := m.Metadata["optional"].(bool); ok {
		entry.Optional = &opt
	}

	return entry
}

// IsAnnouncement сообщает, относится ли модуль к семейству announcement.
func IsAnnouncement(id string) bool {
	return strings.HasPrefix(id, announcementPrefix)
}

// ModuleIDs возвращает идентификаторы модулей карты в исходном порядке.
func ModuleIDs(entries []model.ModuleMapEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ModuleID
	}
	return ids
}

func moduleType(m *model.Module) string {
	if t := m.MetaString("module_type"); t != "" {
		return t
	}
	return m.Category
}

func dependencies(m *model.Module) []string {
	deps := []string{}
	raw, ok := m.Metadata["dependencies"].([]any)
	if !ok {
		return deps
	}
	for _, d := range raw {
		if s, ok := d.(string); ok && s != "" {
			deps = append(deps, s)
		}
	}
	return deps
}
