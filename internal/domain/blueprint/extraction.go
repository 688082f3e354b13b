package blueprint

import (
	"fmt"
	"reflect"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

// SchemaVersion — версия схемы документа извлечения.
const SchemaVersion = "1.0.0"

// Extraction — снимок Blueprint клиента для предпросмотра и шаблонов.
// Состояние реестра при извлечении не меняется.
type Extraction struct {
	Version        string                 `json:"version"`
	ExtractedAt    string                 `json:"extractedAt"`
	TenantAgnostic bool                   `json:"tenantAgnostic"`
	Source         ExtractionSource       `json:"source"`
	Schema         ExtractionSchema       `json:"schema"`
	Modules        []model.ModuleMapEntry `json:"modules"`
	Tools          []ExtractedTool        `json:"tools"`
	Identity       map[string]any         `json:"identity,omitempty"`
}

// ExtractionSource — откуда получен снимок.
type ExtractionSource struct {
	InstanceID  string  `json:"instanceId"`
	ExtractedBy string  `json:"extractedBy"`
	TenantID    *string `json:"tenantId"`
}

// ExtractionSchema — версия схемы снимка.
type ExtractionSchema struct {
	Version string `json:"version"`
}

// ExtractedTool — инструмент тенанта в снимке.
type ExtractedTool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Enabled bool   `json:"enabled"`
}

// Validate проверяет структуру снимка и возвращает список проблем.
// Пустой список — снимок корректен.
func (e *Extraction) Validate() []string {
	var problems []string
	if e.Version == "" {
		problems = append(problems, "не указана версия")
	}
	if e.ExtractedAt == "" {
		problems = append(problems, "не указано время извлечения")
	}
	if !e.TenantAgnostic && (e.Source.TenantID == nil || *e.Source.TenantID == "") {
		problems = append(problems, "в источнике нет tenantId, а снимок не обезличен")
	}
	if e.Schema.Version == "" {
		problems = append(problems, "не указана версия схемы")
	}
	for i, t := range e.Tools {
		if t.Name == "" {
			problems = append(problems, fmt.Sprintf("у инструмента %d нет имени", i))
		}
		if t.Version == "" {
			problems = append(problems, fmt.Sprintf("у инструмента %d нет версии", i))
		}
	}
	for i, m := range e.Modules {
		if m.ModuleID == "" {
			problems = append(problems, fmt.Sprintf("у модуля %d нет идентификатора", i))
		}
	}
	return problems
}

// MakeTenantAgnostic обезличивает снимок.
func (e *Extraction) MakeTenantAgnostic() {
	e.TenantAgnostic = true
	e.Source.TenantID = nil
	e.Identity = Sanitize(e.Identity)
}

// Diff — различия между двумя картами модулей.
type Diff struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Empty сообщает, что карты совпадают.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// CompareModules сравнивает карту from с картой to по moduleId.
func CompareModules(from, to []model.ModuleMapEntry) Diff {
	d := Diff{Added: []string{}, Removed: []string{}, Modified: []string{}}

	index := make(map[string]model.ModuleMapEntry, len(from))
	for _, e := range from {
		index[e.ModuleID] = e
	}

	seen := make(map[string]bool, len(to))
	for _, e := range to {
		seen[e.ModuleID] = true
		prev, ok := index[e.ModuleID]
		switch {
		case !ok:
			d.Added = append(d.Added, e.ModuleID)
		case !reflect.DeepEqual(prev, e):
			d.Modified = append(d.Modified, e.ModuleID)
		}
	}

	for _, e := range from {
		if !seen[e.ModuleID] {
			d.Removed = append(d.Removed, e.ModuleID)
		}
	}
	return d
}
