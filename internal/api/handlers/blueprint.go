// blueprint.go — обработчики /api/blueprint/*: реестр клиента, карта модулей,
// пакет экспорта, Guardian, экспорт и публикация версии 1.1.1.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/nextmonthlab/smartsite/internal/api/errors"
	"github.com/nextmonthlab/smartsite/internal/api/middleware"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/service"
)

type tagRequest struct {
	ClientID         string   `json:"clientId"`
	BlueprintVersion string   `json:"blueprintVersion"`
	Sector           string   `json:"sector"`
	Location         string   `json:"location"`
	ProjectStartDate *string  `json:"projectStartDate"`
	UserRoles        []string `json:"userRoles"`
}

type modulesRequest struct {
	ClientID string   `json:"clientId"`
	Modules  []string `json:"modules"`
}

type packageRequest struct {
	ClientID       string `json:"clientId"`
	TenantID       string `json:"tenantId"`
	TenantAgnostic bool   `json:"tenantAgnostic"`
}

type notifyRequest struct {
	ClientID string `json:"clientId"`
	Event    string `json:"event"`
}

type handoffRequest struct {
	ClientID      string `json:"clientId"`
	HandoffStatus string `json:"handoffStatus"`
}

type exportRequest struct {
	ClientID       string   `json:"clientId"`
	TenantID       string   `json:"tenantId"`
	TenantAgnostic bool     `json:"tenantAgnostic"`
	Modules        []string `json:"modules"`
}

type publishRequest struct {
	ReleaseNotes string `json:"releaseNotes"`
}

type clientRequest struct {
	ClientID string `json:"clientId"`
}

// GetBlueprintStatus — GET /api/blueprint/status?clientId=.
func (h *APIHandler) GetBlueprintStatus(w http.ResponseWriter, r *http.Request) {
	clientID, ok := requireClient(w, r, r.URL.Query().Get("clientId"))
	if !ok {
		return
	}
	view, err := h.blueprints.Status(r.Context(), clientID)
	if err != nil {
		h.writeServiceError(w, r, "blueprint_status", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// TagBlueprint — POST /api/blueprint/tag.
// 201 — реестр создан, 200 — обновлён.
func (h *APIHandler) TagBlueprint(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	// Пустой clientId отклоняет валидация сервиса (400).
	if id := strings.TrimSpace(req.ClientID); id != "" && !authorizeTenant(w, r, id, false) {
		return
	}
	reg, created, err := h.blueprints.Tag(r.Context(), service.TagInput{
		ClientID:         req.ClientID,
		BlueprintVersion: req.BlueprintVersion,
		Sector:           req.Sector,
		Location:         req.Location,
		ProjectStartDate: req.ProjectStartDate,
		UserRoles:        req.UserRoles,
	})
	if err != nil {
		h.writeServiceError(w, r, "blueprint_tag", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, reg)
}

// GenerateModuleMap — POST /api/blueprint/modules.
func (h *APIHandler) GenerateModuleMap(w http.ResponseWriter, r *http.Request) {
	var req modulesRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	clientID, ok := requireClient(w, r, req.ClientID)
	if !ok {
		return
	}
	res, err := h.blueprints.GenerateModuleMap(r.Context(), clientID, req.Modules)
	if err != nil {
		h.writeServiceError(w, r, "blueprint_modules", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PackageBlueprint — POST /api/blueprint/package.
func (h *APIHandler) PackageBlueprint(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	clientID, ok := requireClient(w, r, req.ClientID)
	if !ok {
		return
	}
	if req.TenantID != "" && !authorizeTenant(w, r, req.TenantID, false) {
		return
	}
	res, err := h.blueprints.Package(r.Context(), service.PackageInput{
		ClientID:       clientID,
		TenantID:       req.TenantID,
		TenantAgnostic: req.TenantAgnostic,
	})
	if err != nil {
		h.writeServiceError(w, r, "blueprint_package", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// NotifyGuardian — POST /api/blueprint/notify-guardian.
func (h *APIHandler) NotifyGuardian(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	clientID, ok := requireClient(w, r, req.ClientID)
	if !ok {
		return
	}
	res, err := h.blueprints.NotifyGuardian(r.Context(), clientID, strings.TrimSpace(req.Event))
	if err != nil {
		h.writeServiceError(w, r, "blueprint_notify_guardian", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetHandoffStatus — POST /api/blueprint/handoff-status.
func (h *APIHandler) SetHandoffStatus(w http.ResponseWriter, r *http.Request) {
	var req handoffRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	clientID, ok := requireClient(w, r, req.ClientID)
	if !ok {
		return
	}
	res, err := h.blueprints.SetHandoffStatus(r.Context(), clientID, req.HandoffStatus)
	if err != nil {
		h.writeServiceError(w, r, "blueprint_handoff_status", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportCurrentVersion — POST /api/blueprint/export-v1.1.1.
func (h *APIHandler) ExportCurrentVersion(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	clientID, ok := requireClient(w, r, req.ClientID)
	if !ok {
		return
	}
	if req.TenantID != "" && !authorizeTenant(w, r, req.TenantID, false) {
		return
	}
	res, err := h.blueprints.ExportCurrentVersion(r.Context(), service.ExportInput{
		ClientID:       clientID,
		TenantID:       req.TenantID,
		TenantAgnostic: req.TenantAgnostic,
		Modules:        req.Modules,
	})
	if err != nil {
		h.writeServiceError(w, r, "blueprint_export", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PublishCurrentVersion — POST /api/blueprint/auto-publish-v1.1.1.
// Тело необязательно. Журнал версий общий для всех тенантов, поэтому
// при включённом JWT публикует только супер-администратор.
func (h *APIHandler) PublishCurrentVersion(w http.ResponseWriter, r *http.Request) {
	if !authorizeTenant(w, r, "", true) {
		return
	}
	var req publishRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	res, err := h.blueprints.PublishCurrentVersion(r.Context(), req.ReleaseNotes)
	if err != nil {
		h.writeServiceError(w, r, "blueprint_publish", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AddAnnouncements — POST /api/blueprint/announcements.
func (h *APIHandler) AddAnnouncements(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	clientID, ok := requireClient(w, r, req.ClientID)
	if !ok {
		return
	}
	res, err := h.blueprints.AddAnnouncements(r.Context(), clientID)
	if err != nil {
		h.writeServiceError(w, r, "blueprint_announcements", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExtractBlueprint — GET /api/blueprint/extract?clientId=&tenantId=&tenantAgnostic=.
func (h *APIHandler) ExtractBlueprint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, ok := requireClient(w, r, q.Get("clientId"))
	if !ok {
		return
	}

	agnostic := false
	if raw := q.Get("tenantAgnostic"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "tenantAgnostic: ожидается true или false")
			return
		}
		agnostic = v
	}

	tenantID := strings.TrimSpace(q.Get("tenantId"))
	if tenantID != "" && !authorizeTenant(w, r, tenantID, false) {
		return
	}

	ex, err := h.blueprints.Extract(r.Context(), service.ExtractInput{
		ClientID:       clientID,
		TenantID:       tenantID,
		TenantAgnostic: agnostic,
		ExtractedBy:    middleware.SubjectFromContext(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, "blueprint_extract", err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// DiffBlueprint — GET /api/blueprint/diff?clientId=&version=.
// Без version сравнивается с текущей версией клиента.
func (h *APIHandler) DiffBlueprint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, ok := requireClient(w, r, q.Get("clientId"))
	if !ok {
		return
	}
	d, err := h.blueprints.Diff(r.Context(), clientID, strings.TrimSpace(q.Get("version")))
	if err != nil {
		h.writeServiceError(w, r, "blueprint_diff", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListBlueprintVersions — GET /api/blueprint/versions.
func (h *APIHandler) ListBlueprintVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.blueprints.Versions(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "blueprint_versions", err)
		return
	}
	if versions == nil {
		versions = []*model.BlueprintVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

// requireClient проверяет наличие clientId и доступ субъекта к нему:
// реестр Blueprint принадлежит тенанту с тем же идентификатором.
// При отказе ответ уже записан.
func requireClient(w http.ResponseWriter, r *http.Request, clientID string) (string, bool) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		apierrors.ValidationError(w, "clientId обязателен")
		return "", false
	}
	if !authorizeTenant(w, r, clientID, false) {
		return "", false
	}
	return clientID, true
}
