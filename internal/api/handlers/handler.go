// handler.go — основной обработчик HTTP API SmartSite. Разбирает запросы,
// делегирует их сервисному слою и переводит ошибки сервисов в HTTP-ответы.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/nextmonthlab/smartsite/internal/api/errors"
	"github.com/nextmonthlab/smartsite/internal/api/middleware"
	"github.com/nextmonthlab/smartsite/internal/domain/blueprint"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/service"
)

// maxBodySize — предел тела запроса (тексты блога, CSS тем).
const maxBodySize = 1 << 20

// BlueprintAPI — операции Blueprint клиентов (service.BlueprintService).
type BlueprintAPI interface {
	Status(ctx context.Context, clientID string) (*service.StatusView, error)
	Tag(ctx context.Context, in service.TagInput) (*model.ClientRegistry, bool, error)
	Onboard(ctx context.Context, clientID string) (*model.ClientRegistry, error)
	GenerateModuleMap(ctx context.Context, clientID string, extra []string) (*service.ModulesResult, error)
	Package(ctx context.Context, in service.PackageInput) (*service.PackageResult, error)
	NotifyGuardian(ctx context.Context, clientID, event string) (*service.NotifyResult, error)
	SetHandoffStatus(ctx context.Context, clientID, status string) (*service.HandoffResult, error)
	ExportCurrentVersion(ctx context.Context, in service.ExportInput) (*service.ExportResult, error)
	PublishCurrentVersion(ctx context.Context, notes string) (*service.PublishResult, error)
	AddAnnouncements(ctx context.Context, clientID string) (*service.AnnouncementsResult, error)
	Extract(ctx context.Context, in service.ExtractInput) (*blueprint.Extraction, error)
	Diff(ctx context.Context, clientID, version string) (*blueprint.Diff, error)
	Versions(ctx context.Context) ([]*model.BlueprintVersion, error)
	RegisterTemplate(ctx context.Context, in service.TemplateInput) (*model.BlueprintTemplate, error)
	Templates(ctx context.Context, cloneableOnly bool) ([]*model.BlueprintTemplate, error)
	SetTemplateCloneable(ctx context.Context, id int64, cloneable bool) (*model.BlueprintTemplate, error)
}

// ModuleCatalog — каталог модулей (service.ModuleService).
type ModuleCatalog interface {
	RegisterModule(ctx context.Context, m *model.Module) (*model.Module, bool, error)
	ListModules(ctx context.Context, status *string) ([]*model.Module, error)
	GetModule(ctx context.Context, id string) (*model.Module, error)
}

// BusinessDirectory — бизнес-профили и тенанты (service.IdentityService).
type BusinessDirectory interface {
	CreateBusinessProfile(ctx context.Context, in service.CreateProfileInput) (*service.CreateProfileResult, error)
	GetBusinessProfile(ctx context.Context, tenantID string) (*service.BusinessProfile, error)
	UpdateTenantStatus(ctx context.Context, tenantID, status string) (*model.Tenant, error)
	ListTenants(ctx context.Context, status *string) ([]*model.Tenant, error)
	ValidateTenant(ctx context.Context, tenantID string) bool
}

// APIHandler — обработчик HTTP API SmartSite.
type APIHandler struct {
	health     *HealthHandler
	blueprints BlueprintAPI
	modules    ModuleCatalog
	businesses BusinessDirectory
	admin      *service.AdminPanelService
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	blueprints BlueprintAPI,
	modules ModuleCatalog,
	businesses BusinessDirectory,
	admin *service.AdminPanelService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		blueprints: blueprints,
		modules:    modules,
		businesses: businesses,
		admin:      admin,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// Tenants возвращает проверку тенантов для TenantGuard.
func (h *APIHandler) Tenants() middleware.TenantValidator {
	return h.businesses
}

// HealthLive — liveness-проверка.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness-проверка.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса в dst. Пустое тело допустимо,
// если allowEmpty. При ошибке ответ уже записан и возвращается false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && allowEmpty:
		return true
	case errors.Is(err, io.EOF):
		apierrors.ValidationError(w, "Пустое тело запроса")
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.ValidationError(w, fmt.Sprintf("Тело запроса больше %d байт", maxErr.Limit))
			return false
		}
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
	}
	return false
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
// Внутренние ошибки логируются, клиент получает только общее сообщение.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var transition *blueprint.TransitionError
	switch {
	case errors.As(err, &transition):
		apierrors.InvalidTransition(w, transition.Message)
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotConfigured):
		apierrors.NotConfigured(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrInvalidTenant):
		apierrors.InvalidTenant(w, err.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// authorizeTenant проверяет доступ аутентифицированного субъекта к тенанту.
// Без JWT проверка не выполняется. superOnly — операция только для
// супер-администратора. При отказе ответ уже записан.
func authorizeTenant(w http.ResponseWriter, r *http.Request, tenantID string, superOnly bool) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	switch {
	case claims == nil, claims.SuperAdmin:
		return true
	case superOnly:
		apierrors.Forbidden(w, "Операция доступна только супер-администратору")
		return false
	case claims.TenantID != tenantID:
		apierrors.CrossTenantDenied(w, "Доступ к данным другого тенанта запрещён")
		return false
	}
	return true
}

// optionalQuery возвращает указатель на параметр запроса или nil, если он пуст.
func optionalQuery(r *http.Request, name string) *string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	return &v
}
