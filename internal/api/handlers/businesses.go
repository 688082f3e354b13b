// businesses.go — обработчики /api/businesses: создание тенанта с профилем,
// чтение профиля, смена статуса.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/service"
)

type statusRequest struct {
	Status string `json:"status"`
}

// createBusinessRequest — тело POST /api/businesses. Формат adminEmail
// проверяется уже при разборе JSON.
type createBusinessRequest struct {
	BusinessName  string              `json:"businessName"`
	Industry      string              `json:"industry"`
	WebsiteURL    string              `json:"websiteURL"`
	Description   string              `json:"description"`
	Phone         string              `json:"phone"`
	AdminEmail    openapi_types.Email `json:"adminEmail"`
	AdminUsername string              `json:"adminUsername"`
	AdminPassword string              `json:"adminPassword"`
	Plan          string              `json:"plan"`
}

// createBusinessResponse — ответ POST /api/businesses; blueprintVersion
// задан, если тенант сразу заведён на версии по умолчанию.
type createBusinessResponse struct {
	*service.CreateProfileResult
	BlueprintVersion string `json:"blueprintVersion,omitempty"`
}

func (req createBusinessRequest) input() service.CreateProfileInput {
	return service.CreateProfileInput{
		BusinessName:  req.BusinessName,
		Industry:      req.Industry,
		WebsiteURL:    req.WebsiteURL,
		Description:   req.Description,
		Phone:         req.Phone,
		AdminEmail:    string(req.AdminEmail),
		AdminUsername: req.AdminUsername,
		AdminPassword: req.AdminPassword,
		Plan:          req.Plan,
	}
}

// CreateBusinessProfile — POST /api/businesses.
func (h *APIHandler) CreateBusinessProfile(w http.ResponseWriter, r *http.Request) {
	var req createBusinessRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	res, err := h.businesses.CreateBusinessProfile(r.Context(), req.input())
	if err != nil {
		h.writeServiceError(w, r, "business_create", err)
		return
	}

	// Тенант уже создан: сбой заведения реестра не отменяет ответ.
	resp := createBusinessResponse{CreateProfileResult: res}
	reg, err := h.blueprints.Onboard(r.Context(), res.BusinessID)
	switch {
	case err != nil:
		h.logger.Warn("Реестр Blueprint нового тенанта не заведён",
			slog.String("tenant_id", res.BusinessID),
			slog.String("error", err.Error()),
		)
	case reg != nil:
		resp.BlueprintVersion = reg.BlueprintVersion
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListBusinesses — GET /api/businesses?status=. Только супер-администратор.
func (h *APIHandler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	if !authorizeTenant(w, r, "", true) {
		return
	}
	tenants, err := h.businesses.ListTenants(r.Context(), optionalQuery(r, "status"))
	if err != nil {
		h.writeServiceError(w, r, "business_list", err)
		return
	}
	if tenants == nil {
		tenants = []*model.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

// GetBusinessProfile — GET /api/businesses/{tenantId}.
func (h *APIHandler) GetBusinessProfile(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if !authorizeTenant(w, r, tenantID, false) {
		return
	}
	p, err := h.businesses.GetBusinessProfile(r.Context(), tenantID)
	if err != nil {
		h.writeServiceError(w, r, "business_get", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateBusinessStatus — PATCH /api/businesses/{tenantId}/status.
// Мягкое удаление: тенант не удаляется, а переводится в inactive/suspended.
// При включённом JWT доступно только супер-администратору.
func (h *APIHandler) UpdateBusinessStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if !authorizeTenant(w, r, tenantID, true) {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	t, err := h.businesses.UpdateTenantStatus(r.Context(), tenantID, req.Status)
	if err != nil {
		h.writeServiceError(w, r, "business_status", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
