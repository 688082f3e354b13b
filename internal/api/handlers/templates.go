package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/nextmonthlab/smartsite/internal/api/errors"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/service"
)

type templateRequest struct {
	InstanceName string `json:"instanceName"`
	Description  string `json:"description"`
	IsCloneable  *bool  `json:"isCloneable"`
}

type cloneableRequest struct {
	IsCloneable *bool `json:"isCloneable"`
}

// ListBlueprintTemplates — GET /api/blueprint/templates?cloneable=true.
func (h *APIHandler) ListBlueprintTemplates(w http.ResponseWriter, r *http.Request) {
	cloneableOnly := false
	if raw := r.URL.Query().Get("cloneable"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "cloneable: ожидается true или false")
			return
		}
		cloneableOnly = v
	}
	list, err := h.blueprints.Templates(r.Context(), cloneableOnly)
	if err != nil {
		h.writeServiceError(w, r, "blueprint_templates", err)
		return
	}
	if list == nil {
		list = []*model.BlueprintTemplate{}
	}
	writeJSON(w, http.StatusOK, list)
}

// RegisterBlueprintTemplate — POST /api/blueprint/templates.
// Каталог общий для всех тенантов: при включённом JWT только супер-администратор.
func (h *APIHandler) RegisterBlueprintTemplate(w http.ResponseWriter, r *http.Request) {
	if !authorizeTenant(w, r, "", true) {
		return
	}
	var req templateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	tpl, err := h.blueprints.RegisterTemplate(r.Context(), service.TemplateInput{
		InstanceName: req.InstanceName,
		Description:  req.Description,
		IsCloneable:  req.IsCloneable,
	})
	if err != nil {
		h.writeServiceError(w, r, "blueprint_template_register", err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

// SetBlueprintTemplateCloneable — PATCH /api/blueprint/templates/{id}.
func (h *APIHandler) SetBlueprintTemplateCloneable(w http.ResponseWriter, r *http.Request) {
	if !authorizeTenant(w, r, "", true) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, "id шаблона должен быть положительным целым")
		return
	}
	var req cloneableRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.IsCloneable == nil {
		apierrors.ValidationError(w, "isCloneable обязателен")
		return
	}
	tpl, err := h.blueprints.SetTemplateCloneable(r.Context(), id, *req.IsCloneable)
	if err != nil {
		h.writeServiceError(w, r, "blueprint_template_cloneable", err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}
