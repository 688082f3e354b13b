// modules.go — обработчики /api/modules: каталог модулей.
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/nextmonthlab/smartsite/internal/api/errors"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

type moduleRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Status      string         `json:"status"`
	Path        string         `json:"path"`
	Metadata    map[string]any `json:"metadata"`
}

// ListModules — GET /api/modules?status=.
func (h *APIHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.modules.ListModules(r.Context(), optionalQuery(r, "status"))
	if err != nil {
		h.writeServiceError(w, r, "modules_list", err)
		return
	}
	if modules == nil {
		modules = []*model.Module{}
	}
	writeJSON(w, http.StatusOK, modules)
}

// RegisterModule — POST /api/modules.
// Идемпотентна: 201 — модуль добавлен, 200 — уже был в каталоге.
func (h *APIHandler) RegisterModule(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	m, created, err := h.modules.RegisterModule(r.Context(), &model.Module{
		ID:          strings.TrimSpace(req.ID),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    req.Category,
		Status:      req.Status,
		Path:        req.Path,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, "modules_register", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, m)
}

// GetModule — GET /api/modules/*. Идентификатор может содержать "/"
// (announcement/UpgradeBanner), в том числе в виде %2F.
func (h *APIHandler) GetModule(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || strings.TrimSpace(id) == "" {
		apierrors.ValidationError(w, "Некорректный идентификатор модуля")
		return
	}
	m, err := h.modules.GetModule(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "modules_get", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
