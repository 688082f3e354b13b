package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/nextmonthlab/smartsite/internal/api/middleware"
	"github.com/nextmonthlab/smartsite/internal/domain/blueprint"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/service"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
)

// testLogger создаёт логгер для тестов (вывод только ошибок).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubBlueprints — заглушка BlueprintAPI. Незаданные методы паникуют
// через встроенный nil-интерфейс.
type stubBlueprints struct {
	BlueprintAPI

	status   func(clientID string) (*service.StatusView, error)
	tag      func(in service.TagInput) (*model.ClientRegistry, bool, error)
	onboard  func(clientID string) (*model.ClientRegistry, error)
	publish  func(notes string) (*service.PublishResult, error)
	extract  func(in service.ExtractInput) (*blueprint.Extraction, error)
	versions func() ([]*model.BlueprintVersion, error)

	registerTemplate func(in service.TemplateInput) (*model.BlueprintTemplate, error)
	templates        func(cloneableOnly bool) ([]*model.BlueprintTemplate, error)
	setCloneable     func(id int64, cloneable bool) (*model.BlueprintTemplate, error)
}

func (s *stubBlueprints) Status(_ context.Context, clientID string) (*service.StatusView, error) {
	return s.status(clientID)
}

func (s *stubBlueprints) Tag(_ context.Context, in service.TagInput) (*model.ClientRegistry, bool, error) {
	return s.tag(in)
}

// Onboard без заданной функции ведёт себя как сервис без опубликованной версии.
func (s *stubBlueprints) Onboard(_ context.Context, clientID string) (*model.ClientRegistry, error) {
	if s.onboard == nil {
		return nil, nil
	}
	return s.onboard(clientID)
}

func (s *stubBlueprints) PublishCurrentVersion(_ context.Context, notes string) (*service.PublishResult, error) {
	return s.publish(notes)
}

func (s *stubBlueprints) Extract(_ context.Context, in service.ExtractInput) (*blueprint.Extraction, error) {
	return s.extract(in)
}

func (s *stubBlueprints) Versions(_ context.Context) ([]*model.BlueprintVersion, error) {
	return s.versions()
}

func (s *stubBlueprints) RegisterTemplate(_ context.Context, in service.TemplateInput) (*model.BlueprintTemplate, error) {
	return s.registerTemplate(in)
}

func (s *stubBlueprints) Templates(_ context.Context, cloneableOnly bool) ([]*model.BlueprintTemplate, error) {
	return s.templates(cloneableOnly)
}

func (s *stubBlueprints) SetTemplateCloneable(_ context.Context, id int64, cloneable bool) (*model.BlueprintTemplate, error) {
	return s.setCloneable(id, cloneable)
}

// stubModules — каталог модулей в памяти.
type stubModules struct {
	byID map[string]*model.Module
}

func (s *stubModules) RegisterModule(_ context.Context, m *model.Module) (*model.Module, bool, error) {
	if existing, ok := s.byID[m.ID]; ok {
		return existing, false, nil
	}
	s.byID[m.ID] = m
	return m, true, nil
}

func (s *stubModules) ListModules(_ context.Context, _ *string) ([]*model.Module, error) {
	return nil, nil
}

func (s *stubModules) GetModule(_ context.Context, id string) (*model.Module, error) {
	if m, ok := s.byID[id]; ok {
		return m, nil
	}
	return nil, service.ErrNotFound
}

// stubBusinesses — справочник тенантов в памяти.
type stubBusinesses struct {
	tenants  map[string]*model.Tenant
	profiles map[string]*service.BusinessProfile
}

func newStubBusinesses(ids ...string) *stubBusinesses {
	s := &stubBusinesses{
		tenants:  map[string]*model.Tenant{},
		profiles: map[string]*service.BusinessProfile{},
	}
	for _, id := range ids {
		s.tenants[id] = &model.Tenant{ID: id, Name: id, Status: model.TenantStatusActive}
		s.profiles[id] = &service.BusinessProfile{BusinessID: id, BusinessName: id}
	}
	return s
}

func (s *stubBusinesses) CreateBusinessProfile(_ context.Context, in service.CreateProfileInput) (*service.CreateProfileResult, error) {
	if in.BusinessName == "" {
		return nil, service.ErrValidation
	}
	return &service.CreateProfileResult{BusinessID: "acme-1a2b3c4d", UserID: "user-1"}, nil
}

func (s *stubBusinesses) GetBusinessProfile(_ context.Context, tenantID string) (*service.BusinessProfile, error) {
	if p, ok := s.profiles[tenantID]; ok {
		return p, nil
	}
	return nil, service.ErrNotFound
}

func (s *stubBusinesses) UpdateTenantStatus(_ context.Context, tenantID, status string) (*model.Tenant, error) {
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, service.ErrNotFound
	}
	t.Status = status
	return t, nil
}

func (s *stubBusinesses) ListTenants(_ context.Context, _ *string) ([]*model.Tenant, error) {
	return nil, nil
}

func (s *stubBusinesses) ValidateTenant(_ context.Context, tenantID string) bool {
	t, ok := s.tenants[tenantID]
	return ok && t.Status == model.TenantStatusActive
}

type testEnv struct {
	handler    *APIHandler
	blueprints *stubBlueprints
	modules    *stubModules
	businesses *stubBusinesses
	admin      *service.AdminPanelService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sotstore.New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("sotstore.New: %v", err)
	}
	env := &testEnv{
		blueprints: &stubBlueprints{},
		modules:    &stubModules{byID: map[string]*model.Module{}},
		businesses: newStubBusinesses("acme", "globex"),
		admin:      service.NewAdminPanelService(store, "https://embed.test", testLogger()),
	}
	env.handler = NewAPIHandler(
		NewHealthHandler(nil, nil, nil),
		env.blueprints, env.modules, env.businesses, env.admin, testLogger(),
	)
	return env
}

// router собирает маршруты так же, как HTTP-сервер, без JWT и OpenAPI.
// claims != nil имитирует аутентифицированный запрос.
func (e *testEnv) router(claims *middleware.AuthClaims) http.Handler {
	h := e.handler
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyClaims, claims))
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/health/ready", h.HealthReady)
	r.Get("/api/blueprint/status", h.GetBlueprintStatus)
	r.Post("/api/blueprint/tag", h.TagBlueprint)
	r.Post("/api/blueprint/modules", h.GenerateModuleMap)
	r.Post("/api/blueprint/package", h.PackageBlueprint)
	r.Post("/api/blueprint/notify-guardian", h.NotifyGuardian)
	r.Post("/api/blueprint/handoff-status", h.SetHandoffStatus)
	r.Post("/api/blueprint/export-v1.1.1", h.ExportCurrentVersion)
	r.Post("/api/blueprint/auto-publish-v1.1.1", h.PublishCurrentVersion)
	r.Post("/api/blueprint/announcements", h.AddAnnouncements)
	r.Get("/api/blueprint/extract", h.ExtractBlueprint)
	r.Get("/api/blueprint/diff", h.DiffBlueprint)
	r.Get("/api/blueprint/versions", h.ListBlueprintVersions)
	r.Get("/api/blueprint/templates", h.ListBlueprintTemplates)
	r.Post("/api/blueprint/templates", h.RegisterBlueprintTemplate)
	r.Patch("/api/blueprint/templates/{id}", h.SetBlueprintTemplateCloneable)

	r.Get("/api/modules", h.ListModules)
	r.Post("/api/modules", h.RegisterModule)
	r.Get("/api/modules/*", h.GetModule)

	r.Get("/api/businesses", h.ListBusinesses)
	r.Post("/api/businesses", h.CreateBusinessProfile)
	r.Get("/api/businesses/{tenantId}", h.GetBusinessProfile)
	r.Patch("/api/businesses/{tenantId}/status", h.UpdateBusinessStatus)

	r.Route("/api/admin/{tenantId}", func(r chi.Router) {
		r.Use(middleware.TenantGuard(h.Tenants()))
		r.Get("/insight-users", h.ListInsightUsers)
		r.Post("/insight-users", h.InviteInsightUser)
		r.Get("/themes", h.ListThemes)
		r.Post("/themes", h.CreateTheme)
		r.Post("/insights", h.CreateInsight)
		r.Get("/analytics-events", h.ListAnalyticsEvents)
		r.Get("/embed-code", h.GetEmbedCode)
		r.Get("/dashboard/summary", h.GetDashboardSummary)
	})
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("кодирование тела: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("тело ответа не JSON (%d): %s", rec.Code, rec.Body.String())
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeBody[struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}](t, rec)
	return resp.Error.Code
}
