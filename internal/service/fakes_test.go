package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/repository"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
	"github.com/nextmonthlab/smartsite/internal/syncgw"
)

// testLogger создаёт логгер для тестов (вывод только ошибок).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// discardLogger — логгер без вывода.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sotstore.Store {
	t.Helper()
	store, err := sotstore.New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("sotstore.New: %v", err)
	}
	return store
}

// --- in-memory UnitOfWork ---

// memDB — in-memory реализация таблиц для unit-тестов сервисов.
type memDB struct {
	mu         sync.Mutex
	clock      time.Time
	tenants    map[string]model.Tenant
	admins     []model.AdminUser
	identities map[string]model.BusinessIdentity
	modules    map[string]model.Module
	logs       []model.ActivityLog
	registries map[string]model.ClientRegistry
	versions   map[string]model.BlueprintVersion
	templates  []model.BlueprintTemplate

	// moduleGetHook — подмена GetByID модулей (для гонки регистрации)
	moduleGetHook func(id string) (m *model.Module, handled bool, err error)
	// tenantGetErr — ошибка GetByID тенанта
	tenantGetErr error
}

func newMemDB() *memDB {
	return &memDB{
		clock:      time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		tenants:    map[string]model.Tenant{},
		identities: map[string]model.BusinessIdentity{},
		modules:    map[string]model.Module{},
		registries: map[string]model.ClientRegistry{},
		versions:   map[string]model.BlueprintVersion{},
	}
}

// tick — монотонное «время» записи.
func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

func (db *memDB) snapshot() *memDB {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := &memDB{
		clock:      db.clock,
		tenants:    make(map[string]model.Tenant, len(db.tenants)),
		admins:     append([]model.AdminUser(nil), db.admins...),
		identities: make(map[string]model.BusinessIdentity, len(db.identities)),
		modules:    make(map[string]model.Module, len(db.modules)),
		logs:       append([]model.ActivityLog(nil), db.logs...),
		registries: make(map[string]model.ClientRegistry, len(db.registries)),
		versions:   make(map[string]model.BlueprintVersion, len(db.versions)),
		templates:  append([]model.BlueprintTemplate(nil), db.templates...),
	}
	for k, v := range db.tenants {
		cp.tenants[k] = v
	}
	for k, v := range db.identities {
		cp.identities[k] = v
	}
	for k, v := range db.modules {
		cp.modules[k] = v
	}
	for k, v := range db.registries {
		cp.registries[k] = v
	}
	for k, v := range db.versions {
		cp.versions[k] = v
	}
	return cp
}

func (db *memDB) restore(cp *memDB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.clock = cp.clock
	db.tenants = cp.tenants
	db.admins = cp.admins
	db.identities = cp.identities
	db.modules = cp.modules
	db.logs = cp.logs
	db.registries = cp.registries
	db.versions = cp.versions
	db.templates = cp.templates
}

func (db *memDB) Repos() *repository.Repos {
	return &repository.Repos{
		Tenants:      memTenants{db},
		AdminUsers:   memAdmins{db},
		Identities:   memIdentities{db},
		Modules:      memModules{db},
		ActivityLogs: memLogs{db},
		Registries:   memRegistries{db},
		Versions:     memVersions{db},
		Templates:    memTemplates{db},
	}
}

func (db *memDB) InTx(ctx context.Context, fn func(r *repository.Repos) error) error {
	cp := db.snapshot()
	if err := fn(db.Repos()); err != nil {
		db.restore(cp)
		return err
	}
	return nil
}

func (db *memDB) actionCount(action string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, l := range db.logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

type memTenants struct{ db *memDB }

func (r memTenants) Create(_ context.Context, t *model.Tenant) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tenants[t.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range r.db.tenants {
		if existing.Domain == t.Domain {
			return repository.ErrConflict
		}
	}
	t.CreatedAt = r.db.tick()
	t.UpdatedAt = t.CreatedAt
	r.db.tenants[t.ID] = *t
	return nil
}

func (r memTenants) GetByID(_ context.Context, id string) (*model.Tenant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.tenantGetErr != nil {
		return nil, r.db.tenantGetErr
	}
	t, ok := r.db.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r memTenants) List(_ context.Context, status *string) ([]*model.Tenant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Tenant
	for _, t := range r.db.tenants {
		if status != nil && t.Status != *status {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTenants) UpdateStatus(_ context.Context, id, status string) (*model.Tenant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = r.db.tick()
	r.db.tenants[id] = t
	return &t, nil
}

type memAdmins struct{ db *memDB }

func (r memAdmins) Create(_ context.Context, u *model.AdminUser) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.admins {
		if a.Username == u.Username {
			return repository.ErrConflict
		}
	}
	u.CreatedAt = r.db.tick()
	u.UpdatedAt = u.CreatedAt
	r.db.admins = append(r.db.admins, *u)
	return nil
}

func (r memAdmins) GetPrimary(_ context.Context, tenantID string) (*model.AdminUser, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, a := range r.db.admins {
		if a.TenantID == tenantID {
			a := a
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memIdentities struct{ db *memDB }

func (r memIdentities) Create(_ context.Context, b *model.BusinessIdentity) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.identities[b.TenantID]; ok {
		return repository.ErrConflict
	}
	b.CreatedAt = r.db.tick()
	b.UpdatedAt = b.CreatedAt
	r.db.identities[b.TenantID] = *b
	return nil
}

func (r memIdentities) GetByTenant(_ context.Context, tenantID string) (*model.BusinessIdentity, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.identities[tenantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

type memModules struct{ db *memDB }

func (r memModules) Create(_ context.Context, m *model.Module) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.modules[m.ID]; ok {
		return repository.ErrConflict
	}
	m.CreatedAt = r.db.tick()
	m.UpdatedAt = m.CreatedAt
	r.db.modules[m.ID] = *m
	return nil
}

func (r memModules) GetByID(_ context.Context, id string) (*model.Module, error) {
	r.db.mu.Lock()
	hook := r.db.moduleGetHook
	r.db.mu.Unlock()
	if hook != nil {
		if m, handled, err := hook(id); handled {
			return m, err
		}
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.modules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r memModules) GetByIDs(_ context.Context, ids []string) (map[string]*model.Module, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[string]*model.Module, len(ids))
	for _, id := range ids {
		if m, ok := r.db.modules[id]; ok {
			m := m
			out[id] = &m
		}
	}
	return out, nil
}

func (r memModules) List(_ context.Context, status *string) ([]*model.Module, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Module
	for _, m := range r.db.modules {
		if status != nil && m.Status != *status {
			continue
		}
		m := m
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memLogs struct{ db *memDB }

func (r memLogs) Create(_ context.Context, l *model.ActivityLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l.ID = int64(len(r.db.logs) + 1)
	l.CreatedAt = r.db.tick()
	r.db.logs = append(r.db.logs, *l)
	return nil
}

func (r memLogs) List(_ context.Context, action *string, limit int) ([]*model.ActivityLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.ActivityLog
	for i := len(r.db.logs) - 1; i >= 0 && len(out) < limit; i-- {
		l := r.db.logs[i]
		if action != nil && l.Action != *action {
			continue
		}
		out = append(out, &l)
	}
	return out, nil
}

type memRegistries struct{ db *memDB }

func (r memRegistries) Upsert(_ context.Context, reg *model.ClientRegistry, replaceModules bool) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.tick()
	existing, ok := r.db.registries[reg.ClientID]
	if !ok {
		saved := *reg
		if saved.UserRoles == nil {
			saved.UserRoles = []string{}
		}
		if saved.ExportableModules == nil {
			saved.ExportableModules = []model.ModuleMapEntry{}
		}
		saved.ExportReady = false
		saved.HandoffStatus = model.HandoffInProgress
		saved.CreatedAt, saved.UpdatedAt = now, now
		r.db.registries[reg.ClientID] = saved
		*reg = saved
		return true, nil
	}

	existing.BlueprintVersion = reg.BlueprintVersion
	if reg.Sector != "" {
		existing.Sector = reg.Sector
	}
	if reg.Location != "" {
		existing.Location = reg.Location
	}
	if reg.ProjectStartDate != nil {
		existing.ProjectStartDate = reg.ProjectStartDate
	}
	if len(reg.UserRoles) > 0 {
		existing.UserRoles = reg.UserRoles
	}
	if replaceModules {
		existing.ExportableModules = reg.ExportableModules
	}
	existing.ExportReady = false
	existing.HandoffStatus = model.HandoffInProgress
	existing.UpdatedAt = now
	r.db.registries[reg.ClientID] = existing
	*reg = existing
	return false, nil
}

func (r memRegistries) Get(_ context.Context, clientID string) (*model.ClientRegistry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	reg, ok := r.db.registries[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &reg, nil
}

func (r memRegistries) update(clientID string, fn func(reg *model.ClientRegistry)) (*model.ClientRegistry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	reg, ok := r.db.registries[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	fn(&reg)
	reg.UpdatedAt = r.db.tick()
	r.db.registries[clientID] = reg
	return &reg, nil
}

func (r memRegistries) UpdateModules(_ context.Context, clientID string, modules []model.ModuleMapEntry) (*model.ClientRegistry, error) {
	return r.update(clientID, func(reg *model.ClientRegistry) { reg.ExportableModules = modules })
}

func (r memRegistries) SetExportReady(_ context.Context, clientID string, ready bool) (*model.ClientRegistry, error) {
	return r.update(clientID, func(reg *model.ClientRegistry) {
		reg.ExportReady = ready
		if ready {
			ts := r.db.clock
			reg.LastExported = &ts
		}
	})
}

func (r memRegistries) SetHandoffStatus(_ context.Context, clientID, status string) (*model.ClientRegistry, error) {
	return r.update(clientID, func(reg *model.ClientRegistry) { reg.HandoffStatus = status })
}

type memVersions struct{ db *memDB }

func (r memVersions) Ensure(_ context.Context, version string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.versions[version]; !ok {
		now := r.db.tick()
		r.db.versions[version] = model.BlueprintVersion{
			Version: version, Modules: []model.ModuleMapEntry{}, CreatedAt: now, UpdatedAt: now,
		}
	}
	return nil
}

func (r memVersions) Deprecate(_ context.Context, version string) (*model.BlueprintVersion, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.tick()
	v, ok := r.db.versions[version]
	if !ok {
		v = model.BlueprintVersion{Version: version, Modules: []model.ModuleMapEntry{}, CreatedAt: now}
	}
	v.Deprecated = true
	v.IsDefault = false
	v.UpdatedAt = now
	r.db.versions[version] = v
	return &v, nil
}

func (r memVersions) ClearDefault(_ context.Context, except string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k, v := range r.db.versions {
		if v.IsDefault && k != except {
			v.IsDefault = false
			r.db.versions[k] = v
		}
	}
	return nil
}

func (r memVersions) UpsertDefault(_ context.Context, v *model.BlueprintVersion) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k, other := range r.db.versions {
		if other.IsDefault && k != v.Version {
			return repository.ErrConflict
		}
	}
	now := r.db.tick()
	saved, ok := r.db.versions[v.Version]
	if !ok {
		saved = model.BlueprintVersion{Version: v.Version, CreatedAt: now}
	}
	saved.Deprecated = false
	saved.IsDefault = true
	if v.ReleaseNotes != "" {
		saved.ReleaseNotes = v.ReleaseNotes
	}
	saved.Modules = v.Modules
	if saved.Modules == nil {
		saved.Modules = []model.ModuleMapEntry{}
	}
	saved.UpdatedAt = now
	r.db.versions[v.Version] = saved
	*v = saved
	return nil
}

func (r memVersions) Get(_ context.Context, version string) (*model.BlueprintVersion, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	v, ok := r.db.versions[version]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r memVersions) GetDefault(_ context.Context) (*model.BlueprintVersion, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, v := range r.db.versions {
		if v.IsDefault {
			v := v
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memVersions) List(_ context.Context) ([]*model.BlueprintVersion, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.BlueprintVersion
	for _, v := range r.db.versions {
		v := v
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memTemplates struct{ db *memDB }

func (r memTemplates) Create(_ context.Context, t *model.BlueprintTemplate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.templates {
		if existing.InstanceName == t.InstanceName {
			return repository.ErrConflict
		}
	}
	t.ID = int64(len(r.db.templates) + 1)
	t.CreatedAt = r.db.tick()
	t.UpdatedAt = t.CreatedAt
	r.db.templates = append(r.db.templates, *t)
	return nil
}

func (r memTemplates) List(_ context.Context, cloneableOnly bool) ([]*model.BlueprintTemplate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.BlueprintTemplate
	for i := len(r.db.templates) - 1; i >= 0; i-- {
		t := r.db.templates[i]
		if cloneableOnly && !t.IsCloneable {
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}

func (r memTemplates) SetCloneable(_ context.Context, id int64, cloneable bool) (*model.BlueprintTemplate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.templates {
		if r.db.templates[i].ID == id {
			r.db.templates[i].IsCloneable = cloneable
			r.db.templates[i].UpdatedAt = r.db.tick()
			t := r.db.templates[i]
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

// --- fake шлюз ---

// fakeGateway записывает вызовы и отвечает заданным результатом.
type fakeGateway struct {
	mu sync.Mutex
	// configured=false — как будто URL не заданы
	configured bool
	vaultOK    bool
	guardianOK bool
	pushOK     func(profile any) bool

	vaultEndpoints []string
	vaultPayloads  []any
	guardianEvents []string
	pushed         []any
}

func (g *fakeGateway) result(ok bool) syncgw.Result {
	if !g.configured {
		return syncgw.Result{Reason: syncgw.ReasonNotConfigured}
	}
	if !ok {
		return syncgw.Result{Attempted: true, StatusCode: 503, Reason: "status 503"}
	}
	return syncgw.Result{Attempted: true, Succeeded: true, StatusCode: 200}
}

func (g *fakeGateway) NotifyGuardian(_ context.Context, _, event string, _ any) syncgw.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.guardianEvents = append(g.guardianEvents, event)
	return g.result(g.guardianOK)
}

func (g *fakeGateway) SendToVault(_ context.Context, endpoint string, payload any) syncgw.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vaultEndpoints = append(g.vaultEndpoints, endpoint)
	g.vaultPayloads = append(g.vaultPayloads, payload)
	return g.result(g.vaultOK)
}

func (g *fakeGateway) PushProfile(_ context.Context, profile any) syncgw.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushed = append(g.pushed, profile)
	ok := true
	if g.pushOK != nil {
		ok = g.pushOK(profile)
	}
	return g.result(ok)
}

// --- сборка сервисов ---

type testEnv struct {
	db        *memDB
	store     *sotstore.Store
	gateway   *fakeGateway
	identity  *IdentityService
	modules   *ModuleService
	registry  *RegistryService
	blueprint *BlueprintService
	admin     *AdminPanelService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newMemDB()
	store := newTestStore(t)
	gw := &fakeGateway{}
	logger := testLogger()

	identity := NewIdentityService(db, store, NewTenantCache(100, time.Minute), logger)
	modules := NewModuleService(db, logger)
	registry := NewRegistryService(db, logger)
	bp := NewBlueprintService(registry, modules, identity, store, gw,
		BlueprintOptions{InstanceID: "test-instance"}, logger)

	return &testEnv{
		db:        db,
		store:     store,
		gateway:   gw,
		identity:  identity,
		modules:   modules,
		registry:  registry,
		blueprint: bp,
		admin:     NewAdminPanelService(store, "", logger),
	}
}

// createTenant создаёт бизнес-профиль и возвращает ID тенанта.
func (e *testEnv) createTenant(t *testing.T, name string) string {
	t.Helper()
	res, err := e.identity.CreateBusinessProfile(context.Background(), CreateProfileInput{
		BusinessName:  name,
		AdminEmail:    "owner@example.com",
		AdminUsername: Slugify(name) + "-admin",
		AdminPassword: "s3cret-pass",
		Phone:         "+44 20 0000 0000",
	})
	if err != nil {
		t.Fatalf("CreateBusinessProfile(%q): %v", name, err)
	}
	return res.BusinessID
}
