package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nextmonthlab/smartsite/internal/database/dbtest"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

// TestTenantIdentityCRUD проверяет тенанта, администратора и профиль бизнеса в одной транзакции.
func TestTenantIdentityCRUD(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	uow := NewUnitOfWork(pool)

	tenant := &model.Tenant{
		ID: "acme-1a2b3c4d", Name: "Acme", Domain: "acme.nextmonth.io",
		Status: model.TenantStatusActive, Plan: model.DefaultPlan,
	}
	admin := &model.AdminUser{
		ID: uuid.New().String(), TenantID: tenant.ID, Username: "owner",
		Email: "a@acme.com", PasswordHash: "hash", Role: model.RoleAdmin,
	}
	identity := &model.BusinessIdentity{
		TenantID: tenant.ID, BusinessName: "Acme",
		Contact: model.Contact{Email: "a@acme.com", Phone: "+1 555"},
	}

	err := uow.InTx(ctx, func(r *Repos) error {
		if err := r.Tenants.Create(ctx, tenant); err != nil {
			return err
		}
		if err := r.AdminUsers.Create(ctx, admin); err != nil {
			return err
		}
		return r.Identities.Create(ctx, identity)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if tenant.CreatedAt.IsZero() {
		t.Error("created_at не заполнен")
	}

	repos := uow.Repos()
	got, err := repos.Tenants.GetByID(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Domain != "acme.nextmonth.io" || got.Status != model.TenantStatusActive {
		t.Errorf("тенант = %+v", got)
	}

	gotIdentity, err := repos.Identities.GetByTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("GetByTenant: %v", err)
	}
	if gotIdentity.Contact.Phone != "+1 555" {
		t.Errorf("contact = %+v", gotIdentity.Contact)
	}

	gotAdmin, err := repos.AdminUsers.GetPrimary(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("GetPrimary: %v", err)
	}
	if gotAdmin.Username != "owner" {
		t.Errorf("username = %q", gotAdmin.Username)
	}

	// Повтор домена — конфликт
	dup := &model.Tenant{ID: "acme-ffffffff", Name: "Acme", Domain: tenant.Domain, Status: "active", Plan: model.DefaultPlan}
	if err := repos.Tenants.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("ожидался ErrConflict, получено %v", err)
	}

	updated, err := repos.Tenants.UpdateStatus(ctx, tenant.ID, model.TenantStatusSuspended)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != model.TenantStatusSuspended {
		t.Errorf("статус = %q", updated.Status)
	}

	active := model.TenantStatusActive
	list, err := repos.Tenants.List(ctx, &active)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ожидалось 0 активных тенантов, получено %d", len(list))
	}

	if _, err := repos.Tenants.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

// TestTxRollback проверяет откат транзакции при ошибке.
func TestTxRollback(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	uow := NewUnitOfWork(pool)

	sentinel := errors.New("откат")
	err := uow.InTx(ctx, func(r *Repos) error {
		if err := r.Tenants.Create(ctx, &model.Tenant{
			ID: "rollback-1", Name: "R", Domain: "r.nextmonth.io", Status: "active", Plan: model.DefaultPlan,
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("ожидалась ошибка fn, получено %v", err)
	}
	if _, err := uow.Repos().Tenants.GetByID(ctx, "rollback-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("тенант не должен сохраниться после отката: %v", err)
	}
}

// TestModulesAndActivityLog проверяет каталог модулей и журнал аудита.
func TestModulesAndActivityLog(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repos := NewRepos(pool)

	m := &model.Module{
		ID: "announcement/UpgradeBanner", Name: "Upgrade Banner",
		Category: model.ModuleCategoryCore, Status: model.ModuleStatusActive,
		Metadata: map[string]any{"persistence": "14 days", "optional": true},
	}
	if err := repos.Modules.Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repos.Modules.Create(ctx, m); !errors.Is(err, ErrConflict) {
		t.Errorf("повторная регистрация: ожидался ErrConflict, получено %v", err)
	}

	got, err := repos.Modules.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.MetaString("persistence") != "14 days" || !got.MetaBool("optional") {
		t.Errorf("metadata = %v", got.Metadata)
	}

	found, err := repos.Modules.GetByIDs(ctx, []string{m.ID, "unknown/X"})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(found) != 1 || found[m.ID] == nil {
		t.Errorf("GetByIDs = %v", found)
	}

	if err := repos.ActivityLogs.Create(ctx, &model.ActivityLog{
		Actor: "system", Action: "module_registered", Details: map[string]any{"moduleId": m.ID},
	}); err != nil {
		t.Fatalf("ActivityLogs.Create: %v", err)
	}
	action := "module_registered"
	logs, err := repos.ActivityLogs.List(ctx, &action, 10)
	if err != nil {
		t.Fatalf("ActivityLogs.List: %v", err)
	}
	if len(logs) != 1 || logs[0].Details["moduleId"] != m.ID {
		t.Errorf("журнал = %+v", logs)
	}
}

// TestClientRegistryUpsert проверяет upsert реестра и сброс стадии при повторной отметке.
func TestClientRegistryUpsert(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repos := NewRepos(pool)

	reg := &model.ClientRegistry{
		ClientID: "t1", BlueprintVersion: "1.1.0", Sector: "retail",
		UserRoles: []string{"admin"},
		ExportableModules: []model.ModuleMapEntry{
			{ModuleID: "core/Dashboard", Type: "core", Status: "active", Version: "1.0.0", Dependencies: []string{}, ExportPath: "/modules/core/Dashboard.zip"},
		},
	}
	created, err := repos.Registries.Upsert(ctx, reg, true)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Error("первый Upsert должен создавать запись")
	}

	if _, err := repos.Registries.SetExportReady(ctx, "t1", true); err != nil {
		t.Fatalf("SetExportReady: %v", err)
	}
	done, err := repos.Registries.SetHandoffStatus(ctx, "t1", model.HandoffCompleted)
	if err != nil {
		t.Fatalf("SetHandoffStatus: %v", err)
	}
	if !done.ExportReady || done.LastExported == nil || done.HandoffStatus != model.HandoffCompleted {
		t.Errorf("реестр = %+v", done)
	}

	again := &model.ClientRegistry{ClientID: "t1", BlueprintVersion: "1.1.1"}
	created, err = repos.Registries.Upsert(ctx, again, false)
	if err != nil {
		t.Fatalf("повторный Upsert: %v", err)
	}
	if created {
		t.Error("повторный Upsert не должен создавать запись")
	}
	if again.BlueprintVersion != "1.1.1" || again.ExportReady || again.HandoffStatus != model.HandoffInProgress {
		t.Errorf("стадия не сброшена: %+v", again)
	}
	if again.Sector != "retail" || len(again.ExportableModules) != 1 || len(again.UserRoles) != 1 {
		t.Errorf("пустые поля не должны затирать данные: %+v", again)
	}

	if _, err := repos.Registries.UpdateModules(ctx, "t1", nil); err != nil {
		t.Fatalf("UpdateModules: %v", err)
	}
	cleared, _ := repos.Registries.Get(ctx, "t1")
	if len(cleared.ExportableModules) != 0 {
		t.Errorf("карта модулей не заменена: %v", cleared.ExportableModules)
	}

	if _, err := repos.Registries.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

// TestBlueprintVersions проверяет реестр версий: устаревание и единственную версию по умолчанию.
func TestBlueprintVersions(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	uow := NewUnitOfWork(pool)
	repos := uow.Repos()

	// Неизвестная версия создаётся сразу устаревшей.
	v, err := repos.Versions.Deprecate(ctx, "1.1.0")
	if err != nil {
		t.Fatalf("Deprecate: %v", err)
	}
	if !v.Deprecated || v.IsDefault {
		t.Errorf("версия = %+v", v)
	}

	publish := func(version string) {
		t.Helper()
		err := uow.InTx(ctx, func(r *Repos) error {
			if err := r.Versions.ClearDefault(ctx, version); err != nil {
				return err
			}
			return r.Versions.UpsertDefault(ctx, &model.BlueprintVersion{Version: version})
		})
		if err != nil {
			t.Fatalf("публикация %s: %v", version, err)
		}
	}
	publish("1.1.0")
	publish("1.1.1")

	def, err := repos.Versions.GetDefault(ctx)
	if err != nil {
		t.Fatalf("GetDefault: %v", err)
	}
	if def.Version != "1.1.1" {
		t.Errorf("версия по умолчанию = %q", def.Version)
	}

	prev, _ := repos.Versions.Get(ctx, "1.1.0")
	if prev.IsDefault {
		t.Error("1.1.0 не должна оставаться версией по умолчанию")
	}

	if err := repos.Versions.Ensure(ctx, "1.1.1"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	still, _ := repos.Versions.Get(ctx, "1.1.1")
	if !still.IsDefault {
		t.Error("Ensure не должен менять существующую версию")
	}

	list, err := repos.Versions.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ожидалось 2 версии, получено %d", len(list))
	}
}

// TestBlueprintTemplates проверяет каталог шаблонов: уникальность имени и закрытие для клонирования.
func TestBlueprintTemplates(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()
	repos := NewUnitOfWork(pool).Repos()

	if err := repos.Versions.Ensure(ctx, "1.1.1"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	tpl := &model.BlueprintTemplate{
		InstanceName:     "coffee-shop",
		BlueprintVersion: "1.1.1",
		ToolsSupported:   []string{"insight-engine"},
		IsCloneable:      true,
	}
	if err := repos.Templates.Create(ctx, tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tpl.ID == 0 || tpl.CreatedAt.IsZero() {
		t.Errorf("шаблон не заполнен из RETURNING: %+v", tpl)
	}

	dup := &model.BlueprintTemplate{InstanceName: "coffee-shop", BlueprintVersion: "1.1.1"}
	if err := repos.Templates.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("повторное имя: ожидался ErrConflict, получено %v", err)
	}

	closed, err := repos.Templates.SetCloneable(ctx, tpl.ID, false)
	if err != nil {
		t.Fatalf("SetCloneable: %v", err)
	}
	if closed.IsCloneable {
		t.Error("шаблон остался доступным для клонирования")
	}

	all, err := repos.Templates.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[0].ToolsSupported[0] != "insight-engine" {
		t.Errorf("список шаблонов = %+v", all)
	}
	open, err := repos.Templates.List(ctx, true)
	if err != nil {
		t.Fatalf("List(cloneableOnly): %v", err)
	}
	if len(open) != 0 {
		t.Errorf("закрытый шаблон попал в список клонируемых: %+v", open)
	}

	if _, err := repos.Templates.SetCloneable(ctx, 9999, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}
