package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
)

var tenantIDPattern = regexp.MustCompile(`^acme-coffee-[0-9a-f]{8}$`)

// TestCreateBusinessProfile — создание профиля: тенант, администратор и SOT-зеркало.
func TestCreateBusinessProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.identity.CreateBusinessProfile(ctx, CreateProfileInput{
		BusinessName:  "  Acme Coffee  ",
		Industry:      "hospitality",
		AdminEmail:    "owner@acme.example",
		AdminUsername: "acme-owner",
		AdminPassword: "correct-horse",
	})
	if err != nil {
		t.Fatalf("CreateBusinessProfile: %v", err)
	}
	if !tenantIDPattern.MatchString(res.BusinessID) {
		t.Errorf("businessId = %q, ожидался slug + 8 hex", res.BusinessID)
	}
	if res.UserID == "" {
		t.Error("ожидался непустой userId")
	}

	tenant := env.db.tenants[res.BusinessID]
	if tenant.Name != "Acme Coffee" {
		t.Errorf("name = %q, ожидалось обрезанное название", tenant.Name)
	}
	if tenant.Domain != "acme-coffee.nextmonth.io" {
		t.Errorf("domain = %q", tenant.Domain)
	}
	if tenant.Plan != model.DefaultPlan {
		t.Errorf("plan = %q, ожидался %q", tenant.Plan, model.DefaultPlan)
	}
	if tenant.Status != model.TenantStatusActive {
		t.Errorf("status = %q, ожидался active", tenant.Status)
	}

	if len(env.db.admins) != 1 {
		t.Fatalf("ожидался 1 администратор, получено %d", len(env.db.admins))
	}
	admin := env.db.admins[0]
	if admin.PasswordHash == "correct-horse" {
		t.Fatal("пароль сохранён в открытом виде")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("correct-horse")); err != nil {
		t.Errorf("хэш пароля не совпадает: %v", err)
	}

	rec, ok, err := env.store.ReadOne(ctx, res.BusinessID, sotstore.CategoryProfile, identityFileName)
	if err != nil || !ok {
		t.Fatalf("identity.json не найден в SOT: ok=%v err=%v", ok, err)
	}
	if rec.String("businessName") != "Acme Coffee" {
		t.Errorf("SOT businessName = %q", rec.String("businessName"))
	}

	users, err := env.store.Read(ctx, res.BusinessID, sotstore.CategoryUsers)
	if err != nil {
		t.Fatalf("Read users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("ожидалась 1 SOT-запись пользователя, получено %d", len(users))
	}
	if _, leaked := users[0]["passwordHash"]; leaked {
		t.Error("хэш пароля попал в SOT")
	}
	if users[0].String("userId") != res.UserID {
		t.Errorf("userId в SOT = %q, ожидался %q", users[0].String("userId"), res.UserID)
	}

	if !env.identity.ValidateTenant(ctx, res.BusinessID) {
		t.Error("новый тенант должен проходить проверку")
	}
}

func TestCreateBusinessProfile_Validation(t *testing.T) {
	valid := CreateProfileInput{
		BusinessName:  "Valid Co",
		AdminEmail:    "a@valid.example",
		AdminUsername: "valid",
		AdminPassword: "long-enough",
	}

	tests := []struct {
		name   string
		mutate func(in *CreateProfileInput)
		field  string
	}{
		{"пустое название", func(in *CreateProfileInput) { in.BusinessName = "   " }, "businessName"},
		{"невалидный email", func(in *CreateProfileInput) { in.AdminEmail = "not-an-email" }, "adminEmail"},
		{"короткий логин", func(in *CreateProfileInput) { in.AdminUsername = "ab" }, "adminUsername"},
		{"короткий пароль", func(in *CreateProfileInput) { in.AdminPassword = "short" }, "adminPassword"},
		{"длинный пароль", func(in *CreateProfileInput) { in.AdminPassword = strings.Repeat("x", 73) }, "adminPassword"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := valid
			tt.mutate(&in)

			_, err := env.identity.CreateBusinessProfile(context.Background(), in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ожидалась ErrValidation, получено %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("ошибка %q не упоминает поле %s", err.Error(), tt.field)
			}
			if len(env.db.tenants) != 0 {
				t.Error("при ошибке валидации тенант не должен создаваться")
			}
		})
	}
}

// TestCreateBusinessProfile_Conflict — повтор логина откатывает всю транзакцию.
func TestCreateBusinessProfile_Conflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.identity.CreateBusinessProfile(ctx, CreateProfileInput{
		BusinessName: "First", AdminEmail: "a@first.example", AdminUsername: "shared", AdminPassword: "password-1",
	}); err != nil {
		t.Fatalf("первое создание: %v", err)
	}

	_, err := env.identity.CreateBusinessProfile(ctx, CreateProfileInput{
		BusinessName: "Second", AdminEmail: "b@second.example", AdminUsername: "shared", AdminPassword: "password-2",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ожидалась ErrConflict, получено %v", err)
	}
	if len(env.db.tenants) != 1 {
		t.Errorf("ожидался 1 тенант после отката, получено %d", len(env.db.tenants))
	}
}

// TestGetBusinessProfile_DatabaseFallback — без SOT-зеркала профиль собирается из БД.
func TestGetBusinessProfile_DatabaseFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.db.tenants["legacy-0000abcd"] = model.Tenant{
		ID: "legacy-0000abcd", Name: "Legacy Ltd", Domain: "legacy.example",
		Status: model.TenantStatusActive, Plan: "smart_site_pro", CreatedAt: env.db.tick(),
	}
	env.db.identities["legacy-0000abcd"] = model.BusinessIdentity{
		TenantID: "legacy-0000abcd", BusinessName: "Legacy Limited", Industry: "retail",
		Contact: model.Contact{Email: "hi@legacy.example"},
	}

	p, err := env.identity.GetBusinessProfile(ctx, "legacy-0000abcd")
	if err != nil {
		t.Fatalf("GetBusinessProfile: %v", err)
	}
	if p.Source != ProfileSourceDatabase {
		t.Errorf("source = %q, ожидался %q", p.Source, ProfileSourceDatabase)
	}
	if p.BusinessName != "Legacy Limited" {
		t.Errorf("businessName = %q, ожидалось из business_identities", p.BusinessName)
	}
	if p.Plan != "smart_site_pro" || p.WebsiteURL != "legacy.example" {
		t.Errorf("plan/websiteURL = %q/%q", p.Plan, p.WebsiteURL)
	}
	if p.Contact == nil || p.Contact.Email != "hi@legacy.example" {
		t.Errorf("contact = %+v", p.Contact)
	}
	if p.AdminUserID != "" {
		t.Errorf("adminUserId = %q, администратора нет", p.AdminUserID)
	}
}

func TestGetBusinessProfile_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.identity.GetBusinessProfile(ctx, "missing-tenant"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := env.identity.GetBusinessProfile(ctx, "../escape"); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation для недопустимого id, получено %v", err)
	}
}

func TestGetBusinessProfile_FromSOT(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createTenant(t, "Acme Coffee")

	p, err := env.identity.GetBusinessProfile(ctx, id)
	if err != nil {
		t.Fatalf("GetBusinessProfile: %v", err)
	}
	if p.Source != ProfileSourceSOT {
		t.Errorf("source = %q, ожидался %q", p.Source, ProfileSourceSOT)
	}
	if p.BusinessID != id {
		t.Errorf("businessId = %q, ожидался %q", p.BusinessID, id)
	}
	if p.Contact == nil || p.Contact.Phone == "" {
		t.Errorf("ожидался телефон в контактах: %+v", p.Contact)
	}

	identity := p.AsIdentity()
	if identity["businessName"] != "Acme Coffee" {
		t.Errorf("AsIdentity businessName = %v", identity["businessName"])
	}
	if _, ok := identity["contact"]; !ok {
		t.Error("AsIdentity: ожидался раздел contact")
	}
}

func TestValidateTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.createTenant(t, "Acme Coffee")

	if env.identity.ValidateTenant(ctx, "") {
		t.Error("пустой tenantId не должен проходить проверку")
	}
	if env.identity.ValidateTenant(ctx, "unknown-tenant") {
		t.Error("неизвестный тенант не должен проходить проверку")
	}

	if _, err := env.identity.UpdateTenantStatus(ctx, id, model.TenantStatusSuspended); err != nil {
		t.Fatalf("UpdateTenantStatus: %v", err)
	}
	if env.identity.ValidateTenant(ctx, id) {
		t.Error("приостановленный тенант не должен проходить проверку (кэш должен быть сброшен)")
	}

	if _, err := env.identity.UpdateTenantStatus(ctx, id, "deleted"); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation для недопустимого статуса, получено %v", err)
	}
	if _, err := env.identity.UpdateTenantStatus(ctx, "unknown-tenant", model.TenantStatusActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestValidateTenant_DatabaseError — ошибка БД трактуется как «не активен».
func TestValidateTenant_DatabaseError(t *testing.T) {
	env := newTestEnv(t)
	env.db.tenantGetErr = errors.New("connection refused")

	if env.identity.ValidateTenant(context.Background(), "any-tenant") {
		t.Error("при ошибке БД проверка не должна проходить")
	}
}

func TestListTenants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createTenant(t, "Alpha")
	env.createTenant(t, "Beta")

	if _, err := env.identity.UpdateTenantStatus(ctx, a, model.TenantStatusInactive); err != nil {
		t.Fatalf("UpdateTenantStatus: %v", err)
	}

	all, err := env.identity.ListTenants(ctx, nil)
	if err != nil {
		t.Fatalf("ListTenants: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ожидалось 2 тенанта, получено %d", len(all))
	}

	active := model.TenantStatusActive
	filtered, err := env.identity.ListTenants(ctx, &active)
	if err != nil {
		t.Fatalf("ListTenants(active): %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "Beta" {
		t.Errorf("ожидался только Beta, получено %d", len(filtered))
	}

	bogus := "bogus"
	if _, err := env.identity.ListTenants(ctx, &bogus); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Coffee", "acme-coffee"},
		{"  Joe's  Bar & Grill!! ", "joe-s-bar-grill"},
		{"Café Ünïcode", "caf-n-code"},
		{"!!!", "business"},
		{"", "business"},
		{strings.Repeat("a", 60), strings.Repeat("a", 48)},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}
