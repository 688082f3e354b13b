package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

func TestTagBlueprint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := "2026-02-01"

	reg, created, err := env.registry.TagBlueprint(ctx, TagInput{
		ClientID:         "client-1",
		BlueprintVersion: "1.1.0",
		Sector:           "hospitality",
		Location:         "London",
		ProjectStartDate: &start,
		UserRoles:        []string{"owner", "staff"},
	})
	if err != nil {
		t.Fatalf("TagBlueprint: %v", err)
	}
	if !created {
		t.Error("первая отметка должна создать реестр")
	}
	if reg.HandoffStatus != model.HandoffInProgress || reg.ExportReady {
		t.Errorf("ожидалась стадия in_progress: handoff=%q exportReady=%v", reg.HandoffStatus, reg.ExportReady)
	}

	// Переводим в export_ready, затем повторная отметка возвращает in_progress.
	if _, err := env.registry.MarkExportReady(ctx, "client-1", true); err != nil {
		t.Fatalf("MarkExportReady: %v", err)
	}
	reg, created, err = env.registry.TagBlueprint(ctx, TagInput{ClientID: "client-1", BlueprintVersion: "1.1.1"})
	if err != nil {
		t.Fatalf("повторная TagBlueprint: %v", err)
	}
	if created {
		t.Error("повторная отметка не должна создавать реестр")
	}
	if reg.ExportReady {
		t.Error("повторная отметка должна сбросить exportReady")
	}
	if reg.BlueprintVersion != "1.1.1" {
		t.Errorf("blueprintVersion = %q", reg.BlueprintVersion)
	}
	if reg.Sector != "hospitality" || reg.Location != "London" {
		t.Errorf("пустые поля не должны затирать сохранённые: sector=%q location=%q", reg.Sector, reg.Location)
	}
	if len(reg.UserRoles) != 2 {
		t.Errorf("userRoles = %v, ожидались сохранённые роли", reg.UserRoles)
	}

	for _, v := range []string{"1.1.0", "1.1.1"} {
		if _, err := env.registry.GetVersion(ctx, v); err != nil {
			t.Errorf("версия %s не попала в журнал: %v", v, err)
		}
	}
}

// TestTagBlueprint_OlderVersion: откат на более раннюю версию разрешён,
// обе версии остаются в журнале.
func TestTagBlueprint_OlderVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.registry.TagBlueprint(ctx, TagInput{ClientID: "client-1", BlueprintVersion: "1.1.1"}); err != nil {
		t.Fatalf("TagBlueprint 1.1.1: %v", err)
	}
	reg, created, err := env.registry.TagBlueprint(ctx, TagInput{ClientID: "client-1", BlueprintVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("TagBlueprint 1.0.0: %v", err)
	}
	if created || reg.BlueprintVersion != "1.0.0" || reg.HandoffStatus != model.HandoffInProgress {
		t.Errorf("реестр после отката = %+v, created=%v", reg, created)
	}
	if _, err := env.registry.GetVersion(ctx, "1.1.1"); err != nil {
		t.Errorf("1.1.1 пропала из журнала: %v", err)
	}
}

func TestTagBlueprint_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   TagInput
	}{
		{"пустой clientId", TagInput{ClientID: " ", BlueprintVersion: "1.1.1"}},
		{"длинный clientId", TagInput{ClientID: strings.Repeat("c", 201), BlueprintVersion: "1.1.1"}},
		{"пустая версия", TagInput{ClientID: "c"}},
		{"версия с пробелом", TagInput{ClientID: "c", BlueprintVersion: "1.1 .1"}},
		{"слишком короткая версия", TagInput{ClientID: "c", BlueprintVersion: "1."}},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := env.registry.TagBlueprint(context.Background(), tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("ожидалась ErrValidation, получено %v", err)
			}
		})
	}
}

func TestRegistry_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.registry.GetRegistry(ctx, "ghost"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("GetRegistry: ожидалась ErrNotConfigured, получено %v", err)
	}
	reg, err := env.registry.FindRegistry(ctx, "ghost")
	if err != nil || reg != nil {
		t.Errorf("FindRegistry: ожидалось (nil, nil), получено (%v, %v)", reg, err)
	}
	if _, err := env.registry.MarkExportReady(ctx, "ghost", true); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("MarkExportReady: ожидалась ErrNotConfigured, получено %v", err)
	}
	if _, err := env.registry.UpdateHandoffStatus(ctx, "ghost", model.HandoffCompleted); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("UpdateHandoffStatus: ожидалась ErrNotConfigured, получено %v", err)
	}
}

func TestUpdateHandoffStatus_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.registry.TagBlueprint(ctx, TagInput{ClientID: "c", BlueprintVersion: "1.1.1"}); err != nil {
		t.Fatalf("TagBlueprint: %v", err)
	}
	if _, err := env.registry.UpdateHandoffStatus(ctx, "c", "shipped"); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
}

func TestMarkExportReady_SetsLastExported(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.registry.TagBlueprint(ctx, TagInput{ClientID: "c", BlueprintVersion: "1.1.1"}); err != nil {
		t.Fatalf("TagBlueprint: %v", err)
	}

	reg, err := env.registry.MarkExportReady(ctx, "c", true)
	if err != nil {
		t.Fatalf("MarkExportReady: %v", err)
	}
	if !reg.ExportReady || reg.LastExported == nil {
		t.Errorf("ожидались exportReady=true и lastExported: %+v", reg)
	}
}

// TestPublishVersion_SingleDefault — версия по умолчанию всегда одна.
func TestPublishVersion_SingleDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.registry.PublishVersion(ctx, "1.1.0", "первый выпуск", nil); err != nil {
		t.Fatalf("PublishVersion 1.1.0: %v", err)
	}
	v, err := env.registry.PublishVersion(ctx, "1.1.1", "объявления", []model.ModuleMapEntry{{ModuleID: "announcement/UpgradeBanner"}})
	if err != nil {
		t.Fatalf("PublishVersion 1.1.1: %v", err)
	}
	if !v.IsDefault || v.Deprecated {
		t.Errorf("опубликованная версия: isDefault=%v deprecated=%v", v.IsDefault, v.Deprecated)
	}

	versions, err := env.registry.ListVersions(ctx)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	defaults := 0
	for _, ver := range versions {
		if ver.IsDefault {
			defaults++
			if ver.Version != "1.1.1" {
				t.Errorf("версия по умолчанию = %s, ожидалась 1.1.1", ver.Version)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("ожидалась ровно 1 версия по умолчанию, получено %d", defaults)
	}

	// Повторная публикация сохраняет заметки, если новые не переданы.
	v, err = env.registry.PublishVersion(ctx, "1.1.1", "", nil)
	if err != nil {
		t.Fatalf("повторная PublishVersion: %v", err)
	}
	if v.ReleaseNotes != "объявления" {
		t.Errorf("releaseNotes = %q, ожидались сохранённые", v.ReleaseNotes)
	}
}

func TestDeprecateVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.registry.PublishVersion(ctx, "1.1.0", "", nil); err != nil {
		t.Fatalf("PublishVersion: %v", err)
	}
	v, err := env.registry.DeprecateVersion(ctx, "1.1.0")
	if err != nil {
		t.Fatalf("DeprecateVersion: %v", err)
	}
	if !v.Deprecated || v.IsDefault {
		t.Errorf("устаревшая версия: deprecated=%v isDefault=%v", v.Deprecated, v.IsDefault)
	}

	// Неизвестная версия заносится сразу устаревшей.
	v, err = env.registry.DeprecateVersion(ctx, "0.9.0")
	if err != nil {
		t.Fatalf("DeprecateVersion 0.9.0: %v", err)
	}
	if !v.Deprecated {
		t.Error("неизвестная версия должна стать устаревшей")
	}

	if _, err := env.registry.DeprecateVersion(ctx, "bad version"); !errors.Is(err, ErrValidation) {
		t.Errorf("ожидалась ErrValidation, получено %v", err)
	}
	if _, err := env.registry.GetVersion(ctx, "9.9.9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}
