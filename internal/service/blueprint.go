// blueprint.go — сборка и экспорт Blueprint клиента: карта модулей, пакет,
// манифест, уведомления Guardian и Vault, стадии жизненного цикла.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextmonthlab/smartsite/internal/domain/blueprint"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/idgen"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
	"github.com/nextmonthlab/smartsite/internal/syncgw"
)

// Эндпоинты Vault.
const (
	VaultModulesEndpoint    = "/blueprint/modules"
	VaultPackageEndpoint    = "/blueprint/package"
	VaultStoreEndpoint      = "/store-blueprint"
	VaultStoreZipEndpoint   = "/store-blueprint-zip"
	VaultSetDefaultEndpoint = "/set-default-blueprint"
)

// События Guardian.
const (
	EventExportReady        = "export-ready"
	EventBlueprintExported  = "blueprint-exported"
	EventBlueprintPublished = "blueprint-published"
)

// systemClientID — clientId системных событий (публикация версии по умолчанию).
const systemClientID = "system"

// SyncGateway — внешние системы, которым сообщается об экспорте.
// Ошибки не возвращаются: итог вызова описывает syncgw.Result.
type SyncGateway interface {
	NotifyGuardian(ctx context.Context, clientID, event string, data any) syncgw.Result
	SendToVault(ctx context.Context, endpoint string, payload any) syncgw.Result
}

// ProfileSource — источник бизнес-профилей тенантов.
type ProfileSource interface {
	GetBusinessProfile(ctx context.Context, tenantID string) (*BusinessProfile, error)
	ValidateTenant(ctx context.Context, tenantID string) bool
}

// BlueprintOptions — параметры сборки экспорта.
type BlueprintOptions struct {
	// ExportModules — модули, разрешённые к экспорту помимо announcement-модулей.
	ExportModules []string
	// InstanceID — идентификатор экземпляра в метаданных снимка.
	InstanceID string
}

// BlueprintService — сервис Blueprint клиентов.
type BlueprintService struct {
	registry *RegistryService
	modules  *ModuleService
	profiles ProfileSource
	store    *sotstore.Store
	gateway  SyncGateway
	opts     BlueprintOptions
	logger   *slog.Logger
}

// NewBlueprintService создаёт сервис Blueprint.
func NewBlueprintService(
	registry *RegistryService,
	modules *ModuleService,
	profiles ProfileSource,
	store *sotstore.Store,
	gateway SyncGateway,
	opts BlueprintOptions,
	logger *slog.Logger,
) *BlueprintService {
	return &BlueprintService{
		registry: registry,
		modules:  modules,
		profiles: profiles,
		store:    store,
		gateway:  gateway,
		opts:     opts,
		logger:   logger.With(slog.String("component", "blueprint_service")),
	}
}

// StatusView — состояние Blueprint клиента.
type StatusView struct {
	ClientID         string          `json:"clientId"`
	BlueprintVersion string          `json:"blueprintVersion"`
	ExportReady      bool            `json:"exportReady"`
	HandoffStatus    string          `json:"handoffStatus"`
	LastExported     *string         `json:"lastExported"`
	ModuleCount      int             `json:"moduleCount"`
	Stage            blueprint.Stage `json:"stage"`
}

// Status возвращает состояние Blueprint клиента. Нет реестра — ErrNotConfigured.
func (s *BlueprintService) Status(ctx context.Context, clientID string) (*StatusView, error) {
	reg, err := s.registry.GetRegistry(ctx, clientID)
	if err != nil {
		return nil, err
	}
	view := &StatusView{
		ClientID:         reg.ClientID,
		BlueprintVersion: reg.BlueprintVersion,
		ExportReady:      reg.ExportReady,
		HandoffStatus:    reg.HandoffStatus,
		ModuleCount:      len(reg.ExportableModules),
		Stage:            blueprint.StageOf(reg),
	}
	if reg.LastExported != nil {
		ts := reg.LastExported.UTC().Format(sotstore.TimeFormat)
		view.LastExported = &ts
	}
	return view, nil
}

// Tag отмечает версию Blueprint клиента. Из любой стадии клиент
// возвращается в in_progress.
func (s *BlueprintService) Tag(ctx context.Context, in TagInput) (*model.ClientRegistry, bool, error) {
	return s.registry.TagBlueprint(ctx, in)
}

// Onboard заводит реестр нового клиента на версии по умолчанию.
// Уже настроенный клиент не перетегируется. Без опубликованной версии
// реестр не создаётся и возвращается nil.
func (s *BlueprintService) Onboard(ctx context.Context, clientID string) (*model.ClientRegistry, error) {
	def, err := s.registry.DefaultVersion(ctx)
	if err != nil || def == nil {
		return nil, err
	}
	reg, err := s.registry.FindRegistry(ctx, clientID)
	if err != nil || reg != nil {
		return reg, err
	}
	reg, _, err = s.registry.TagBlueprint(ctx, TagInput{
		ClientID:         clientID,
		BlueprintVersion: def.Version,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Клиент заведён на версии по умолчанию",
		slog.String("client_id", clientID),
		slog.String("version", def.Version),
	)
	return reg, nil
}

// ModulesResult — итог пересборки карты модулей.
type ModulesResult struct {
	Success     bool                   `json:"success"`
	ModuleCount int                    `json:"moduleCount"`
	VaultSynced bool                   `json:"vaultSynced"`
	Modules     []model.ModuleMapEntry `json:"modules"`
	Skipped     []string               `json:"skipped,omitempty"`
}

// GenerateModuleMap пересобирает карту экспортируемых модулей клиента,
// сохраняет её целиком и передаёт в Vault.
func (s *BlueprintService) GenerateModuleMap(ctx context.Context, clientID string, extra []string) (*ModulesResult, error) {
	reg, err := s.registry.GetRegistry(ctx, clientID)
	if err != nil {
		return nil, err
	}

	entries, skipped, err := s.buildModuleMap(ctx, extra)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.UpdateExportableModules(ctx, clientID, entries); err != nil {
		return nil, fmt.Errorf("сохранение карты модулей: %w", err)
	}

	vault := s.gateway.SendToVault(ctx, VaultModulesEndpoint, map[string]any{
		"clientId":         clientID,
		"blueprintVersion": reg.BlueprintVersion,
		"modules":          entries,
	})

	return &ModulesResult{
		Success:     true,
		ModuleCount: len(entries),
		VaultSynced: vault.Succeeded,
		Modules:     entries,
		Skipped:     skipped,
	}, nil
}

// PackageInput — параметры сборки пакета экспорта.
type PackageInput struct {
	ClientID string
	// TenantID — тенант, чей профиль и тема попадают в пакет (опционально).
	TenantID       string
	TenantAgnostic bool
}

// PackageResult — итог отправки пакета.
type PackageResult struct {
	Success          bool   `json:"success"`
	BlueprintVersion string `json:"blueprintVersion"`
	VaultSynced      bool   `json:"vaultSynced"`
	ExportReady      bool   `json:"exportReady"`
	Timestamp        string `json:"timestamp"`
}

// Package собирает полный пакет экспорта и передаёт его в Vault.
// Готовность к экспорту фиксируется только при успехе Vault.
func (s *BlueprintService) Package(ctx context.Context, in PackageInput) (*PackageResult, error) {
	reg, err := s.registry.GetRegistry(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTenant(ctx, in.TenantID); err != nil {
		return nil, err
	}

	activations := reg.ExportableModules
	if len(activations) == 0 {
		if activations, _, err = s.buildModuleMap(ctx, nil); err != nil {
			return nil, err
		}
	}

	timestamp := nowUTC()
	pkg := map[string]any{
		"clientId":           in.ClientID,
		"blueprintVersion":   reg.BlueprintVersion,
		"timestamp":          timestamp,
		"moduleActivations":  activations,
		"onboardingTemplate": blueprint.OnboardingTemplate(),
	}
	if identity := s.identitySection(ctx, in.TenantID, in.TenantAgnostic); identity != nil {
		pkg["businessIdentity"] = identity
	}
	if brand := s.activeTheme(ctx, in.TenantID); brand != nil {
		if in.TenantAgnostic {
			brand = blueprint.Sanitize(brand)
		}
		pkg["brandConfiguration"] = brand
	}
	if in.TenantAgnostic {
		pkg["tenantAgnostic"] = true
	}

	vault := s.gateway.SendToVault(ctx, VaultPackageEndpoint, map[string]any{
		"clientId":         in.ClientID,
		"blueprintVersion": reg.BlueprintVersion,
		"package":          pkg,
	})

	exportReady := reg.ExportReady
	if vault.Succeeded {
		if err := blueprint.Transition(blueprint.StageOf(reg), blueprint.StageExportReady); err != nil {
			return nil, err
		}
		updated, err := s.registry.MarkExportReady(ctx, in.ClientID, true)
		if err != nil {
			return nil, fmt.Errorf("отметка готовности экспорта: %w", err)
		}
		exportReady = updated.ExportReady
	} else {
		s.logger.Warn("Пакет не принят Vault, готовность экспорта не изменена",
			slog.String("client_id", in.ClientID),
			slog.String("reason", vault.Reason),
		)
	}

	return &PackageResult{
		Success:          true,
		BlueprintVersion: reg.BlueprintVersion,
		VaultSynced:      vault.Succeeded,
		ExportReady:      exportReady,
		Timestamp:        timestamp,
	}, nil
}

// NotifyResult — итог уведомления Guardian.
type NotifyResult struct {
	Success          bool   `json:"success"`
	GuardianNotified bool   `json:"guardianNotified"`
	HandoffStatus    string `json:"handoffStatus"`
	Timestamp        string `json:"timestamp"`
}

// NotifyGuardian сообщает Guardian о состоянии экспорта. Передача клиенту
// завершается только при успехе Guardian и из стадии export_ready (или completed).
func (s *BlueprintService) NotifyGuardian(ctx context.Context, clientID, event string) (*NotifyResult, error) {
	reg, err := s.registry.GetRegistry(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if event == "" {
		event = EventExportReady
	}

	data := map[string]any{
		"blueprintVersion": reg.BlueprintVersion,
		"exportReady":      reg.ExportReady,
		"handoffStatus":    reg.HandoffStatus,
		"lastExported":     reg.LastExported,
	}
	guardian := s.gateway.NotifyGuardian(ctx, clientID, event, data)

	handoff := reg.HandoffStatus
	stage := blueprint.StageOf(reg)
	switch {
	case !guardian.Succeeded:
		s.logger.Warn("Guardian не уведомлён, статус передачи не изменён",
			slog.String("client_id", clientID),
			slog.String("reason", guardian.Reason),
		)
	case blueprint.CanTransition(stage, blueprint.StageCompleted):
		updated, err := s.registry.UpdateHandoffStatus(ctx, clientID, model.HandoffCompleted)
		if err != nil {
			return nil, fmt.Errorf("завершение передачи: %w", err)
		}
		handoff = updated.HandoffStatus
	default:
		s.logger.Info("Guardian уведомлён, экспорт ещё не готов",
			slog.String("client_id", clientID),
			slog.String("stage", string(stage)),
		)
	}

	return &NotifyResult{
		Success:          true,
		GuardianNotified: guardian.Succeeded,
		HandoffStatus:    handoff,
		Timestamp:        nowUTC(),
	}, nil
}

// HandoffResult — итог смены статуса передачи.
type HandoffResult struct {
	Success          bool   `json:"success"`
	ClientID         string `json:"clientId"`
	BlueprintVersion string `json:"blueprintVersion"`
	HandoffStatus    string `json:"handoffStatus"`
	Timestamp        string `json:"timestamp"`
}

// SetHandoffStatus меняет статус передачи с проверкой перехода между стадиями.
func (s *BlueprintService) SetHandoffStatus(ctx context.Context, clientID, status string) (*HandoffResult, error) {
	if status != model.HandoffInProgress && status != model.HandoffCompleted {
		return nil, fmt.Errorf("%w: недопустимый статус передачи %q, допустимые: in_progress, completed", ErrValidation, status)
	}
	reg, err := s.registry.GetRegistry(ctx, clientID)
	if err != nil {
		return nil, err
	}

	next := *reg
	next.HandoffStatus = status
	if err := blueprint.Transition(blueprint.StageOf(reg), blueprint.StageOf(&next)); err != nil {
		return nil, err
	}

	updated, err := s.registry.UpdateHandoffStatus(ctx, clientID, status)
	if err != nil {
		return nil, err
	}
	return &HandoffResult{
		Success:          true,
		ClientID:         clientID,
		BlueprintVersion: updated.BlueprintVersion,
		HandoffStatus:    updated.HandoffStatus,
		Timestamp:        nowUTC(),
	}, nil
}

// ExportInput — параметры именованного экспорта версии.
type ExportInput struct {
	ClientID       string
	TenantID       string
	TenantAgnostic bool
	// Modules — модули, добавляемые к списку разрешённых.
	Modules []string
}

// ExportResult — итог именованного экспорта.
type ExportResult struct {
	Success          bool                   `json:"success"`
	BlueprintVersion string                 `json:"blueprintVersion"`
	ExportID         string                 `json:"exportId"`
	Modules          []model.ModuleMapEntry `json:"modules"`
	VaultSynced      bool                   `json:"vaultSynced"`
	GuardianNotified bool                   `json:"guardianNotified"`
	Manifest         *blueprint.Manifest    `json:"manifest"`
}

// ExportCurrentVersion выполняет экспорт версии 1.1.1: отметка версии,
// пометка 1.1.0 устаревшей, сборка манифеста, Vault, Guardian.
// Шаги идут строго последовательно.
func (s *BlueprintService) ExportCurrentVersion(ctx context.Context, in ExportInput) (*ExportResult, error) {
	if err := ValidateClientID(in.ClientID); err != nil {
		return nil, err
	}
	if err := s.checkTenant(ctx, in.TenantID); err != nil {
		return nil, err
	}

	reg, _, err := s.registry.TagBlueprint(ctx, TagInput{
		ClientID:         in.ClientID,
		BlueprintVersion: blueprint.VersionCurrent,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.DeprecateVersion(ctx, blueprint.VersionPrevious); err != nil {
		return nil, fmt.Errorf("пометка версии %s устаревшей: %w", blueprint.VersionPrevious, err)
	}

	manifest, err := s.BuildManifest(ctx, ManifestInput{
		ClientID:       in.ClientID,
		Version:        blueprint.VersionCurrent,
		TenantID:       in.TenantID,
		TenantAgnostic: in.TenantAgnostic,
		Modules:        in.Modules,
		Deprecated:     []string{blueprint.VersionPrevious},
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.UpdateExportableModules(ctx, in.ClientID, manifest.Modules); err != nil {
		return nil, fmt.Errorf("сохранение карты модулей: %w", err)
	}

	vault := s.gateway.SendToVault(ctx, VaultStoreEndpoint, map[string]any{
		"clientId":         in.ClientID,
		"blueprintVersion": manifest.BlueprintVersion,
		"exportId":         manifest.ExportID,
		"manifest":         manifest,
	})
	stage := blueprint.StageOf(reg)
	if vault.Succeeded {
		if reg, err = s.registry.MarkExportReady(ctx, in.ClientID, true); err != nil {
			return nil, fmt.Errorf("отметка готовности экспорта: %w", err)
		}
		stage = blueprint.StageOf(reg)
	}

	guardian := s.gateway.NotifyGuardian(ctx, in.ClientID, EventBlueprintExported, map[string]any{
		"exportId":         manifest.ExportID,
		"blueprintVersion": manifest.BlueprintVersion,
		"moduleCount":      len(manifest.Modules),
		"deprecated":       manifest.Deprecated,
		"vaultSynced":      vault.Succeeded,
	})
	if guardian.Succeeded && blueprint.CanTransition(stage, blueprint.StageCompleted) {
		if _, err := s.registry.UpdateHandoffStatus(ctx, in.ClientID, model.HandoffCompleted); err != nil {
			return nil, fmt.Errorf("завершение передачи: %w", err)
		}
	}

	s.logger.Info("Blueprint экспортирован",
		slog.String("client_id", in.ClientID),
		slog.String("export_id", manifest.ExportID),
		slog.Int("modules", len(manifest.Modules)),
		slog.Bool("vault_synced", vault.Succeeded),
		slog.Bool("guardian_notified", guardian.Succeeded),
	)

	return &ExportResult{
		Success:          true,
		BlueprintVersion: manifest.BlueprintVersion,
		ExportID:         manifest.ExportID,
		Modules:          manifest.Modules,
		VaultSynced:      vault.Succeeded,
		GuardianNotified: guardian.Succeeded,
		Manifest:         manifest,
	}, nil
}

// PublishResult — итог публикации версии по умолчанию.
type PublishResult struct {
	Success          bool   `json:"success"`
	Version          string `json:"version"`
	Path             string `json:"path"`
	VaultSynced      bool   `json:"vaultSynced"`
	GuardianNotified bool   `json:"guardianNotified"`
	Timestamp        string `json:"timestamp"`
}

// PublishCurrentVersion делает 1.1.1 версией по умолчанию для новых
// тенантов: журнал версий, архив и флаг по умолчанию в Vault, Guardian.
func (s *BlueprintService) PublishCurrentVersion(ctx context.Context, notes string) (*PublishResult, error) {
	version := blueprint.VersionCurrent
	entries, _, err := s.buildModuleMap(ctx, nil)
	if err != nil {
		return nil, err
	}
	if notes == "" {
		notes = "Blueprint " + version + ": announcement-модули обновления"
	}

	if _, err := s.registry.PublishVersion(ctx, version, notes, entries); err != nil {
		return nil, err
	}
	if _, err := s.registry.DeprecateVersion(ctx, blueprint.VersionPrevious); err != nil {
		return nil, fmt.Errorf("пометка версии %s устаревшей: %w", blueprint.VersionPrevious, err)
	}

	path := "/blueprints/client-blueprint-v" + version + ".zip"
	timestamp := nowUTC()

	stored := s.gateway.SendToVault(ctx, VaultStoreZipEndpoint, map[string]any{
		"version":   version,
		"path":      path,
		"modules":   entries,
		"timestamp": timestamp,
	})
	defaulted := s.gateway.SendToVault(ctx, VaultSetDefaultEndpoint, map[string]any{
		"version":    version,
		"path":       path,
		"deprecated": []string{blueprint.VersionPrevious},
	})
	guardian := s.gateway.NotifyGuardian(ctx, systemClientID, EventBlueprintPublished, map[string]any{
		"version":     version,
		"path":        path,
		"moduleCount": len(entries),
	})

	s.logger.Info("Версия Blueprint опубликована",
		slog.String("version", version),
		slog.Bool("vault_stored", stored.Succeeded),
		slog.Bool("vault_default", defaulted.Succeeded),
		slog.Bool("guardian_notified", guardian.Succeeded),
	)

	return &PublishResult{
		Success:          true,
		Version:          version,
		Path:             path,
		VaultSynced:      stored.Succeeded && defaulted.Succeeded,
		GuardianNotified: guardian.Succeeded,
		Timestamp:        timestamp,
	}, nil
}

// AnnouncementsResult — итог подключения announcement-модулей к клиенту.
type AnnouncementsResult struct {
	Success          bool                   `json:"success"`
	Modules          []model.ModuleMapEntry `json:"modules"`
	BlueprintVersion string                 `json:"blueprintVersion"`
}

// AddAnnouncements регистрирует announcement-модули, переводит клиента на
// версию 1.1.1 и добавляет модули в его карту (существующие записи заменяются).
func (s *BlueprintService) AddAnnouncements(ctx context.Context, clientID string) (*AnnouncementsResult, error) {
	reg, err := s.registry.GetRegistry(ctx, clientID)
	if err != nil {
		return nil, err
	}

	registered, err := s.modules.RegisterAnnouncementModules(ctx)
	if err != nil {
		return nil, err
	}
	added := make([]model.ModuleMapEntry, 0, len(registered))
	for _, m := range registered {
		added = append(added, blueprint.EntryFromModule(m))
	}

	if _, _, err := s.registry.TagBlueprint(ctx, TagInput{
		ClientID:         clientID,
		BlueprintVersion: blueprint.VersionCurrent,
	}); err != nil {
		return nil, err
	}
	merged := mergeEntries(reg.ExportableModules, added)
	if _, err := s.registry.UpdateExportableModules(ctx, clientID, merged); err != nil {
		return nil, fmt.Errorf("сохранение карты модулей: %w", err)
	}

	return &AnnouncementsResult{
		Success:          true,
		Modules:          added,
		BlueprintVersion: blueprint.VersionCurrent,
	}, nil
}

// ManifestInput — параметры сборки манифеста.
type ManifestInput struct {
	ClientID       string
	Version        string
	TenantID       string
	TenantAgnostic bool
	Modules        []string
	Deprecated     []string
}

// BuildManifest собирает манифест экспорта. Отсутствующий профиль
// не прерывает сборку: раздел identity просто не попадает в манифест.
func (s *BlueprintService) BuildManifest(ctx context.Context, in ManifestInput) (*blueprint.Manifest, error) {
	entries, skipped, err := s.buildModuleMap(ctx, in.Modules)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		s.logger.Warn("Модули не найдены в каталоге и пропущены",
			slog.String("client_id", in.ClientID),
			slog.Any("modules", skipped),
		)
	}

	deprecated := in.Deprecated
	if deprecated == nil {
		deprecated = []string{}
	}

	m := &blueprint.Manifest{
		ClientID:         in.ClientID,
		BlueprintVersion: in.Version,
		ExportTimestamp:  nowUTC(),
		Modules:          entries,
		Deprecated:       deprecated,
		ExportID:         blueprint.ExportID(in.Version, idgen.Millis()),
		BusinessIdentity: s.identitySection(ctx, in.TenantID, false),
	}
	if in.TenantID != "" {
		tenantID := in.TenantID
		m.TenantID = &tenantID
	}
	if in.TenantAgnostic {
		blueprint.SanitizeManifest(m)
	}
	return m, nil
}

// ExtractInput — параметры извлечения снимка.
type ExtractInput struct {
	ClientID       string
	TenantID       string
	TenantAgnostic bool
	ExtractedBy    string
}

// Extract возвращает снимок Blueprint клиента, не меняя состояние реестра.
func (s *BlueprintService) Extract(ctx context.Context, in ExtractInput) (*blueprint.Extraction, error) {
	reg, err := s.registry.GetRegistry(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTenant(ctx, in.TenantID); err != nil {
		return nil, err
	}

	modules := reg.ExportableModules
	if len(modules) == 0 {
		if modules, _, err = s.buildModuleMap(ctx, nil); err != nil {
			return nil, err
		}
	}

	extractedBy := in.ExtractedBy
	if extractedBy == "" {
		extractedBy = "api"
	}
	ex := &blueprint.Extraction{
		Version:     reg.BlueprintVersion,
		ExtractedAt: nowUTC(),
		Source: blueprint.ExtractionSource{
			InstanceID:  s.opts.InstanceID,
			ExtractedBy: extractedBy,
		},
		Schema:   blueprint.ExtractionSchema{Version: blueprint.SchemaVersion},
		Modules:  modules,
		Tools:    s.installedTools(ctx, in.TenantID),
		Identity: s.identitySection(ctx, in.TenantID, false),
	}
	if in.TenantID != "" {
		tenantID := in.TenantID
		ex.Source.TenantID = &tenantID
	}
	if in.TenantAgnostic {
		ex.MakeTenantAgnostic()
	}

	if problems := ex.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrValidation, problems)
	}
	return ex, nil
}

// Diff сравнивает карту модулей клиента со снимком версии из журнала.
func (s *BlueprintService) Diff(ctx context.Context, clientID, version string) (*blueprint.Diff, error) {
	reg, err := s.registry.GetRegistry(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if version == "" {
		version = reg.BlueprintVersion
	}
	v, err := s.registry.GetVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	d := blueprint.CompareModules(v.Modules, reg.ExportableModules)
	return &d, nil
}

// Versions возвращает журнал версий.
func (s *BlueprintService) Versions(ctx context.Context) ([]*model.BlueprintVersion, error) {
	return s.registry.ListVersions(ctx)
}

// allowList — announcement-модули, модули из настроек и переданные в вызове.
func (s *BlueprintService) allowList(extra []string) []string {
	ids := make([]string, 0, len(blueprint.AnnouncementModuleIDs)+len(s.opts.ExportModules)+len(extra))
	ids = append(ids, blueprint.AnnouncementModuleIDs...)
	ids = append(ids, s.opts.ExportModules...)
	return append(ids, extra...)
}

func (s *BlueprintService) buildModuleMap(ctx context.Context, extra []string) ([]model.ModuleMapEntry, []string, error) {
	ids := s.allowList(extra)
	lookup, err := s.modules.Lookup(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	entries, skipped := blueprint.BuildModuleMap(ids, lookup)
	return entries, skipped, nil
}

func (s *BlueprintService) checkTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return nil
	}
	if !s.profiles.ValidateTenant(ctx, tenantID) {
		return fmt.Errorf("%w: %s", ErrInvalidTenant, tenantID)
	}
	return nil
}

// identitySection — раздел identity манифеста или nil, если профиль недоступен.
func (s *BlueprintService) identitySection(ctx context.Context, tenantID string, sanitize bool) map[string]any {
	if tenantID == "" {
		return nil
	}
	profile, err := s.profiles.GetBusinessProfile(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("Профиль не получен, раздел identity пропущен",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	identity := profile.AsIdentity()
	if sanitize {
		return blueprint.Sanitize(identity)
	}
	return identity
}

// activeTheme — активная тема тенанта из SOT или nil.
func (s *BlueprintService) activeTheme(ctx context.Context, tenantID string) map[string]any {
	if tenantID == "" {
		return nil
	}
	themes, err := s.store.Read(ctx, tenantID, sotstore.CategoryThemes)
	if err != nil {
		s.logger.Warn("Темы не прочитаны, раздел brandConfiguration пропущен",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	for _, t := range themes {
		if t.Bool("isActive") {
			return t
		}
	}
	return nil
}

// installedTools — инструменты тенанта из SOT.
func (s *BlueprintService) installedTools(ctx context.Context, tenantID string) []blueprint.ExtractedTool {
	tools := []blueprint.ExtractedTool{}
	if tenantID == "" {
		return tools
	}
	records, err := s.store.Read(ctx, tenantID, sotstore.CategoryTools)
	if err != nil {
		s.logger.Warn("Инструменты не прочитаны",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return tools
	}
	for _, r := range records {
		version := r.String("version")
		if version == "" {
			version = blueprint.ModuleVersion
		}
		tools = append(tools, blueprint.ExtractedTool{
			Name:    r.String("name"),
			Version: version,
			Enabled: r.Bool("isEnabled"),
		})
	}
	return tools
}

// mergeEntries заменяет элементы base с теми же moduleId и добавляет новые в конец.
func mergeEntries(base, added []model.ModuleMapEntry) []model.ModuleMapEntry {
	index := make(map[string]int, len(added))
	for i, e := range added {
		index[e.ModuleID] = i
	}
	out := make([]model.ModuleMapEntry, 0, len(base)+len(added))
	used := make(map[string]bool, len(added))
	for _, e := range base {
		if i, ok := index[e.ModuleID]; ok {
			out = append(out, added[i])
			used[e.ModuleID] = true
			continue
		}
		out = append(out, e)
	}
	for _, e := range added {
		if !used[e.ModuleID] {
			out = append(out, e)
		}
	}
	return out
}
