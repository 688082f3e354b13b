// registry.go — реестр Blueprint клиентов и журнал версий.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/repository"
)

// versionPattern — допустимый формат версии Blueprint (1.1.1, 2.0.0-rc1).
var versionPattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z.+-]{2,31}$`)

// maxClientIDLen — максимальная длина clientId.
const maxClientIDLen = 200

// TagInput — данные отметки версии Blueprint клиента.
type TagInput struct {
	ClientID         string
	BlueprintVersion string
	Sector           string
	Location         string
	ProjectStartDate *string
	UserRoles        []string
}

// RegistryService — сервис реестра клиентов и журнала версий.
type RegistryService struct {
	uow    repository.UnitOfWork
	logger *slog.Logger
}

// NewRegistryService создаёт сервис реестра.
func NewRegistryService(uow repository.UnitOfWork, logger *slog.Logger) *RegistryService {
	return &RegistryService{
		uow:    uow,
		logger: logger.With(slog.String("component", "registry_service")),
	}
}

// TagBlueprint создаёт или обновляет реестр клиента и возвращает его
// в стадию in_progress. Версия заносится в журнал, если её там нет.
// created=true — запись реестра создана этим вызовом.
func (s *RegistryService) TagBlueprint(ctx context.Context, in TagInput) (*model.ClientRegistry, bool, error) {
	if err := ValidateClientID(in.ClientID); err != nil {
		return nil, false, err
	}
	if err := ValidateVersion(in.BlueprintVersion); err != nil {
		return nil, false, err
	}

	reg := &model.ClientRegistry{
		ClientID:         in.ClientID,
		BlueprintVersion: in.BlueprintVersion,
		Sector:           strings.TrimSpace(in.Sector),
		Location:         strings.TrimSpace(in.Location),
		ProjectStartDate: in.ProjectStartDate,
		UserRoles:        in.UserRoles,
	}

	var created bool
	err := s.uow.InTx(ctx, func(r *repository.Repos) error {
		var err error
		if created, err = r.Registries.Upsert(ctx, reg, false); err != nil {
			return err
		}
		return r.Versions.Ensure(ctx, in.BlueprintVersion)
	})
	if err != nil {
		return nil, false, fmt.Errorf("отметка версии Blueprint: %w", err)
	}

	s.logger.Info("Версия Blueprint отмечена",
		slog.String("client_id", in.ClientID),
		slog.String("version", in.BlueprintVersion),
		slog.Bool("created", created),
	)
	return reg, created, nil
}

// GetRegistry возвращает реестр клиента. Нет записи — ErrNotConfigured.
func (s *RegistryService) GetRegistry(ctx context.Context, clientID string) (*model.ClientRegistry, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	reg, err := s.uow.Repos().Registries.Get(ctx, clientID)
	return reg, s.mapRegistryErr(clientID, err)
}

// FindRegistry возвращает реестр клиента или nil, если клиент не настроен.
func (s *RegistryService) FindRegistry(ctx context.Context, clientID string) (*model.ClientRegistry, error) {
	reg, err := s.GetRegistry(ctx, clientID)
	if errors.Is(err, ErrNotConfigured) {
		return nil, nil
	}
	return reg, err
}

// UpdateExportableModules целиком заменяет карту экспортируемых модулей.
func (s *RegistryService) UpdateExportableModules(ctx context.Context, clientID string, modules []model.ModuleMapEntry) (*model.ClientRegistry, error) {
	if modules == nil {
		modules = []model.ModuleMapEntry{}
	}
	reg, err := s.uow.Repos().Registries.UpdateModules(ctx, clientID, modules)
	return reg, s.mapRegistryErr(clientID, err)
}

// MarkExportReady меняет флаг готовности экспорта.
func (s *RegistryService) MarkExportReady(ctx context.Context, clientID string, ready bool) (*model.ClientRegistry, error) {
	reg, err := s.uow.Repos().Registries.SetExportReady(ctx, clientID, ready)
	if err == nil {
		s.logger.Info("Готовность экспорта изменена",
			slog.String("client_id", clientID),
			slog.Bool("export_ready", ready),
		)
	}
	return reg, s.mapRegistryErr(clientID, err)
}

// UpdateHandoffStatus меняет статус передачи клиенту.
func (s *RegistryService) UpdateHandoffStatus(ctx context.Context, clientID, status string) (*model.ClientRegistry, error) {
	if status != model.HandoffInProgress && status != model.HandoffCompleted {
		return nil, fmt.Errorf("%w: недопустимый статус передачи %q, допустимые: in_progress, completed", ErrValidation, status)
	}
	reg, err := s.uow.Repos().Registries.SetHandoffStatus(ctx, clientID, status)
	if err == nil {
		s.logger.Info("Статус передачи изменён",
			slog.String("client_id", clientID),
			slog.String("handoff_status", status),
		)
	}
	return reg, s.mapRegistryErr(clientID, err)
}

// DeprecateVersion помечает версию устаревшей. Неизвестная версия
// заносится в журнал сразу устаревшей.
func (s *RegistryService) DeprecateVersion(ctx context.Context, version string) (*model.BlueprintVersion, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}
	v, err := s.uow.Repos().Versions.Deprecate(ctx, version)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Версия Blueprint помечена устаревшей", slog.String("version", version))
	return v, nil
}

// PublishVersion делает версию версией по умолчанию. Со всех остальных
// версий флаг снимается в той же транзакции.
func (s *RegistryService) PublishVersion(ctx context.Context, version, notes string, modules []model.ModuleMapEntry) (*model.BlueprintVersion, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}
	v := &model.BlueprintVersion{
		Version:      version,
		ReleaseNotes: notes,
		Modules:      modules,
	}
	err := s.uow.InTx(ctx, func(r *repository.Repos) error {
		if err := r.Versions.ClearDefault(ctx, version); err != nil {
			return err
		}
		return r.Versions.UpsertDefault(ctx, v)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, fmt.Errorf("публикация версии %s: %w", version, err)
	}

	s.logger.Info("Версия Blueprint опубликована по умолчанию",
		slog.String("version", version),
		slog.Int("modules", len(v.Modules)),
	)
	return v, nil
}

// ListVersions возвращает журнал версий, новые первыми.
func (s *RegistryService) ListVersions(ctx context.Context) ([]*model.BlueprintVersion, error) {
	return s.uow.Repos().Versions.List(ctx)
}

// GetVersion возвращает запись журнала версий.
func (s *RegistryService) GetVersion(ctx context.Context, version string) (*model.BlueprintVersion, error) {
	v, err := s.uow.Repos().Versions.Get(ctx, version)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: версия %s", ErrNotFound, version)
		}
		return nil, err
	}
	return v, nil
}

// DefaultVersion возвращает опубликованную версию по умолчанию
// или nil, если ни одна версия ещё не публиковалась.
func (s *RegistryService) DefaultVersion(ctx context.Context) (*model.BlueprintVersion, error) {
	v, err := s.uow.Repos().Versions.GetDefault(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("версия по умолчанию: %w", err)
	}
	return v, nil
}

func (s *RegistryService) mapRegistryErr(clientID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: клиент %s", ErrNotConfigured, clientID)
	}
	return err
}

// ValidateClientID проверяет идентификатор клиента.
func ValidateClientID(clientID string) error {
	switch {
	case strings.TrimSpace(clientID) == "":
		return fmt.Errorf("%w: clientId обязателен", ErrValidation)
	case len(clientID) > maxClientIDLen:
		return fmt.Errorf("%w: clientId длиннее %d символов", ErrValidation, maxClientIDLen)
	}
	return nil
}

// ValidateVersion проверяет формат версии Blueprint.
func ValidateVersion(version string) error {
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("%w: некорректная версия Blueprint %q", ErrValidation, version)
	}
	return nil
}
