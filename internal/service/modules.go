// modules.go — общий каталог модулей: идемпотентная регистрация с записью
// в журнал аудита.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextmonthlab/smartsite/internal/domain/blueprint"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/repository"
)

// ActionModuleRegistered — действие журнала аудита при регистрации модуля.
const ActionModuleRegistered = "module_registered"

// systemActor — автор записей журнала, сделанных сервисом.
const systemActor = "system"

// ModuleService — сервис каталога модулей.
type ModuleService struct {
	uow    repository.UnitOfWork
	logger *slog.Logger
}

// NewModuleService создаёт сервис каталога модулей.
func NewModuleService(uow repository.UnitOfWork, logger *slog.Logger) *ModuleService {
	return &ModuleService{
		uow:    uow,
		logger: logger.With(slog.String("component", "module_service")),
	}
}

// RegisterModule регистрирует модуль в каталоге.
// Существующий ID — возвращается сохранённая запись без изменений и без
// записи в журнал (created=false). Новый ID — вставка и запись
// module_registered в одной транзакции.
func (s *ModuleService) RegisterModule(ctx context.Context, m *model.Module) (*model.Module, bool, error) {
	if err := validateModule(m); err != nil {
		return nil, false, err
	}
	if m.Status == "" {
		m.Status = model.ModuleStatusActive
	}

	existing, err := s.uow.Repos().Modules.GetByID(ctx, m.ID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("проверка модуля %s: %w", m.ID, err)
	}

	err = s.uow.InTx(ctx, func(r *repository.Repos) error {
		if err := r.Modules.Create(ctx, m); err != nil {
			return err
		}
		return r.ActivityLogs.Create(ctx, &model.ActivityLog{
			Actor:   systemActor,
			Action:  ActionModuleRegistered,
			Details: registrationDetails(m),
		})
	})
	if err != nil {
		// Параллельная регистрация того же ID: побеждает первая вставка.
		if errors.Is(err, repository.ErrConflict) {
			stored, getErr := s.uow.Repos().Modules.GetByID(ctx, m.ID)
			if getErr != nil {
				return nil, false, fmt.Errorf("повторное чтение модуля %s: %w", m.ID, getErr)
			}
			return stored, false, nil
		}
		return nil, false, fmt.Errorf("регистрация модуля %s: %w", m.ID, err)
	}

	s.logger.Info("Модуль зарегистрирован",
		slog.String("module_id", m.ID),
		slog.String("category", m.Category),
	)
	return m, true, nil
}

// RegisterAnnouncementModules регистрирует модули объявлений об обновлении
// Blueprint. Повторный вызов ничего не меняет.
func (s *ModuleService) RegisterAnnouncementModules(ctx context.Context) ([]*model.Module, error) {
	defs := blueprint.AnnouncementModules()
	out := make([]*model.Module, 0, len(defs))
	created := 0
	for i := range defs {
		m, isNew, err := s.RegisterModule(ctx, &defs[i])
		if err != nil {
			return nil, err
		}
		if isNew {
			created++
		}
		out = append(out, m)
	}

	s.logger.Info("Announcement-модули зарегистрированы",
		slog.Int("total", len(out)),
		slog.Int("created", created),
	)
	return out, nil
}

// ListModules возвращает модули каталога, опционально по статусу.
func (s *ModuleService) ListModules(ctx context.Context, status *string) ([]*model.Module, error) {
	if status != nil && *status != model.ModuleStatusActive && *status != model.ModuleStatusInactive {
		return nil, fmt.Errorf("%w: недопустимый статус %q, допустимые: active, inactive", ErrValidation, *status)
	}
	return s.uow.Repos().Modules.List(ctx, status)
}

// GetModule возвращает модуль по ID.
func (s *ModuleService) GetModule(ctx context.Context, id string) (*model.Module, error) {
	m, err := s.uow.Repos().Modules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: модуль %s", ErrNotFound, id)
		}
		return nil, err
	}
	return m, nil
}

// Lookup возвращает функцию поиска модулей для сборки карты экспорта.
// Модули загружаются одним запросом.
func (s *ModuleService) Lookup(ctx context.Context, ids []string) (blueprint.ModuleLookup, error) {
	found, err := s.uow.Repos().Modules.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("загрузка модулей каталога: %w", err)
	}
	return func(id string) (*model.Module, bool) {
		m, ok := found[id]
		return m, ok
	}, nil
}

func validateModule(m *model.Module) error {
	switch {
	case m == nil:
		return fmt.Errorf("%w: модуль не передан", ErrValidation)
	case strings.TrimSpace(m.ID) == "":
		return fmt.Errorf("%w: id модуля обязателен", ErrValidation)
	case len(m.ID) > 200:
		return fmt.Errorf("%w: id модуля длиннее 200 символов", ErrValidation)
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("%w: name модуля обязателен", ErrValidation)
	}
	switch m.Category {
	case model.ModuleCategoryCore, model.ModuleCategoryCustom, model.ModuleCategoryAutomation:
	default:
		return fmt.Errorf("%w: недопустимая категория %q, допустимые: core, custom, automation", ErrValidation, m.Category)
	}
	switch m.Status {
	case "", model.ModuleStatusActive, model.ModuleStatusInactive:
	default:
		return fmt.Errorf("%w: недопустимый статус %q", ErrValidation, m.Status)
	}
	return nil
}

func registrationDetails(m *model.Module) map[string]any {
	details := map[string]any{
		"moduleId": m.ID,
		"category": m.Category,
	}
	if family := m.MetaString("family"); family != "" {
		details["family"] = family
	}
	if v, ok := m.Metadata["optional"].(bool); ok {
		details["optional"] = v
	}
	if v, ok := m.Metadata["enabled_by_default"].(bool); ok {
		details["enabledByDefault"] = v
	}
	if tag := m.MetaString("tag"); tag != "" {
		details["tag"] = tag
	}
	return details
}
