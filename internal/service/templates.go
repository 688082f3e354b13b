// templates.go — каталог шаблонов Blueprint для клонирования в новые тенанты.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/repository"
)

// maxTemplateNameLen — предел длины instanceName.
const maxTemplateNameLen = 200

// TemplateInput — данные регистрации шаблона.
type TemplateInput struct {
	InstanceName string
	Description  string
	// IsCloneable — nil означает true
	IsCloneable *bool
}

// RegisterTemplate заносит в каталог шаблон на текущей версии по умолчанию.
// Поддерживаемые инструменты берутся из карты модулей этой версии.
func (s *RegistryService) RegisterTemplate(ctx context.Context, in TemplateInput) (*model.BlueprintTemplate, error) {
	name := strings.TrimSpace(in.InstanceName)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: instanceName обязателен", ErrValidation)
	case len(name) > maxTemplateNameLen:
		return nil, fmt.Errorf("%w: instanceName длиннее %d символов", ErrValidation, maxTemplateNameLen)
	}

	def, err := s.DefaultVersion(ctx)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: нет опубликованной версии Blueprint", ErrNotConfigured)
	}

	tools := make([]string, 0, len(def.Modules))
	for _, m := range def.Modules {
		tools = append(tools, m.ModuleID)
	}
	cloneable := true
	if in.IsCloneable != nil {
		cloneable = *in.IsCloneable
	}

	tpl := &model.BlueprintTemplate{
		InstanceName:     name,
		Description:      strings.TrimSpace(in.Description),
		BlueprintVersion: def.Version,
		ToolsSupported:   tools,
		IsCloneable:      cloneable,
	}
	if err := s.uow.Repos().Templates.Create(ctx, tpl); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: шаблон %s уже зарегистрирован", ErrConflict, name)
		}
		return nil, fmt.Errorf("регистрация шаблона: %w", err)
	}

	s.logger.Info("Шаблон Blueprint зарегистрирован",
		slog.Int64("template_id", tpl.ID),
		slog.String("instance_name", name),
		slog.String("version", def.Version),
	)
	return tpl, nil
}

// ListTemplates возвращает каталог шаблонов, новые первыми.
func (s *RegistryService) ListTemplates(ctx context.Context, cloneableOnly bool) ([]*model.BlueprintTemplate, error) {
	return s.uow.Repos().Templates.List(ctx, cloneableOnly)
}

// SetTemplateCloneable открывает или закрывает шаблон для клонирования.
func (s *RegistryService) SetTemplateCloneable(ctx context.Context, id int64, cloneable bool) (*model.BlueprintTemplate, error) {
	tpl, err := s.uow.Repos().Templates.SetCloneable(ctx, id, cloneable)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: шаблон %d", ErrNotFound, id)
		}
		return nil, err
	}
	s.logger.Info("Доступность шаблона изменена",
		slog.Int64("template_id", id),
		slog.Bool("is_cloneable", cloneable),
	)
	return tpl, nil
}

// RegisterTemplate — см. RegistryService.RegisterTemplate.
func (s *BlueprintService) RegisterTemplate(ctx context.Context, in TemplateInput) (*model.BlueprintTemplate, error) {
	return s.registry.RegisterTemplate(ctx, in)
}

// Templates — см. RegistryService.ListTemplates.
func (s *BlueprintService) Templates(ctx context.Context, cloneableOnly bool) ([]*model.BlueprintTemplate, error) {
	return s.registry.ListTemplates(ctx, cloneableOnly)
}

// SetTemplateCloneable — см. RegistryService.SetTemplateCloneable.
func (s *BlueprintService) SetTemplateCloneable(ctx context.Context, id int64, cloneable bool) (*model.BlueprintTemplate, error) {
	return s.registry.SetTemplateCloneable(ctx, id, cloneable)
}
