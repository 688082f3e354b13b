// Пакет blueprint — доменная логика Blueprint: стадии жизненного цикла
// клиента, сборка карты модулей и манифеста экспорта, обезличивание.
//
// Стадия не хранится отдельно, она выводится из полей реестра клиента:
//
//	not_configured — записи реестра нет
//	in_progress    — версия отмечена (tag), экспорт не готов
//	export_ready   — пакет принят Vault
//	completed      — передача клиенту завершена (handoffStatus = completed)
//
// Повторная отметка версии всегда возвращает клиента в in_progress.
package blueprint

import (
	"fmt"

	"github.com/nextmonthlab/smartsite/internal/domain/model"
)

// Stage — стадия жизненного цикла Blueprint клиента.
type Stage string

const (
	StageNotConfigured Stage = "not_configured"
	StageInProgress    Stage = "in_progress"
	StageExportReady   Stage = "export_ready"
	StageCompleted     Stage = "completed"
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[Stage]map[Stage]bool{
	StageNotConfigured: {StageInProgress: true},
	StageInProgress:    {StageInProgress: true, StageExportReady: true},
	StageExportReady:   {StageInProgress: true, StageExportReady: true, StageCompleted: true},
	StageCompleted:     {StageInProgress: true, StageExportReady: true, StageCompleted: true},
}

// TransitionError — ошибка недопустимого перехода между стадиями.
type TransitionError struct {
	Code    string
	From    Stage
	To      Stage
	Message string
}

func (e *TransitionError) Error() string {
	return e.Message
}

// StageOf выводит стадию из записи реестра. nil — клиент не настроен.
func StageOf(reg *model.ClientRegistry) Stage {
	switch {
	case reg == nil:
		return StageNotConfigured
	case reg.HandoffStatus == model.HandoffCompleted:
		return StageCompleted
	case reg.ExportReady:
		return StageExportReady
	default:
		return StageInProgress
	}
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to Stage) bool {
	return validTransitions[from][to]
}

// Transition возвращает *TransitionError, если переход недопустим.
func Transition(from, to Stage) error {
	if !isValidStage(to) {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			From:    from,
			To:      to,
			Message: fmt.Sprintf("недопустимая целевая стадия: %q", to),
		}
	}
	if !CanTransition(from, to) {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			From:    from,
			To:      to,
			Message: fmt.Sprintf("переход %s → %s недопустим", from, to),
		}
	}
	return nil
}

// OnboardingTemplate — список стадий для шаблона онбординга в пакете экспорта.
func OnboardingTemplate() []Stage {
	return []Stage{StageNotConfigured, StageInProgress, StageExportReady, StageCompleted}
}

func isValidStage(s Stage) bool {
	_, ok := validTransitions[s]
	return ok
}
