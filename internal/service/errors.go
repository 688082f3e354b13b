// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidTenant — тенант не существует или не активен.
	ErrInvalidTenant = errors.New("тенант не существует или не активен")
	// ErrNotConfigured — для клиента ещё нет реестра Blueprint.
	ErrNotConfigured = errors.New("Blueprint клиента не настроен")
)
