// Пакет errors — ответы с ошибками HTTP API SmartSite.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, описанные в OpenAPI контракте.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeNotConfigured     = "NOT_CONFIGURED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeMissingTenantID   = "MISSING_TENANT_ID"
	CodeInvalidTenant     = "INVALID_TENANT"
	CodeCrossTenantDenied = "CROSS_TENANT_ACCESS_DENIED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// NotConfigured — 404 для клиента нет реестра Blueprint.
func NotConfigured(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotConfigured, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InvalidTransition — 409 недопустимый переход стадии Blueprint.
func InvalidTransition(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeInvalidTransition, message)
}

// MissingTenantID — 400 в запросе нет идентификатора тенанта.
func MissingTenantID(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeMissingTenantID, message)
}

// InvalidTenant — 403 тенант не существует или не активен.
func InvalidTenant(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeInvalidTenant, message)
}

// CrossTenantDenied — 403 обращение к чужому тенанту.
func CrossTenantDenied(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeCrossTenantDenied, message)
}

// InternalError — 500 внутренняя ошибка. Детали в ответ не попадают.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
