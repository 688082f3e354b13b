// tenant.go — привязка запросов admin API к тенанту.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/nextmonthlab/smartsite/internal/api/errors"
)

const (
	contextKeyTenant      contextKey = "tenant_id"
	contextKeyRequestInfo contextKey = "request_info"
)

// TenantValidator проверяет, что тенант существует и активен.
type TenantValidator interface {
	ValidateTenant(ctx context.Context, tenantID string) bool
}

// TenantGuard пропускает запрос дальше только для активного тенанта.
//
// Тенант берётся только из сегмента {tenantId}.
// Если запрос аутентифицирован, тенант токена должен совпадать с запрошенным
// (кроме супер-администратора). Несовпадение проверяется до обращения
// к каталогу тенантов, так что чужой тенант не отличить от несуществующего.
func TenantGuard(validator TenantValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(chi.URLParam(r, "tenantId"))
			if tenantID == "" {
				apierrors.MissingTenantID(w, "Для операций admin-панели требуется tenantId")
				return
			}

			if claims := ClaimsFromContext(r.Context()); claims != nil && !claims.SuperAdmin && claims.TenantID != tenantID {
				apierrors.CrossTenantDenied(w, "Доступ к данным другого тенанта запрещён")
				return
			}

			if !validator.ValidateTenant(r.Context(), tenantID) {
				apierrors.InvalidTenant(w, "Тенант не существует или не активен")
				return
			}

			if info := requestInfoFrom(r.Context()); info != nil {
				info.tenantID = tenantID
			}
			ctx := context.WithValue(r.Context(), contextKeyTenant, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext возвращает тенант, подтверждённый TenantGuard.
func TenantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyTenant).(string)
	return id
}

// requestInfo передаёт тенант и субъект из внутренних middleware
// обратно в RequestLogger, который стоит раньше них в цепочке.
type requestInfo struct {
	tenantID string
	subject  string
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, contextKeyRequestInfo, info)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(contextKeyRequestInfo).(*requestInfo)
	return info
}
