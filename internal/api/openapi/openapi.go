// Пакет openapi — встроенный OpenAPI контракт SmartSite и middleware
// проверки входящих запросов по нему (kin-openapi).
package openapi

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/nextmonthlab/smartsite/internal/api/errors"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec возвращает исходный YAML контракта.
func Spec() []byte {
	return specYAML
}

// Load разбирает и проверяет встроенный контракт.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("проверка OpenAPI контракта: %w", err)
	}
	return doc, nil
}

// Handler отдаёт контракт (GET /api/openapi.yaml).
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(specYAML)
	})
}

// Validator проверяет параметры и тела запросов по контракту.
type Validator struct {
	router   routers.Router
	prefixes []string
	logger   *slog.Logger
}

// NewValidator создаёт проверку запросов. Проверяются только пути
// с указанными префиксами; пустой список — все пути контракта.
func NewValidator(doc *openapi3.T, logger *slog.Logger, prefixes ...string) (*Validator, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("построение маршрутов OpenAPI: %w", err)
	}
	return &Validator{
		router:   router,
		prefixes: prefixes,
		logger:   logger.With(slog.String("component", "openapi_validator")),
	}, nil
}

// Middleware отклоняет запросы, нарушающие контракт, с 400 VALIDATION_ERROR.
// Пути, которых нет в контракте, пропускаются: их судьбу решает роутер.
func (v *Validator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.covers(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				v.logger.Debug("Запрос не соответствует контракту",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ValidationError(w, describe(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (v *Validator) covers(path string) bool {
	if len(v.prefixes) == 0 {
		return true
	}
	for _, p := range v.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// describe превращает ошибку kin-openapi в короткое сообщение для клиента.
func describe(err error) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if field == "" {
			return "тело запроса: " + schemaErr.Reason
		}
		return field + ": " + schemaErr.Reason
	}

	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		reason := reqErr.Reason
		if reason == "" && reqErr.Err != nil {
			reason = reqErr.Err.Error()
		}
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("параметр %s: %s", reqErr.Parameter.Name, reason)
		case reqErr.RequestBody != nil:
			return "тело запроса: " + reason
		}
		return reason
	}
	return err.Error()
}
