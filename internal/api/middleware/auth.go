// auth.go — JWT middleware admin API SmartSite.
// Проверяет подпись токена по JWKS и извлекает тенанта и роли субъекта.
// Включается только при заданном SS_JWT_JWKS_URL.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/nextmonthlab/smartsite/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyClaims — claims аутентифицированного субъекта в контексте запроса.
const ContextKeyClaims contextKey = "jwt_claims"

// AuthClaims — claims субъекта, нужные admin API.
type AuthClaims struct {
	Subject           string
	PreferredUsername string
	// TenantID — тенант субъекта (claim задаётся SS_JWT_TENANT_CLAIM).
	TenantID string
	Roles    []string
	// SuperAdmin — субъект имеет доступ к любому тенанту.
	SuperAdmin bool
}

// HasRole проверяет наличие роли у субъекта.
func (c *AuthClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// AuthOptions — параметры JWT middleware.
type AuthOptions struct {
	// Issuer — ожидаемый iss (пустой — не проверяется).
	Issuer string
	// TenantClaim — имя claim с идентификатором тенанта.
	TenantClaim string
	// SuperAdminRole — роль с доступом ко всем тенантам.
	SuperAdminRole string
	Leeway         time.Duration
}

// JWTAuth — middleware JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks   keyfunc.Keyfunc
	opts   AuthOptions
	logger *slog.Logger
}

// NewJWTAuth создаёт JWT middleware с фоновым обновлением JWKS.
// caCertPath — опциональный CA для TLS до JWKS endpoint.
func NewJWTAuth(jwksURL, caCertPath string, refreshInterval time.Duration, opts AuthOptions, logger *slog.Logger) (*JWTAuth, error) {
	httpClient := http.DefaultClient
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
	}

	// Старт без доступного IdP допустим: ключи подтянутся при обновлении.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, opts, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с готовой keyfunc.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, opts AuthOptions, logger *slog.Logger) *JWTAuth {
	if opts.TenantClaim == "" {
		opts.TenantClaim = "tenant_id"
	}
	return &JWTAuth{
		jwks:   kf,
		opts:   opts,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл не содержит PEM-сертификатов")
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		},
	}, nil
}

// Middleware возвращает HTTP middleware: Bearer token, RS256, exp обязателен.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.opts.Leeway),
			}
			if j.opts.Issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.opts.Issuer))
			}

			raw := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), raw, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := raw.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := j.buildAuthClaims(subject, raw)
			if info := requestInfoFrom(r.Context()); info != nil {
				info.subject = subject
			}
			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildAuthClaims собирает AuthClaims. Роли берутся из roles
// и realm_access.roles (формат Keycloak).
func (j *JWTAuth) buildAuthClaims(subject string, raw jwt.MapClaims) *AuthClaims {
	claims := &AuthClaims{Subject: subject}
	claims.PreferredUsername, _ = raw["preferred_username"].(string)
	claims.TenantID, _ = raw[j.opts.TenantClaim].(string)

	claims.Roles = append(claims.Roles, stringList(raw["roles"])...)
	if realm, ok := raw["realm_access"].(map[string]any); ok {
		claims.Roles = append(claims.Roles, stringList(realm["roles"])...)
	}
	claims.SuperAdmin = j.opts.SuperAdminRole != "" && claims.HasRole(j.opts.SuperAdminRole)
	return claims
}

// stringList приводит JSON-массив строк к []string, прочие элементы отбрасываются.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если JWT отключён или claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext возвращает sub субъекта или пустую строку.
func SubjectFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// JWKSReadinessChecker — проверка доступности JWKS endpoint для /health/ready.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
func NewJWKSReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*JWKSReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}
	return &JWKSReadinessChecker{jwksURL: jwksURL, client: client}, nil
}

// CheckReady проверяет, что JWKS endpoint отвечает и содержит ключи.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return "fail", "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var body struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(body.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}
	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(body.Keys))
}
