package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testKeyID  = "test-key-ss"
	testIssuer = "https://idp.test/realms/smartsite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из публичного RSA ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, AuthOptions{
		Issuer:         testIssuer,
		TenantClaim:    "tenant_id",
		SuperAdminRole: "super_admin",
	}, testLogger())
}

// signToken подписывает claims тестовым ключом.
func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return s
}

func userClaims(sub, tenantID string, roles ...string) jwt.MapClaims {
	c := jwt.MapClaims{
		"sub":                sub,
		"iss":                testIssuer,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"iat":                time.Now().Unix(),
		"preferred_username": sub + "-name",
		"tenant_id":          tenantID,
	}
	if len(roles) > 0 {
		r := make([]any, len(roles))
		for i, role := range roles {
			r[i] = role
		}
		c["realm_access"] = map[string]any{"roles": r}
	}
	return c
}

// captureClaims — обработчик, сохраняющий claims из контекста.
func captureClaims(dst **AuthClaims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*dst = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	var got *AuthClaims
	handler := auth.Middleware()(captureClaims(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/acme/insights", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, userClaims("user-1", "acme", "editor")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200: %s", rec.Code, rec.Body.String())
	}
	if got == nil {
		t.Fatal("claims не попали в контекст")
	}
	if got.Subject != "user-1" || got.TenantID != "acme" || got.PreferredUsername != "user-1-name" {
		t.Errorf("claims = %+v", got)
	}
	if !got.HasRole("editor") || got.SuperAdmin {
		t.Errorf("роли: %v, superAdmin=%v", got.Roles, got.SuperAdmin)
	}
}

func TestJWTAuth_SuperAdmin(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	claims := userClaims("root", "")
	claims["roles"] = []any{"super_admin"}

	var got *AuthClaims
	handler := auth.Middleware()(captureClaims(&got))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, claims))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || !got.SuperAdmin {
		t.Errorf("ожидался супер-администратор, получено %+v", got)
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	expired := userClaims("user-1", "acme")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := userClaims("user-1", "acme")
	wrongIssuer["iss"] = "https://evil.test"

	noSub := userClaims("", "acme")

	tests := []struct {
		name   string
		header string
	}{
		{"без заголовка", ""},
		{"не Bearer", "Basic dXNlcjpwYXNz"},
		{"пустой токен", "Bearer "},
		{"мусор", "Bearer not.a.jwt"},
		{"просроченный", "Bearer " + signToken(t, key, expired)},
		{"чужой issuer", "Bearer " + signToken(t, key, wrongIssuer)},
		{"чужой ключ", "Bearer " + signToken(t, otherKey, userClaims("user-1", "acme"))},
		{"без sub", "Bearer " + signToken(t, key, noSub)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("статус = %d, ожидался 401", rec.Code)
			}
			if called {
				t.Error("обработчик не должен вызываться")
			}
		})
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"ключи есть", http.StatusOK, string(buildJWKSetJSON(&key.PublicKey, testKeyID)), "ok"},
		{"нет ключей", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"не JSON", http.StatusOK, `<html>`, "degraded"},
		{"ошибка сервера", http.StatusInternalServerError, ``, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checker, err := NewJWKSReadinessChecker(srv.URL, "", time.Second)
			if err != nil {
				t.Fatalf("NewJWKSReadinessChecker: %v", err)
			}
			if status, msg := checker.CheckReady(); status != tt.want {
				t.Errorf("статус = %q (%s), ожидался %q", status, msg, tt.want)
			}
		})
	}
}
