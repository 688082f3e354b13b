package blueprint

import "strings"

// Токены-заглушки обезличенного Blueprint.
const (
	TokenBusinessName = "[BUSINESS_NAME]"
	TokenEmail        = "[EMAIL]"
	TokenPhone        = "[PHONE]"
	TokenLogoURL      = "[LOGO_URL]"
	TokenWebsiteURL   = "[WEBSITE_URL]"
	TokenAddress      = "[ADDRESS]"
)

// placeholders — имена полей (в нижнем регистре) и их заглушки.
// Значение nil означает, что поле обнуляется.
var placeholders = map[string]any{
	"businessname": TokenBusinessName,
	"companyname":  TokenBusinessName,
	"name":         TokenBusinessName,
	"email":        TokenEmail,
	"contactemail": TokenEmail,
	"adminemail":   TokenEmail,
	"phone":        TokenPhone,
	"phonenumber":  TokenPhone,
	"contactphone": TokenPhone,
	"logo":         TokenLogoURL,
	"logourl":      TokenLogoURL,
	"websiteurl":   TokenWebsiteURL,
	"website":      TokenWebsiteURL,
	"domain":       TokenWebsiteURL,
	"address":      TokenAddress,
	"tenantid":     nil,
}

// Sanitize возвращает обезличенную копию раздела identity.
// Поля заменяются по имени (без учёта регистра) на любой глубине вложенности;
// пустые значения не трогаются. Исходная карта не изменяется.
func Sanitize(identity map[string]any) map[string]any {
	if identity == nil {
		return nil
	}
	out, _ := sanitizeValue(identity).(map[string]any)
	return out
}

// SanitizeManifest обезличивает манифест: tenantId → nil, identity → Sanitize.
func SanitizeManifest(m *Manifest) {
	m.TenantID = nil
	m.TenantAgnostic = true
	m.BusinessIdentity = Sanitize(m.BusinessIdentity)
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if token, ok := placeholders[strings.ToLower(k)]; ok && !isEmpty(inner) {
				out[k] = token
				continue
			}
			out[k] = sanitizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = sanitizeValue(inner)
		}
		return out
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	}
	return false
}
