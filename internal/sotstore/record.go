package sotstore

import (
	"encoding/json"
	"time"
)

// Record — одна запись SOT (JSON-объект).
type Record map[string]any

// String возвращает строковое поле или "".
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Bool возвращает булево поле или false.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Float возвращает числовое поле (JSON number) или 0.
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

// CreatedAt разбирает поле createdAt. false — поле отсутствует или некорректно.
func (r Record) CreatedAt() (time.Time, bool) {
	s := r.String("createdAt")
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone возвращает поверхностную копию записи.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Decode раскладывает запись в типизированную структуру через JSON.
func (r Record) Decode(v any) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
