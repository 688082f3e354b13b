// Пакет idgen — генерация идентификаторов записей SOT, имён файлов и токенов.
//
// Формат идентификатора: {prefix}_{epochMillis}_{suffix}, где suffix —
// 9 символов base36 из случайного UUID. Метка времени строго возрастает
// в пределах процесса.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// suffixLen — длина случайного суффикса.
const suffixLen = 9

// lastMillis — последняя выданная метка времени.
var lastMillis atomic.Int64

// Millis возвращает текущее время в миллисекундах Unix.
// Два последовательных вызова никогда не возвращают одинаковое значение:
// при совпадении метка сдвигается на 1 мс вперёд.
func Millis() int64 {
	for {
		now := time.Now().UnixMilli()
		prev := lastMillis.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastMillis.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// Suffix возвращает случайный суффикс base36 фиксированной длины.
func Suffix() string {
	u := uuid.New()
	s := new(big.Int).SetBytes(u[:]).Text(36)
	if len(s) < suffixLen {
		s = strings.Repeat("0", suffixLen-len(s)) + s
	}
	return s[len(s)-suffixLen:]
}

// New возвращает идентификатор вида {prefix}_{epochMillis}_{suffix}.
func New(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, Millis(), Suffix())
}

// FileName возвращает имя файла SOT для категории:
// дефисы заменяются подчёркиваниями, добавляется метка времени и суффикс.
// Пример: blog-posts → blog_posts_1718000000000_k3j9a0z1q.json
func FileName(category string) string {
	return New(strings.ReplaceAll(category, "-", "_")) + ".json"
}

// Token возвращает n криптографически случайных байт в hex.
func Token(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("генерация токена: %w", err)
	}
	return hex.EncodeToString(b), nil
}
