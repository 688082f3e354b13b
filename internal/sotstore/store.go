// Пакет sotstore — файловое Source of Truth хранилище, изолированное по тенантам.
//
// Раскладка: {root}/businesses/{tenantId}/{category}/{fileName}.json,
// один JSON-объект на файл. Записи неизменяемы: каждая запись — новый файл.
// Запись идёт через temp файл → fsync → atomic rename, поэтому читатели
// никогда не видят частично записанный файл.
package sotstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nextmonthlab/smartsite/internal/idgen"
)

// Категории записей admin-панели.
const (
	CategoryInsights        = "insights"
	CategoryBlogPosts       = "blog-posts"
	CategoryThemes          = "themes"
	CategoryInnovationIdeas = "innovation-ideas"
	CategoryAnalyticsEvents = "analytics-events"
	CategoryAIEvents        = "ai-event-log"
	CategoryTools           = "tools"
	CategoryInsightUsers    = "insight-users"

	// CategoryProfile — снимок бизнес-профиля (identity.json).
	CategoryProfile = "profile"
	// CategoryUsers — SOT-записи пользователей тенанта.
	CategoryUsers = "users"
)

// TimeFormat — формат createdAt/updatedAt (ISO 8601 с миллисекундами, UTC).
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// rootDirName — каталог внутри корня хранилища.
const rootDirName = "businesses"

// ErrInvalidKey — недопустимый tenantId, категория или имя файла.
var ErrInvalidKey = errors.New("недопустимый ключ SOT")

// Prometheus-метрики хранилища.
var (
	sotWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_sot_writes_total",
		Help: "Количество записей в SOT-хранилище",
	}, []string{"category"})

	sotSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_sot_skipped_records_total",
		Help: "Количество записей SOT, пропущенных при чтении",
	}, []string{"reason"}) // reason: malformed, tenant_mismatch
)

// Store — файловое хранилище SOT.
type Store struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// New создаёт хранилище. Создаёт {root}/businesses, если каталога нет.
func New(root string, logger *slog.Logger) (*Store, error) {
	base := filepath.Join(root, rootDirName)
	if err := os.MkdirAll(base, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог SOT %s: %w", base, err)
	}
	return &Store{
		root:   base,
		logger: logger.With(slog.String("component", "sot_store")),
		now:    time.Now,
	}, nil
}

// Root возвращает каталог businesses/.
func (s *Store) Root() string {
	return s.root
}

// Write сохраняет data как новую запись тенанта в категории.
// data должен сериализоваться в JSON-объект. В запись добавляются tenantId,
// createdAt (если не задан) и updatedAt. Пустой fileName — имя генерируется.
// Возвращает имя записанного файла.
func (s *Store) Write(ctx context.Context, tenantID, category string, data any, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateSegment(tenantID); err != nil {
		return "", fmt.Errorf("%w: tenantId: %v", ErrInvalidKey, err)
	}
	if err := validateSegment(category); err != nil {
		return "", fmt.Errorf("%w: category: %v", ErrInvalidKey, err)
	}
	if fileName == "" {
		fileName = idgen.FileName(category)
	} else if !strings.HasSuffix(fileName, ".json") {
		fileName += ".json"
	}
	if err := validateSegment(fileName); err != nil {
		return "", fmt.Errorf("%w: fileName: %v", ErrInvalidKey, err)
	}

	record, err := toRecord(data)
	if err != nil {
		return "", err
	}

	now := s.now().UTC().Format(TimeFormat)
	record["tenantId"] = tenantID
	if created, ok := record["createdAt"].(string); !ok || created == "" {
		record["createdAt"] = now
	}
	record["updatedAt"] = now

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("сериализация записи: %w", err)
	}

	dir := filepath.Join(s.root, tenantID, category)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("создание каталога %s: %w", dir, err)
	}

	fullPath := filepath.Join(dir, fileName)
	if err := writeAtomic(fullPath, payload); err != nil {
		return "", err
	}

	sotWritesTotal.WithLabelValues(category).Inc()
	s.logger.Debug("Запись SOT сохранена",
		slog.String("tenant_id", tenantID),
		slog.String("category", category),
		slog.String("path", filepath.Join(rootDirName, tenantID, category, fileName)),
	)
	return fileName, nil
}

// Read возвращает все записи тенанта в категории, от новых к старым.
// Отсутствующий каталог — пустой список. Повреждённые файлы и записи
// с чужим tenantId пропускаются.
func (s *Store) Read(ctx context.Context, tenantID, category string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateSegment(tenantID); err != nil {
		return nil, fmt.Errorf("%w: tenantId: %v", ErrInvalidKey, err)
	}
	if err := validateSegment(category); err != nil {
		return nil, fmt.Errorf("%w: category: %v", ErrInvalidKey, err)
	}

	dir := filepath.Join(s.root, tenantID, category)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("чтение каталога %s: %w", dir, err)
	}

	type named struct {
		name string
		rec  Record
	}
	items := make([]named, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, ok := s.load(tenantID, category, e.Name())
		if !ok {
			continue
		}
		items = append(items, named{name: e.Name(), rec: rec})
	}

	sort.SliceStable(items, func(i, j int) bool {
		ti, okI := items[i].rec.CreatedAt()
		tj, okJ := items[j].rec.CreatedAt()
		switch {
		case okI && okJ && !ti.Equal(tj):
			return ti.After(tj)
		case okI != okJ:
			return okI
		default:
			return items[i].name > items[j].name
		}
	})

	result := make([]Record, len(items))
	for i, it := range items {
		result[i] = it.rec
	}
	return result, nil
}

// ReadOne возвращает одну запись по имени файла.
// Отсутствие файла — нормальная ситуация: (nil, false, nil).
func (s *Store) ReadOne(ctx context.Context, tenantID, category, fileName string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !strings.HasSuffix(fileName, ".json") {
		fileName += ".json"
	}
	for _, seg := range []string{tenantID, category, fileName} {
		if err := validateSegment(seg); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
	}

	fullPath := filepath.Join(s.root, tenantID, category, fileName)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("проверка файла %s: %w", fileName, err)
	}

	rec, ok := s.load(tenantID, category, fileName)
	if !ok {
		return nil, false, nil
	}
	return rec, true, nil
}

// Tenants возвращает идентификаторы тенантов, у которых есть каталог в хранилище.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога %s: %w", s.root, err)
	}
	var result []string
	for _, e := range entries {
		if e.IsDir() {
			result = append(result, e.Name())
		}
	}
	sort.Strings(result)
	return result, nil
}

// load читает и проверяет один файл. false — запись пропущена.
func (s *Store) load(tenantID, category, fileName string) (Record, bool) {
	fullPath := filepath.Join(s.root, tenantID, category, fileName)

	data, err := os.ReadFile(fullPath)
	if err != nil {
		sotSkippedTotal.WithLabelValues("malformed").Inc()
		s.logger.Warn("Не удалось прочитать запись SOT",
			slog.String("path", fullPath),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec == nil {
		sotSkippedTotal.WithLabelValues("malformed").Inc()
		msg := "не JSON-объект"
		if err != nil {
			msg = err.Error()
		}
		s.logger.Warn("Повреждённая запись SOT пропущена",
			slog.String("path", fullPath),
			slog.String("error", msg),
		)
		return nil, false
	}

	// Путь уже содержит tenantId, но запись с чужим tenantId внутри не отдаём.
	if rec.String("tenantId") != tenantID {
		sotSkippedTotal.WithLabelValues("tenant_mismatch").Inc()
		s.logger.Warn("Запись SOT с чужим tenantId отброшена",
			slog.String("path", fullPath),
			slog.String("requested_tenant", tenantID),
			slog.String("embedded_tenant", rec.String("tenantId")),
		)
		return nil, false
	}

	return rec, true
}

// writeAtomic записывает файл через temp → fsync → rename.
func writeAtomic(fullPath string, payload []byte) error {
	tmpPath := filepath.Join(filepath.Dir(fullPath), "."+filepath.Base(fullPath)+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// toRecord приводит произвольное значение к JSON-объекту.
func toRecord(data any) (Record, error) {
	if r, ok := data.(Record); ok {
		return r.Clone(), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("сериализация данных: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return nil, fmt.Errorf("%w: данные должны быть JSON-объектом", ErrInvalidKey)
	}
	return rec, nil
}

// validateSegment проверяет, что значение — один безопасный сегмент пути.
func validateSegment(s string) error {
	switch {
	case s == "":
		return errors.New("пустое значение")
	case s == "." || s == "..":
		return fmt.Errorf("недопустимое значение %q", s)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("значение %q содержит разделитель пути", s)
	case strings.HasPrefix(s, "."):
		return fmt.Errorf("значение %q начинается с точки", s)
	case len(s) > 200:
		return fmt.Errorf("значение длиннее 200 символов")
	}
	return nil
}
