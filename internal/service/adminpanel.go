// adminpanel.go — данные admin-панели тенанта поверх SOT: восемь категорий
// записей, embed-код и сводка для дашборда.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextmonthlab/smartsite/internal/idgen"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
)

// AnalyticsSourceAdminPanel — источник событий, созданных admin-панелью.
const AnalyticsSourceAdminPanel = "admin_panel"

// fieldInviteToken — секрет приглашения в записи insight-users.
const fieldInviteToken = "inviteToken"

// DefaultEmbedBaseURL — базовый URL embed-скрипта по умолчанию.
const DefaultEmbedBaseURL = "https://smart.nextmonth.io"

// События аналитики admin-панели.
const (
	EventInsightUserInvited    = "insight_user_invited"
	EventInsightCreated        = "insight_created"
	EventBlogPostCreated       = "blog_post_created"
	EventThemeCreated          = "theme_created"
	EventInnovationIdeaCreated = "innovation_idea_created"
	EventToolCreated           = "tool_created"
	EventEmbedCodeGenerated    = "embed_code_generated"
)

// InsightUserInput — приглашение пользователя Insight-приложения.
type InsightUserInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
}

// InsightInput — новый инсайт.
type InsightInput struct {
	Content          string `json:"content" validate:"required,max=10000"`
	Type             string `json:"type" validate:"required,max=100"`
	SubmittedBy      string `json:"submittedBy" validate:"required,max=200"`
	InsightAppUserID string `json:"insightAppUserId,omitempty" validate:"max=200"`
}

// BlogPostInput — новая публикация блога.
type BlogPostInput struct {
	Title    string   `json:"title" validate:"required,max=300"`
	Content  string   `json:"content" validate:"required,max=100000"`
	Excerpt  string   `json:"excerpt,omitempty" validate:"max=1000"`
	Author   string   `json:"author" validate:"required,max=200"`
	Tags     []string `json:"tags,omitempty" validate:"max=50,dive,max=100"`
	Category string   `json:"category,omitempty" validate:"max=100"`
}

// ThemeInput — новая тема оформления.
type ThemeInput struct {
	Name           string `json:"name" validate:"required,max=200"`
	PrimaryColor   string `json:"primaryColor" validate:"required,max=50"`
	SecondaryColor string `json:"secondaryColor" validate:"required,max=50"`
	FontFamily     string `json:"fontFamily" validate:"required,max=200"`
	LogoURL        string `json:"logoUrl,omitempty" validate:"max=2048"`
	CustomCSS      string `json:"customCss,omitempty" validate:"max=100000"`
}

// InnovationIdeaInput — новая идея.
type InnovationIdeaInput struct {
	Title           string `json:"title" validate:"required,max=300"`
	Description     string `json:"description" validate:"required,max=10000"`
	Category        string `json:"category" validate:"required,max=100"`
	Priority        string `json:"priority" validate:"omitempty,oneof=low medium high"`
	SubmittedBy     string `json:"submittedBy" validate:"required,max=200"`
	EstimatedImpact string `json:"estimatedImpact,omitempty" validate:"max=1000"`
}

// AnalyticsEventInput — событие аналитики.
type AnalyticsEventInput struct {
	EventType string         `json:"eventType" validate:"required,max=100"`
	EventData map[string]any `json:"eventData,omitempty"`
	Source    string         `json:"source,omitempty" validate:"max=100"`
	UserID    string         `json:"userId,omitempty" validate:"max=200"`
	SessionID string         `json:"sessionId,omitempty" validate:"max=200"`
}

// AIEventInput — запись журнала AI-вызовов.
type AIEventInput struct {
	Model        string  `json:"model" validate:"required,max=100"`
	Endpoint     string  `json:"endpoint" validate:"required,max=500"`
	TokensUsed   int     `json:"tokensUsed" validate:"min=0"`
	Success      bool    `json:"success"`
	ResponseTime float64 `json:"responseTime" validate:"min=0"`
	UserID       string  `json:"userId,omitempty" validate:"max=200"`
	ErrorMessage string  `json:"errorMessage,omitempty" validate:"max=2000"`
}

// ToolInput — новый инструмент тенанта.
type ToolInput struct {
	Name          string         `json:"name" validate:"required,max=200"`
	Description   string         `json:"description" validate:"required,max=2000"`
	Category      string         `json:"category" validate:"required,max=100"`
	Version       string         `json:"version" validate:"required,max=50"`
	Configuration map[string]any `json:"configuration,omitempty"`
	CreatedBy     string         `json:"createdBy" validate:"required,max=200"`
}

// AdminPanelService — сервис данных admin-панели. Все операции
// выполняются в пределах одного явно переданного тенанта.
type AdminPanelService struct {
	store        *sotstore.Store
	embedBaseURL string
	logger       *slog.Logger
}

// NewAdminPanelService создаёт сервис admin-панели.
func NewAdminPanelService(store *sotstore.Store, embedBaseURL string, logger *slog.Logger) *AdminPanelService {
	if embedBaseURL == "" {
		embedBaseURL = DefaultEmbedBaseURL
	}
	return &AdminPanelService{
		store:        store,
		embedBaseURL: strings.TrimRight(embedBaseURL, "/"),
		logger:       logger.With(slog.String("component", "admin_panel_service")),
	}
}

// InviteInsightUser приглашает пользователя Insight-приложения.
func (s *AdminPanelService) InviteInsightUser(ctx context.Context, tenantID string, in InsightUserInput) (sotstore.Record, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	token, err := idgen.Token(32)
	if err != nil {
		return nil, err
	}

	rec := sotstore.Record{
		"id":           idgen.New("insight_" + tenantPrefix(tenantID)),
		"firstName":    in.FirstName,
		"lastName":     in.LastName,
		"email":        in.Email,
		"inviteToken":  token,
		"invitedAt":    nowUTC(),
		"insightCount": 0,
		"isActive":     true,
	}
	return s.create(ctx, tenantID, sotstore.CategoryInsightUsers, rec, EventInsightUserInvited, map[string]any{
		"email":         in.Email,
		"insightUserId": rec["id"],
	})
}

// ListInsightUsers возвращает пользователей Insight-приложения тенанта.
// Токен приглашения отдаётся только в ответе InviteInsightUser.
func (s *AdminPanelService) ListInsightUsers(ctx context.Context, tenantID string) ([]sotstore.Record, error) {
	recs, err := s.list(ctx, tenantID, sotstore.CategoryInsightUsers)
	if err != nil {
		return nil, err
	}
	out := make([]sotstore.Record, len(recs))
	for i, rec := range recs {
		c := rec.Clone()
		delete(c, fieldInviteToken)
		out[i] = c
	}
	return out, nil
}

// CreateInsight создаёт инсайт в статусе pending.
func (s *AdminPanelService) CreateInsight(ctx context.Context, tenantID string, in InsightInput) (sotstore.Record, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	rec := sotstore.Record{
		"id":          idgen.New("insight"),
		"content":     in.Content,
		"type":        in.Type,
		"submittedBy": in.SubmittedBy,
		"submittedAt": nowUTC(),
		"status":      "pending",
	}
	if in.InsightAppUserID != "" {
		rec["insightAppUserId"] = in.InsightAppUserID
	}
	return s.create(ctx, tenantID, sotstore.CategoryInsights, rec, EventInsightCreated, map[string]any{
		"insightId": rec["id"],
		"type":      in.Type,
	})
}

// ListInsights возвращает инсайты тенанта.
func (s *AdminPanelService) ListInsights(ctx context.Context, tenantID string) ([]sotstore.Record, error) {
	return s.list(ctx, tenantID, sotstore.CategoryInsights)
}

// CreateBlogPost создаёт черновик публикации.
func (s *AdminPanelService) CreateBlogPost(ctx context.Context, tenantID string, in BlogPostInput) (sotstore.Record, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	rec := sotstore.Record{
		"id":       idgen.New("post"),
		"title":    in.Title,
		"content":  in.Content,
		"excerpt":  in.Excerpt,
		"author":   in.Author,
		"status":   "draft",
		"tags":     tags,
		"category": in.Category,
	}
	return s.create(ctx, tenantID, sotstore.CategoryBlogPosts, rec, EventBlogPostCreated, map[string]any{
		"postId":   rec["id"],
		"title":    in.Title,
		"category": in.Category,
	})
}

// ListBlogPosts возвращает публикации тенанта.
func (s *AdminPanelService) ListBlogPosts(ctx context.Context, tenantID string) ([]sotstore.Record, error) {
	return s.list(ctx, tenantID, sotstore.CategoryBlogPosts)
}

// CreateTheme создаёт неактивную тему.
func (s *AdminPanelService) CreateTheme(ctx context.Context, tenantID string, in ThemeInput) (sotstore.Record, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	rec := sotstore.Record{
		"id":             idgen.New("theme"),
		"name":           in.Name,
		"primaryColor":   in.PrimaryColor,
		"secondaryColor": in.SecondaryColor,
		"fontFamily":     in.FontFamily,
		"isActive":       false,
	}
	if in.LogoURL != "" {
		rec["logoUrl"] = in.LogoURL
	}
	if in.CustomCSS != "" {
		rec["customCss"] = in.CustomCSS
	}
	return s.create(ctx, tenantID, sotstore.CategoryThemes, rec, EventThemeCreated, map[string]any{
		"themeId": rec["id"],
		"name":    in.Name,
	})
}

// ListThemes возвращает темы тенанта.
func (s *AdminPanelService) ListThemes(ctx context.Context, tenantID string) ([]sotstore.Record, error) {
	return s.list(ctx, tenantID, sotstore.CategoryThemes)
}

// CreateInnovationIdea создаёт идею в статусе submitted.
// Приоритет по умолчанию — medium.
func (s *AdminPanelService) CreateInnovationIdea(ctx context.Context, tenantID string, in InnovationIdeaInput) (sotstore.Record, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = "medium"
	}
	rec := sotstore.Record{
		"id":              idgen.New("idea"),
		"title":           in.Title,
		"description":     in.Description,
		"category":        in.Category,
		"priority":        priority,
		"status":          "submitted",
		"submittedBy":     in.SubmittedBy,
		"estimatedImpact": in.EstimatedImpact,
	}
	return s.create(ctx, tenantID, sotstore.CategoryInnovationIdeas, rec, EventInnovationIdeaCreated, map[string]any{
		"ideaId":   rec["id"],
		"title":    in.Title,
		"category": in.Category,
		"priority": priority,
	})
}

// ListInnovationIdeas возвращает идеи тенанта.
func (s *AdminPanelService) ListInnovationIdeas(ctx context.Context, tenantID string) ([]sotstore.Record, error) {
	return s.list(ctx, tenantID, sotstore.CategoryInnovationIdeas)
}

// LogAnalyticsEvent записывает событие аналитики.
func (s *AdminPanelService) LogAnalyticsEvent(ctx context.Context, tenantID string, in AnalyticsEventInput) (sotstore.Record, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	source := in.Source
	if source == "" {
		source = AnalyticsSourceAdminPanel
	}
	eventData := in.EventData
	if eventData == nil {
		eventData = map[string]any{}
	}
	rec := sotstore.Record{
		"id":        idgen.New("analytics"),
		"eventType": in.EventType,
		"eventData": eventData,
		"source":    source,
		"timestamp": nowUTC(),
	}
	if in.UserID != "" {
		rec["userId"] = in.UserID
	}
	if in.SessionID != "" {
		rec["sessionId"] = in.SessionID
	}
	return s.put(ctx, tenantID, sotstore.CategoryAnalyticsEvents, rec)
}

// ListAnalyticsEvents возвращает события аналитики тенанта.
func (s *AdminPanelService) ListAnalyticsEvents(ctx context.Context, tenantID string) ([]sotstore.Record, error) {
	return s.list(ctx, tenantID, sotstore.CategoryAnalyticsEvents)
}

// LogAIEvent записывает AI-вызов.
func (s *AdminPanelService) LogAIEvent(ctx context.Context, tenantID string, in AIEventInput) (sotstore.Record, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	rec := sotstore.Record{
		"id":           idgen.New("ai"),
		"model":        in.Model,
		"endpoint":     in.Endpoint,
		"tokensUsed":   in.TokensUsed,
		"success":      in.Success,
		"responseTime": in.ResponseTime,
	}
	if in.UserID != "" {
		rec["userId"] = in.UserID
	}
	if in.ErrorMessage != "" {
		rec["errorMessage"] = in.ErrorMessage
	}
	return s.create(ctx, tenantID, sotstore.CategoryAIEvents, rec, "", nil)
}

// ListAIEvents возвращает журнал AI-вызовов тенанта.
func (s *AdminPanelService) ListAIEvents(ctx context.Context, tenantID string) ([]sotstore.Record, error) {
	return s.list(ctx, tenantID, sotstore.CategoryAIEvents)
}

// CreateTool создаёт включённый инструмент.
func (s *AdminPanelService) CreateTool(ctx context.Context, tenantID string, in ToolInput) (sotstore.Record, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	config := in.Configuration
	if config == nil {
		config = map[string]any{}
	}
	rec := sotstore.Record{
		"id":            idgen.New("tool"),
		"name":          in.Name,
		"description":   in.Description,
		"category":      in.Category,
		"version":       in.Version,
		"isEnabled":     true,
		"configuration": config,
		"createdBy":     in.CreatedBy,
	}
	return s.create(ctx, tenantID, sotstore.CategoryTools, rec, EventToolCreated, map[string]any{
		"toolId":   rec["id"],
		"name":     in.Name,
		"category": in.Category,
	})
}

// ListTools возвращает инструменты тенанта.
func (s *AdminPanelService) ListTools(ctx context.Context, tenantID string) ([]sotstore.Record, error) {
	return s.list(ctx, tenantID, sotstore.CategoryTools)
}

// GenerateEmbedCode возвращает тег script для подключения SmartSite на сайт тенанта.
// Пустой baseURL — используется базовый URL сервиса.
func (s *AdminPanelService) GenerateEmbedCode(tenantID, baseURL string, features []string) string {
	if baseURL == "" {
		baseURL = s.embedBaseURL
	}
	return EmbedCode(tenantID, baseURL, features)
}

// EmbedCode формирует тег script embed-скрипта.
func EmbedCode(tenantID, baseURL string, features []string) string {
	if baseURL == "" {
		baseURL = DefaultEmbedBaseURL
	}
	src := strings.TrimRight(baseURL, "/") + "/embed.js?tenantId=" + url.QueryEscape(tenantID)

	var clean []string
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			clean = append(clean, f)
		}
	}
	if len(clean) > 0 {
		src += "&features=" + url.QueryEscape(strings.Join(clean, ","))
	}
	return fmt.Sprintf(`<script src="%s" async></script>`, src)
}

// RecordEmbedCodeGenerated фиксирует выдачу embed-кода в аналитике.
func (s *AdminPanelService) RecordEmbedCodeGenerated(ctx context.Context, tenantID, baseURL string, features []string, userID string) {
	s.emit(ctx, tenantID, EventEmbedCodeGenerated, map[string]any{
		"baseUrl":  baseURL,
		"features": features,
	}, userID)
}

// DashboardSummary — сводка admin-панели тенанта.
type DashboardSummary struct {
	TenantID string         `json:"tenantId"`
	Summary  DashboardStats `json:"summary"`
}

// DashboardStats — счётчики по категориям.
type DashboardStats struct {
	Insights struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
	} `json:"insights"`
	BlogPosts struct {
		Total     int `json:"total"`
		Published int `json:"published"`
	} `json:"blogPosts"`
	Themes struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"themes"`
	InnovationIdeas struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
	} `json:"innovationIdeas"`
	AnalyticsEvents struct {
		Total      int `json:"total"`
		TodayCount int `json:"todayCount"`
	} `json:"analyticsEvents"`
	AIEvents struct {
		Total       int     `json:"total"`
		SuccessRate float64 `json:"successRate"`
	} `json:"aiEvents"`
	Tools struct {
		Total   int `json:"total"`
		Enabled int `json:"enabled"`
	} `json:"tools"`
	InsightUsers struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"insightUsers"`
}

// dashboardCategories — порядок загрузки категорий для сводки.
var dashboardCategories = []string{
	sotstore.CategoryInsights,
	sotstore.CategoryBlogPosts,
	sotstore.CategoryThemes,
	sotstore.CategoryInnovationIdeas,
	sotstore.CategoryAnalyticsEvents,
	sotstore.CategoryAIEvents,
	sotstore.CategoryTools,
	sotstore.CategoryInsightUsers,
}

// GetDashboardSummary параллельно читает все восемь категорий и сводит счётчики.
func (s *AdminPanelService) GetDashboardSummary(ctx context.Context, tenantID string) (*DashboardSummary, error) {
	return Summarize(ctx, s.store, tenantID, time.Now())
}

// Summarize строит сводку по SOT-дереву. now задаёт «сегодня» (дата UTC).
func Summarize(ctx context.Context, store *sotstore.Store, tenantID string, now time.Time) (*DashboardSummary, error) {
	results := make([][]sotstore.Record, len(dashboardCategories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range dashboardCategories {
		g.Go(func() error {
			recs, err := store.Read(gctx, tenantID, category)
			if err != nil {
				return fmt.Errorf("чтение %s: %w", category, err)
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var st DashboardStats
	insights, posts, themes, ideas := results[0], results[1], results[2], results[3]
	analytics, aiEvents, tools, users := results[4], results[5], results[6], results[7]

	st.Insights.Total = len(insights)
	st.Insights.Pending = countWhere(insights, func(r sotstore.Record) bool { return r.String("status") == "pending" })

	st.BlogPosts.Total = len(posts)
	st.BlogPosts.Published = countWhere(posts, func(r sotstore.Record) bool { return r.String("status") == "published" })

	st.Themes.Total = len(themes)
	st.Themes.Active = countWhere(themes, func(r sotstore.Record) bool { return r.Bool("isActive") })

	st.InnovationIdeas.Total = len(ideas)
	st.InnovationIdeas.Pending = countWhere(ideas, func(r sotstore.Record) bool { return r.String("status") == "submitted" })

	today := now.UTC().Format("2006-01-02")
	st.AnalyticsEvents.Total = len(analytics)
	st.AnalyticsEvents.TodayCount = countWhere(analytics, func(r sotstore.Record) bool {
		return strings.HasPrefix(r.String("timestamp"), today)
	})

	st.AIEvents.Total = len(aiEvents)
	if len(aiEvents) > 0 {
		ok := countWhere(aiEvents, func(r sotstore.Record) bool { return r.Bool("success") })
		st.AIEvents.SuccessRate = float64(ok) / float64(len(aiEvents))
	}

	st.Tools.Total = len(tools)
	st.Tools.Enabled = countWhere(tools, func(r sotstore.Record) bool { return r.Bool("isEnabled") })

	st.InsightUsers.Total = len(users)
	st.InsightUsers.Active = countWhere(users, func(r sotstore.Record) bool { return r.Bool("isActive") })

	return &DashboardSummary{TenantID: tenantID, Summary: st}, nil
}

// create пишет запись категории и, если задано событие, событие аналитики.
// Сбой записи события не отменяет созданную запись и только логируется.
func (s *AdminPanelService) create(
	ctx context.Context,
	tenantID, category string,
	rec sotstore.Record,
	event string,
	eventData map[string]any,
) (sotstore.Record, error) {
	stored, err := s.put(ctx, tenantID, category, rec)
	if err != nil {
		return nil, err
	}

	if event != "" {
		s.emit(ctx, tenantID, event, eventData, "")
	}

	s.logger.Debug("Запись admin-панели создана",
		slog.String("tenant_id", tenantID),
		slog.String("category", category),
		slog.Any("id", rec["id"]),
	)
	return stored, nil
}

// put пишет запись и возвращает её в сохранённом виде
// (с tenantId, createdAt и updatedAt).
func (s *AdminPanelService) put(ctx context.Context, tenantID, category string, rec sotstore.Record) (sotstore.Record, error) {
	fileName, err := s.store.Write(ctx, tenantID, category, rec, "")
	if err != nil {
		return nil, s.storeErr(category, err)
	}
	stored, ok, err := s.store.ReadOne(ctx, tenantID, category, fileName)
	if err != nil || !ok {
		return nil, fmt.Errorf("SOT %s: запись %s не прочитана после сохранения: %v", category, fileName, err)
	}
	return stored, nil
}

func (s *AdminPanelService) emit(ctx context.Context, tenantID, event string, data map[string]any, userID string) {
	_, err := s.LogAnalyticsEvent(ctx, tenantID, AnalyticsEventInput{
		EventType: event,
		EventData: data,
		Source:    AnalyticsSourceAdminPanel,
		UserID:    userID,
	})
	if err != nil {
		s.logger.Warn("Событие аналитики не записано",
			slog.String("tenant_id", tenantID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AdminPanelService) list(ctx context.Context, tenantID, category string) ([]sotstore.Record, error) {
	recs, err := s.store.Read(ctx, tenantID, category)
	if err != nil {
		return nil, s.storeErr(category, err)
	}
	if recs == nil {
		recs = []sotstore.Record{}
	}
	return recs, nil
}

// storeErr переводит ошибку недопустимого ключа SOT в ErrValidation.
func (s *AdminPanelService) storeErr(category string, err error) error {
	if errors.Is(err, sotstore.ErrInvalidKey) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return fmt.Errorf("SOT %s: %w", category, err)
}

func countWhere(recs []sotstore.Record, pred func(sotstore.Record) bool) int {
	n := 0
	for _, r := range recs {
		if pred(r) {
			n++
		}
	}
	return n
}

// tenantPrefix — первые 8 символов идентификатора тенанта.
func tenantPrefix(tenantID string) string {
	if len(tenantID) > 8 {
		return tenantID[:8]
	}
	return tenantID
}
