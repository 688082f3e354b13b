// adminpanel.go — обработчики /api/admin/{tenantId}/*: восемь категорий
// данных admin-панели, embed-код и сводка дашборда.
// Тенант уже проверен TenantGuard и берётся из контекста.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/nextmonthlab/smartsite/internal/api/middleware"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
)

type embedCodeResponse struct {
	TenantID  string `json:"tenantId"`
	EmbedCode string `json:"embedCode"`
}

// createRecord разбирает тело в T и создаёт запись категории. 201 — создана.
func createRecord[T any](
	h *APIHandler, w http.ResponseWriter, r *http.Request, op string,
	create func(ctx context.Context, tenantID string, in T) (sotstore.Record, error),
) {
	var in T
	if !decodeJSON(w, r, &in, false) {
		return
	}
	rec, err := create(r.Context(), middleware.TenantFromContext(r.Context()), in)
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// listRecords возвращает записи категории, пустая категория — [].
func listRecords(
	h *APIHandler, w http.ResponseWriter, r *http.Request, op string,
	list func(ctx context.Context, tenantID string) ([]sotstore.Record, error),
) {
	recs, err := list(r.Context(), middleware.TenantFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}
	if recs == nil {
		recs = []sotstore.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ListInsightUsers — GET /api/admin/{tenantId}/insight-users.
func (h *APIHandler) ListInsightUsers(w http.ResponseWriter, r *http.Request) {
	listRecords(h, w, r, "insight_users_list", h.admin.ListInsightUsers)
}

// InviteInsightUser — POST /api/admin/{tenantId}/insight-users.
func (h *APIHandler) InviteInsightUser(w http.ResponseWriter, r *http.Request) {
	createRecord(h, w, r, "insight_users_create", h.admin.InviteInsightUser)
}

// ListInsights — GET /api/admin/{tenantId}/insights.
func (h *APIHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	listRecords(h, w, r, "insights_list", h.admin.ListInsights)
}

// CreateInsight — POST /api/admin/{tenantId}/insights.
func (h *APIHandler) CreateInsight(w http.ResponseWriter, r *http.Request) {
	createRecord(h, w, r, "insights_create", h.admin.CreateInsight)
}

// ListBlogPosts — GET /api/admin/{tenantId}/blog-posts.
func (h *APIHandler) ListBlogPosts(w http.ResponseWriter, r *http.Request) {
	listRecords(h, w, r, "blog_posts_list", h.admin.ListBlogPosts)
}

// CreateBlogPost — POST /api/admin/{tenantId}/blog-posts.
func (h *APIHandler) CreateBlogPost(w http.ResponseWriter, r *http.Request) {
	createRecord(h, w, r, "blog_posts_create", h.admin.CreateBlogPost)
}

// ListThemes — GET /api/admin/{tenantId}/themes.
func (h *APIHandler) ListThemes(w http.ResponseWriter, r *http.Request) {
	listRecords(h, w, r, "themes_list", h.admin.ListThemes)
}

// CreateTheme — POST /api/admin/{tenantId}/themes.
func (h *APIHandler) CreateTheme(w http.ResponseWriter, r *http.Request) {
	createRecord(h, w, r, "themes_create", h.admin.CreateTheme)
}

// ListInnovationIdeas — GET /api/admin/{tenantId}/innovation-ideas.
func (h *APIHandler) ListInnovationIdeas(w http.ResponseWriter, r *http.Request) {
	listRecords(h, w, r, "innovation_ideas_list", h.admin.ListInnovationIdeas)
}

// CreateInnovationIdea — POST /api/admin/{tenantId}/innovation-ideas.
func (h *APIHandler) CreateInnovationIdea(w http.ResponseWriter, r *http.Request) {
	createRecord(h, w, r, "innovation_ideas_create", h.admin.CreateInnovationIdea)
}

// ListAnalyticsEvents — GET /api/admin/{tenantId}/analytics-events.
func (h *APIHandler) ListAnalyticsEvents(w http.ResponseWriter, r *http.Request) {
	listRecords(h, w, r, "analytics_events_list", h.admin.ListAnalyticsEvents)
}

// LogAnalyticsEvent — POST /api/admin/{tenantId}/analytics-events.
func (h *APIHandler) LogAnalyticsEvent(w http.ResponseWriter, r *http.Request) {
	createRecord(h, w, r, "analytics_events_create", h.admin.LogAnalyticsEvent)
}

// ListAIEvents — GET /api/admin/{tenantId}/ai-events.
func (h *APIHandler) ListAIEvents(w http.ResponseWriter, r *http.Request) {
	listRecords(h, w, r, "ai_events_list", h.admin.ListAIEvents)
}

// LogAIEvent — POST /api/admin/{tenantId}/ai-events.
func (h *APIHandler) LogAIEvent(w http.ResponseWriter, r *http.Request) {
	createRecord(h, w, r, "ai_events_create", h.admin.LogAIEvent)
}

// ListTools — GET /api/admin/{tenantId}/tools.
func (h *APIHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	listRecords(h, w, r, "tools_list", h.admin.ListTools)
}

// CreateTool — POST /api/admin/{tenantId}/tools.
func (h *APIHandler) CreateTool(w http.ResponseWriter, r *http.Request) {
	createRecord(h, w, r, "tools_create", h.admin.CreateTool)
}

// GetEmbedCode — GET /api/admin/{tenantId}/embed-code?baseUrl=&features=a,b.
// Выдача кода фиксируется событием аналитики embed_code_generated.
func (h *APIHandler) GetEmbedCode(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantFromContext(r.Context())
	q := r.URL.Query()
	baseURL := strings.TrimSpace(q.Get("baseUrl"))

	var features []string
	if raw := q.Get("features"); raw != "" {
		features = strings.Split(raw, ",")
	}

	code := h.admin.GenerateEmbedCode(tenantID, baseURL, features)
	h.admin.RecordEmbedCodeGenerated(r.Context(), tenantID, baseURL, features, middleware.SubjectFromContext(r.Context()))

	writeJSON(w, http.StatusOK, embedCodeResponse{TenantID: tenantID, EmbedCode: code})
}

// GetDashboardSummary — GET /api/admin/{tenantId}/dashboard/summary.
func (h *APIHandler) GetDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.admin.GetDashboardSummary(r.Context(), middleware.TenantFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "dashboard_summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
