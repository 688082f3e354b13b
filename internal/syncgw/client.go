// Пакет syncgw — шлюз синхронизации с внешними системами Guardian, Vault
// и endpoint профилей SOT.
//
// Каждый вызов — один POST без повторов с явным таймаутом. Успехом считается
// только ответ 200. Ошибки не возвращаются вызывающему: они логируются
// и превращаются в Result, чтобы основной сценарий продолжал работу.
package syncgw

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Цели вызовов (метка target в метриках).
const (
	TargetGuardian = "guardian"
	TargetVault    = "vault"
	TargetSOT      = "sot"
)

// ReasonNotConfigured — причина для вызовов без настроенного базового URL.
const ReasonNotConfigured = "not configured"

// DefaultTimeout — таймаут одного вызова по умолчанию.
const DefaultTimeout = 5 * time.Second

// maxReasonBody — сколько байт тела ответа попадает в Reason.
const maxReasonBody = 256

var (
	syncCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_sync_calls_total",
		Help: "Количество вызовов внешних систем синхронизации",
	}, []string{"target", "outcome"}) // outcome: success, failure, skipped

	syncCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ss_sync_call_duration_seconds",
		Help:    "Длительность вызовов внешних систем синхронизации",
		Buckets: prometheus.DefBuckets,
	}, []string{"target"})
)

// Result — итог одного вызова внешней системы.
type Result struct {
	// Attempted — запрос действительно отправлялся.
	Attempted bool `json:"attempted"`
	// Succeeded — получен ответ 200.
	Succeeded bool `json:"succeeded"`
	// Reason — причина неуспеха (пусто при успехе).
	Reason string `json:"reason,omitempty"`
	// StatusCode — HTTP-статус ответа (0, если ответа не было).
	StatusCode int `json:"statusCode,omitempty"`
}

// Config — параметры шлюза.
type Config struct {
	GuardianURL string
	VaultURL    string
	SOTSyncURL  string
	Timeout     time.Duration
	// CACertPath — CA-сертификат для TLS (пустая строка — системный пул).
	CACertPath string
}

// Client — HTTP-клиент шлюза синхронизации.
type Client struct {
	httpClient  *http.Client
	guardianURL string
	vaultURL    string
	sotSyncURL  string
	logger      *slog.Logger
	now         func() time.Time
}

// New создаёт клиент шлюза.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	if cfg.CACertPath != "" {
		tlsConfig, err := buildTLSConfig(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата шлюза: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат шлюза добавлен в пул доверия",
			slog.String("ca_cert", cfg.CACertPath),
		)
	}

	return &Client{
		httpClient:  httpClient,
		guardianURL: normalizeURL(cfg.GuardianURL),
		vaultURL:    normalizeURL(cfg.VaultURL),
		sotSyncURL:  normalizeURL(cfg.SOTSyncURL),
		logger:      logger.With(slog.String("component", "sync_gateway")),
		now:         time.Now,
	}, nil
}

// GuardianConfigured сообщает, задан ли URL Guardian.
func (c *Client) GuardianConfigured() bool { return c.guardianURL != "" }

// VaultConfigured сообщает, задан ли URL Vault.
func (c *Client) VaultConfigured() bool { return c.vaultURL != "" }

// SOTConfigured сообщает, задан ли endpoint синхронизации профилей.
func (c *Client) SOTConfigured() bool { return c.sotSyncURL != "" }

// guardianEvent — тело запроса POST {guardian}/log-export.
type guardianEvent struct {
	ClientID  string `json:"clientId"`
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NotifyGuardian отправляет событие экспорта в журнал Guardian.
func (c *Client) NotifyGuardian(ctx context.Context, clientID, event string, data any) Result {
	if c.guardianURL == "" {
		return c.skip(TargetGuardian, "GUARDIAN_API_URL не задан, уведомление Guardian пропущено")
	}
	body := guardianEvent{
		ClientID:  clientID,
		Event:     event,
		Timestamp: c.now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
	return c.post(ctx, TargetGuardian, c.guardianURL+"/log-export", body)
}

// SendToVault отправляет payload в Vault на указанный endpoint (например, /store-blueprint).
func (c *Client) SendToVault(ctx context.Context, endpoint string, payload any) Result {
	if c.vaultURL == "" {
		return c.skip(TargetVault, "VAULT_API_URL не задан, синхронизация с Vault пропущена")
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.post(ctx, TargetVault, c.vaultURL+endpoint, payload)
}

// PushProfile отправляет профиль клиента на endpoint синхронизации SOT.
func (c *Client) PushProfile(ctx context.Context, profile any) Result {
	if c.sotSyncURL == "" {
		return c.skip(TargetSOT, "SS_SOT_SYNC_URL не задан, синхронизация профиля пропущена")
	}
	return c.post(ctx, TargetSOT, c.sotSyncURL, profile)
}

// skip фиксирует пропущенный вызов.
func (c *Client) skip(target, msg string) Result {
	syncCallsTotal.WithLabelValues(target, "skipped").Inc()
	c.logger.Warn(msg, slog.String("target", target))
	return Result{Attempted: false, Reason: ReasonNotConfigured}
}

// post выполняет один JSON POST и превращает исход в Result.
func (c *Client) post(ctx context.Context, target, reqURL string, payload any) Result {
	start := time.Now()
	res := c.doPost(ctx, reqURL, payload)
	syncCallDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())

	if res.Succeeded {
		syncCallsTotal.WithLabelValues(target, "success").Inc()
		c.logger.Info("Синхронизация выполнена",
			slog.String("target", target),
			slog.String("url", reqURL),
		)
	} else {
		syncCallsTotal.WithLabelValues(target, "failure").Inc()
		c.logger.Warn("Синхронизация не удалась",
			slog.String("target", target),
			slog.String("url", reqURL),
			slog.Int("status", res.StatusCode),
			slog.String("reason", res.Reason),
		)
	}
	return res
}

func (c *Client) doPost(ctx context.Context, reqURL string, payload any) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Attempted: false, Reason: fmt.Sprintf("сериализация запроса: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return Result{Attempted: false, Reason: fmt.Sprintf("создание запроса: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Attempted: true, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxReasonBody))
		reason := fmt.Sprintf("статус %d", resp.StatusCode)
		if s := strings.TrimSpace(string(respBody)); s != "" {
			reason += ": " + s
		}
		return Result{Attempted: true, StatusCode: resp.StatusCode, Reason: reason}
	}

	// Тело ответа не используется, но дочитывается для переиспользования соединения.
	_, _ = io.Copy(io.Discard, resp.Body)
	return Result{Attempted: true, Succeeded: true, StatusCode: resp.StatusCode}
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("в файле %s нет PEM-сертификатов", caCertPath)
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}
