// profile_sync.go — периодическая отправка профилей клиентов в SOT-эндпоинт.
//
// ProfileSyncService запускает фоновую горутину с ticker (SS_PROFILE_SYNC_INTERVAL).
// На каждом шаге для каждого активного тенанта собирается ClientProfile
// и отправляется через шлюз. Сбой одного тенанта не прерывает остальных.
//
// Prometheus-метрики:
//   - ss_profile_sync_duration_seconds — длительность одного прохода
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nextmonthlab/smartsite/internal/domain/blueprint"
	"github.com/nextmonthlab/smartsite/internal/domain/model"
	"github.com/nextmonthlab/smartsite/internal/sotstore"
	"github.com/nextmonthlab/smartsite/internal/syncgw"
)

var profileSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "ss_profile_sync_duration_seconds",
	Help:    "Длительность синхронизации профилей клиентов",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s … ~51s
})

// ProfilePusher — получатель профилей клиентов.
type ProfilePusher interface {
	PushProfile(ctx context.Context, profile any) syncgw.Result
}

// ClientProfile — профиль клиента для SOT.
type ClientProfile struct {
	ClientInformation struct {
		BusinessID    string `json:"businessId"`
		BusinessName  string `json:"businessName"`
		Industry      string `json:"industry,omitempty"`
		WebsiteURL    string `json:"websiteUrl,omitempty"`
		Plan          string `json:"plan"`
		DateOnboarded string `json:"dateOnboarded"`
	} `json:"clientInformation"`
	PlatformBlueprintInformation struct {
		CurrentBlueprintVersion string   `json:"currentBlueprintVersion"`
		ToolsInstalled          []string `json:"toolsInstalled"`
		ModulesExported         int      `json:"modulesExported"`
		LastDeploymentDate      string   `json:"lastDeploymentDate,omitempty"`
	} `json:"platformBlueprintInformation"`
	ActivityTracking struct {
		LastActivityTimestamp string `json:"lastActivityTimestamp"`
		AccountStatus         string `json:"accountStatus"`
	} `json:"activityTracking"`
	SystemMetadata struct {
		InstanceID string `json:"instanceId"`
		TenantID   string `json:"tenantId"`
		IsTemplate bool   `json:"isTemplate"`
		CreatedAt  string `json:"createdAt"`
		UpdatedAt  string `json:"updatedAt"`
	} `json:"systemMetadata"`
}

// ProfileSyncResult — итог одного прохода синхронизации.
type ProfileSyncResult struct {
	Total  int `json:"total"`
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`
}

// ProfileSyncService — фоновый сервис отправки профилей клиентов.
type ProfileSyncService struct {
	identity   *IdentityService
	registry   *RegistryService
	store      *sotstore.Store
	pusher     ProfilePusher
	instanceID string
	interval   time.Duration
	logger     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProfileSyncService создаёт сервис синхронизации профилей.
func NewProfileSyncService(
	identity *IdentityService,
	registry *RegistryService,
	store *sotstore.Store,
	pusher ProfilePusher,
	instanceID string,
	interval time.Duration,
	logger *slog.Logger,
) *ProfileSyncService {
	return &ProfileSyncService{
		identity:   identity,
		registry:   registry,
		store:      store,
		pusher:     pusher,
		instanceID: instanceID,
		interval:   interval,
		logger:     logger.With(slog.String("component", "profile_sync")),
	}
}

// Start запускает фоновую горутину с периодической синхронизацией.
func (s *ProfileSyncService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая синхронизация профилей запущена",
			slog.String("interval", s.interval.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая синхронизация профилей остановлена")
				return
			case <-ticker.C:
				result, err := s.SyncNow(ctx)
				if err != nil {
					s.logger.Error("Ошибка синхронизации профилей",
						slog.String("error", err.Error()),
					)
					continue
				}
				s.logger.Info("Синхронизация профилей завершена",
					slog.Int("total", result.Total),
					slog.Int("pushed", result.Pushed),
					slog.Int("failed", result.Failed),
				)
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *ProfileSyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// SyncNow отправляет профили всех активных тенантов.
func (s *ProfileSyncService) SyncNow(ctx context.Context) (*ProfileSyncResult, error) {
	start := time.Now()
	defer func() {
		profileSyncDuration.Observe(time.Since(start).Seconds())
	}()

	active := model.TenantStatusActive
	tenants, err := s.identity.ListTenants(ctx, &active)
	if err != nil {
		return nil, fmt.Errorf("получение активных тенантов: %w", err)
	}

	result := &ProfileSyncResult{Total: len(tenants)}
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		profile, err := s.BuildProfile(ctx, t)
		if err != nil {
			result.Failed++
			s.logger.Warn("Профиль не собран",
				slog.String("tenant_id", t.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		res := s.pusher.PushProfile(ctx, profile)
		if !res.Succeeded {
			result.Failed++
			s.logger.Warn("Профиль не отправлен",
				slog.String("tenant_id", t.ID),
				slog.String("reason", res.Reason),
			)
			continue
		}
		result.Pushed++
	}
	return result, nil
}

// BuildProfile собирает профиль клиента тенанта.
func (s *ProfileSyncService) BuildProfile(ctx context.Context, t *model.Tenant) (*ClientProfile, error) {
	var p ClientProfile
	now := nowUTC()

	p.ClientInformation.BusinessID = t.ID
	p.ClientInformation.BusinessName = t.Name
	p.ClientInformation.Industry = t.Industry
	p.ClientInformation.WebsiteURL = t.Domain
	p.ClientInformation.Plan = t.Plan
	p.ClientInformation.DateOnboarded = t.CreatedAt.UTC().Format(sotstore.TimeFormat)

	if bp, err := s.identity.GetBusinessProfile(ctx, t.ID); err == nil {
		p.ClientInformation.BusinessName = bp.BusinessName
		if bp.Industry != "" {
			p.ClientInformation.Industry = bp.Industry
		}
	}

	reg, err := s.registry.FindRegistry(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	p.PlatformBlueprintInformation.CurrentBlueprintVersion = blueprint.VersionCurrent
	if reg != nil {
		p.PlatformBlueprintInformation.CurrentBlueprintVersion = reg.BlueprintVersion
		p.PlatformBlueprintInformation.ModulesExported = len(reg.ExportableModules)
		if reg.LastExported != nil {
			p.PlatformBlueprintInformation.LastDeploymentDate = reg.LastExported.UTC().Format(sotstore.TimeFormat)
		}
	}

	tools, err := s.store.Read(ctx, t.ID, sotstore.CategoryTools)
	if err != nil {
		return nil, fmt.Errorf("чтение инструментов: %w", err)
	}
	installed := make([]string, 0, len(tools))
	for _, tool := range tools {
		if tool.Bool("isEnabled") {
			installed = append(installed, tool.String("id"))
		}
	}
	p.PlatformBlueprintInformation.ToolsInstalled = installed

	p.ActivityTracking.LastActivityTimestamp = now
	p.ActivityTracking.AccountStatus = t.Status

	p.SystemMetadata.InstanceID = s.instanceID
	p.SystemMetadata.TenantID = t.ID
	p.SystemMetadata.CreatedAt = t.CreatedAt.UTC().Format(sotstore.TimeFormat)
	p.SystemMetadata.UpdatedAt = now

	return &p, nil
}
