package blueprint

import "github.com/nextmonthlab/smartsite/internal/domain/model"

// Версии Blueprint, которыми оперируют именованные экспорты.
const (
	VersionCurrent  = "1.1.1"
	VersionPrevious = "1.1.0"
)

// AnnouncementTag — тег регистрации announcement-модулей в журнале аудита.
const AnnouncementTag = "blueprint_upgrade_announcement"

// announcementFamily — семейство модулей, к которому относятся объявления.
const announcementFamily = "Companion Console, Cloudinary Upload"

// AnnouncementModuleIDs — модули объявлений об обновлении Blueprint.
var AnnouncementModuleIDs = []string{
	"announcement/UpgradeAnnouncement",
	"announcement/UpgradeBanner",
	"announcement/OnboardingUpgradeAlert",
}

// AnnouncementModules возвращает описания announcement-модулей для каталога.
func AnnouncementModules() []model.Module {
	meta := func(extra map[string]any) map[string]any {
		m := map[string]any{
			"module_type":        "announcement",
			"family":             announcementFamily,
			"optional":           true,
			"enabled_by_default": true,
			"tag":                AnnouncementTag,
		}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	return []model.Module{
		{
			ID:          "announcement/UpgradeAnnouncement",
			Name:        "Upgrade Announcement",
			Description: "Модальное объявление о выходе Blueprint " + VersionCurrent,
			Category:    model.ModuleCategoryCore,
			Status:      model.ModuleStatusActive,
			Path:        "/modules/announcement/UpgradeAnnouncement",
			Metadata:    meta(nil),
		},
		{
			ID:          "announcement/UpgradeBanner",
			Name:        "Upgrade Banner",
			Description: "Баннер об обновлении в шапке admin-панели",
			Category:    model.ModuleCategoryCore,
			Status:      model.ModuleStatusActive,
			Path:        "/modules/announcement/UpgradeBanner",
			Metadata:    meta(map[string]any{"persistence": DefaultPersistence}),
		},
		{
			ID:          "announcement/OnboardingUpgradeAlert",
			Name:        "Onboarding Upgrade Alert",
			Description: "Уведомление об обновлении в мастере онбординга",
			Category:    model.ModuleCategoryCore,
			Status:      model.ModuleStatusActive,
			Path:        "/modules/announcement/OnboardingUpgradeAlert",
			Metadata:    meta(nil),
		},
	}
}
