package app

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/pkg/common"
)

type settingsSchema struct {
	Key         string
	Default     string
	Description string
}

var defaultSettings = []settingsSchema{
	{Key: "system.username", Default: "admin", Description: "Console login username"},
	{Key: "system.password", Default: "wappconsole", Description: "Console login password"},
	{Key: "messaging.signature", Default: "", Description: "Signature appended to outbound messages"},
	{Key: "messaging.broadcast_pool_size", Default: "8", Description: "Broadcast worker pool size"},
	{Key: "messaging.retention_days", Default: "365", Description: "Days to keep sent broadcasts"},
}

// checkSettings initializes missing settings rows with their defaults.
func (a *Application) checkSettings() {
	for sortid, schema := range defaultSettings {
		parts := strings.SplitN(schema.Key, ".", 2)
		if len(parts) != 2 {
			zap.L().Warn("invalid config key format", zap.String("key", schema.Key))
			continue
		}
		category, name := parts[0], parts[1]

		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				ID:        common.UUIDint64(),
				Sort:      sortid,
				Type:      category,
				Name:      name,
				Value:     schema.Default,
				Remark:    schema.Description,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Key),
				zap.String("default", schema.Default))
		}
	}
}
