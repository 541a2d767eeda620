package app

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/wappzakelijk/console/internal/domain"
	"github.com/wappzakelijk/console/pkg/common"
)

// Settings categories
const (
	ConfigSystem    = "system"
	ConfigMessaging = "messaging"
)

const settingsCacheTTL = 30 * time.Second

// ConfigManager reads and writes the sys_config table with a short-lived
// in-memory cache.
type ConfigManager struct {
	app *Application

	mu       sync.Mutex
	cache    map[string]string
	loadedAt time.Time
}

func NewConfigManager(app *Application) *ConfigManager {
	return &ConfigManager{app: app, cache: make(map[string]string)}
}

func (m *ConfigManager) load() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Since(m.loadedAt) < settingsCacheTTL && len(m.cache) > 0 {
		return m.cache
	}
	var rows []domain.SysConfig
	if err := m.app.DB().Find(&rows).Error; err != nil {
		zap.L().Error("settings load failed", zap.Error(err))
		return m.cache
	}
	cache := make(map[string]string, len(rows))
	for _, row := range rows {
		cache[row.Type+"."+row.Name] = row.Value
	}
	m.cache = cache
	m.loadedAt = time.Now()
	return m.cache
}

func (m *ConfigManager) GetString(category, name string) string {
	return m.load()[category+"."+name]
}

func (m *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.load()[category+"."+name])
}

func (m *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(m.load()[category+"."+name])
}

// GetCategory decodes one settings category into a struct using
// mapstructure tags.
func (m *ConfigManager) GetCategory(category string, out interface{}) error {
	values := make(map[string]interface{})
	prefix := category + "."
	for key, val := range m.load() {
		if strings.HasPrefix(key, prefix) {
			values[strings.TrimPrefix(key, prefix)] = val
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

// Set writes one "category.name" key and invalidates the cache.
func (m *ConfigManager) Set(key string, value interface{}) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid settings key %q", key)
	}
	category, name := parts[0], parts[1]
	strval := cast.ToString(value)

	var count int64
	m.app.DB().Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", category, name).
		Count(&count)
	if count == 0 {
		if err := m.app.DB().Create(&domain.SysConfig{
			ID:    common.UUIDint64(),
			Type:  category,
			Name:  name,
			Value: strval,
		}).Error; err != nil {
			return err
		}
	} else {
		if err := m.app.DB().Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Updates(map[string]interface{}{
				"value":      strval,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.loadedAt = time.Time{}
	m.mu.Unlock()
	return nil
}
