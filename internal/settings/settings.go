// Package settings — кеш настроек инсталляции поверх таблицы system_settings:
// общий секрет шифрования, лимит загрузки и конфигурация генератора текста.
// Создаётся при старте процесса (Load) и передаётся зависимостям явно.
package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/envelope"
	"github.com/tavernlink/internal/logger"
	"github.com/tavernlink/internal/model"
	"github.com/tavernlink/internal/store"
)

const (
	KeyEncryptionSecret = "encryption_secret"
	KeyUploadLimitMB    = "upload_limit_mb"
	KeyAIConfig         = "ai_config"

	MaxUploadLimitMB = 1024
)

type Cache struct {
	repo store.SettingsRepository

	mu            sync.RWMutex
	secret        string
	key           envelope.Key
	uploadLimitMB int
	ai            model.AIConfig
}

// Load читает настройки; при первом запуске генерирует секрет шифрования и сохраняет значения по умолчанию.
func Load(ctx context.Context, repo store.SettingsRepository, defaultUploadMB int) (*Cache, error) {
	c := &Cache{repo: repo, uploadLimitMB: defaultUploadMB, ai: model.DefaultAIConfig()}

	secret, err := repo.Get(ctx, KeyEncryptionSecret)
	switch {
	case apperr.Is(err, apperr.NotFound):
		if secret, err = envelope.NewSecret(); err != nil {
			return nil, err
		}
		if err := repo.Set(ctx, KeyEncryptionSecret, secret); err != nil {
			return nil, err
		}
		logger.Info("settings: generated install encryption secret")
	case err != nil:
		return nil, err
	}
	c.secret = secret
	c.key = envelope.DeriveKey(secret)

	if raw, err := repo.Get(ctx, KeyUploadLimitMB); err == nil {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			c.uploadLimitMB = n
		}
	} else if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}

	if raw, err := repo.Get(ctx, KeyAIConfig); err == nil {
		var cfg model.AIConfig
		if jsonErr := json.Unmarshal([]byte(raw), &cfg); jsonErr != nil {
			logger.Errorf("settings: invalid ai_config, using defaults: %v", jsonErr)
		} else {
			c.ai = cfg
		}
	} else if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}
	return c, nil
}

// EncryptionSecret — секрет, который клиенты получают в bootstrap и растягивают в ключ сами.
func (c *Cache) EncryptionSecret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secret
}

// Key — ключ, выведенный из секрета один раз при загрузке (PBKDF2 дорогой).
func (c *Cache) Key() envelope.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

func (c *Cache) UploadLimitMB() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uploadLimitMB
}

// UploadLimitBytes перечитывается на каждый запрос: лимит меняется без рестарта.
func (c *Cache) UploadLimitBytes() int64 {
	return int64(c.UploadLimitMB()) << 20
}

func (c *Cache) SetUploadLimitMB(ctx context.Context, mb int) error {
	if mb <= 0 || mb > MaxUploadLimitMB {
		return apperr.Newf(apperr.Invalid, "upload limit must be between 1 and %d MB", MaxUploadLimitMB)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.repo.Set(ctx, KeyUploadLimitMB, strconv.Itoa(mb)); err != nil {
		return err
	}
	c.uploadLimitMB = mb
	return nil
}

func (c *Cache) AIConfig() model.AIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg := c.ai
	cfg.CustomButtons = append([]model.AIButton(nil), c.ai.CustomButtons...)
	return cfg
}

// SetAIConfig сохраняет конфигурацию. Ключ "********" (из Redacted) означает «оставить прежний».
func (c *Cache) SetAIConfig(ctx context.Context, cfg model.AIConfig) error {
	switch cfg.Provider {
	case model.AIProviderGemini, model.AIProviderOpenAI, model.AIProviderLocal:
	default:
		return apperr.New(apperr.Invalid, "unknown ai provider")
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = model.DefaultAIConfig().TokenLimit
	}
	if cfg.CustomButtons == nil {
		cfg.CustomButtons = []model.AIButton{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.APIKey == "********" {
		cfg.APIKey = c.ai.APIKey
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := c.repo.Set(ctx, KeyAIConfig, string(raw)); err != nil {
		return err
	}
	c.ai = cfg
	return nil
}
