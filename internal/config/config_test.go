package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir переводит тест в пустой каталог, чтобы не подхватить чужие .env и config/api.yaml.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("APP_ENV", "production") // .env не читать
	t.Setenv("CONFIG_PATH", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	t.Setenv("APP_ENV", "")
	cfg := Load()
	assert.False(t, cfg.Production)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, BackendPostgres, cfg.StorageBackend)
	assert.Equal(t, 200, cfg.HistoryLimit)
	assert.Equal(t, 10, cfg.DefaultUploadLimitMB)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.WSWriteTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.RedisURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "tavern.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: ":9000"
history_limit: 50
storage_backend: memory
cors_allowed_origins: "https://a.example, https://b.example"
ws_pong_timeout: 30
`), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HISTORY_LIMIT", "75")
	t.Setenv("STRICT_ENVELOPES", "true")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, 75, cfg.HistoryLimit, "env wins over yaml")
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.WSPongTimeout)
	assert.True(t, cfg.StrictEnvelopes)
}

func TestDotEnvOutsideProduction(t *testing.T) {
	dir := chdir(t)
	t.Setenv("APP_ENV", "")
	// godotenv не перезаписывает существующие переменные, даже пустые
	for _, k := range []string{"ADMIN_USERNAME", "UPLOAD_LIMIT_MB"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ADMIN_USERNAME=dm\nUPLOAD_LIMIT_MB=25\n"), 0o600))

	cfg := Load()
	assert.Equal(t, "dm", cfg.AdminUsername)
	assert.Equal(t, 25, cfg.DefaultUploadLimitMB)
}

func TestValidateProduction(t *testing.T) {
	chdir(t)
	cfg := Load()
	require.True(t, cfg.Production)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Database.URL = "postgres://prod@db:5432/tavern"
	assert.NoError(t, cfg.Validate())

	cfg.StorageBackend = "sqlite"
	assert.Error(t, cfg.Validate())
}
