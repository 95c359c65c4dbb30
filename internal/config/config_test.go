package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CLINIC_AUTH_SECRET", "s3cret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "Asia/Kuala_Lumpur", cfg.Queue.Timezone)
	assert.Equal(t, "Q", cfg.Queue.NumberPrefix)
	assert.Equal(t, 30*time.Second, cfg.Queue.RefreshInterval)
	assert.Equal(t, "clinic.queue", cfg.Redis.Channel)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	dir := writeConfig(t, `
clinic:
  name: Klinik Sejahtera
server:
  port: 9000
auth:
  enabled: false
queue:
  number_prefix: A
smtp:
  host: smtp.example.com
  from: desk@example.com
`)
	t.Setenv("CLINIC_SERVER_PORT", "9100")
	t.Setenv("CLINIC_QUEUE_REFRESH_INTERVAL", "10s")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "Klinik Sejahtera", cfg.Clinic.Name)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "A", cfg.Queue.NumberPrefix)
	assert.Equal(t, 10*time.Second, cfg.Queue.RefreshInterval)
	assert.True(t, cfg.SMTP.Enabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{
			name:   "secret required with auth",
			body:   "auth:\n  enabled: true\n",
			errMsg: "auth.secret",
		},
		{
			name:   "bad timezone",
			body:   "auth:\n  enabled: false\nqueue:\n  timezone: Mars/Olympus\n",
			errMsg: "queue.timezone",
		},
		{
			name:   "outbox batch size",
			body:   "auth:\n  enabled: false\noutbox:\n  batch_size: 0\n",
			errMsg: "batch_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "clinic", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=clinic sslmode=disable", c.DSN())
}
