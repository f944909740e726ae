package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetenv(t *testing.T) {
	t.Setenv("TEST_GETENV", "")
	assert.Equal(t, "default", getenv("TEST_GETENV", "default"))

	t.Setenv("TEST_GETENV", "test-value")
	assert.Equal(t, "test-value", getenv("TEST_GETENV", "default"))
}

func TestGetenvInt(t *testing.T) {
	t.Setenv("TEST_GETENV_INT", "")
	assert.Equal(t, 42, getenvInt("TEST_GETENV_INT", 42))

	t.Setenv("TEST_GETENV_INT", "100")
	assert.Equal(t, 100, getenvInt("TEST_GETENV_INT", 42))

	t.Setenv("TEST_GETENV_INT", "not-an-int")
	assert.Equal(t, 42, getenvInt("TEST_GETENV_INT", 42))
}

func TestGetenvBool(t *testing.T) {
	t.Setenv("TEST_GETENV_BOOL", "")
	assert.True(t, getenvBool("TEST_GETENV_BOOL", true))

	t.Setenv("TEST_GETENV_BOOL", "true")
	assert.True(t, getenvBool("TEST_GETENV_BOOL", false))

	t.Setenv("TEST_GETENV_BOOL", "false")
	assert.False(t, getenvBool("TEST_GETENV_BOOL", true))

	t.Setenv("TEST_GETENV_BOOL", "not-a-bool")
	assert.True(t, getenvBool("TEST_GETENV_BOOL", true))
}

func TestGetenvDuration(t *testing.T) {
	t.Setenv("TEST_GETENV_DUR", "90s")
	assert.Equal(t, 90*time.Second, getenvDuration("TEST_GETENV_DUR", time.Minute))

	t.Setenv("TEST_GETENV_DUR", "120")
	assert.Equal(t, 2*time.Minute, getenvDuration("TEST_GETENV_DUR", time.Minute))

	t.Setenv("TEST_GETENV_DUR", "soon")
	assert.Equal(t, time.Minute, getenvDuration("TEST_GETENV_DUR", time.Minute))
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SYNC_OUTBOUND_COOLDOWN", "SYNC_OUTBOUND_BATCH", "LMS_SITE_COURSE_ID", "SYNC_ROLE_POLICY"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.OutboundCooldown)
	assert.Equal(t, 50, cfg.OutboundBatchSize)
	assert.Equal(t, int64(1), cfg.LMSSiteCourseID)
	assert.Equal(t, "highest", cfg.RolePolicy)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LMS_BASE_URL", "https://lms.example.com")
	t.Setenv("LMS_TOKEN", "tok")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:test.db")
	t.Setenv("SYNC_OUTBOUND_COOLDOWN", "10m")
	t.Setenv("LMS_TEACHER_ROLE_ID", "4")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://lms.example.com", cfg.LMSBaseURL)
	assert.Equal(t, 10*time.Minute, cfg.OutboundCooldown)
	assert.Equal(t, int64(4), cfg.TeacherRoleID)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal-sync.yaml")
	body := []byte("lms_base_url: https://file.example.com\nlms_token: from-file\ndb_driver: sqlite\ndb_dsn: file.db\nsync_interval: 2m\nsync_workers: 3\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("LMS_TOKEN", "from-env")
	t.Setenv("LMS_BASE_URL", "")
	t.Setenv("SYNC_INTERVAL", "")
	t.Setenv("SYNC_WORKERS", "")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.LMSBaseURL)
	assert.Equal(t, "from-env", cfg.LMSToken)
	assert.Equal(t, 2*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 3, cfg.Workers)
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Defaults()
	cfg.DBDriver = "mysql"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LMS_BASE_URL")
	assert.Contains(t, err.Error(), "LMS_TOKEN")
	assert.Contains(t, err.Error(), "DB_DSN")
	assert.Contains(t, err.Error(), "mysql")
}

func TestSFTPEnabled(t *testing.T) {
	cfg := Defaults()
	assert.False(t, cfg.SFTPEnabled())
	cfg.SFTPHost, cfg.SFTPUser, cfg.SFTPPass = "h", "u", "p"
	assert.True(t, cfg.SFTPEnabled())
}
