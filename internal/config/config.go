package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// LMS
	LMSBaseURL      string        `yaml:"lms_base_url"`
	LMSToken        string        `yaml:"lms_token"`
	LMSCallTimeout  time.Duration `yaml:"lms_call_timeout"`
	LMSMaxAttempts  int           `yaml:"lms_max_attempts"`
	LMSAuthMethod   string        `yaml:"lms_auth_method"`
	LMSSiteCourseID int64         `yaml:"lms_site_course_id"`
	StudentRoleID   int64         `yaml:"lms_student_role_id"`
	TeacherRoleID   int64         `yaml:"lms_teacher_role_id"`
	AdminRoleID     int64         `yaml:"lms_admin_role_id"`

	// Database
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	// Sync
	SyncInterval          time.Duration `yaml:"sync_interval"`
	OutboundBatchSize     int           `yaml:"sync_outbound_batch"`
	OutboundCooldown      time.Duration `yaml:"sync_outbound_cooldown"`
	Workers               int           `yaml:"sync_workers"`
	RolePolicy            string        `yaml:"sync_role_policy"`
	CourseDefaultPrice    float64       `yaml:"course_default_price"`
	CourseDefaultCurrency string        `yaml:"course_default_currency"`

	// Run guard
	RedisAddr   string        `yaml:"redis_addr"`
	SyncLockKey string        `yaml:"sync_lock_key"`
	SyncLockTTL time.Duration `yaml:"sync_lock_ttl"`

	// HTTP
	HTTPAddr string `yaml:"http_addr"`

	// SFTP snapshot upload
	SFTPHost                  string `yaml:"sftp_host"`
	SFTPPort                  int    `yaml:"sftp_port"`
	SFTPUser                  string `yaml:"sftp_user"`
	SFTPPass                  string `yaml:"sftp_pass"`
	SFTPDir                   string `yaml:"sftp_dir"`
	SFTPInsecureIgnoreHostKey bool   `yaml:"sftp_insecure_ignore_hostkey"`
	SFTPKnownHosts            string `yaml:"sftp_known_hosts"`
	SnapshotDir               string `yaml:"snapshot_dir"`

	// Logging
	LogMode   string `yaml:"log_mode"`
	LogRedact bool   `yaml:"log_redact"`
}

// Defaults returns a Config with every optional key set.
func Defaults() Config {
	return Config{
		LMSCallTimeout:        30 * time.Second,
		LMSMaxAttempts:        4,
		LMSAuthMethod:         "manual",
		LMSSiteCourseID:       1,
		StudentRoleID:         5,
		TeacherRoleID:         3,
		AdminRoleID:           1,
		DBDriver:              "postgres",
		SyncInterval:          15 * time.Minute,
		OutboundBatchSize:     50,
		OutboundCooldown:      5 * time.Minute,
		Workers:               1,
		RolePolicy:            "highest",
		CourseDefaultCurrency: "USD",
		SyncLockKey:           "portal-sync:lock",
		SyncLockTTL:           30 * time.Minute,
		HTTPAddr:              ":8080",
		SFTPPort:              22,
		SFTPDir:               "/",
		SnapshotDir:           os.TempDir(),
		LogMode:               "dev",
	}
}

// Load reads the configuration from environment variables on top of Defaults.
func Load() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads a YAML file on top of Defaults, then applies environment
// overrides. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	// LMS
	cfg.LMSBaseURL = getenv("LMS_BASE_URL", cfg.LMSBaseURL)
	cfg.LMSToken = getenv("LMS_TOKEN", cfg.LMSToken)
	cfg.LMSCallTimeout = getenvDuration("LMS_CALL_TIMEOUT", cfg.LMSCallTimeout)
	cfg.LMSMaxAttempts = getenvInt("LMS_MAX_ATTEMPTS", cfg.LMSMaxAttempts)
	cfg.LMSAuthMethod = getenv("LMS_AUTH_METHOD", cfg.LMSAuthMethod)
	cfg.LMSSiteCourseID = int64(getenvInt("LMS_SITE_COURSE_ID", int(cfg.LMSSiteCourseID)))
	cfg.StudentRoleID = int64(getenvInt("LMS_STUDENT_ROLE_ID", int(cfg.StudentRoleID)))
	cfg.TeacherRoleID = int64(getenvInt("LMS_TEACHER_ROLE_ID", int(cfg.TeacherRoleID)))
	cfg.AdminRoleID = int64(getenvInt("LMS_ADMIN_ROLE_ID", int(cfg.AdminRoleID)))

	// Database
	cfg.DBDriver = getenv("DB_DRIVER", cfg.DBDriver)
	cfg.DBDSN = getenv("DB_DSN", cfg.DBDSN)

	// Sync
	cfg.SyncInterval = getenvDuration("SYNC_INTERVAL", cfg.SyncInterval)
	cfg.OutboundBatchSize = getenvInt("SYNC_OUTBOUND_BATCH", cfg.OutboundBatchSize)
	cfg.OutboundCooldown = getenvDuration("SYNC_OUTBOUND_COOLDOWN", cfg.OutboundCooldown)
	cfg.Workers = getenvInt("SYNC_WORKERS", cfg.Workers)
	cfg.RolePolicy = getenv("SYNC_ROLE_POLICY", cfg.RolePolicy)
	cfg.CourseDefaultPrice = getenvFloat("COURSE_DEFAULT_PRICE", cfg.CourseDefaultPrice)
	cfg.CourseDefaultCurrency = getenv("COURSE_DEFAULT_CURRENCY", cfg.CourseDefaultCurrency)

	// Run guard
	cfg.RedisAddr = getenv("REDIS_ADDR", cfg.RedisAddr)
	cfg.SyncLockKey = getenv("SYNC_LOCK_KEY", cfg.SyncLockKey)
	cfg.SyncLockTTL = getenvDuration("SYNC_LOCK_TTL", cfg.SyncLockTTL)

	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)

	// SFTP
	cfg.SFTPHost = getenv("SFTP_HOST", cfg.SFTPHost)
	cfg.SFTPPort = getenvInt("SFTP_PORT", cfg.SFTPPort)
	cfg.SFTPUser = getenv("SFTP_USER", cfg.SFTPUser)
	cfg.SFTPPass = getenv("SFTP_PASS", cfg.SFTPPass)
	cfg.SFTPDir = getenv("SFTP_DIR", cfg.SFTPDir)
	cfg.SFTPInsecureIgnoreHostKey = getenvBool("SFTP_INSECURE_IGNORE_HOSTKEY", cfg.SFTPInsecureIgnoreHostKey)
	cfg.SFTPKnownHosts = getenv("SFTP_KNOWN_HOSTS", cfg.SFTPKnownHosts)
	cfg.SnapshotDir = getenv("SNAPSHOT_DIR", cfg.SnapshotDir)

	cfg.LogMode = getenv("LOG_MODE", cfg.LogMode)
	cfg.LogRedact = getenvBool("LOG_REDACT", cfg.LogRedact)
}

// Validate reports every missing required key at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LMSBaseURL) == "" {
		errs = append(errs, errors.New("missing LMS_BASE_URL"))
	}
	if strings.TrimSpace(c.LMSToken) == "" {
		errs = append(errs, errors.New("missing LMS_TOKEN"))
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		errs = append(errs, errors.New("missing DB_DSN"))
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	switch c.RolePolicy {
	case "highest", "first":
	default:
		errs = append(errs, fmt.Errorf("unsupported SYNC_ROLE_POLICY %q", c.RolePolicy))
	}
	return errors.Join(errs...)
}

// SFTPEnabled reports whether snapshot upload is configured.
func (c Config) SFTPEnabled() bool {
	return c.SFTPHost != "" && c.SFTPUser != "" && c.SFTPPass != ""
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloat(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvDuration accepts Go durations ("90s") or a bare number of seconds.
func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
