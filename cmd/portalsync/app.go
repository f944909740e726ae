package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"portal-sync/internal/config"
	"portal-sync/internal/export"
	"portal-sync/internal/lms"
	"portal-sync/internal/metrics"
	"portal-sync/internal/platform/logger"
	"portal-sync/internal/scheduler"
	"portal-sync/internal/sftpclient"
	"portal-sync/internal/store"
	"portal-sync/internal/sync"
)

// app is everything a command needs, built from one Config.
type app struct {
	cfg    config.Config
	log    *logger.Logger
	store  *store.GormStore
	engine *sync.Engine
	guard  scheduler.Guard
	rdb    *goredis.Client
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode, cfg.LogRedact)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	db, err := store.Open(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, err
	}

	policy, err := sync.ParseRolePolicy(cfg.RolePolicy)
	if err != nil {
		return nil, err
	}

	client := lms.New(lms.Options{
		BaseURL:      cfg.LMSBaseURL,
		Token:        cfg.LMSToken,
		Timeout:      cfg.LMSCallTimeout,
		MaxAttempts:  cfg.LMSMaxAttempts,
		SiteCourseID: cfg.LMSSiteCourseID,
	}, log)

	st := store.NewGormStore(db, log)
	engine := sync.NewEngine(client, st, sync.Options{
		AuthMethod:       cfg.LMSAuthMethod,
		RolePolicy:       policy,
		Workers:          cfg.Workers,
		OutboundBatch:    cfg.OutboundBatchSize,
		OutboundCooldown: cfg.OutboundCooldown,
		CourseDefaults:   sync.CourseDefaults{Price: cfg.CourseDefaultPrice, Currency: cfg.CourseDefaultCurrency},
		RoleIDs:          sync.RoleIDs{Student: cfg.StudentRoleID, Teacher: cfg.TeacherRoleID, Admin: cfg.AdminRoleID},
		Recorder:         metrics.Recorder{},
	}, log)

	a := &app{cfg: cfg, log: log, store: st, engine: engine, guard: &scheduler.LocalGuard{}}
	if cfg.RedisAddr != "" {
		rdb, err := scheduler.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			a.close()
			return nil, err
		}
		a.rdb = rdb
		guard, err := scheduler.NewRedisGuard(rdb, cfg.SyncLockKey, cfg.SyncLockTTL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.guard = guard
	}
	return a, nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.store.DB().DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.log.Sync()
}

func (a *app) runner() *scheduler.Runner {
	return scheduler.NewRunner(a.engine, a.guard, a.cfg.SyncInterval, a.log)
}

// exportSnapshot writes a snapshot of the current status into dir and, when
// upload is set, copies it to the SFTP drop.
func (a *app) exportSnapshot(ctx context.Context, dir string, upload bool, errorLimit int) (string, error) {
	status, err := a.engine.GetSyncStatus(ctx)
	if err != nil {
		return "", err
	}
	rows, err := a.store.ListSyncErrors(ctx, errorLimit)
	if err != nil {
		return "", fmt.Errorf("list sync errors: %w", err)
	}

	snap := export.NewSnapshot(status, export.ErrorRecords(rows), time.Now())
	path, err := export.WriteFile(dir, snap)
	if err != nil {
		return "", err
	}
	if !upload {
		return path, nil
	}
	if !a.cfg.SFTPEnabled() {
		return path, errors.New("sftp upload requested but SFTP_HOST / SFTP_USER / SFTP_PASS are not set")
	}
	if err := sftpclient.UploadFile(ctx, a.sftpConfig(), path, export.FileName(snap)); err != nil {
		return path, fmt.Errorf("upload snapshot: %w", err)
	}
	a.log.Info("snapshot uploaded", "file", export.FileName(snap), "host", a.cfg.SFTPHost)
	return path, nil
}

func (a *app) sftpConfig() sftpclient.Config {
	return sftpclient.Config{
		Host:                  a.cfg.SFTPHost,
		Port:                  a.cfg.SFTPPort,
		User:                  a.cfg.SFTPUser,
		Pass:                  a.cfg.SFTPPass,
		RemoteDir:             a.cfg.SFTPDir,
		InsecureIgnoreHostKey: a.cfg.SFTPInsecureIgnoreHostKey,
		KnownHostsFile:        a.cfg.SFTPKnownHosts,
	}
}
