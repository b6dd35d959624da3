package app

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/filippgl/tagall-bot/internal/config"
	"github.com/filippgl/tagall-bot/internal/mention"
	"github.com/filippgl/tagall-bot/internal/services/adminsync"
	"github.com/filippgl/tagall-bot/internal/storage"
	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

var commandPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./tagall.db"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapMentionConfig(cfg *config.Config) (mention.Config, error) {
	m := cfg.Mention
	if m.Command != "" && !commandPattern.MatchString(m.Command) {
		return mention.Config{}, fmt.Errorf("mention.command: %q is not a valid command word", m.Command)
	}
	if m.MaxRecipients < 0 {
		return mention.Config{}, fmt.Errorf("mention.max_recipients must be >= 0")
	}
	if m.BatchSize < 0 {
		return mention.Config{}, fmt.Errorf("mention.batch_size must be >= 0")
	}
	delay, err := config.ParseDurationOrDefault("mention.batch_delay", m.BatchDelay, 0)
	if err != nil {
		return mention.Config{}, err
	}
	cooldown, err := config.ParseDurationOrDefault("mention.cooldown", m.Cooldown, 0)
	if err != nil {
		return mention.Config{}, err
	}
	return mention.Config{
		Command:       m.Command,
		MaxRecipients: m.MaxRecipients,
		BatchSize:     m.BatchSize,
		BatchDelay:    delay,
		Cooldown:      cooldown,
		Separator:     m.Separator,
	}, nil
}

func mapAdminSyncConfig(cfg *config.Config) (adminsync.Config, error) {
	s := cfg.AdminSync
	ttl, err := config.ParseDurationOrDefault("admin_sync.ttl", s.TTL, 0)
	if err != nil {
		return adminsync.Config{}, err
	}
	if spec := strings.TrimSpace(s.Spec); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return adminsync.Config{}, fmt.Errorf("admin_sync.spec: %w", err)
		}
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return adminsync.Config{}, fmt.Errorf("admin_sync.timezone: invalid %q: %w", tz, err)
		}
	}
	return adminsync.Config{
		Enabled:  s.Enabled,
		Spec:     s.Spec,
		TTL:      ttl,
		Timezone: s.Timezone,
	}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}
