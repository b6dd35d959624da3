package config

import (
	"strings"

	logx "github.com/filippgl/tagall-bot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Storage (path changes require a restart; surfaced so operators notice)
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	// Mention engine knobs
	if oldCfg.Mention != newCfg.Mention {
		changed = append(changed, "mention")
		attrs = append(attrs,
			logx.String("mention.command", newCfg.Mention.Command),
			logx.Int("mention.max_recipients", newCfg.Mention.MaxRecipients),
			logx.Int("mention.batch_size", newCfg.Mention.BatchSize),
			logx.String("mention.batch_delay", newCfg.Mention.BatchDelay),
			logx.String("mention.cooldown", newCfg.Mention.Cooldown),
		)
	}

	// Admin resync
	if oldCfg.AdminSync != newCfg.AdminSync {
		changed = append(changed, "admin_sync")
		attrs = append(attrs,
			logx.Bool("admin_sync.enabled", newCfg.AdminSync.Enabled),
			logx.String("admin_sync.spec", newCfg.AdminSync.Spec),
		)
	}

	return changed, attrs
}
