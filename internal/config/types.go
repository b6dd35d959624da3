package config

// Config is the root of the bot's configuration file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Unknown keys are rejected so typos surface early, including on hot reload.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Mention   MentionConfig   `json:"mention"`
	AdminSync AdminSyncConfig `json:"admin_sync"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the chat id that receives forwarded log lines
	// (when logging.telegram.enabled is set).
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the SQLite roster store.
type StorageConfig struct {
	Path string `json:"path,omitempty"` // default: "./tagall.db"
	// BusyTimeout is a Go duration string. 0 means the driver default.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MentionConfig controls the mention-dispatch engine.
//
// Defaults (when fields are omitted/zero):
//   - command: "tagall"
//   - max_recipients: 100
//   - batch_size: 20
//   - batch_delay: "1200ms"
//   - cooldown: "60s"
//   - separator: " | "
type MentionConfig struct {
	// Command is the reserved full-roster command name (without the slash).
	Command string `json:"command,omitempty"`
	// MaxRecipients caps a full-roster dispatch. Teams are not capped.
	MaxRecipients int `json:"max_recipients,omitempty"`
	BatchSize     int `json:"batch_size,omitempty"`
	// BatchDelay is the pacing sleep between non-final batches.
	BatchDelay string `json:"batch_delay,omitempty"`
	// Cooldown is the minimum interval between admitted dispatches per chat.
	Cooldown  string `json:"cooldown,omitempty"`
	Separator string `json:"separator,omitempty"`
}

// AdminSyncConfig controls the periodic admin-list resync housekeeping.
type AdminSyncConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a cron spec ("*/10 * * * *") or descriptor ("@every 10m").
	Spec string `json:"spec,omitempty"`
	// TTL bounds how long a cached admin entry is trusted without a refresh.
	TTL string `json:"ttl,omitempty"`
	// Timezone for cron evaluation (IANA name). Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}
