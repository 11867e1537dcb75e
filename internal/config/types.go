package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Feed     FeedConfig     `json:"feed"`
	Relay    RelayConfig    `json:"relay"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID is the chat that receives announcements and reminders.
	ChatID int64 `json:"chat_id"`
	// ThreadID is an optional forum topic thread (0 if none).
	ThreadID int `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound sends. Defaults to 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type FeedConfig struct {
	Token string `json:"token"`
	// BaseURL overrides the GitHub API endpoint (tests, GHE). Empty means api.github.com.
	BaseURL string `json:"base_url,omitempty"`
	// Timeout is a Go duration string bounding one list/mark-read call.
	Timeout string `json:"timeout,omitempty"`
}

// RelayConfig controls the notification lifecycle engine.
//
// All durations are Go duration strings (e.g. "30s", "5m", "2h").
type RelayConfig struct {
	// PollInterval is how often the feed is polled. Default "5m".
	// Changing it requires a restart; ticks are never overlapped.
	PollInterval string `json:"poll_interval,omitempty"`
	// RemindAfter is the reminder threshold. Default "2h".
	// Hot-reloadable.
	RemindAfter string `json:"remind_after,omitempty"`
	// SendTimeout bounds a single announce/remind/ack side effect. Default "15s".
	SendTimeout string `json:"send_timeout,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/notifications.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}
