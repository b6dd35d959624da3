package mention

import "time"

// Config controls the dispatch engine.
type Config struct {
	// Command is the reserved full-roster command name (without the slash).
	Command string
	// MaxRecipients caps a full-roster dispatch. Teams are not capped
	// (team size is admin-controlled).
	MaxRecipients int
	BatchSize     int
	// BatchDelay is the pacing sleep between non-final batches.
	BatchDelay time.Duration
	// Cooldown is the minimum interval between admitted dispatches per chat.
	Cooldown  time.Duration
	Separator string
}

func (c Config) withDefaults() Config {
	if c.Command == "" {
		c.Command = "tagall"
	}
	if c.MaxRecipients <= 0 {
		c.MaxRecipients = 100
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 1200 * time.Millisecond
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.Separator == "" {
		c.Separator = " | "
	}
	return c
}
