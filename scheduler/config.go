package scheduler

import (
	"fmt"

	"github.com/c360/forge/errors"
)

// Subjects the scheduler listens and publishes on.
const (
	// EventSubjectPrefix is the subject root for inbound events; the
	// trigger type rides as the final token (forge.events.webhook).
	EventSubjectPrefix = "forge.events"

	// PlanSubject carries fired action plans to the dispatcher.
	PlanSubject = "forge.actions.queue"
)

// Config tunes the scheduler's fan-out behavior.
type Config struct {
	// Workers is the size of the evaluation worker pool.
	Workers int `json:"workers"`

	// QueueSize bounds the evaluation queue. Events arriving while
	// the queue is full are dropped and counted.
	QueueSize int `json:"queueSize"`

	// CronTicker enables the internal minute ticker that synthesizes
	// cron events. Disable it when another instance owns the clock.
	CronTicker bool `json:"cronTicker"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  256,
		CronTicker: true,
	}
}

// Validate checks config sanity.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: workers must be >= 1, got %d", errors.ErrInvalidConfig, c.Workers),
			"scheduler", "Validate", "validate workers")
	}
	if c.QueueSize < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: queueSize must be >= 1, got %d", errors.ErrInvalidConfig, c.QueueSize),
			"scheduler", "Validate", "validate queue size")
	}
	return nil
}
