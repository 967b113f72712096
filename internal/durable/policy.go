package durable

import (
	"time"

	"github.com/robalyx/decelerator/internal/setup/config"
)

// Policy configures how one kind of sub-task is executed.
type Policy struct {
	// Name labels spans, logs and history events.
	Name string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// HeartbeatTimeout fails an attempt that stops heartbeating. Zero disables it.
	HeartbeatTimeout time.Duration
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
	// MaxInterval caps the retry delay.
	MaxInterval time.Duration
	// MaxAttempts includes the first attempt. Zero means a single attempt.
	MaxAttempts uint64
	// NonRetryable reports errors that must not be retried.
	NonRetryable func(error) bool
}

// FromConfig builds a policy from its config section.
func FromConfig(name string, p config.TaskPolicy) Policy {
	return Policy{
		Name:             name,
		Timeout:          config.Millis(p.Timeout),
		HeartbeatTimeout: config.Millis(p.HeartbeatTimeout),
		InitialInterval:  config.Millis(p.InitialInterval),
		MaxInterval:      config.Millis(p.MaxInterval),
		MaxAttempts:      p.MaxAttempts,
	}
}

// StorePolicy is used for local store reads and writes.
func StorePolicy(cfg config.Tasks) Policy {
	return FromConfig("store", cfg.Store)
}

// SyncPolicy is used for remote page walks.
func SyncPolicy(cfg config.Tasks) Policy {
	return FromConfig("sync", cfg.Sync)
}

// RelationshipPolicy is used for relationship lookups.
func RelationshipPolicy(cfg config.Tasks) Policy {
	return FromConfig("relationship", cfg.Relationship)
}

// Named returns a copy of p with another name.
func (p Policy) Named(name string) Policy {
	p.Name = name
	return p
}

// WithNonRetryable returns a copy of p that also refuses to retry errors matched by fn.
func (p Policy) WithNonRetryable(fn func(error) bool) Policy {
	prev := p.NonRetryable
	p.NonRetryable = func(err error) bool {
		return (prev != nil && prev(err)) || fn(err)
	}

	return p
}
