// Package notification delivers alerts to external channels (webhook,
// Telegram). The only alerts sent are paper-runner kill-rule hits; the
// optimizer and ingest send none. Grounded on the teacher's
// internal/notification package; every sink here implements model.Notifier
// directly so the paper runner depends on the model port, not on this
// package's concrete types.
package notification

import (
	"context"
	"log"
)

// Level mirrors the teacher's AlertLevel severity scale.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// LogNotifier logs alerts instead of delivering them — useful for local
// runs and as a safe default when no webhook/Telegram target is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify implements model.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, level, title, message string) error {
	log.Printf("[notify] [%s] %s: %s", level, title, message)
	return nil
}

// sink is satisfied by every notifier in this package and by model.Notifier.
type sink interface {
	Notify(ctx context.Context, level, title, message string) error
}

// Multi fans a single Notify call out to several notifiers, logging
// (not failing) on a per-sink delivery error so one dead webhook doesn't
// block the others.
type Multi struct {
	sinks []sink
}

// NewMulti creates a fan-out notifier over the given sinks.
func NewMulti(sinks ...sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx context.Context, level, title, message string) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, level, title, message); err != nil {
			log.Printf("[notify] sink delivery failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
