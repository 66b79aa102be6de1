// Package notify delivers fire-and-forget user notifications.
package notify

import (
	"time"

	"go.uber.org/zap"

	"github.com/example/snapclassify/internal/failure"
)

// Notification is one transient message for the user.
type Notification struct {
	Kind    failure.Kind `json:"kind"`
	Title   string       `json:"title"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

// Notifier shows a notification without blocking the caller.
type Notifier interface {
	Notify(kind failure.Kind, title, message string)
}

// Func adapts a function to Notifier.
type Func func(kind failure.Kind, title, message string)

func (f Func) Notify(kind failure.Kind, title, message string) { f(kind, title, message) }

// Error notifies the user about err using its classified title and message.
func Error(n Notifier, err error) {
	kind := failure.KindOf(err)
	n.Notify(kind, failure.Title(kind), failure.Message(err))
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Notify(kind failure.Kind, title, message string) {
	for _, n := range m {
		n.Notify(kind, title, message)
	}
}

// Log writes notifications to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a notifier backed by logger.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

func (l *Log) Notify(kind failure.Kind, title, message string) {
	l.logger.Warn(title, zap.String("kind", string(kind)), zap.String("message", message))
}
