package app

import (
	"cipherlink/internal/domain"
)

// LogEvents is an event handler that reports session lifecycle events
// through the log sink.
func LogEvents(logf func(format string, args ...any)) domain.EventHandler {
	return func(e domain.Event) {
		if e.Err != nil {
			logf("%s %s: %v", e.Conversation, e.Kind, e.Err)
			return
		}
		logf("%s %s", e.Conversation, e.Kind)
	}
}
