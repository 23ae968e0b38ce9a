package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatEvent is one user exchange persisted to the conversation stores. The
// reconciler and auto-learner later mine these events back into the knowledge
// store.
type ChatEvent struct {
	ID        uuid.UUID
	Message   string
	Response  string
	Context   string
	Source    string
	Timestamp time.Time
}
