package models

import "time"

// Record priorities. Confirmed records survive deduplication against raw
// observed traffic for the same question.
const (
	PriorityObserved  = 1
	PriorityConfirmed = 2
)

// QARecord is a single question-answer entry in the knowledge store.
type QARecord struct {
	Question string
	Answer   string
	Priority int
}

// ConversationRecord is a raw (question, answer, source) triple fetched from
// one of the external conversation stores. It is read-only input to the
// reconciler and the auto-learner.
type ConversationRecord struct {
	Question  string
	Answer    string
	Source    string
	Timestamp time.Time
}
