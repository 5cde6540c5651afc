// Package events publishes demo session activity to a message bus.
package events

import (
	"context"
	"time"
)

// Topic prefixes.
const (
	TopicActivityPrefix   = "sita.activity."
	TopicCompletionPrefix = "sita.completion."
	TopicDonationPaid     = "sita.donation.paid"
)

// ActivityTopic is the subject a session's activity is published on.
func ActivityTopic(session string) string {
	return TopicActivityPrefix + session
}

// CompletionTopic is the subject a session's completion is published on.
func CompletionTopic(session string) string {
	return TopicCompletionPrefix + session
}

// Publisher sends events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// ActivityAppended is published for every activity log entry.
type ActivityAppended struct {
	Session   string    `json:"session"`
	Seq       uint64    `json:"seq"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DemoCompleted is published once per completed demo run.
type DemoCompleted struct {
	Session  string    `json:"session"`
	Receipts int       `json:"receipts"`
	At       time.Time `json:"at"`
}

// DonationPaid is published when a checkout webhook marks a donation paid.
type DonationPaid struct {
	DonationID  string `json:"donation_id"`
	Tier        string `json:"tier"`
	AmountCents int64  `json:"amount_cents"`
}
