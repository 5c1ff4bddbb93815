package store

import "time"

// Turn roles. System turns carry the assistant's final response for the turn.
const (
	RoleUser   = "user"
	RoleSystem = "system"
)

// EntityType identifies a kind of extracted fact kept in session memory.
type EntityType string

const (
	EntityAccountID     EntityType = "account_id"
	EntityCustomerName  EntityType = "customer_name"
	EntityBillingPeriod EntityType = "billing_period"
	EntityTopic         EntityType = "topic"
)

// Session is the durable per-session state: an append-only conversation log
// plus extracted entities keyed by type.
type Session struct {
	ID        string                `json:"id"`
	CreatedAt time.Time             `json:"created_at"`
	Turns     []Turn                `json:"turns"`
	Entities  map[EntityType]Entity `json:"entities"`
}

// Turn is a single conversation turn. Immutable once appended.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Responder string    `json:"responder,omitempty"` // empty when no responder produced this turn
	Timestamp time.Time `json:"timestamp"`
}

// Entity is a structured fact extracted from conversation, with the
// extraction confidence in [0,1].
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
}
