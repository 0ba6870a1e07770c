package event

import "time"

// Event is a typed, immutable notification emitted by the platform or by an
// integration. Persisted best-effort.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Source        string            `json:"source"`
	Payload       map[string]any    `json:"payload,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// CallbackKind discriminates subscription delivery targets.
type CallbackKind string

const (
	CallbackWebhook CallbackKind = "webhook"
	CallbackHandler CallbackKind = "handler"
)

// Predicate constrains a payload field to an expected value. The path uses
// dotted notation into the payload object.
type Predicate struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// Subscription associates an event-type pattern with a delivery target.
type Subscription struct {
	ID         string
	OwnerID    string
	Pattern    string // glob over event type, e.g. "report.*"
	Predicates []Predicate
	Kind       CallbackKind
	WebhookID  string // when Kind == CallbackWebhook
	HandlerRef string // when Kind == CallbackHandler
	Active     bool
	CreatedAt  time.Time
}
