package webhook

import "time"

// Webhook is an outbound HTTP target registered to receive events matching a
// pattern set. Deactivating stops new deliveries but preserves history.
type Webhook struct {
	ID            string
	OwnerID       string
	Name          string
	TargetURL     string
	EventPatterns []string
	Secret        string
	Active        bool
	RetryPolicy   RetryPolicy
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RetryPolicy bounds delivery retries for a webhook. Zero values fall back to
// the service defaults.
type RetryPolicy struct {
	Base        time.Duration `json:"base"`
	Cap         time.Duration `json:"cap"`
	MaxAttempts int           `json:"max_attempts"`
	Jitter      float64       `json:"jitter"`
}

// DeliveryStatus is the lifecycle state of one webhook delivery.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusExhausted DeliveryStatus = "exhausted"
	StatusCancelled DeliveryStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusExhausted, StatusCancelled:
		return true
	}
	return false
}

// Delivery tracks one event payload bound for one webhook. Attempt starts at
// 1 on first dispatch; terminal deliveries are immutable.
type Delivery struct {
	ID              string
	WebhookID       string
	EventID         string
	EventType       string
	Payload         []byte // canonical form, signed as-is
	Attempt         int
	Status          DeliveryStatus
	RequestSummary  string
	ResponseSummary string
	NextAttemptAt   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
