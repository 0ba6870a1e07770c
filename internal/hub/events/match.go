// Package events implements the broker: pattern-based subscriptions, fan-out
// delivery and best-effort ordering per subscription.
package events

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/tidwall/gjson"

	domain "github.com/ataiva-software/vertex-sub003/internal/domain/event"
)

// MatchType reports whether a type glob matches an event type.
func MatchType(pattern, eventType string) bool {
	ok, err := path.Match(pattern, eventType)
	return err == nil && ok
}

// ValidPattern reports whether a type glob compiles.
func ValidPattern(pattern string) bool {
	if strings.TrimSpace(pattern) == "" {
		return false
	}
	_, err := path.Match(pattern, "probe")
	return err == nil
}

// Matches reports whether an event satisfies a subscription: the pattern
// matches the type AND every payload predicate holds.
func Matches(sub domain.Subscription, ev domain.Event, payloadJSON []byte) bool {
	if !MatchType(sub.Pattern, ev.Type) {
		return false
	}
	for _, pred := range sub.Predicates {
		got := gjson.GetBytes(payloadJSON, pred.Path)
		if !got.Exists() || got.String() != pred.Value {
			return false
		}
	}
	return true
}

// encodePayload renders the payload once per event for predicate evaluation.
func encodePayload(ev domain.Event) []byte {
	if ev.Payload == nil {
		return []byte("{}")
	}
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
