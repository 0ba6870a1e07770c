package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAggregateStatus(t *testing.T) {
	cases := []struct {
		name    string
		results []RecipientResult
		want    DeliveryStatus
	}{
		{
			name:    "all sent",
			results: []RecipientResult{{Recipient: "a", Sent: true}, {Recipient: "b", Sent: true}},
			want:    StatusSent,
		},
		{
			name:    "some sent",
			results: []RecipientResult{{Recipient: "a", Sent: true}, {Recipient: "b"}},
			want:    StatusPartial,
		},
		{
			name:    "none sent",
			results: []RecipientResult{{Recipient: "a"}, {Recipient: "b"}},
			want:    StatusFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(tc.results))
		})
	}
}

func TestPriorityParsing(t *testing.T) {
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityHigh, ParsePriority("high"))
	assert.Equal(t, PriorityUrgent, ParsePriority("urgent"))
	assert.Equal(t, PriorityNormal, ParsePriority(""))
	assert.Equal(t, PriorityNormal, ParsePriority("whatever"))

	assert.Equal(t, "urgent", PriorityUrgent.String())
	assert.Equal(t, "normal", PriorityNormal.String())
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, PriorityUrgent > PriorityHigh)
	assert.True(t, PriorityHigh > PriorityNormal)
	assert.True(t, PriorityNormal > PriorityLow)
}

func TestDeliveryStatusTerminal(t *testing.T) {
	assert.True(t, StatusSent.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusSending.Terminal())
	assert.False(t, StatusPartial.Terminal())
}
