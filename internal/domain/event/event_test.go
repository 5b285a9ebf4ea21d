package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{name: "submitted", eventType: TypeExpenseSubmitted, want: true},
		{name: "advanced", eventType: TypeExpenseAdvanced, want: true},
		{name: "approved", eventType: TypeExpenseApproved, want: true},
		{name: "rejected", eventType: TypeExpenseRejected, want: true},
		{name: "rule changed", eventType: TypeRuleChanged, want: true},
		{name: "unknown", eventType: Type("instance.created"), want: false},
		{name: "empty", eventType: Type(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
}

func TestType_IsTerminal(t *testing.T) {
	assert.True(t, TypeExpenseApproved.IsTerminal())
	assert.True(t, TypeExpenseRejected.IsTerminal())
	assert.False(t, TypeExpenseAdvanced.IsTerminal())
	assert.False(t, TypeExpenseSubmitted.IsTerminal())
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeExpenseApproved, "exp-1", "acme", map[string]interface{}{
		KeyActorID: "mgr-1",
	})

	require.NotNil(t, evt)
	assert.NotEmpty(t, evt.ID)
	assert.NotEmpty(t, evt.CorrelationID)
	assert.NotEqual(t, evt.ID, evt.CorrelationID)
	assert.Equal(t, "exp-1", evt.AggregateID)
	assert.Equal(t, "acme", evt.CompanyID)
	assert.Equal(t, "mgr-1", evt.GetPayloadString(KeyActorID))
	assert.WithinDuration(t, time.Now(), evt.Timestamp, time.Second)
}

func TestNewEvent_NilPayload(t *testing.T) {
	evt := NewEvent(TypeRuleChanged, "r1", "acme", nil)

	assert.NotNil(t, evt.Payload)
	assert.Equal(t, "", evt.GetPayloadString("missing"))
}

func TestNewEventWithCorrelation(t *testing.T) {
	evt := NewEventWithCorrelation(TypeExpenseAdvanced, "exp-2", "acme", nil, "corr-1")

	assert.Equal(t, "corr-1", evt.CorrelationID)
	assert.Equal(t, TypeExpenseAdvanced, evt.Type)
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeExpenseSubmitted, "exp-1", "acme", map[string]interface{}{
		"key1": "value1",
	})

	modified := original.WithPayload("key2", "value2")

	_, exists := original.Payload["key2"]
	assert.False(t, exists, "original event should not be modified")
	assert.Equal(t, "value1", modified.GetPayloadString("key1"))
	assert.Equal(t, "value2", modified.GetPayloadString("key2"))
	assert.Equal(t, original.ID, modified.ID)
	assert.Equal(t, original.AggregateID, modified.AggregateID)
	assert.Equal(t, original.CorrelationID, modified.CorrelationID)
}

func TestEvent_PayloadAccessors(t *testing.T) {
	evt := NewEvent(TypeExpenseSubmitted, "exp-1", "acme", map[string]interface{}{
		"str":     "hello",
		"int":     3,
		"int64":   int64(4),
		"float":   5.9,
		"list":    []string{"a", "b"},
		"decoded": []interface{}{"c", 1, "d"},
	})

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"string", evt.GetPayloadString("str"), "hello"},
		{"string from int", evt.GetPayloadString("int"), ""},
		{"int", evt.GetPayloadInt("int"), int64(3)},
		{"int64", evt.GetPayloadInt("int64"), int64(4)},
		{"float truncated", evt.GetPayloadInt("float"), int64(5)},
		{"missing int", evt.GetPayloadInt("nope"), int64(0)},
		{"strings", evt.GetPayloadStrings("list"), []string{"a", "b"}},
		{"decoded strings", evt.GetPayloadStrings("decoded"), []string{"c", "d"}},
		{"missing strings", evt.GetPayloadStrings("nope"), []string(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
