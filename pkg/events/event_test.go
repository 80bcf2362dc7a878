package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	raw, err := Encode(BaseEvent{Type: "persist_turn", Data: map[string]interface{}{"session_id": "s1"}, OccurredAt: at})
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "persist_turn", got.EventType())
	assert.Equal(t, "s1", got.Payload()["session_id"])
	assert.True(t, at.Equal(got.Timestamp()))
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{"},
		{"missing type", `{"data":{"a":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}
