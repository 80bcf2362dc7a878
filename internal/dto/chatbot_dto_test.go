package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiltersUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Filters
	}{
		{"object", `{"filters":{"class_id":10}}`, Filters{"class_id": float64(10)}},
		{"string object", `{"filters":"{\"subject\":\"Biology\"}"}`, Filters{"subject": "Biology"}},
		{"empty string", `{"filters":""}`, nil},
		{"empty object string", `{"filters":"{}"}`, nil},
		{"null", `{"filters":null}`, nil},
		{"absent", `{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req SendChatRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.want, req.Filters)
		})
	}

	var req SendChatRequest
	assert.Error(t, json.Unmarshal([]byte(`{"filters":"not json"}`), &req))
}
