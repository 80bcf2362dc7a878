package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktokenCounter(t *testing.T) {
	c, err := New("gpt-4o-mini")
	if err != nil {
		t.Skipf("tokenizer ranks unavailable: %v", err)
	}

	assert.Equal(t, 0, c.Count(""))
	assert.Greater(t, c.Count("The mitochondria is the powerhouse of the cell."), 5)

	long := "photosynthesis converts light energy into chemical energy in plants and algae"
	cut := c.Truncate(long, 3)
	assert.LessOrEqual(t, c.Count(cut), 3)
	assert.Equal(t, long, c.Truncate(long, 1000))
}

func TestApproxCounter(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short", text: "hi", want: 1},
		{name: "eight runes", text: "abcdefgh", want: 2},
		{name: "multibyte", text: "नमस्ते", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApproxCounter{}.Count(tt.text))
		})
	}

	require.Equal(t, "abcd", ApproxCounter{}.Truncate("abcdefgh", 1))
}
