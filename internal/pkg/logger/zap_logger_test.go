package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.log")
	l := NewIsolatedLogger(path)

	l.Info("TASKS", "persisted turn", map[string]interface{}{"session_id": "s1"})
	l.Debug("TASKS", "below file level", nil)
	l.Error("TASKS", "failed", map[string]interface{}{"error": "boom"})
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "persisted turn", first["message"])
	assert.Equal(t, "TASKS", first["module"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "boom", second["error_ref"])
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Warn("X", "nothing", nil)
	})
}
