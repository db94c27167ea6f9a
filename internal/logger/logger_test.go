package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "bastion.log")
	l := New(Options{Path: path, Level: slog.LevelInfo})

	l.Debug("hidden")
	l.Info("protection created", "owner", "alice")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "protection created", rec["msg"])
	assert.Equal(t, "alice", rec["owner"])
	assert.Equal(t, "INFO", rec["level"])
}

func TestNew_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	l := New(Options{Path: filepath.Join(t.TempDir(), "x.log")})
	defer l.Close()
	assert.Same(t, l.Logger, slog.Default())
}

func TestClose_Nil(t *testing.T) {
	var l *Logger
	assert.NoError(t, l.Close())
}
