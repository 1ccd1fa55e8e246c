package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Level(t *testing.T) {
	log, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	log, err = New(Config{Level: "nonsense"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "newsroom.log")

	log, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)
	log.Info().Str("component", "test").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}
