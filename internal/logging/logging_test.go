package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"carimages/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestSetup_ConsoleOnly(t *testing.T) {
	restoreGlobals(t)
	var out bytes.Buffer

	closeFn, err := Setup(config.Log{Level: "warn"}, &out)
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	log.Info().Msg("hidden")
	log.Warn().Str("file", "bmw-m1.jpg").Msg("shown")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
	assert.Contains(t, out.String(), "bmw-m1.jpg")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestSetup_WritesJSONFile(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "logs", "carimages.log")

	closeFn, err := Setup(config.Log{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}, &bytes.Buffer{})
	require.NoError(t, err)

	log.Info().Str("run_id", "r1").Msg("batch complete")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "batch complete", entry["message"])
}

func TestSetup_InvalidLevel(t *testing.T) {
	restoreGlobals(t)
	closeFn, err := Setup(config.Log{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
	assert.NoError(t, closeFn())
}
