package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realitylog/realitylog/pkg/logging"
)

func TestJSONToBuffer(t *testing.T) {
	var buf bytes.Buffer
	logs, err := logging.New().FromWriter(&buf).Make()
	require.NoError(t, err)
	require.Zero(t, buf.Len())

	logs.Logger.Info().Str("component", "test").Msg("hello")
	logs.Logger.Debug().Msg("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "test", line["component"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logs, err := logging.New().FromWriter(&buf).Format("console").Level("debug").Make()
	require.NoError(t, err)
	logs.Logger.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realitylog.log")
	logs, err := logging.New().FromPath(path).Make()
	require.NoError(t, err)
	logs.Logger.Warn().Msg("to file")
	require.NoError(t, logs.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestInvalidSettings(t *testing.T) {
	_, err := logging.New().Level("loud").Make()
	assert.Error(t, err)
	_, err = logging.New().Format("xml").Make()
	assert.Error(t, err)
}
