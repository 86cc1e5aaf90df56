package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dendrascience/geofs/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logrus.Level
		wantErr bool
	}{
		{"DEBUG", logrus.DebugLevel, false},
		{"info", logrus.InfoLevel, false},
		{"", logrus.InfoLevel, false},
		{"Warn", logrus.WarnLevel, false},
		{"ERROR", logrus.ErrorLevel, false},
		{"trace", logrus.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSetupFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geofs.log")
	l, closer, err := Setup(config.LoggingConfig{Level: "WARN", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("dropped")
	l.WithField("path", "/a").Warn("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "/a", entry["path"])
	assert.Equal(t, "warning", entry["level"])
}

func TestSetupText(t *testing.T) {
	l, closer, err := Setup(config.LoggingConfig{Level: "DEBUG", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	tf, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, TimestampFormat, tf.TimestampFormat)
}

func TestSetupErrors(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Level: "INFO", Format: "xml"})
	assert.Error(t, err)
	_, _, err = Setup(config.LoggingConfig{Level: "INFO", Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
