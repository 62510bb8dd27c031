package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{level: "debug", want: logrus.DebugLevel},
		{level: "WARN", want: logrus.WarnLevel},
		{level: "", want: logrus.InfoLevel},
		{level: "verbose", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := New(tt.level, "text", &bytes.Buffer{})
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNew_InvalidLevelWarns(t *testing.T) {
	var buf bytes.Buffer
	New("verbose", "text", &buf)
	assert.Contains(t, buf.String(), "Invalid log level 'verbose'")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "json", &buf)

	logger.WithField("platform", "ios").Info("attestation operation completed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ios", entry["platform"])
	assert.Equal(t, "attestation operation completed", entry["msg"])
}
