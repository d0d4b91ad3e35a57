package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput(t *testing.T) {
	t.Run("JSON Format With Parsed Level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithOutput(Config{Level: "debug", Format: "json"}, &buf)
		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

		logger.WithField("device_id", "123").Info("hello")
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "123", entry["device_id"])
	})

	t.Run("Invalid Level Falls Back To Info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithOutput(Config{Level: "chatty", Format: "text"}, &buf)
		assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
		assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
		assert.Contains(t, buf.String(), "Invalid log level 'chatty'")
	})
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "...cdef", Redact("abcdef"))
	assert.Equal(t, "...***", Redact("abc"))
	assert.Equal(t, "...", Redact(""))
}
