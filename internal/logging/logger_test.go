package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept", Fingerprint("mobile_hash", "0123456789abcdef0123"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "0123456789ab", line["mobile_hash"])
}

func TestNewWithWriterDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "verbose")

	logger.Debug("dropped")
	assert.Zero(t, buf.Len())
	logger.Info("kept")
	assert.NotZero(t, buf.Len())
}

func TestFingerprintShortValue(t *testing.T) {
	assert.Equal(t, "abc", Fingerprint("k", "abc").Value.String())
}
