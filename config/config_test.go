package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oy3o/wire/chunk"
)

func TestDefaults(t *testing.T) {
	c, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, chunk.DefaultChunkSize, c.ChunkSize)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("WIRE_CHUNK_SIZE", "4096")
	t.Setenv("WIRE_SESSION_TIMEOUT", "30s")
	t.Setenv("WIRE_COMPRESSION", "true")

	c, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 4096, c.ChunkSize)
	assert.Equal(t, 30*time.Second, c.SessionTimeout)
	assert.True(t, c.Compression)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk-size: 2048\nretention: 2m\nspool-dir: /var/spool/wire\nlog-level: debug\n"), 0o600))

	c, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 2048, c.ChunkSize)
	assert.Equal(t, 2*time.Minute, c.Retention)
	assert.Equal(t, "/var/spool/wire", c.SpoolDir)
	assert.Equal(t, "debug", c.LogLevel)

	_, err = Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("send-retries: 7\n"), 0o600))
	t.Setenv("WIRE_SEND_RETRIES", "2")

	c, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.SendRetries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"oversized chunk", func(c *Config) { c.ChunkSize = chunk.MaxPayloadLen + 1 }},
		{"no transfer timeout", func(c *Config) { c.TransferTimeout = 0 }},
		{"no session timeout", func(c *Config) { c.SessionTimeout = -time.Second }},
		{"negative retention", func(c *Config) { c.Retention = -time.Second }},
		{"no callbacks", func(c *Config) { c.MaxCallbacks = 0 }},
		{"no retries", func(c *Config) { c.SendRetries = 0 }},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoggerAndOptions(t *testing.T) {
	c := Default()
	c.LogLevel = "warn"
	var out bytes.Buffer
	logger := c.Logger(&out)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")

	sender, err := chunk.NewSender(c.ChunkOptions(logger)...)
	require.NoError(t, err)
	assert.NoError(t, sender.Close())
}
