package main

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSplitJoin(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 10_000)
	_, err := rand.Read(data)
	require.NoError(t, err)
	src := filepath.Join(dir, "template.zip")
	require.NoError(t, os.WriteFile(src, data, 0o600))

	frames := filepath.Join(dir, "template.frames")
	out, err := execute(t, "split", "--chunk-size", "4096", "--log-level", "off", src, frames)
	require.NoError(t, err, out)
	assert.Contains(t, out, "3 frames")

	dst := filepath.Join(dir, "restored.zip")
	out, err = execute(t, "join", "--log-level", "off", frames, dst)
	require.NoError(t, err, out)
	assert.Contains(t, out, "10000 bytes")

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestJoinEmpty(t *testing.T) {
	dir := t.TempDir()
	frames := filepath.Join(dir, "empty.frames")
	require.NoError(t, os.WriteFile(frames, nil, 0o600))

	_, err := execute(t, "join", "--log-level", "off", frames, filepath.Join(dir, "out"))
	assert.ErrorContains(t, err, "no frames")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "wirectl v"+Version+"\n", out)
}
