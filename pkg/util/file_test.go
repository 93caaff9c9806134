// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileSafely(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0600))

	data, err := ReadFileSafely(path)
	require.NoError(t, err)
	assert.Equal(t, "logging:\n  level: debug\n", string(data))
}

func TestReadFileSafely_Rejects(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFileSafely(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "missing file")

	_, err = ReadFileSafely(dir)
	assert.Error(t, err, "directory")

	big := filepath.Join(dir, "big.yaml")
	require.NoError(t, os.WriteFile(big, make([]byte, MaxConfigFileSize+1), 0600))
	_, err = ReadFileSafely(big)
	assert.Error(t, err, "oversized file")
}
