// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MaxConfigFileSize bounds how much ReadFileSafely will read.
const MaxConfigFileSize = 1 << 20

// ReadFileSafely reads a regular file after cleaning the path, refusing
// directories and anything larger than MaxConfigFileSize.
func ReadFileSafely(path string) ([]byte, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for %s: %w", path, err)
	}

	f, err := os.Open(absPath) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", absPath)
	}
	if info.Size() > MaxConfigFileSize {
		return nil, fmt.Errorf("%s is too large (%d bytes, max %d)", absPath, info.Size(), MaxConfigFileSize)
	}

	return io.ReadAll(io.LimitReader(f, MaxConfigFileSize))
}
