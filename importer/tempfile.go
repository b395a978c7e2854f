package importer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WithTempFile writes data to a temporary file named basename, calls fn
// with its path and removes the file again, whether fn succeeds, fails or
// panics.
//
// Each call gets its own directory under dir (os.TempDir when empty), so
// concurrent calls may share a basename. A basename that is not a plain
// file name is replaced with "asset".
func WithTempFile(dir, basename string, data []byte, fn func(path string) error) (err error) {
	if !fs.ValidPath(basename) || basename == "." || strings.ContainsAny(basename, `/\`) {
		basename = "asset"
	}

	tmpDir, err := os.MkdirTemp(dir, "unitypackage-import-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil && err == nil {
			err = fmt.Errorf("remove temp dir: %w", rmErr)
		}
	}()

	path := filepath.Join(tmpDir, basename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	return fn(path)
}
