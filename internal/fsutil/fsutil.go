// Package fsutil writes the JSON files the tool owns.
package fsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const filePerm = 0o644

// MarshalIndent encodes v as indented JSON without escaping HTML characters, so
// "&" and non-ASCII names are written as they are. The result ends with a newline.
func MarshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames it into
// place, so readers never observe a half written file.
func WriteFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = fs.Chmod(tmpName, filePerm); err != nil && !os.IsNotExist(err) {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err = fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// WriteJSON encodes v with MarshalIndent and writes it atomically.
func WriteJSON(fs afero.Fs, path string, v any) error {
	data, err := MarshalIndent(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return WriteFileAtomic(fs, path, data)
}
