package files

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes
	Size int64

	// Type is the MIME type of the file (e.g., "application/pdf", "text/plain")
	Type string
}

// ValidateFile checks that path exists, is a regular file, and is readable,
// and returns its metadata. Zero-byte files are valid; an empty file is a
// legitimate thing to send.
func ValidateFile(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("File not found: %s", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory (directories not yet supported)", path)
	}
	if !stat.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%s: not a regular file", path)
	}

	// Check if file is readable
	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	name := filepath.Base(absPath)

	// Detect MIME type from file extension
	mimeType := mime.TypeByExtension(filepath.Ext(absPath))
	if mimeType == "" {
		// Default to binary if unknown
		mimeType = "application/octet-stream"
	}

	return FileInfo{
		Path: absPath,
		Name: name,
		Size: stat.Size(),
		Type: mimeType,
	}, nil
}
