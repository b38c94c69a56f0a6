package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"docshift/logger"
)

// ServePrefix is the URL path the serve directory is mounted on
const ServePrefix = "/files/"

// UploadToDirectServe writes the content to baseDir/folder/filename, which
// the HTTP server exposes under ServePrefix.
func UploadToDirectServe(ctx context.Context, accessInfo map[string]string, reader io.Reader) (string, error) {
	baseDir := accessInfo["baseDir"]
	folder, err := cleanRelative(accessInfo["folder"])
	if err != nil {
		return "", err
	}
	filename := filepath.Base(accessInfo["filename"])
	if baseDir == "" || filename == "." || filename == string(filepath.Separator) {
		return "", fmt.Errorf("missing required accessInfo keys: baseDir, filename")
	}

	fullDir := filepath.Join(baseDir, filepath.FromSlash(folder))
	fullPath := filepath.Join(fullDir, filename)

	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close file %s: %w", fullPath, err)
	}

	logger.Infof("Successfully saved file '%s' to '%s'", filename, fullPath)
	return ServePrefix + path.Join(folder, filename), nil
}

// cleanRelative rejects folders that would climb out of the base directory
func cleanRelative(folder string) (string, error) {
	if folder == "" {
		return "", nil
	}
	clean := path.Clean("/" + strings.ReplaceAll(folder, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if strings.Contains(folder, "..") {
		return "", fmt.Errorf("invalid folder %q", folder)
	}
	return clean, nil
}
