package writerbackends

import (
	"context"
	"fmt"
	"io"
)

// Backend types accepted by WriteFile
const (
	TypeDirectServe = "directServe"
	TypeS3          = "s3"
	TypeGCS         = "gcs"
	TypeSFTP        = "sftp"
)

// WriteFile delivers the content of reader to the backend named by
// backendType and returns where it ended up.
func WriteFile(ctx context.Context, accessInfo map[string]string, reader io.Reader, backendType string) (string, error) {
	switch backendType {
	case TypeDirectServe:
		loc, err := UploadToDirectServe(ctx, accessInfo, reader)
		if err != nil {
			return "", fmt.Errorf("failed to upload to direct serve: %w", err)
		}
		return loc, nil
	case TypeS3:
		loc, err := UploadToS3WithCreds(ctx, accessInfo, reader)
		if err != nil {
			return "", fmt.Errorf("failed to upload to S3: %w", err)
		}
		return loc, nil
	case TypeGCS:
		loc, err := UploadToGCSWithJSON(ctx, accessInfo, reader)
		if err != nil {
			return "", fmt.Errorf("failed to upload to GCS: %w", err)
		}
		return loc, nil
	case TypeSFTP:
		loc, err := UploadToSFTPWithCreds(ctx, accessInfo, reader)
		if err != nil {
			return "", fmt.Errorf("failed to upload to SFTP: %w", err)
		}
		return loc, nil
	default:
		return "", fmt.Errorf("unknown backend type: %s", backendType)
	}
}
