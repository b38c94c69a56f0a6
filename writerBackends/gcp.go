package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"docshift/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// UploadToGCSWithJSON uploads content from an io.Reader to a Google Cloud
// Storage object, using a base64 encoded service account key.
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, reader io.Reader) (string, error) {
	credentialsJSON, err := decodeServiceAccount(accessInfo["credentialsJSON"])
	if err != nil {
		return "", err
	}
	bucketName := accessInfo["bucket"]
	objectName := accessInfo["object"]
	if bucketName == "" || objectName == "" {
		return "", fmt.Errorf("missing required accessInfo keys: bucket, object")
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return "", fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if ct := accessInfo["contentType"]; ct != "" {
		wc.ContentType = ct
	}

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return "", fmt.Errorf("io.Copy: %w", err)
	}

	// Close the writer to complete the upload.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}

// decodeServiceAccount accepts padded or unpadded base64
func decodeServiceAccount(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("missing required accessInfo key: credentialsJSON")
	}
	if b, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("credentialsJSON is not valid base64: %w", err)
	}
	return b, nil
}
