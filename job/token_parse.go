package job

import (
	"fmt"
	"sort"

	"docshift/models"
)

// CredentialSource resolves an access key to its stored backend credentials
type CredentialSource interface {
	GetCredentials(key string) (map[string]string, error)
}

// WriterJobs turns the storage keys named in the token claims into writer
// jobs. Labels that cannot be resolved are returned in the error slice and
// skipped; they never stop the remaining deliveries.
func WriterJobs(claims *models.Claims, source CredentialSource) ([]models.WriterJob, []error) {
	if claims == nil || len(claims.Delivery.StorageKeys) == 0 {
		return nil, nil
	}
	if source == nil {
		return nil, []error{fmt.Errorf("no credential store configured")}
	}

	labels := make([]string, 0, len(claims.Delivery.StorageKeys))
	for label := range claims.Delivery.StorageKeys {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var (
		writerJobs []models.WriterJob
		errs       []error
	)
	for _, label := range labels {
		key := claims.Delivery.StorageKeys[label]
		creds, err := source.GetCredentials(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("storage key %q: %w", label, err))
			continue
		}
		backend := creds["type"]
		if backend == "" {
			errs = append(errs, fmt.Errorf("storage key %q: credentials without type", label))
			continue
		}

		rest := make(map[string]string, len(creds))
		for k, v := range creds {
			if k != "type" {
				rest[k] = v
			}
		}
		writerJobs = append(writerJobs, models.WriterJob{Name: label, Type: backend, Credentials: rest})
	}
	return writerJobs, errs
}
