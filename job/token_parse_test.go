package job

import (
	"testing"

	"docshift/models"
)

func TestWriterJobs(t *testing.T) {
	creds := memCredentials{
		"k-s3":    {"type": "s3", "bucket": "b", "region": "eu-west-1"},
		"k-local": {"type": "directServe"},
		"k-bad":   {"bucket": "x"},
	}
	claims := &models.Claims{Delivery: models.DeliverySpec{StorageKeys: map[string]string{
		"zeta":    "k-s3",
		"alpha":   "k-local",
		"broken":  "k-bad",
		"missing": "k-nope",
	}}}

	jobs, errs := WriterJobs(claims, creds)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Name != "alpha" || jobs[1].Name != "zeta" {
		t.Errorf("jobs not in label order: %s, %s", jobs[0].Name, jobs[1].Name)
	}
	if jobs[1].Type != "s3" {
		t.Errorf("expected s3, got %s", jobs[1].Type)
	}
	if _, ok := jobs[1].Credentials["type"]; ok {
		t.Error("type should be stripped from credentials")
	}
	if jobs[1].Credentials["bucket"] != "b" {
		t.Errorf("bucket lost: %v", jobs[1].Credentials)
	}
}

func TestWriterJobsEmpty(t *testing.T) {
	if jobs, errs := WriterJobs(nil, memCredentials{}); jobs != nil || errs != nil {
		t.Errorf("nil claims should yield nothing, got %v %v", jobs, errs)
	}
	if jobs, errs := WriterJobs(&models.Claims{}, nil); jobs != nil || errs != nil {
		t.Errorf("no storage keys should yield nothing, got %v %v", jobs, errs)
	}

	claims := &models.Claims{Delivery: models.DeliverySpec{StorageKeys: map[string]string{"a": "k"}}}
	if _, errs := WriterJobs(claims, nil); len(errs) != 1 {
		t.Errorf("missing store should report one error, got %v", errs)
	}
}
