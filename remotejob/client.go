// Package remotejob drives CloudConvert's asynchronous job API: create a
// job, upload the source, poll until the job settles, download the result.
package remotejob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docshift/converr"
	"docshift/logger"
)

const service = "cloudconvert"

var errPollTimeout = errors.New("poll timeout")

type Config struct {
	BaseURL        string
	APIKey         string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	HTTP           *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	pollInterval   time.Duration
	pollTimeout    time.Duration
	requestTimeout time.Duration
	uploadTimeout  time.Duration
}

func New(cfg Config) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		http:           cfg.HTTP,
		pollInterval:   cfg.PollInterval,
		pollTimeout:    cfg.PollTimeout,
		requestTimeout: cfg.RequestTimeout,
		uploadTimeout:  cfg.UploadTimeout,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = 5 * time.Minute
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = 30 * time.Second
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = 2 * time.Minute
	}
	return c
}

// Source is the local file to convert
type Source struct {
	Name string
	Path string
}

// Result describes a downloaded conversion output
type Result struct {
	JobID    string
	Filename string
	Path     string
	Size     int64
}

// Request is one remote conversion. Dest is the local path the result is
// written to; OnPhase, when set, is told about every phase change.
type Request struct {
	Source       Source
	InputFormat  string
	OutputFormat string
	Dest         string
	Tag          string
	OnPhase      func(jobID string, phase Phase)
}

// Convert runs create, upload, poll and download for one request. The
// remote job is never cancelled; a failure after creation leaves it
// orphaned and its ID is attached to the returned error.
func (c *Client) Convert(ctx context.Context, req Request) (*Result, error) {
	if c.apiKey == "" {
		return nil, converr.MissingCredential("CLOUDCONVERT_API_KEY")
	}
	notify := func(id string, p Phase) {
		if req.OnPhase != nil {
			req.OnPhase(id, p)
		}
	}

	job, err := c.CreateJob(ctx, req.InputFormat, req.OutputFormat, req.Tag)
	if err != nil {
		return nil, err
	}
	notify(job.ID, PhaseCreated)
	logger.Debugf("cloudconvert job %s created (%s -> %s)", job.ID, req.InputFormat, req.OutputFormat)

	notify(job.ID, PhaseUploading)
	if err := c.Upload(ctx, job, req.Source); err != nil {
		notify(job.ID, PhaseError)
		return nil, converr.WithRemoteJob(err, job.ID)
	}

	notify(job.ID, PhaseProcessing)
	final, err := c.Wait(ctx, job.ID)
	if err != nil {
		notify(job.ID, PhaseError)
		return nil, converr.WithRemoteJob(err, job.ID)
	}
	if final.Status == StatusError {
		notify(job.ID, PhaseError)
		return nil, converr.WithRemoteJob(converr.RemoteFailure(service+" conversion", final.failure()), job.ID)
	}

	res, err := c.Download(ctx, final, req.Dest)
	if err != nil {
		notify(job.ID, PhaseError)
		return nil, converr.WithRemoteJob(err, job.ID)
	}
	notify(job.ID, PhaseFinished)
	return res, nil
}

// CreateJob submits the import → convert → export job
func (c *Client) CreateJob(ctx context.Context, inputFormat, outputFormat, tag string) (*Job, error) {
	if c.apiKey == "" {
		return nil, converr.MissingCredential("CLOUDCONVERT_API_KEY")
	}

	body := jobRequest{
		Tag: tag,
		Tasks: map[string]any{
			taskImport: map[string]any{
				"operation": "import/upload",
			},
			taskConvert: map[string]any{
				"operation":     "convert",
				"input":         []string{taskImport},
				"input_format":  inputFormat,
				"output_format": outputFormat,
			},
			taskExport: map[string]any{
				"operation": "export/url",
				"input":     []string{taskConvert},
			},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, converr.Local(err, "failed to encode job request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/jobs", bytes.NewReader(data))
	if err != nil {
		return nil, converr.Configuration("invalid CloudConvert base URL: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var env jobEnvelope
	if err := c.doJSON(req, service+" create job", &env); err != nil {
		return nil, err
	}
	if env.Data.ID == "" {
		return nil, converr.RemoteFailure(service+" create job", "response carried no job id")
	}
	return &env.Data, nil
}

// Upload posts the source file to the import task's form. Form parameters
// are written before the file part.
func (c *Client) Upload(ctx context.Context, job *Job, src Source) error {
	t := job.task(taskImport)
	if t == nil || t.Result == nil || t.Result.Form == nil || t.Result.Form.URL == "" {
		return converr.RemoteFailure(service+" upload", "job has no upload form")
	}
	form := t.Result.Form

	f, err := os.Open(src.Path)
	if err != nil {
		return converr.Local(err, "failed to open upload source")
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, form.Parameters, src.Name, f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, form.URL, pr)
	if err != nil {
		pr.CloseWithError(err)
		return converr.RemoteWrap(service+" upload", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return transportError(ctx, service+" upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return converr.Remote(service+" upload", resp.StatusCode, converr.ReadBody(resp.Body))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func writeForm(mw *multipart.Writer, params map[string]any, name string, r io.Reader) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fmt.Sprint(params[k])); err != nil {
			return err
		}
	}

	if name == "" {
		name = "upload"
	}
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// Wait polls the job at a fixed interval until it finishes or errors.
// The first poll happens one interval after the call. Polling stops with
// a timeout error once the poll timeout elapses.
func (c *Client) Wait(ctx context.Context, jobID string) (*Job, error) {
	pollCtx, cancel := context.WithTimeoutCause(ctx, c.pollTimeout, errPollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		select {
		case <-pollCtx.Done():
			return nil, c.pollStopped(ctx, pollCtx, jobID, polls-1)
		case <-ticker.C:
		}

		job, err := c.GetJob(pollCtx, jobID)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, c.pollStopped(ctx, pollCtx, jobID, polls)
			}
			return nil, err
		}

		logger.Debugf("cloudconvert job %s poll %d: %s", jobID, polls, job.Status)
		switch job.Status {
		case StatusFinished, StatusError:
			return job, nil
		}
	}
}

func (c *Client) pollStopped(parent, pollCtx context.Context, jobID string, polls int) error {
	if parent.Err() == nil && errors.Is(context.Cause(pollCtx), errPollTimeout) {
		logger.Warnf("cloudconvert job %s still running after %v (%d polls)", jobID, c.pollTimeout, polls)
		return converr.Timeout(fmt.Errorf("job %s not settled after %v", jobID, c.pollTimeout))
	}
	if errors.Is(parent.Err(), context.DeadlineExceeded) {
		return converr.Timeout(parent.Err())
	}
	return converr.Cancelled(parent.Err())
}

// GetJob fetches the current job state
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/jobs/"+jobID, nil)
	if err != nil {
		return nil, converr.Configuration("invalid CloudConvert base URL: %v", err)
	}

	var env jobEnvelope
	if err := c.doJSON(req, service+" job status", &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// Download fetches the export task's first file into dest
func (c *Client) Download(ctx context.Context, job *Job, dest string) (*Result, error) {
	t := job.task(taskExport)
	if t == nil || t.Result == nil || len(t.Result.Files) == 0 || t.Result.Files[0].URL == "" {
		return nil, converr.RemoteFailure(service+" download", "finished job has no exported file")
	}
	file := t.Result.Files[0]

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return nil, converr.RemoteWrap(service+" download", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, service+" download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, converr.Remote(service+" download", resp.StatusCode, converr.ReadBody(resp.Body))
	}

	out, err := os.Create(dest)
	if err != nil {
		return nil, converr.Local(err, "failed to create download target")
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, transportError(ctx, service+" download", err)
	}

	name := file.Filename
	if name == "" {
		name = path.Base(req.URL.Path)
	}
	return &Result{JobID: job.ID, Filename: name, Path: dest, Size: n}, nil
}

func (c *Client) doJSON(req *http.Request, op string, v any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(req.Context(), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return converr.Remote(op, resp.StatusCode, converr.ReadBody(resp.Body))
	}
	// numbers in upload form parameters must round-trip unchanged
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return converr.RemoteWrap(op+" decode", err)
	}
	return nil
}

// transportError classifies a failed round trip: an expired deadline is a
// timeout, a cancelled context is a cancellation, anything else is remote.
func transportError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return converr.Timeout(fmt.Errorf("%s: %w", op, err))
	case errors.Is(ctx.Err(), context.Canceled):
		return converr.Cancelled(err)
	}
	return converr.RemoteWrap(op, err)
}
