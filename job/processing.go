package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docshift/artifacts"
	"docshift/converr"
	"docshift/conversions"
	"docshift/encoder"
	"docshift/history"
	"docshift/logger"
	"docshift/models"
	"docshift/remotejob"
	writerbackends "docshift/writerBackends"
)

// RemoteConverter runs a conversion on the remote job service
type RemoteConverter interface {
	Convert(ctx context.Context, req remotejob.Request) (*remotejob.Result, error)
}

// BackgroundRemover cuts the background out of an image
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, in, name, out string) (int64, error)
}

// HistoryRecorder persists the outcome of every request
type HistoryRecorder interface {
	RecordSuccess(rec history.Record) error
	RecordFailure(rec history.Record, kind string, err error) error
}

// Request is one uploaded file to convert
type Request struct {
	ID             string
	ConversionType string
	SourceName     string
	Body           io.Reader
	Quality        int
	Enhance        encoder.Factors
	Claims         *models.Claims // nil when auth is disabled
}

// Result is the converted file, held in memory once the arena is gone
type Result struct {
	RequestID   string
	Filename    string
	ContentType string
	Data        []byte
	RemoteJobID string
	Delivered   []string
}

// Dispatcher runs one conversion request end to end
type Dispatcher struct {
	TempDir     string
	ServeDir    string
	Tracker     *Tracker
	Remote      RemoteConverter
	RemoveBG    BackgroundRemover
	Credentials CredentialSource
	History     HistoryRecorder

	// CallbackClient sends completion callbacks
	CallbackClient *http.Client
	// MaxDeliveries bounds concurrent uploads to storage backends
	MaxDeliveries int

	callbacks sync.WaitGroup
}

// Run converts req. Whatever the outcome, the request's temporary
// artifacts are gone when Run returns.
func (d *Dispatcher) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	log := logger.ForRequest(req.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if d.Tracker != nil {
		if err := d.Tracker.Register(req.ID, req.ConversionType, cancel); err != nil {
			// the ID belongs to another request; leave its status and history alone
			log.Warnf("Refused duplicate request: %v", err)
			return nil, converr.Conflict(nil, "Request ID %s is already in use", req.ID)
		}
	}

	res, err := d.run(ctx, req)

	rec := history.Record{
		RequestID:      req.ID,
		ConversionType: req.ConversionType,
		SourceName:     req.SourceName,
		DurationMillis: time.Since(started).Milliseconds(),
	}
	if req.Claims != nil {
		rec.Subject = req.Claims.Subject
	}

	switch {
	case converr.KindOf(err) == converr.KindConflict:
		log.Warnf("%s refused: %v", req.ConversionType, err)
	case err != nil:
		rec.RemoteJobID = converr.RemoteJobID(err)
		log.Errorf("%s failed after %s: %v", req.ConversionType, time.Since(started).Round(time.Millisecond), err)
		if d.History != nil {
			if herr := d.History.RecordFailure(rec, converr.KindOf(err).String(), err); herr != nil {
				log.Errorf("Failed to store failure record: %v", herr)
			}
		}
	default:
		rec.OutputName = res.Filename
		rec.OutputBytes = int64(len(res.Data))
		rec.RemoteJobID = res.RemoteJobID
		rec.Delivered = res.Delivered
		log.Infof("%s completed in %s (%s, %d bytes)", req.ConversionType, time.Since(started).Round(time.Millisecond), res.Filename, len(res.Data))
		if d.History != nil {
			if herr := d.History.RecordSuccess(rec); herr != nil {
				// don't fail the request for history errors
				log.Errorf("Failed to store success record: %v", herr)
			}
		}
	}

	if d.Tracker != nil {
		d.Tracker.Finish(req.ID, err)
	}
	if req.Claims != nil && req.Claims.Delivery.CompletionCallback != "" {
		d.notify(req.Claims.Delivery, callbackPayload(req, res, err))
	}
	return res, err
}

func (d *Dispatcher) run(ctx context.Context, req Request) (*Result, error) {
	desc, err := conversions.Lookup(req.ConversionType)
	if err != nil {
		logger.ForRequest(req.ID).Debugf("lookup of %q: %v", req.ConversionType, err)
		if errors.Is(err, conversions.ErrMalformedType) {
			return nil, converr.Input("Malformed conversion type: %q", req.ConversionType)
		}
		return nil, converr.Input("Unsupported conversion type: %s", req.ConversionType)
	}
	if desc.Enhanced() {
		f := req.Enhance
		if f == (encoder.Factors{}) {
			f = encoder.DefaultFactors
		}
		if err := f.Validate(); err != nil {
			return nil, converr.InputWrap(err, "Invalid enhancement factors")
		}
	}

	arena, err := artifacts.New(d.TempDir, req.ID)
	if errors.Is(err, artifacts.ErrInUse) {
		return nil, converr.Conflict(nil, "Request ID %s is already in use", req.ID)
	}
	if err != nil {
		return nil, converr.Local(err, "failed to allocate request workspace")
	}
	defer arena.Release()

	inExt := strings.ToLower(filepath.Ext(req.SourceName))
	input := arena.Input(inExt)
	if err := saveUpload(input, req.Body); err != nil {
		return nil, err
	}

	if d.Tracker != nil {
		d.Tracker.SetState(req.ID, StateConverting)
	}

	var (
		output, outExt, remoteJob string
	)
	switch desc.Engine {
	case conversions.EngineLocal:
		outExt = conversions.Extension(desc.TargetFormat)
		output = arena.Output(outExt)
		err = d.convertLocal(ctx, desc, input, output, req)
	case conversions.EngineRemoveBG:
		outExt = ".png"
		output = arena.Output(outExt)
		err = d.removeBackground(ctx, input, output, req.SourceName)
	case conversions.EngineCloudConvert:
		var res *remotejob.Result
		res, err = d.convertRemote(ctx, desc, input, arena.Output(conversions.Extension(desc.TargetFormat)), req)
		if err == nil {
			output, remoteJob = res.Path, res.JobID
			// the remote service decides the real container
			outExt = strings.ToLower(filepath.Ext(res.Filename))
			if outExt == "" {
				outExt = conversions.Extension(desc.TargetFormat)
			}
		}
	default:
		err = converr.Configuration("no engine for %s", desc.Type)
	}
	if err != nil {
		return nil, err
	}
	// encoders that ignore ctx still must not outlive a cancel
	if err := ctxError(ctx); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, converr.Local(err, "failed to read converted file")
	}

	name := OutputName(req.SourceName, desc, outExt)
	res := &Result{
		RequestID:   req.ID,
		Filename:    name,
		ContentType: ContentType(outExt),
		Data:        data,
		RemoteJobID: remoteJob,
	}

	if req.Claims != nil && len(req.Claims.Delivery.StorageKeys) > 0 {
		if d.Tracker != nil {
			d.Tracker.SetState(req.ID, StateArchiving)
		}
		// archiving is not cancellable
		res.Delivered = d.archive(context.WithoutCancel(ctx), req, res)
	}
	return res, nil
}

func ctxError(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return converr.Timeout(err)
	default:
		return converr.Cancelled(err)
	}
}

func saveUpload(dst string, body io.Reader) error {
	if body == nil {
		return converr.Input("No file uploaded")
	}
	f, err := os.Create(dst)
	if err != nil {
		return converr.Local(err, "failed to store upload")
	}
	_, err = io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return converr.InputWrap(err, "File too large (limit %d bytes)", tooLarge.Limit)
		}
		return converr.InputWrap(err, "Failed to read upload")
	}
	return nil
}

func (d *Dispatcher) convertLocal(ctx context.Context, desc conversions.Descriptor, input, output string, req Request) error {
	enc, ok := encoder.Get(desc.SourceFormat, desc.TargetFormat)
	if !ok {
		return converr.Configuration("no local encoder available for %s", desc.Type)
	}

	opts := encoder.EncodeOptions{Quality: req.Quality, Enhance: req.Enhance}
	if err := enc(ctx, input, output, opts); err != nil {
		switch {
		case errors.Is(err, encoder.ErrInvalidOption):
			return converr.InputWrap(err, "Invalid input for %s", desc.Type)
		case ctx.Err() != nil:
			return ctxError(ctx)
		default:
			return converr.Local(err, "%s conversion failed", desc.Type)
		}
	}
	return nil
}

func (d *Dispatcher) removeBackground(ctx context.Context, input, output, name string) error {
	if d.RemoveBG == nil {
		return converr.Configuration("background removal is not configured")
	}
	_, err := d.RemoveBG.RemoveBackground(ctx, input, name, output)
	return err
}

func (d *Dispatcher) convertRemote(ctx context.Context, desc conversions.Descriptor, input, dest string, req Request) (*remotejob.Result, error) {
	if d.Remote == nil {
		return nil, converr.Configuration("remote conversion is not configured")
	}
	return d.Remote.Convert(ctx, remotejob.Request{
		Source:       remotejob.Source{Name: filepath.Base(req.SourceName), Path: input},
		InputFormat:  desc.SourceFormat,
		OutputFormat: desc.TargetFormat,
		Dest:         dest,
		Tag:          req.ID,
		OnPhase: func(jobID string, phase remotejob.Phase) {
			if d.Tracker != nil {
				d.Tracker.SetPhase(req.ID, jobID, string(phase))
			}
		},
	})
}

// OutputName is the attachment name for a converted upload
func OutputName(sourceName string, desc conversions.Descriptor, ext string) string {
	base := filepath.Base(strings.ReplaceAll(sourceName, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "file"
	}
	if desc.Engine == conversions.EngineRemoveBG {
		return stem + "_nobg.png"
	}
	return "converted_" + stem + ext
}

// ContentType maps an output extension to a MIME type
func ContentType(ext string) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch ext {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// archive delivers the result to every storage key named in the claims.
// Failures are logged and left out of the returned locations.
func (d *Dispatcher) archive(ctx context.Context, req Request, res *Result) []string {
	log := logger.ForRequest(req.ID)

	writerJobs, errs := WriterJobs(req.Claims, d.Credentials)
	for _, err := range errs {
		log.Warnf("Skipping delivery: %v", err)
	}
	if len(writerJobs) == 0 {
		return nil
	}

	var (
		mu        sync.Mutex
		delivered []string
	)
	g, gctx := errgroup.WithContext(ctx)
	limit := d.MaxDeliveries
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	for _, wj := range writerJobs {
		g.Go(func() error {
			accessInfo := prepareAccessInfo(wj, res, req.Claims.Delivery.SubDir, d.ServeDir)
			loc, err := writerbackends.WriteFile(gctx, accessInfo, bytes.NewReader(res.Data), wj.Type)
			if err != nil {
				log.Errorf("Failed to deliver %s to %s (%s): %v", res.Filename, wj.Name, wj.Type, err)
				return nil
			}
			log.Infof("Delivered %s to %s: %s", res.Filename, wj.Name, loc)
			mu.Lock()
			delivered = append(delivered, loc)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return delivered
}

// prepareAccessInfo prepares the access info map for the writer backend
func prepareAccessInfo(writerJob models.WriterJob, res *Result, subDir, serveDir string) map[string]string {
	accessInfo := make(map[string]string, len(writerJob.Credentials)+4)
	for k, v := range writerJob.Credentials {
		accessInfo[k] = v
	}

	accessInfo["filename"] = res.Filename
	accessInfo["folder"] = subDir
	if accessInfo["contentType"] == "" {
		accessInfo["contentType"] = res.ContentType
	}

	object := path.Join(accessInfo["prefix"], subDir, res.Filename)
	switch writerJob.Type {
	case writerbackends.TypeDirectServe:
		accessInfo["baseDir"] = serveDir
	case writerbackends.TypeS3:
		accessInfo["key"] = object
	case writerbackends.TypeGCS:
		accessInfo["object"] = object
	case writerbackends.TypeSFTP:
		accessInfo["remotePath"] = path.Join(accessInfo["remoteDir"], subDir, res.Filename)
	}
	return accessInfo
}

func callbackPayload(req Request, res *Result, err error) models.CallbackPayload {
	p := models.CallbackPayload{
		RequestID:      req.ID,
		ConversionType: req.ConversionType,
		Status:         "completed",
		Timestamp:      time.Now().Unix(),
	}
	if err != nil {
		p.Status = "failed"
		p.Error = converr.Message(err)
		return p
	}
	p.OutputName = res.Filename
	p.OutputBytes = int64(len(res.Data))
	p.Delivered = res.Delivered
	return p
}

// notify sends the completion callback in the background
func (d *Dispatcher) notify(delivery models.DeliverySpec, payload models.CallbackPayload) {
	d.callbacks.Add(1)
	go func() {
		defer d.callbacks.Done()
		if err := d.sendCallback(delivery, payload); err != nil {
			// don't fail the request for callback errors
			logger.ForRequest(payload.RequestID).Errorf("Failed to send callback: %v", err)
		}
	}()
}

// WaitCallbacks blocks until every pending callback has been sent
func (d *Dispatcher) WaitCallbacks() {
	d.callbacks.Wait()
}

// sendCallback sends completion callback if configured
func (d *Dispatcher) sendCallback(delivery models.DeliverySpec, payload models.CallbackPayload) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, delivery.CompletionCallback, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "docshift/1.0")
	for key, value := range delivery.CallbackHeaders {
		req.Header.Set(key, value)
	}

	client := d.CallbackClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned non-2xx status: %d", resp.StatusCode)
	}

	logger.ForRequest(payload.RequestID).Infof("Sent callback to %s", delivery.CompletionCallback)
	return nil
}
