package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docshift/config"
	"docshift/credentials"
	"docshift/encoder"
	"docshift/history"
	"docshift/job"
	"docshift/models"
	"docshift/remotejob"
	"docshift/removebg"
	"docshift/utils"
)

// fakeCloudConvert serves one job whose polls always report finalStatus
type fakeCloudConvert struct {
	srv *httptest.Server

	mu           sync.Mutex
	finalStatus  string
	uploadStatus int
	resultName   string
}

func newFakeCloudConvert(t *testing.T, finalStatus string) *fakeCloudConvert {
	f := &fakeCloudConvert{finalStatus: finalStatus, resultName: "doc.pdf"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"data":{"id":"job-1","status":"waiting","tasks":[{"name":"import-file","operation":"import/upload","status":"waiting","result":{"form":{"url":%q,"parameters":{"key":"abc"}}}}]}}`, f.srv.URL+"/upload")
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		f.mu.Lock()
		status := f.uploadStatus
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			io.WriteString(w, "upload exploded")
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /v2/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		fmt.Fprintf(w, `{"data":{"id":"job-1","status":%q,"tasks":[{"name":"export-file","status":%q,"result":{"files":[{"filename":%q,"url":%q}]}}]}}`,
			f.finalStatus, f.finalStatus, f.resultName, f.srv.URL+"/download")
	})
	mux.HandleFunc("GET /download", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "%PDF-1.7 converted")
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCloudConvert) set(fn func(f *fakeCloudConvert)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	cfg    *config.Config
	cc     *fakeCloudConvert
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()
	encoder.RegisterDefaults()

	cc := newFakeCloudConvert(t, remotejob.StatusFinished)
	bg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") == "no-credits" {
			w.WriteHeader(http.StatusPaymentRequired)
			io.WriteString(w, `{"errors":[{"title":"Insufficient credits"}]}`)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes(t))
	}))
	t.Cleanup(bg.Close)

	dataDir := t.TempDir()
	cfg := &config.Config{
		TempDir:             t.TempDir(),
		ServeDir:            t.TempDir(),
		DataDir:             dataDir,
		MaxUploadBytes:      1 << 20,
		PollInterval:        10 * time.Millisecond,
		PollTimeout:         2 * time.Second,
		RequestTimeout:      2 * time.Second,
		UploadTimeout:       2 * time.Second,
		RemoveBGTimeout:     2 * time.Second,
		RemoveBGAPIKey:      "bg-key",
		RemoveBGBaseURL:     bg.URL,
		CloudConvertAPIKey:  "cc-key",
		CloudConvertBaseURL: cc.srv.URL,
		StatusRetention:     time.Minute,
	}
	if mutate != nil {
		mutate(cfg)
	}

	hist, err := history.Open(config.GetHistoryDBPath(dataDir))
	if err != nil {
		t.Fatalf("Failed to open history: %v", err)
	}
	t.Cleanup(func() { hist.Close() })
	creds, err := credentials.Open(config.GetCredentialsDBPath(dataDir))
	if err != nil {
		t.Fatalf("Failed to open credentials: %v", err)
	}
	t.Cleanup(func() { creds.Close() })

	dispatcher := &job.Dispatcher{
		TempDir:  cfg.TempDir,
		ServeDir: cfg.ServeDir,
		Tracker:  job.NewTracker(cfg.StatusRetention),
		Remote: remotejob.New(remotejob.Config{
			BaseURL:        cfg.CloudConvertBaseURL,
			APIKey:         cfg.CloudConvertAPIKey,
			PollInterval:   cfg.PollInterval,
			PollTimeout:    cfg.PollTimeout,
			RequestTimeout: cfg.RequestTimeout,
			UploadTimeout:  cfg.UploadTimeout,
		}),
		RemoveBG:    removebg.New(cfg.RemoveBGBaseURL, cfg.RemoveBGAPIKey, cfg.RemoveBGTimeout),
		Credentials: creds,
		History:     hist,
	}

	s := NewServer(cfg, dispatcher, hist, creds)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: s, http: ts, cfg: cfg, cc: cc}
}

func pngBytes(t *testing.T) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Errorf("png encode: %v", err)
	}
	return buf.Bytes()
}

type part struct {
	field, filename string
	content         []byte
}

func multipartBody(t *testing.T, parts ...part) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename == "" && p.field != "file" {
			mw.WriteField(p.field, string(p.content))
			continue
		}
		if p.field == "file" && p.filename == "" {
			// a file part whose filename is empty
			h := make(map[string][]string)
			h["Content-Disposition"] = []string{`form-data; name="file"; filename=""`}
			w, err := mw.CreatePart(h)
			if err != nil {
				t.Fatal(err)
			}
			w.Write(p.content)
			continue
		}
		w, err := mw.CreateFormFile(p.field, p.filename)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(p.content)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) convert(t *testing.T, token string, parts ...part) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	req, _ := http.NewRequest(http.MethodPost, e.http.URL+"/convert", body)
	req.Header.Set("Content-Type", ct)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /convert failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func assertTempEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Temp dir not empty: %v", names)
	}
}

func TestConvertValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name  string
		parts []part
		want  string
	}{
		{"no file", []part{{field: "conversion_type", content: []byte("jpg_to_png")}}, "No file uploaded"},
		{"empty filename", []part{{field: "file", content: []byte("x")}, {field: "conversion_type", content: []byte("jpg_to_png")}}, "No file selected"},
		{"no type", []part{{field: "file", filename: "a.jpg", content: []byte("x")}}, "No conversion type selected"},
		{"unknown type", []part{{field: "file", filename: "a.bmp", content: []byte("x")}, {field: "conversion_type", content: []byte("bmp_to_gif")}}, "Unsupported conversion type"},
		{"malformed type", []part{{field: "file", filename: "a.jpg", content: []byte("x")}, {field: "conversion_type", content: []byte("JPG to PNG")}}, "Malformed conversion type"},
		{"bad quality", []part{{field: "file", filename: "a.png", content: []byte("x")}, {field: "conversion_type", content: []byte("png_to_jpg")}, {field: "quality", content: []byte("500")}}, "Invalid quality"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.convert(t, "", tc.parts...)
			body := readAll(t, resp)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d (%s)", resp.StatusCode, body)
			}
			if !strings.Contains(body, tc.want) {
				t.Errorf("Expected body to contain %q, got %q", tc.want, body)
			}
		})
	}
	assertTempEmpty(t, env.cfg.TempDir)

	resp, err := http.Post(env.http.URL+"/convert", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-multipart body, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.http.URL + "/convert")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", resp.StatusCode)
	}
}

func TestConvertLocal(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.convert(t, "",
		part{field: "file", filename: "cat.png", content: pngBytes(t)},
		part{field: "conversion_type", content: []byte("png_to_jpg")},
		part{field: "quality", content: []byte("80")},
	)
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="converted_cat.jpg"` {
		t.Errorf("Unexpected Content-Disposition %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Unexpected Content-Type %q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Missing X-Request-ID")
	}
	if _, _, err := image.Decode(strings.NewReader(body)); err != nil {
		t.Errorf("Response is not an image: %v", err)
	}
	assertTempEmpty(t, env.cfg.TempDir)
}

func TestConvertRemoteUsesActualFormat(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cc.set(func(f *fakeCloudConvert) { f.resultName = "report.html" })

	resp := env.convert(t, "",
		part{field: "file", filename: "report.docx", content: []byte("PK\x03\x04")},
		part{field: "conversion_type", content: []byte("docx_to_pdf")},
	)
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="converted_report.html"` {
		t.Errorf("Unexpected Content-Disposition %q", got)
	}
	if resp.Header.Get("X-Remote-Job-ID") != "job-1" {
		t.Errorf("Missing remote job header")
	}
	if body != "%PDF-1.7 converted" {
		t.Errorf("Unexpected body %q", body)
	}
	assertTempEmpty(t, env.cfg.TempDir)
}

func TestConvertRemoteFailures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *config.Config) { cfg.PollTimeout = 60 * time.Millisecond })
		env.cc.set(func(f *fakeCloudConvert) { f.finalStatus = remotejob.StatusProcessing })

		resp := env.convert(t, "",
			part{field: "file", filename: "a.docx", content: []byte("PK")},
			part{field: "conversion_type", content: []byte("docx_to_pdf")},
		)
		body := readAll(t, resp)
		if resp.StatusCode != http.StatusGatewayTimeout {
			t.Errorf("Expected 504, got %d (%s)", resp.StatusCode, body)
		}
		assertTempEmpty(t, env.cfg.TempDir)
	})

	t.Run("upload rejected", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.cc.set(func(f *fakeCloudConvert) { f.uploadStatus = http.StatusInternalServerError })

		resp := env.convert(t, "",
			part{field: "file", filename: "a.docx", content: []byte("PK")},
			part{field: "conversion_type", content: []byte("docx_to_pdf")},
		)
		body := readAll(t, resp)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", resp.StatusCode)
		}
		if !strings.Contains(body, "upload exploded") {
			t.Errorf("Upstream detail missing from %q", body)
		}
		assertTempEmpty(t, env.cfg.TempDir)

		id := resp.Header.Get("X-Request-ID")
		rec, err := env.server.History.Get(id)
		if err != nil || rec == nil {
			t.Fatalf("Expected failure record, got %v, %v", rec, err)
		}
		if rec.Status != history.StatusFailed || rec.RemoteJobID != "job-1" || rec.ErrorKind != "remote_service" {
			t.Errorf("Unexpected record %+v", rec)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *config.Config) { cfg.CloudConvertAPIKey = "" })

		resp := env.convert(t, "",
			part{field: "file", filename: "a.xlsx", content: []byte("PK")},
			part{field: "conversion_type", content: []byte("xlsx_to_pdf")},
		)
		body := readAll(t, resp)
		if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(body, "missing credential") {
			t.Errorf("Expected 500 missing credential, got %d (%s)", resp.StatusCode, body)
		}
	})
}

func TestConvertRemoveBackground(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.convert(t, "",
		part{field: "file", filename: "me.jpg", content: []byte("jpeg")},
		part{field: "conversion_type", content: []byte("remove_bg")},
	)
	readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="me_nobg.png"` {
		t.Errorf("Unexpected Content-Disposition %q", got)
	}

	assertTempEmpty(t, env.cfg.TempDir)

	broke := newTestEnv(t, func(cfg *config.Config) { cfg.RemoveBGAPIKey = "no-credits" })
	resp = broke.convert(t, "",
		part{field: "file", filename: "me.jpg", content: []byte("jpeg")},
		part{field: "conversion_type", content: []byte("remove_bg")},
	)
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(body, "Background removal failed (status 402)") {
		t.Errorf("Expected 500 with upstream status, got %d (%s)", resp.StatusCode, body)
	}
	assertTempEmpty(t, broke.cfg.TempDir)
}

func solidPNG(t *testing.T, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Errorf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestConvertSameFilenameConcurrently(t *testing.T) {
	env := newTestEnv(t, nil)

	const n = 6
	colours := make([]color.NRGBA, n)
	got := make([]color.NRGBA, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		colours[i] = color.NRGBA{R: uint8(40 * i), G: uint8(200 - 30*i), B: 120, A: 255}
		img := solidPNG(t, colours[i])
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, ct := multipartBody(t,
				part{field: "file", filename: "same.png", content: img},
				part{field: "conversion_type", content: []byte("png_to_jpg")},
			)
			resp, err := http.Post(env.http.URL+"/convert", ct, body)
			if err != nil {
				t.Errorf("POST failed: %v", err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("Request %d got %d", i, resp.StatusCode)
				return
			}
			out, err := jpeg.Decode(resp.Body)
			if err != nil {
				t.Errorf("Request %d returned undecodable JPEG: %v", i, err)
				return
			}
			got[i] = color.NRGBAModel.Convert(out.At(4, 4)).(color.NRGBA)
		}(i)
	}
	wg.Wait()

	for i := range colours {
		want, have := colours[i], got[i]
		for _, ch := range [][2]uint8{{want.R, have.R}, {want.G, have.G}, {want.B, have.B}} {
			if d := int(ch[0]) - int(ch[1]); d < -8 || d > 8 {
				t.Errorf("Request %d got colour %v, want %v", i, have, want)
				break
			}
		}
	}
	assertTempEmpty(t, env.cfg.TempDir)
}

func TestConvertRequiresTokenWhenAuthEnabled(t *testing.T) {
	secret := "test-secret-key-for-jwt-signing-at-least-32-bytes-long"
	env := newTestEnv(t, func(cfg *config.Config) { cfg.JWTSecret = secret })

	parts := []part{
		{field: "file", filename: "cat.png", content: pngBytes(t)},
		{field: "conversion_type", content: []byte("png_to_jpg")},
	}

	resp := env.convert(t, "", parts...)
	readAll(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	resp = env.convert(t, "not-a-jwt", parts...)
	readAll(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for garbage token, got %d", resp.StatusCode)
	}

	now := time.Now()
	token, err := utils.CreateToken(&models.Claims{
		Subject:   "tenant-a",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}, []byte(secret))
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	resp = env.convert(t, token, parts...)
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d (%s)", resp.StatusCode, body)
	}
}

func TestArchiveToDirectServe(t *testing.T) {
	secret := "test-secret-key-for-jwt-signing-at-least-32-bytes-long"
	env := newTestEnv(t, func(cfg *config.Config) { cfg.JWTSecret = secret })

	now := time.Now()
	token, err := utils.CreateToken(&models.Claims{
		Subject:   "tenant-a",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}, []byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	// register credentials
	req, _ := http.NewRequest(http.MethodPost, env.http.URL+"/credentials", strings.NewReader(`{"type":"directServe"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var reg map[string]string
	json.NewDecoder(resp.Body).Decode(&reg)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(reg["access_key"]) != 32 {
		t.Fatalf("Unexpected registration %d %v", resp.StatusCode, reg)
	}

	token, err = utils.CreateToken(&models.Claims{
		Subject:   "tenant-a",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
		Delivery: models.DeliverySpec{
			StorageKeys: map[string]string{"public": reg["access_key"]},
			SubDir:      "tenant-a",
		},
	}, []byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	resp = env.convert(t, token,
		part{field: "file", filename: "cat.png", content: pngBytes(t)},
		part{field: "conversion_type", content: []byte("png_to_jpg")},
	)
	readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.ServeDir, "tenant-a", "converted_cat.jpg")); err != nil {
		t.Fatalf("Archived file missing: %v", err)
	}

	served, err := http.Get(env.http.URL + "/files/tenant-a/converted_cat.jpg")
	if err != nil {
		t.Fatal(err)
	}
	defer served.Body.Close()
	if served.StatusCode != http.StatusOK {
		t.Errorf("Expected archived file to be served, got %d", served.StatusCode)
	}

	list, err := http.Get(env.http.URL + "/history/list?status=success")
	if err != nil {
		t.Fatal(err)
	}
	defer list.Body.Close()
	var listed struct {
		Records []history.Record `json:"records"`
		Count   int              `json:"count"`
	}
	json.NewDecoder(list.Body).Decode(&listed)
	if listed.Count != 1 || listed.Records[0].Subject != "tenant-a" || len(listed.Records[0].Delivered) != 1 {
		t.Errorf("Unexpected history listing %+v", listed)
	}
}

func TestStatusCancelAndHistoryRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	get := func(path string) int {
		resp, err := http.Get(env.http.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	del := func(path string) int {
		req, _ := http.NewRequest(http.MethodDelete, env.http.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get("/status?id=nope"); code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown status, got %d", code)
	}
	if code := get("/status"); code != http.StatusBadRequest {
		t.Errorf("Expected 400 without id, got %d", code)
	}
	if code := del("/cancel?id=nope"); code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown cancel, got %d", code)
	}
	if code := get("/history/list?status=weird"); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad status filter, got %d", code)
	}
	if code := get("/history?id=nope"); code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown history, got %d", code)
	}

	resp := env.convert(t, "",
		part{field: "file", filename: "cat.png", content: pngBytes(t)},
		part{field: "conversion_type", content: []byte("png_to_jpg")},
	)
	readAll(t, resp)
	id := resp.Header.Get("X-Request-ID")

	if code := get("/status?id=" + id); code != http.StatusOK {
		t.Errorf("Expected finished request to be visible, got %d", code)
	}
	if code := del("/cancel?id=" + id); code != http.StatusConflict {
		t.Errorf("Expected 409 for completed request, got %d", code)
	}
	if code := get("/history?id=" + id); code != http.StatusOK {
		t.Errorf("Expected history record, got %d", code)
	}
}

func TestInfoRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/conversions")
	if err != nil {
		t.Fatal(err)
	}
	var listing struct {
		Conversions []ConversionInfo `json:"conversions"`
		Count       int              `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&listing)
	resp.Body.Close()
	if listing.Count != len(listing.Conversions) || listing.Count == 0 {
		t.Errorf("Unexpected listing %+v", listing)
	}
	for _, c := range listing.Conversions {
		if c.Type == "jpg_to_png" && !c.Available {
			t.Error("jpg_to_png should be available")
		}
	}

	resp, err = http.Get(env.http.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health HealthResponse
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health.Status != "healthy" {
		t.Errorf("Unexpected health %d %+v", resp.StatusCode, health)
	}

	resp, err = http.Get(env.http.URL + "/version")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /version, got %d", resp.StatusCode)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, RequestIDFromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "client-abc-123" || rec.Header().Get("X-Request-ID") != "client-abc-123" {
		t.Errorf("Valid client ID not echoed: %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "../../etc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Body.String(); got == "../../etc" || got == "" {
		t.Errorf("Unsafe client ID accepted: %q", got)
	}
}

func TestContentDisposition(t *testing.T) {
	if got := contentDisposition("converted_a.pdf"); got != `attachment; filename="converted_a.pdf"` {
		t.Errorf("Unexpected %q", got)
	}
	got := contentDisposition(`résumé".pdf`)
	if !strings.HasPrefix(got, `attachment; filename="r_sum__.pdf"`) || !strings.Contains(got, "filename*=UTF-8''") {
		t.Errorf("Unexpected %q", got)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 after panic, got %d", rec.Code)
	}
}
