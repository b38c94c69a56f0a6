// Package removebg calls the remove.bg background removal API
package removebg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docshift/converr"
)

const service = "Background removal"

type Client struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	HTTP    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Timeout: timeout,
		HTTP:    &http.Client{},
	}
}

// RemoveBackground uploads the image at in and writes the PNG cutout to out
func (c *Client) RemoveBackground(ctx context.Context, in, name, out string) (int64, error) {
	if c.APIKey == "" {
		return 0, converr.MissingCredential("REMOVE_BG_API_KEY")
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return 0, converr.Local(err, "failed to read image")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("size", "auto"); err != nil {
		return 0, converr.Local(err, "failed to build request")
	}
	if name == "" {
		name = filepath.Base(in)
	}
	part, err := mw.CreateFormFile("image_file", filepath.Base(name))
	if err != nil {
		return 0, converr.Local(err, "failed to build request")
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		return 0, converr.Local(err, "failed to build request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1.0/removebg", &body)
	if err != nil {
		return 0, converr.Configuration("invalid remove.bg base URL: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Api-Key", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, converr.Remote(service, resp.StatusCode, converr.ReadBody(resp.Body))
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, converr.Local(err, "failed to create output")
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, classify(ctx, err)
	}
	return n, nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return converr.Timeout(fmt.Errorf("remove.bg: %w", err))
	case errors.Is(ctx.Err(), context.Canceled):
		return converr.Cancelled(err)
	}
	return converr.RemoteWrap(service, err)
}
