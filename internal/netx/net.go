// Package netx uploads artifact files to presigned object-storage URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
)

// PutOptions tunes UploadFile. The zero value is usable.
type PutOptions struct {
	Client      *http.Client
	ContentType string
	// Retries is the number of extra attempts on network errors, 429 and 5xx.
	Retries uint64
	// BaseDelay is the first backoff delay, doubled per retry.
	BaseDelay time.Duration
}

// UploadFile PUTs the file at path to a presigned URL. Each attempt reopens
// the file, so a retried request sends the whole body again.
func UploadFile(ctx context.Context, url, path string, opts PutOptions) error {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	ct := opts.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	base := opts.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}

	b := retry.WithMaxRetries(opts.Retries, retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		return putOnce(ctx, client, url, path, ct)
	})
}

func putOnce(ctx context.Context, client *http.Client, url, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return err
	}
	req.ContentLength = st.Size()
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.RetryableError(err)
	}
	return err
}
