package fetch

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"time"

	_ "golang.org/x/image/webp"
)

const maxImageBytes = 4 << 20

// Fetcher downloads and decodes one image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// HTTPFetcher fetches images over HTTP, retrying failed attempts.
type HTTPFetcher struct {
	client   *http.Client
	attempts int
}

// NewHTTPFetcher bounds connection setup by connectTimeout and waiting for
// the response by readTimeout, per attempt.
func NewHTTPFetcher(connectTimeout, readTimeout time.Duration, attempts int) *HTTPFetcher {
	if attempts < 1 {
		attempts = 1
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &HTTPFetcher{
		client:   &http.Client{Transport: transport, Timeout: connectTimeout + readTimeout},
		attempts: attempts,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	var errs []error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		img, err := f.fetchOnce(ctx, url)
		if err == nil {
			return img, nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "chatwall/1.0")
	req.Header.Set("Accept", "image/png,image/jpeg,image/gif,image/webp,image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
