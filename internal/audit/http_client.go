package audit

import (
	"bytes"
	"compress/bzip2"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// ErrNotFound marks a fetch that returned HTTP 404.  Callers distinguish
// it from other transport failures with IsNotFound; it is what triggers
// the compressed-variant fallback.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err stems from a 404 response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// HTTPClient fetches repository resources.  Concurrency is bounded by a
// semaphore shared across all fetches issued through the client.
type HTTPClient struct {
	client    *http.Client
	semaphore chan struct{}
}

// NewHTTPClient creates an HTTP client for repository access.
func NewHTTPClient(maxConns int, tlsConfig *TLSConfig) *HTTPClient {
	semaphore := make(chan struct{}, maxConns)
	for i := 0; i < maxConns; i++ {
		semaphore <- struct{}{}
	}

	return &HTTPClient{
		client:    clonedTransport(tlsConfig),
		semaphore: semaphore,
	}
}

// Fetch retrieves the resource at u and returns its body.  A 404 response
// yields an error matching ErrNotFound; any other non-200 status or
// transport problem yields a plain error.
func (h *HTTPClient) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.semaphore:
	}
	defer func() { h.semaphore <- struct{}{} }()

	// imitation apt-get request headers
	header := http.Header{}
	header.Add("Cache-Control", "max-age=0")
	header.Add("User-Agent", "Debian APT-HTTP/1.3 (repoaudit)")

	req := &http.Request{
		Method:     "GET",
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
	}

	resp, err := h.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "fetch "+u.String())
	}
	defer closeRespBody(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrap(ErrNotFound, u.String())
	default:
		return nil, errors.Newf("unexpected status %d for %s", resp.StatusCode, u)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read "+u.String())
	}
	return body, nil
}

// Decompress decodes a compressed index body according to the extension
// of name.  Unrecognized extensions return the body unchanged.
func Decompress(name string, data []byte) ([]byte, error) {
	switch path.Ext(name) {
	case ".gz":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "gzip "+name)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "gzip "+name)
		}
		return out, nil
	case ".xz":
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "xz "+name)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "xz "+name)
		}
		return out, nil
	case ".bz2":
		out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, errors.Wrap(err, "bzip2 "+name)
		}
		return out, nil
	default:
		return data, nil
	}
}

func closeRespBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err)
	}
}

// clonedTransport creates an HTTP client with tuned transport settings
// and the user's TLS configuration applied.
func clonedTransport(tlsConfig *TLSConfig) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = 100
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second

	if tlsConfig != nil {
		customTLSConfig, err := tlsConfig.BuildTLSConfig()
		if err != nil {
			slog.Error("failed to build TLS config, using defaults", "error", err)
		} else {
			tr.TLSClientConfig = customTLSConfig
		}
	}

	return &http.Client{
		Transport: tr,
		Timeout:   0, // no timeout; timeout is controlled by context
	}
}
