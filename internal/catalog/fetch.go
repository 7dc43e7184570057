package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "regcal/internal/log"
)

// ErrUpstreamUnavailable is returned when the catalog feed cannot be
// retrieved. Callers surface it as a hard failure; an empty catalog is
// never substituted.
var ErrUpstreamUnavailable = errors.New("catalog upstream unavailable")

// FetchResult contains the outcome of one feed fetch.
type FetchResult struct {
	Body      []byte
	FromCache bool // true if the server answered 304 and the cached body was reused
}

// cacheEntry holds HTTP cache metadata for the feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher retrieves the catalog feed with conditional requests
// (ETag / Last-Modified) backed by a disk cache.
type Fetcher struct {
	url      string
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher for url. cacheDir may be empty to disable
// the disk cache.
func NewFetcher(url, cacheDir string) *Fetcher {
	return &Fetcher{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
	}
}

// URL returns the feed endpoint.
func (f *Fetcher) URL() string { return f.url }

// Fetch downloads the feed. A 304 answer reuses the cached body; every
// other failure is reported as ErrUpstreamUnavailable.
func (f *Fetcher) Fetch(ctx context.Context) (FetchResult, error) {
	if f.url == "" {
		return FetchResult{}, fmt.Errorf("%w: feed URL is empty", ErrUpstreamUnavailable)
	}

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL()
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("catalog cache dir unavailable", err, "path", cachePath)
			cachePath = ""
		} else {
			meta, _ = f.loadCacheMeta(cachePath)
			cachedBody, _ = f.loadCacheBody(cachePath)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	// Only send validators when there is a body to fall back on.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("catalog fetch start", "url", appLog.RedactURL(f.url))

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, fmt.Errorf("%w: reading body: %v", ErrUpstreamUnavailable, readErr)
		}

		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          f.url,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := f.saveCache(cachePath, newMeta, body); err != nil {
				appLog.Error("catalog cache save failed", err, "url", appLog.RedactURL(f.url))
			}
		}

		appLog.Info("catalog fetch success", "url", appLog.RedactURL(f.url), "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, fmt.Errorf("%w: 304 Not Modified without cached body", ErrUpstreamUnavailable)
		}
		appLog.Info("catalog not modified; using cache", "url", appLog.RedactURL(f.url))
		return FetchResult{Body: cachedBody, FromCache: true}, nil

	default:
		return FetchResult{}, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, resp.Status)
	}
}

func (f *Fetcher) cachePathForURL() string {
	sum := sha256.Sum256([]byte(f.url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	if meta.URL != f.url {
		return cacheEntry{}, errors.New("cache entry belongs to another URL")
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.json"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
