package ics

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
	"strings"
	"time"

	appLog "camerge/internal/log"
)

// ErrUnsupportedScheme is returned when a calendar descriptor does not start
// with one of the recognized schemes. The merger treats it like any other
// fetch failure and skips the source.
var ErrUnsupportedScheme = errors.New("unsupported calendar source scheme")

// cacheEntry holds HTTP cache metadata for a single calendar URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher retrieves raw calendar payloads for the merger. It understands
// four kinds of descriptors:
//
//   - file://<path>      local file contents
//   - http(s)://<url>    network GET, with an optional conditional-GET cache
//   - webcal://<url>     same as http:// after scheme substitution
//   - data://<payload>   the payload itself, verbatim (inline/testing)
//
// When cacheDir is non-empty, HTTP responses are cached on disk keyed by a
// hash of the URL, with ETag / Last-Modified revalidation; on a network
// error the cached body is served as a fallback. file and data descriptors
// never touch the cache.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher. An empty cacheDir disables the HTTP disk
// cache; every HTTP fetch then goes straight to the network.
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
	}
}

// Fetch resolves one calendar descriptor to its raw payload.
func (f *Fetcher) Fetch(ctx context.Context, descriptor string) ([]byte, error) {
	switch {
	case strings.HasPrefix(descriptor, "data://"):
		return []byte(strings.TrimPrefix(descriptor, "data://")), nil

	case strings.HasPrefix(descriptor, "file://"):
		return os.ReadFile(strings.TrimPrefix(descriptor, "file://"))

	case strings.HasPrefix(descriptor, "webcal://"):
		return f.fetchHTTP(ctx, "http://"+strings.TrimPrefix(descriptor, "webcal://"))

	case strings.HasPrefix(descriptor, "http://"), strings.HasPrefix(descriptor, "https://"):
		return f.fetchHTTP(ctx, descriptor)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, RedactURL(descriptor))
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	if f.cacheDir == "" {
		return f.doPlain(req)
	}
	return f.doCached(req, url)
}

// doPlain performs an uncached GET.
func (f *Fetcher) doPlain(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// doCached performs a conditional GET against the disk cache.
func (f *Fetcher) doCached(req *http.Request, url string) ([]byte, error) {
	cachePath := f.cachePathForURL(url)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, err
	}

	meta, _ := loadCacheMeta(cachePath)
	cachedBody, _ := loadCacheBody(cachePath)

	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("calendar fetch network error, using cached body", err, "url", RedactURL(url))
			return cachedBody, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		newMeta := cacheEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(cachePath, newMeta, body); err != nil {
			// The fetch itself succeeded; a broken cache only costs us
			// revalidation next time.
			appLog.Error("calendar cache save failed", err, "url", RedactURL(url))
		}
		return body, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("calendar not modified, using cache", "url", RedactURL(url))
		return cachedBody, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("calendar fetch non-OK, using cached body", errors.New(resp.Status), "url", RedactURL(url), "status", resp.StatusCode)
			return cachedBody, nil
		}
		return nil, errors.New(resp.Status)
	}
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// First 16 hex chars are plenty to keep distinct feeds apart.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first, so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// RedactURL hides the path and query of a calendar descriptor for logging.
// Private feed URLs embed capability tokens, so only the scheme and host
// may appear in logs.
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	if strings.HasPrefix(u, "data://") {
		// Inline payloads are calendar data, not an address.
		return "data://...(redacted)"
	}

	i := strings.Index(u, "://")
	if i == -1 {
		return "...(redacted)"
	}

	rest := u[i+3:]
	j := strings.IndexByte(rest, '/')
	if j == -1 {
		return u + redactedSuffix
	}
	return u[:i+3+j] + redactedSuffix
}
