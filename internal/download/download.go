package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kelsos/mediagen/internal/client"
	"github.com/kelsos/mediagen/internal/logger"
	"github.com/kelsos/mediagen/internal/responses"
)

// DefaultChunkSize is the read size used when streaming a response to disk.
const DefaultChunkSize = 8192

var printer = message.NewPrinter(language.English)

// Authorizer adds credentials to an outgoing request.
type Authorizer interface {
	Authorize(req *http.Request)
}

// Progress is reported after every chunk when the content length is known.
type Progress struct {
	Written int64
	Total   int64
	Percent float64
}

// Request describes one download. Auth is nil for public media URLs.
type Request struct {
	URL        string
	Path       string
	Auth       Authorizer
	OnProgress func(Progress)
}

// Result is a file fully written to disk.
type Result struct {
	Path        string
	Size        int64
	ContentType string
	SourceURL   string
	Elapsed     time.Duration
}

// DownloadError is returned when the media could not be fully written. A
// partially written file is left at Path and must be treated as invalid.
type DownloadError struct {
	URL        string
	Path       string
	StatusCode int
	Body       string
	Written    int64
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download of %s failed: HTTP %d: %s", e.URL, e.StatusCode, client.Snippet(e.Body))
	}
	return fmt.Sprintf("download of %s failed after %s: %v", e.URL, HumanSize(e.Written), e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Downloader streams media URLs to local files.
type Downloader struct {
	httpClient *http.Client
	chunkSize  int
}

func NewDownloader(httpClient *http.Client, chunkSize int) *Downloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Downloader{httpClient: httpClient, chunkSize: chunkSize}
}

// Fetch downloads req.URL to req.Path. When the server answers with a JSON
// body instead of media, the body is read as a content reference and its URL
// is fetched once, without credentials.
func (d *Downloader) Fetch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	resp, err := d.get(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if isJSON(resp.Header.Get("Content-Type")) {
		ref, err := readReference(resp.Body)
		if err != nil {
			return nil, &DownloadError{URL: req.URL, Path: req.Path, Err: err}
		}
		logger.Debug("%s points to %s", req.URL, ref.URL)
		resp.Body.Close()

		follow := req
		follow.URL = ref.URL
		follow.Auth = nil
		resp, err = d.get(ctx, follow)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		req.URL = ref.URL
	}

	written, err := d.save(resp, req)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Path:        req.Path,
		Size:        written,
		ContentType: resp.Header.Get("Content-Type"),
		SourceURL:   req.URL,
		Elapsed:     time.Since(start),
	}
	logger.Info("Saved %s (%s) in %v", result.Path, HumanSize(result.Size), result.Elapsed.Round(time.Millisecond))
	return result, nil
}

func (d *Downloader) get(ctx context.Context, req Request) (*http.Response, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, &DownloadError{URL: req.URL, Path: req.Path, Err: fmt.Errorf("unsupported URL %q", req.URL)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &DownloadError{URL: req.URL, Path: req.Path, Err: err}
	}
	if req.Auth != nil {
		req.Auth.Authorize(httpReq)
	}

	logger.Debug("Downloading %s", req.URL)
	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, &DownloadError{URL: req.URL, Path: req.Path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &DownloadError{URL: req.URL, Path: req.Path, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// save streams the body to disk chunk by chunk.
func (d *Downloader) save(resp *http.Response, req Request) (int64, error) {
	if dir := filepath.Dir(req.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, &DownloadError{URL: req.URL, Path: req.Path, Err: fmt.Errorf("failed to create directory: %w", err)}
		}
	}

	out, err := os.Create(req.Path)
	if err != nil {
		return 0, &DownloadError{URL: req.URL, Path: req.Path, Err: fmt.Errorf("failed to create file: %w", err)}
	}
	defer out.Close()

	total := resp.ContentLength
	buf := make([]byte, d.chunkSize)
	var written int64
	lastDecile := -1

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, &DownloadError{URL: req.URL, Path: req.Path, Written: written, Err: fmt.Errorf("failed to write file: %w", err)}
			}
			written += int64(n)

			if total > 0 {
				p := Progress{Written: written, Total: total, Percent: float64(written) / float64(total) * 100}
				if req.OnProgress != nil {
					req.OnProgress(p)
				}
				if decile := int(p.Percent) / 10; decile != lastDecile {
					lastDecile = decile
					logger.Debug("Download progress: %.1f%% (%s / %s)", p.Percent, HumanSize(written), HumanSize(total))
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return written, &DownloadError{URL: req.URL, Path: req.Path, Written: written, Err: readErr}
		}
	}

	if total > 0 && written != total {
		return written, &DownloadError{
			URL:     req.URL,
			Path:    req.Path,
			Written: written,
			Err:     fmt.Errorf("expected %d bytes, got %d: %w", total, written, io.ErrUnexpectedEOF),
		}
	}

	if err := out.Close(); err != nil {
		return written, &DownloadError{URL: req.URL, Path: req.Path, Written: written, Err: fmt.Errorf("failed to close file: %w", err)}
	}
	return written, nil
}

func readReference(body io.Reader) (*responses.ContentReference, error) {
	data, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read content reference: %w", err)
	}
	var ref responses.ContentReference
	if err := responses.Decode(data, &ref); err != nil {
		return nil, fmt.Errorf("%w (body: %s)", err, client.Snippet(string(data)))
	}
	return &ref, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// HumanSize formats a byte count for log lines and summaries.
func HumanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return printer.Sprintf("%.2f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return printer.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return printer.Sprintf("%d bytes", n)
	}
}
