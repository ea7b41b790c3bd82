// Package fetch downloads remote workflows packaged as zip archives and
// extracts them into temporary directories.
package fetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"subflow/internal/engine"
	"subflow/pkg/logging"
)

// ErrPermissionDenied is returned when the server rejects the download with
// 401 or 403.
var ErrPermissionDenied = errors.New("permission denied")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds each download attempt. Zero means no timeout.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// transient failures.
	MaxRetries int

	// BaseDelay is the initial backoff delay (default: 250ms).
	BaseDelay time.Duration

	// TempDir is the parent directory of extracted workflows
	// (default: os.TempDir()).
	TempDir string

	// MaxArchiveSize caps the download size (default: 256 MiB).
	MaxArchiveSize int64

	Client *http.Client
}

// Fetcher downloads and extracts remote workflows.
type Fetcher struct {
	opts   Options
	client *http.Client
}

const defaultMaxArchiveSize = 256 << 20

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 250 * time.Millisecond
	}
	if opts.MaxArchiveSize <= 0 {
		opts.MaxArchiveSize = defaultMaxArchiveSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{opts: opts, client: client}
}

// Fetch downloads the archive at url and extracts it into a new temporary
// directory. It returns the extracted directory that contains the workflow
// definition together with the temporary root, which the caller owns and
// must remove once the workflow is discarded.
func (f *Fetcher) Fetch(ctx context.Context, url string) (workflowDir, tempRoot string, err error) {
	archive, err := f.download(ctx, url)
	if err != nil {
		return "", "", err
	}
	defer os.Remove(archive)

	tempRoot, err = os.MkdirTemp(f.opts.TempDir, "subflow-")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temporary directory: %w", err)
	}

	if err := extract(archive, tempRoot); err != nil {
		os.RemoveAll(tempRoot)
		return "", "", err
	}

	workflowDir, err = findWorkflowDir(tempRoot)
	if err != nil {
		os.RemoveAll(tempRoot)
		return "", "", err
	}

	logging.Info("Fetcher", "Extracted %s into %s", url, workflowDir)
	return workflowDir, tempRoot, nil
}

// download stores the archive in a temporary file and returns its path.
func (f *Fetcher) download(ctx context.Context, url string) (string, error) {
	backoff := retry.WithMaxRetries(uint64(f.opts.MaxRetries), retry.NewExponential(f.opts.BaseDelay))

	var path string
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := f.downloadOnce(ctx, url)
		if err == nil {
			path = p
			return nil
		}
		if isTransient(err) && ctx.Err() == nil {
			logging.Warn("Fetcher", "Download attempt %d of %s failed: %v", attempt, url, err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (f *Fetcher) downloadOnce(ctx context.Context, url string) (string, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", transientError{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: %w", ErrPermissionDenied, &StatusError{URL: url, StatusCode: resp.StatusCode})
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", transientError{&StatusError{URL: url, StatusCode: resp.StatusCode}}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	file, err := os.CreateTemp(f.opts.TempDir, "subflow-download-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}

	n, err := io.Copy(file, io.LimitReader(resp.Body, f.opts.MaxArchiveSize+1))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(file.Name())
		return "", transientError{fmt.Errorf("failed to read response body: %w", err)}
	}
	if n > f.opts.MaxArchiveSize {
		os.Remove(file.Name())
		return "", fmt.Errorf("archive exceeds %d bytes", f.opts.MaxArchiveSize)
	}
	return file.Name(), nil
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

func extract(archive, dest string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		name, err := cleanArchivePath(file.Name)
		if err != nil {
			return fmt.Errorf("invalid archive path %q: %w", file.Name, err)
		}
		target := filepath.Join(dest, name)

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
			continue
		}
		if !file.Mode().IsRegular() {
			return fmt.Errorf("unsupported archive entry %s", file.Name)
		}
		if err := extractFile(file, target); err != nil {
			return fmt.Errorf("extracting %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func cleanArchivePath(p string) (string, error) {
	p = filepath.FromSlash(p)
	if p == "" {
		return "", fmt.Errorf("empty archive path")
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, string(filepath.Separator)) {
		return "", fmt.Errorf("absolute archive path is not allowed")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", fmt.Errorf("invalid archive path")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return clean, nil
}

// findWorkflowDir returns the shallowest directory below root that holds a
// workflow definition. Archives usually wrap the workflow in one top-level
// folder.
func findWorkflowDir(root string) (string, error) {
	found := ""
	foundDepth := -1
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != engine.DefinitionFile {
			return nil
		}
		dir := filepath.Dir(path)
		depth := strings.Count(dir, string(filepath.Separator))
		if foundDepth < 0 || depth < foundDepth {
			found, foundDepth = dir, depth
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan archive: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("archive: %w", engine.ErrNoDefinition)
	}
	return found, nil
}
