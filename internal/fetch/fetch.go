// Package fetch retrieves reference-table source files over HTTP, FTP, or
// from the local filesystem, and parses the CSV and XLSX formats calibration
// vendors publish.
package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote source file.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error)
}

// Table is a parsed tabular source file. Header holds the column row when the
// source declares one, Rows the data rows in file order.
type Table struct {
	Header []string
	Rows   [][]string
}

// HeaderIndex maps normalized header names to column positions. Vendor sheets
// vary in case and padding, so lookups go through normalizeHeader.
func (t *Table) HeaderIndex() map[string]int {
	m := make(map[string]int, len(t.Header))
	for i, col := range t.Header {
		m[normalizeHeader(col)] = i
	}
	return m
}

// normalizeHeader lowercases and trims a column name for cross-format matching.
func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolver routes a source reference to whatever can read it: http(s) and ftp
// URLs go through the matching fetcher, anything else is a local path.
type Resolver struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewResolver returns a Resolver with default-configured HTTP and FTP fetchers.
func NewResolver() *Resolver {
	return &Resolver{
		HTTP: NewHTTPFetcher(HTTPOptions{}),
		FTP:  NewFTPFetcher(FTPOptions{}),
	}
}

// Open returns a stream over the source contents.
func (r *Resolver) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	switch sourceScheme(source) {
	case "http", "https":
		return r.HTTP.Download(ctx, source)
	case "ftp":
		return r.FTP.Download(ctx, source)
	case "file":
		u, err := url.Parse(source)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: parse source %q", source)
		}
		return openLocal(u.Path)
	default:
		return openLocal(source)
	}
}

// Localize returns a local file path for the source, downloading remote
// sources into tempDir. XLSX parsing needs a seekable file, so spreadsheet
// imports go through here rather than Open.
func (r *Resolver) Localize(ctx context.Context, source string, tempDir string) (string, error) {
	var f Fetcher
	switch sourceScheme(source) {
	case "http", "https":
		f = r.HTTP
	case "ftp":
		f = r.FTP
	case "file":
		u, err := url.Parse(source)
		if err != nil {
			return "", eris.Wrapf(err, "fetch: parse source %q", source)
		}
		return u.Path, nil
	default:
		return source, nil
	}

	path := filepath.Join(tempDir, filepath.Base(sourcePath(source)))
	if _, err := f.DownloadToFile(ctx, source, path); err != nil {
		return "", err
	}
	return path, nil
}

func sourceScheme(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	return u.Scheme
}

func sourcePath(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Path == "" {
		return source
	}
	return u.Path
}

func openLocal(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: open %s", path)
	}
	return f, nil
}
