package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Resolver turns an input URI into a readable local path.
type Resolver struct {
	HTTP    Fetcher
	FTP     Fetcher
	TempDir string // downloads and extracted archives land here
}

// NewResolver creates a Resolver with the default HTTP and FTP fetchers.
func NewResolver(httpOpts HTTPOptions, tempDir string) *Resolver {
	return &Resolver{
		HTTP:    NewHTTPFetcher(httpOpts),
		FTP:     NewFTPFetcher(FTPOptions{Timeout: httpOpts.Timeout}),
		TempDir: tempDir,
	}
}

// Open returns a local path for uri. Local paths pass through, http(s) and
// ftp URLs are downloaded, and .zip sources are extracted with PrimaryEntry
// deciding which file is returned.
func (r *Resolver) Open(ctx context.Context, uri string) (string, error) {
	local, err := r.fetch(ctx, uri)
	if err != nil {
		return "", err
	}

	if !strings.EqualFold(filepath.Ext(local), ".zip") {
		return local, nil
	}

	dest, err := r.workDir("unzip-")
	if err != nil {
		return "", err
	}
	files, err := ExtractZIP(local, dest)
	if err != nil {
		return "", err
	}
	entry, err := PrimaryEntry(files)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: %s", uri)
	}
	zap.L().Debug("fetcher: extracted archive",
		zap.String("source", uri),
		zap.Int("files", len(files)),
		zap.String("entry", entry),
	)
	return entry, nil
}

func (r *Resolver) fetch(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 || u.Scheme == "file" {
		// Bare paths, Windows drive letters and file:// URLs.
		p := uri
		if err == nil && u.Scheme == "file" {
			p = u.Path
		}
		if _, statErr := os.Stat(p); statErr != nil {
			return "", eris.Wrapf(statErr, "fetcher: open %s", p)
		}
		return p, nil
	}

	var f Fetcher
	switch u.Scheme {
	case "http", "https":
		f = r.HTTP
	case "ftp":
		f = r.FTP
	default:
		return "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no fetcher configured for %s", u.Scheme)
	}

	dir, err := r.workDir("dl-")
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "download"
	}
	dest := filepath.Join(dir, name)

	n, err := f.DownloadToFile(ctx, uri, dest)
	if err != nil {
		return "", err
	}
	zap.L().Info("fetcher: downloaded source",
		zap.String("host", u.Host),
		zap.String("file", name),
		zap.Int64("bytes", n),
	)
	return dest, nil
}

func (r *Resolver) workDir(prefix string) (string, error) {
	base := r.TempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create temp dir")
	}
	dir, err := os.MkdirTemp(base, prefix)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create work dir")
	}
	return dir, nil
}
