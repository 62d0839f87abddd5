package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var revisionPattern = regexp.MustCompile(`^[0-9]+$`)

// ErrInvalidRevision is returned for revisions that are not snapshot build numbers.
var ErrInvalidRevision = errors.New("invalid browser revision")

// Fetcher downloads a pinned browser revision into destDir and returns the
// executable path.
type Fetcher interface {
	Fetch(ctx context.Context, revision, destDir, platform string) (string, error)
}

type objectOpener interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

type gcsOpener struct {
	client *storage.Client
}

func (o gcsOpener) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := o.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	return r, nil
}

// SnapshotFetcher pulls Chromium snapshot archives from a public GCS bucket.
type SnapshotFetcher struct {
	opener objectOpener
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewSnapshotFetcher creates an unauthenticated GCS client for bucket.
func NewSnapshotFetcher(ctx context.Context, bucket string, logger *zap.Logger) (*SnapshotFetcher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("snapshot bucket is required")
	}
	client, err := storage.NewClient(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	f := newSnapshotFetcher(gcsOpener{client: client}, bucket, logger)
	f.client = client
	return f, nil
}

func newSnapshotFetcher(opener objectOpener, bucket string, logger *zap.Logger) *SnapshotFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotFetcher{opener: opener, bucket: bucket, logger: logger}
}

// Close releases the GCS client.
func (f *SnapshotFetcher) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	if err := f.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}

// Fetch implements Fetcher.
func (f *SnapshotFetcher) Fetch(ctx context.Context, revision, destDir, platform string) (string, error) {
	p, err := LookupPlatform(platform)
	if err != nil {
		return "", err
	}
	if !revisionPattern.MatchString(revision) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRevision, revision)
	}
	installDir := p.InstallDir(destDir, revision)
	if !strictlyWithin(filepath.Clean(destDir), installDir) {
		return "", fmt.Errorf("install directory %q escapes %q", installDir, destDir)
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	object := p.ObjectName(revision)
	f.logger.Info("downloading browser snapshot",
		zap.String("bucket", f.bucket),
		zap.String("object", object),
	)
	rc, err := f.opener.Open(ctx, f.bucket, object)
	if err != nil {
		return "", err
	}
	defer rc.Close() //nolint:errcheck // read-only stream

	tmp, err := os.CreateTemp(destDir, "snapshot-*.zip")
	if err != nil {
		return "", fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup

	n, err := io.Copy(tmp, rc)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("download snapshot: %w", err)
	}
	f.logger.Info("browser snapshot downloaded", zap.Int64("bytes", n))

	if err := os.RemoveAll(installDir); err != nil {
		return "", fmt.Errorf("clear install directory: %w", err)
	}
	if err := extractZip(tmp.Name(), installDir); err != nil {
		return "", err
	}
	return p.InstallPath(destDir, revision), nil
}

func extractZip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close() //nolint:errcheck // read-only archive

	cleanDest := filepath.Clean(dest)
	for _, entry := range zr.File {
		target := filepath.Join(cleanDest, filepath.FromSlash(entry.Name))
		if !within(cleanDest, target) {
			return fmt.Errorf("archive entry %q escapes install directory", entry.Name)
		}
		if err := extractEntry(entry, cleanDest, target); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, dest, target string) error {
	info := entry.FileInfo()
	if info.IsDir() {
		if err := os.MkdirAll(target, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", entry.Name, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create parent of %s: %w", entry.Name, err)
	}

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer rc.Close() //nolint:errcheck // read-only entry

	if info.Mode()&os.ModeSymlink != 0 {
		link, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read link %s: %w", entry.Name, err)
		}
		linkTarget := string(link)
		resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkTarget))
		if filepath.IsAbs(linkTarget) || !within(dest, resolved) {
			return fmt.Errorf("archive link %q escapes install directory", entry.Name)
		}
		if err := os.Symlink(linkTarget, target); err != nil {
			return fmt.Errorf("create link %s: %w", entry.Name, err)
		}
		return nil
	}

	perm := info.Mode().Perm() | 0o600
	// #nosec G304 -- target is checked to stay inside the install directory.
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", entry.Name, err)
	}
	// #nosec G110 -- archives come from the pinned snapshot bucket.
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", entry.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", entry.Name, err)
	}
	return nil
}

func within(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func strictlyWithin(dir, target string) bool {
	return within(dir, target) && filepath.Clean(target) != dir
}
