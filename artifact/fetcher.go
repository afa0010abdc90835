package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/errors"
)

// MaxSize bounds how many bytes a single fetch may read.
const MaxSize = 256 << 20

// Fetcher retrieves module builds. It implements engine.Fetcher.
// Concurrent fetches of the same source share one download.
type Fetcher struct {
	client   *http.Client
	group    singleflight.Group
	sources  Sources
	cacheDir string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for http(s) sources.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithCacheDir enables the on-disk cache. Builds with a known SHA256 are
// stored under dir by digest and reused without network access.
// A leading "~" expands to the user's home directory.
func WithCacheDir(dir string) Option {
	return func(f *Fetcher) { f.cacheDir = dir }
}

// NewFetcher creates a fetcher for sources.
func NewFetcher(sources Sources, opts ...Option) *Fetcher {
	f := &Fetcher{
		sources: sources,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Sources returns the configured sources.
func (f *Fetcher) Sources() Sources {
	return f.sources
}

// Fetch returns the bytes of the build for mode.
func (f *Fetcher) Fetch(ctx context.Context, mode physxruntime.Mode) ([]byte, error) {
	src, err := f.sources.For(mode)
	if err != nil {
		return nil, err
	}

	ch := f.group.DoChan(src.URL, func() (any, error) {
		return f.fetch(context.WithoutCancel(ctx), src)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prefetch fetches the builds for modes concurrently, warming the cache.
func (f *Fetcher) Prefetch(ctx context.Context, modes ...physxruntime.Mode) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, mode := range modes {
		g.Go(func() error {
			_, err := f.Fetch(ctx, mode)
			return err
		})
	}
	return g.Wait()
}

func (f *Fetcher) fetch(ctx context.Context, src Source) ([]byte, error) {
	if data, ok := f.cached(src); ok {
		Logger().Debug("artifact cache hit", zap.String("url", src.URL))
		return data, nil
	}

	start := time.Now()
	data, err := f.read(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	if err := verify(src, data); err != nil {
		return nil, err
	}
	Logger().Info("fetched artifact",
		zap.String("url", src.URL),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	f.store(src, data)
	return data, nil
}

func (f *Fetcher) read(ctx context.Context, raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return f.download(ctx, raw)
		case "file":
			return readFile(u.Path)
		}
	}
	return readFile(raw)
}

func (f *Fetcher) download(ctx context.Context, raw string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseFetch, errors.KindInvalidInput, err, "build request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(errors.PhaseFetch, errors.KindArtifactLoad).
			Cause(err).
			Detail("download %s", raw).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.PhaseFetch, errors.KindArtifactLoad).
			Detail("download %s: %s", raw, resp.Status).
			Build()
	}
	return readLimited(resp.Body)
}

func readFile(path string) ([]byte, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseFetch, errors.KindInvalidInput, err, "expand path")
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(errors.PhaseFetch, "artifact", path)
		}
		return nil, errors.Wrap(errors.PhaseFetch, errors.KindArtifactLoad, err, "open "+path)
	}
	defer file.Close()
	return readLimited(file)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseFetch, errors.KindArtifactLoad, err, "read artifact")
	}
	if len(data) > MaxSize {
		return nil, errors.InvalidData(errors.PhaseFetch, fmt.Sprintf("artifact exceeds %d bytes", MaxSize))
	}
	return data, nil
}

func verify(src Source, data []byte) error {
	if src.SHA256 == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, src.SHA256) {
		return errors.New(errors.PhaseFetch, errors.KindInvalidData).
			Detail("checksum mismatch for %s: got %s, want %s", src.URL, got, src.SHA256).
			Build()
	}
	return nil
}

func (f *Fetcher) cachePath(src Source) (string, bool) {
	if f.cacheDir == "" || src.SHA256 == "" {
		return "", false
	}
	dir, err := expandHome(f.cacheDir)
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, strings.ToLower(src.SHA256)+".wasm"), true
}

func (f *Fetcher) cached(src Source) ([]byte, bool) {
	path, ok := f.cachePath(src)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if verify(src, data) != nil {
		Logger().Warn("discarding corrupt cache entry", zap.String("path", path))
		_ = os.Remove(path)
		return nil, false
	}
	return data, true
}

// store writes data to the cache. Cache failures are logged, not returned.
func (f *Fetcher) store(src Source, data []byte) {
	path, ok := f.cachePath(src)
	if !ok {
		return
	}
	if err := writeAtomic(path, data); err != nil {
		Logger().Warn("artifact cache write failed", zap.String("path", path), zap.Error(err))
	}
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
