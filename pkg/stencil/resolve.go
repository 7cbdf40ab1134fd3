package stencil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/render"
)

// BlockFetcher loads the bytes of a text block document.
type BlockFetcher interface {
	Fetch(u *url.URL) ([]byte, error)
}

// BlockFetcherFunc adapts a function to BlockFetcher.
type BlockFetcherFunc func(u *url.URL) ([]byte, error)

func (f BlockFetcherFunc) Fetch(u *url.URL) ([]byte, error) {
	return f(u)
}

// blockResolver turns include references into source URLs and loads them.
type blockResolver struct {
	cfg      TextBlockConfig
	fetchers map[string]BlockFetcher
}

func newBlockResolver(cfg *Config, custom map[string]BlockFetcher) *blockResolver {
	r := &blockResolver{
		cfg:      cfg.TextBlocks,
		fetchers: make(map[string]BlockFetcher),
	}
	r.fetchers["file"] = BlockFetcherFunc(fetchFile)
	httpFetcher := &httpFetcher{client: &http.Client{Timeout: cfg.TextBlocks.HTTPTimeout}}
	r.fetchers["http"] = httpFetcher
	r.fetchers["https"] = httpFetcher
	r.fetchers["s3"] = &objectStoreFetcher{cfg: cfg.ObjectStore, timeout: cfg.TextBlocks.HTTPTimeout}
	for scheme, f := range custom {
		r.fetchers[strings.ToLower(scheme)] = f
	}
	return r
}

// resolve returns the source of an include, or false when it cannot be
// resolved. name is the display name of the including section, href the
// declared reference and base the location of the including document.
func (r *blockResolver) resolve(name, href, base string) (*url.URL, bool) {
	switch r.cfg.Mode {
	case TextBlockServer:
		block := render.SanitizeBlockName(name)
		if block == "" || r.cfg.ServerURL == "" {
			return nil, false
		}
		u, err := url.Parse(strings.TrimRight(r.cfg.ServerURL, "/") + "/" + block)
		if err != nil {
			return nil, false
		}
		return u, true

	case TextBlockObjectStore:
		block := render.BlockName(name)
		if block == "" {
			block = strings.TrimSuffix(path.Base(strings.TrimSpace(href)), ".odt")
		}
		if block == "" || block == "." || block == "/" || r.cfg.Bucket == "" {
			return nil, false
		}
		key := r.cfg.Prefix + block
		if path.Ext(key) == "" {
			key += ".odt"
		}
		return &url.URL{Scheme: "s3", Host: r.cfg.Bucket, Path: "/" + key}, true

	default:
		return resolveFileHref(href, base)
	}
}

// resolveFileHref resolves an href in file mode. Absolute URLs are taken
// as-is. Relative references are tried against the including document's
// directory, then the href's file name is looked up in that directory and
// each of its ancestors.
func resolveFileHref(href, base string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil, false
	}
	if u, err := url.Parse(href); err == nil && len(u.Scheme) > 1 {
		return u, true
	}

	if b, err := url.Parse(base); err == nil && len(b.Scheme) > 1 && b.Scheme != "file" {
		ref, err := url.Parse(href)
		if err != nil {
			return nil, false
		}
		return b.ResolveReference(ref), true
	}

	rel, err := url.PathUnescape(href)
	if err != nil {
		rel = href
	}
	rel = filepath.FromSlash(rel)

	baseDir := "."
	if base != "" {
		basePath := base
		if b, err := url.Parse(base); err == nil && b.Scheme == "file" {
			basePath = filepath.FromSlash(b.Path)
		}
		baseDir = filepath.Dir(basePath)
	}

	candidate := rel
	if !filepath.IsAbs(rel) {
		candidate = filepath.Join(baseDir, rel)
	}
	if isRegularFile(candidate) {
		return fileURL(candidate), true
	}

	name := filepath.Base(rel)
	dir, err := filepath.Abs(baseDir)
	if err != nil {
		dir = baseDir
	}
	for {
		c := filepath.Join(dir, name)
		if isRegularFile(c) {
			return fileURL(c), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, false
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func fileURL(p string) *url.URL {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
}

// fetch loads the bytes behind u with the fetcher registered for its scheme.
func (r *blockResolver) fetch(u *url.URL) ([]byte, error) {
	f, ok := r.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("no fetcher for scheme %q", u.Scheme)
	}
	return f.Fetch(u)
}

// locationOf is the string recorded as Document.Location for a fetched block.
func locationOf(u *url.URL) string {
	if u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return u.String()
}

func fetchFile(u *url.URL) ([]byte, error) {
	return os.ReadFile(filepath.FromSlash(u.Path))
}

type httpFetcher struct {
	client *http.Client
}

func (f *httpFetcher) Fetch(u *url.URL) ([]byte, error) {
	resp, err := f.client.Get(u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// objectStoreFetcher reads s3://bucket/key objects from an S3-compatible
// store. The client is created on first use.
type objectStoreFetcher struct {
	cfg     ObjectStoreConfig
	timeout time.Duration

	once   sync.Once
	client *minio.Client
	err    error
}

func (f *objectStoreFetcher) init() {
	if f.cfg.Endpoint == "" {
		f.err = fmt.Errorf("object store endpoint is not configured")
		return
	}
	f.client, f.err = minio.New(f.cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(f.cfg.AccessKey, f.cfg.SecretKey, ""),
		Secure: f.cfg.UseSSL,
		Region: f.cfg.Region,
	})
}

func (f *objectStoreFetcher) Fetch(u *url.URL) ([]byte, error) {
	f.once.Do(f.init)
	if f.err != nil {
		return nil, f.err
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")

	ctx := context.Background()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("object %s/%s does not exist", bucket, key)
		}
		return nil, err
	}
	return data, nil
}
