// Package contentstore stores media bytes content-addressed by digest. Writes
// of the same digest are collapsed into one physical write, and reads verify
// that the bytes still hash to their name.
package contentstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/hash/sha256"
	"github.com/JakeFAU/qa-archiver/internal/progress"
)

// mediaPrefix is the root of every media object path.
const mediaPrefix = "media/sha256/"

// Backend is the blob storage the store writes through. Missing objects must
// wrap crawler.ErrNotFound.
type Backend interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Lister is implemented by backends that can enumerate objects. The store uses
// it to recover its index when reopened over existing data.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Options configures a Store.
type Options struct {
	Backend Backend
	Hasher  crawler.Hasher
	// Fetcher downloads media for StoreMedia. Optional when only Put is used.
	Fetcher crawler.Fetcher
	// Reporter receives MEDIA_STORED for every new object.
	Reporter *progress.Reporter
	Logger   *zap.Logger
	// MaxMediaBytes rejects larger downloads; zero disables the limit.
	MaxMediaBytes int64
}

// Store implements crawler.ContentStore.
type Store struct {
	backend  Backend
	hasher   crawler.Hasher
	fetcher  crawler.Fetcher
	reporter *progress.Reporter
	logger   *zap.Logger
	maxBytes int64

	group singleflight.Group

	mu    sync.RWMutex
	known map[string]crawler.MediaAsset
}

// New builds a Store. When the backend implements Lister, existing objects are
// indexed so Digests reflects earlier runs.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, errors.New("content store backend is required")
	}
	if opts.Hasher == nil {
		opts.Hasher = sha256.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend:  opts.Backend,
		hasher:   opts.Hasher,
		fetcher:  opts.Fetcher,
		reporter: opts.Reporter,
		logger:   logger,
		maxBytes: opts.MaxMediaBytes,
		known:    make(map[string]crawler.MediaAsset),
	}
	if lister, ok := opts.Backend.(Lister); ok {
		paths, err := lister.List(ctx, mediaPrefix)
		if err != nil {
			return nil, &crawler.IOError{Op: "list", Path: mediaPrefix, Err: err}
		}
		for _, p := range paths {
			digest := p[strings.LastIndex(p, "/")+1:]
			if sha256.Validate(digest) != nil {
				continue
			}
			s.known[digest] = crawler.MediaAsset{Digest: digest, StoragePath: p}
		}
		if len(paths) > 0 {
			logger.Debug("indexed existing media", zap.Int("objects", len(s.known)))
		}
	}
	return s, nil
}

// ObjectPath returns the backend path for digest.
func ObjectPath(digest string) string {
	hexPart := strings.TrimPrefix(digest, sha256.Prefix)
	shard := "00"
	if len(hexPart) >= 2 {
		shard = hexPart[:2]
	}
	return mediaPrefix + shard + "/" + digest
}

// Put stores data and returns its asset. Storing the same bytes again, or
// concurrently, performs at most one physical write.
func (s *Store) Put(ctx context.Context, data []byte, mimeType string) (crawler.MediaAsset, error) {
	asset, _, err := s.put(ctx, data, mimeType)
	return asset, err
}

func (s *Store) put(ctx context.Context, data []byte, mimeType string) (crawler.MediaAsset, bool, error) {
	digest, err := s.hasher.Hash(data)
	if err != nil {
		return crawler.MediaAsset{}, false, fmt.Errorf("hash media: %w", err)
	}
	if asset, ok := s.lookup(digest); ok {
		return s.describe(asset, data, mimeType), false, nil
	}
	if err := ctx.Err(); err != nil {
		return crawler.MediaAsset{}, false, err
	}

	path := ObjectPath(digest)
	contentType := detectMime(mimeType, data)
	wrote := false
	v, err, _ := s.group.Do(digest, func() (any, error) {
		if asset, ok := s.lookup(digest); ok {
			return asset, nil
		}
		exists, err := s.backend.Exists(ctx, path)
		if err != nil {
			return nil, &crawler.IOError{Op: "exists", Path: path, Err: err}
		}
		if !exists {
			if _, err := s.backend.PutObject(ctx, path, contentType, bytes.NewReader(data)); err != nil {
				return nil, &crawler.IOError{Op: "put", Path: path, Err: err}
			}
			wrote = true
		}
		asset := crawler.MediaAsset{
			Digest:      digest,
			MimeType:    contentType,
			ByteLength:  int64(len(data)),
			StoragePath: path,
		}
		s.mu.Lock()
		s.known[digest] = asset
		s.mu.Unlock()
		return asset, nil
	})
	if err != nil {
		return crawler.MediaAsset{}, false, err
	}
	asset, ok := v.(crawler.MediaAsset)
	if !ok {
		return crawler.MediaAsset{}, false, fmt.Errorf("content store: unexpected result %T", v)
	}
	if wrote {
		s.logger.Debug("stored media", zap.String("digest", digest), zap.Int("bytes", len(data)))
		s.reporter.MediaStored(digest, int64(len(data)))
	}
	return asset, wrote, nil
}

// Has reports whether digest is stored.
func (s *Store) Has(ctx context.Context, digest string) (bool, error) {
	if _, ok := s.lookup(digest); ok {
		return true, nil
	}
	if sha256.Validate(digest) != nil {
		return false, nil
	}
	path := ObjectPath(digest)
	ok, err := s.backend.Exists(ctx, path)
	if err != nil {
		return false, &crawler.IOError{Op: "exists", Path: path, Err: err}
	}
	if ok {
		s.mu.Lock()
		if _, seen := s.known[digest]; !seen {
			s.known[digest] = crawler.MediaAsset{Digest: digest, StoragePath: path}
		}
		s.mu.Unlock()
	}
	return ok, nil
}

// Get returns the bytes for digest after re-hashing them. Unknown digests
// return crawler.ErrNotFound; bytes that no longer match return
// crawler.ErrHashMismatch.
func (s *Store) Get(ctx context.Context, digest string) ([]byte, error) {
	if err := sha256.Validate(digest); err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrNotFound, err)
	}
	path := ObjectPath(digest)
	data, err := s.backend.GetObject(ctx, path)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			return nil, fmt.Errorf("media %s: %w", digest, crawler.ErrNotFound)
		}
		return nil, &crawler.IOError{Op: "get", Path: path, Err: err}
	}
	got, err := s.hasher.Hash(data)
	if err != nil {
		return nil, fmt.Errorf("hash media: %w", err)
	}
	if got != digest {
		return nil, fmt.Errorf("media %s hashes to %s: %w", digest, got, crawler.ErrHashMismatch)
	}
	return data, nil
}

// Digests lists every digest known to the store, sorted.
func (s *Store) Digests() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.known))
	for d := range s.known {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Asset returns the recorded metadata for digest.
func (s *Store) Asset(digest string) (crawler.MediaAsset, bool) {
	return s.lookup(digest)
}

// StoreMedia downloads url through the fetcher and stores the body.
func (s *Store) StoreMedia(ctx context.Context, url string) (crawler.MediaAsset, error) {
	if s.fetcher == nil {
		return crawler.MediaAsset{}, errors.New("content store has no fetcher")
	}
	payload, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return crawler.MediaAsset{}, err
	}
	if len(payload.Body) == 0 {
		return crawler.MediaAsset{}, &crawler.NetworkError{URL: url, StatusCode: payload.StatusCode, Err: errors.New("empty media body")}
	}
	if s.maxBytes > 0 && int64(len(payload.Body)) > s.maxBytes {
		return crawler.MediaAsset{}, &crawler.NetworkError{
			URL:        url,
			StatusCode: payload.StatusCode,
			Err:        fmt.Errorf("media is %d bytes, limit %d", len(payload.Body), s.maxBytes),
		}
	}
	asset, _, err := s.put(ctx, payload.Body, payload.ContentType)
	return asset, err
}

func (s *Store) lookup(digest string) (crawler.MediaAsset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.known[digest]
	return asset, ok
}

// describe fills metadata missing from an index entry recovered by listing.
func (s *Store) describe(asset crawler.MediaAsset, data []byte, mimeType string) crawler.MediaAsset {
	if asset.ByteLength != 0 && asset.MimeType != "" {
		return asset
	}
	asset.ByteLength = int64(len(data))
	asset.MimeType = detectMime(mimeType, data)
	s.mu.Lock()
	s.known[asset.Digest] = asset
	s.mu.Unlock()
	return asset
}

// detectMime prefers the declared media type and sniffs the bytes otherwise.
func detectMime(declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

var _ crawler.ContentStore = (*Store)(nil)
