package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/qa-archiver/internal/document"
)

// Fetcher retrieves raw bytes plus metadata for a resource URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Payload, error)
}

// Normalizer turns a fetched payload into a document.
type Normalizer interface {
	Normalize(ctx context.Context, id ItemID, payload Payload) (*document.Document, error)
}

// Resolver extracts references to other items from a document. It performs no I/O.
type Resolver interface {
	Resolve(source ItemID, doc *document.Document) []Reference
}

// Lister enumerates the members of container items, such as the answers of a
// question, across the platform's paged listings.
type Lister interface {
	Members(ctx context.Context, id ItemID) ([]ItemID, error)
}

// MediaStorer fetches a media URL and stores its bytes content-addressed.
type MediaStorer interface {
	StoreMedia(ctx context.Context, url string) (MediaAsset, error)
}

// ContentStore persists binary media keyed by digest.
type ContentStore interface {
	MediaStorer
	Put(ctx context.Context, data []byte, mimeType string) (MediaAsset, error)
	Has(ctx context.Context, digest string) (bool, error)
	Get(ctx context.Context, digest string) ([]byte, error)
	Digests() []string
}

// ItemStore is the item table: id to status and document.
type ItemStore interface {
	Get(ctx context.Context, id ItemID) (Item, error)
	Put(ctx context.Context, item Item) error
	List(ctx context.Context) ([]Item, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
