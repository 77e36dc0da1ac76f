// Package crawler defines core types shared across subsystems.
package crawler

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/qa-archiver/internal/document"
)

// Kind is the closed set of platform entity kinds the archiver understands.
type Kind string

// Supported entity kinds.
const (
	KindAnswer     Kind = "answer"
	KindArticle    Kind = "article"
	KindPin        Kind = "pin"
	KindCollection Kind = "collection"
	KindQuestion   Kind = "question"
	KindUser       Kind = "user"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindAnswer, KindArticle, KindPin, KindCollection, KindQuestion, KindUser}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAnswer, KindArticle, KindPin, KindCollection, KindQuestion, KindUser:
		return true
	default:
		return false
	}
}

// ParseKind converts a case-insensitive name into a Kind.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown item kind %q", raw)
	}
	return k, nil
}

// ItemID identifies one platform entity.
type ItemID struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Key  string `json:"key" yaml:"key"`
}

// String renders the ID as kind:key, which is also the visited-set key.
func (id ItemID) String() string {
	return string(id.Kind) + ":" + id.Key
}

// Validate checks that the ID names a known kind and a non-empty key.
func (id ItemID) Validate() error {
	if !id.Kind.Valid() {
		return fmt.Errorf("unknown item kind %q", id.Kind)
	}
	if strings.TrimSpace(id.Key) == "" {
		return fmt.Errorf("%s: empty key", id.Kind)
	}
	return nil
}

// ParseItemID parses the kind:key form produced by ItemID.String.
func ParseItemID(raw string) (ItemID, error) {
	kindPart, key, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return ItemID{}, fmt.Errorf("item id %q must look like kind:key", raw)
	}
	kind, err := ParseKind(kindPart)
	if err != nil {
		return ItemID{}, err
	}
	id := ItemID{Kind: kind, Key: strings.TrimSpace(key)}
	if err := id.Validate(); err != nil {
		return ItemID{}, err
	}
	return id, nil
}

// SortIDs orders ids by kind then key.
func SortIDs(ids []ItemID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Kind != ids[j].Kind {
			return ids[i].Kind < ids[j].Kind
		}
		return ids[i].Key < ids[j].Key
	})
}

// Status represents the lifecycle state of an item.
type Status string

// Item status values persisted in the item table.
const (
	StatusPending  Status = "pending"
	StatusFetching Status = "fetching"
	StatusParsed   Status = "parsed"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the status ends an item's lifecycle for a run.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Item is one platform entity tracked through the crawl.
type Item struct {
	ID          ItemID             `json:"id"`
	Status      Status             `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	Depth       int                `json:"depth"`
	SourceURL   string             `json:"source_url,omitempty"`
	ContentType string             `json:"content_type,omitempty"`
	RawPayload  []byte             `json:"-"`
	Document    *document.Document `json:"document,omitempty"`
	References  []ItemID           `json:"references,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Reference is an edge discovered while resolving one item's document.
type Reference struct {
	Target ItemID `json:"target"`
	Source ItemID `json:"source"`
}

// MediaAsset describes a stored binary object keyed by content digest.
type MediaAsset struct {
	Digest      string `json:"digest" yaml:"digest"`
	MimeType    string `json:"mime_type" yaml:"mime_type"`
	ByteLength  int64  `json:"byte_length" yaml:"byte_length"`
	StoragePath string `json:"storage_path" yaml:"storage_path"`
}

// Session is the authenticated session attached to every fetch. It is passed
// by value so independent crawls never share credentials.
type Session struct {
	Cookie    string
	Token     string
	UserAgent string
}

// Apply writes the session credentials onto a header set.
func (s Session) Apply(h http.Header) {
	if s.Cookie != "" {
		h.Set("Cookie", s.Cookie)
	}
	if s.Token != "" {
		h.Set("Authorization", "Bearer "+s.Token)
	}
	if s.UserAgent != "" {
		h.Set("User-Agent", s.UserAgent)
	}
}

// Payload is the result returned by a Fetcher implementation.
type Payload struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
}
