// Package normalize converts fetched platform payloads into documents.
//
// Normalization runs in three phases. A first walk over the parsed DOM lists
// the image sources the document will reference, every unique source is
// fetched and stored through the MediaStorer, and finally the DOM is walked
// again through the same mapping table. A failed download only degrades the
// block that referenced it; a failed store fails the item.
package normalize

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
)

// Broken media reasons that do not come from a store error.
const (
	reasonUnsupported = "unsupported media source"
	reasonDisabled    = "media storage disabled"
	reasonCanceled    = "canceled before fetch"
)

// Options configures a Normalizer.
type Options struct {
	// Media stores embedded images. When nil every image becomes a broken reference.
	Media  crawler.MediaStorer
	Logger *zap.Logger
}

// Normalizer implements crawler.Normalizer over goquery.
type Normalizer struct {
	media  crawler.MediaStorer
	logger *zap.Logger
}

// New constructs a Normalizer.
func New(opts Options) *Normalizer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{media: opts.Media, logger: logger}
}

// Normalize parses payload into a document. Undecodable payloads fail with
// *crawler.ParseError; media that could not be persisted fails with the
// storage error.
func (n *Normalizer) Normalize(ctx context.Context, id crawler.ItemID, payload crawler.Payload) (*document.Document, error) {
	src, err := decodePayload(id, payload)
	if err != nil {
		return nil, &crawler.ParseError{Item: id, Err: err}
	}

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(src.HTML))
	if err != nil {
		return nil, &crawler.ParseError{Item: id, Err: fmt.Errorf("parse html: %w", err)}
	}
	body := dom.Find("body")

	sources := collectMedia(body)
	refs, err := n.storeMedia(ctx, id, sources)
	if err != nil {
		return nil, err
	}
	w := &walker{media: refs}

	doc := &document.Document{
		Version: document.Version,
		Title:   strings.TrimSpace(src.Title),
		Blocks:  w.blocks(body),
		Related: src.Related,
	}
	if doc.Blocks == nil {
		doc.Blocks = document.Blocks{}
	}

	n.logger.Debug("item normalized",
		zap.String("item", id.String()),
		zap.Int("blocks", len(doc.Blocks)),
		zap.Int("media", len(sources)),
		zap.Strings("raw_tags", w.raw),
	)
	return doc, nil
}

// storeMedia fetches each source once. The context is checked before every
// fetch; sources skipped after cancellation are recorded as broken. Storage
// errors abort normalization so the item can be retried.
func (n *Normalizer) storeMedia(ctx context.Context, id crawler.ItemID, sources []string) (map[string]document.MediaRef, error) {
	refs := make(map[string]document.MediaRef, len(sources))
	for _, src := range sources {
		ref := document.MediaRef{URL: src}
		switch {
		case !fetchable(src):
			ref.Broken, ref.Reason = true, reasonUnsupported
		case n.media == nil:
			ref.Broken, ref.Reason = true, reasonDisabled
		case ctx.Err() != nil:
			ref.Broken, ref.Reason = true, reasonCanceled
		default:
			asset, err := n.media.StoreMedia(ctx, src)
			if crawler.IsStorage(err) {
				return nil, fmt.Errorf("store media %s: %w", src, err)
			}
			if err != nil {
				n.logger.Warn("media fetch failed",
					zap.String("item", id.String()),
					zap.String("url", src),
					zap.Error(err),
				)
				ref.Broken, ref.Reason = true, err.Error()
				break
			}
			ref.Digest = asset.Digest
			ref.MimeType = asset.MimeType
		}
		refs[src] = ref
	}
	return refs, nil
}

// collectMedia lists, in document order, every unique media source the mapped
// document references. Images under raw passthrough or code blocks are not
// referenced and so are never fetched.
func collectMedia(body *goquery.Selection) []string {
	w := &walker{collecting: true, seen: make(map[string]bool)}
	w.blocks(body)
	return w.wanted
}

// imageSource prefers the full size original over lazy-load placeholders.
func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"data-original", "data-actualsrc", "src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

func posterOf(a *goquery.Selection) string {
	if p := strings.TrimSpace(a.AttrOr("data-poster", "")); p != "" {
		return p
	}
	return imageSource(a.Find("img").First())
}

// mediaKey canonicalizes a source so identical images share one fetch.
func mediaKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !u.IsAbs() {
		base, _ := url.Parse(crawler.DefaultAPIBase + "/")
		return base.ResolveReference(u).String()
	}
	return u.String()
}

func fetchable(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// equationTex recognizes formula images rendered by the platform.
func equationTex(img *goquery.Selection, src string) (string, bool) {
	if img.HasClass("ztext-math") {
		return img.AttrOr("alt", ""), true
	}
	u, err := url.Parse(mediaKey(src))
	if err != nil || u.Path != "/equation" || !strings.HasSuffix(u.Hostname(), "zhihu.com") {
		return "", false
	}
	if alt := strings.TrimSpace(img.AttrOr("alt", "")); alt != "" {
		return alt, true
	}
	return u.Query().Get("tex"), true
}

var _ crawler.Normalizer = (*Normalizer)(nil)
