// Package resolve finds references to other platform items inside documents.
// It performs no I/O.
package resolve

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
)

// pattern binds a host and path shape to an item kind. The first capture
// group of path is the item key.
type pattern struct {
	hosts []string
	path  *regexp.Regexp
	kind  crawler.Kind
}

// patterns is evaluated top to bottom; more specific paths come first.
var patterns = []pattern{
	{hosts: []string{"www.zhihu.com", "zhihu.com"}, path: regexp.MustCompile(`^/question/[0-9]+/answers?/([0-9]+)/?$`), kind: crawler.KindAnswer},
	{hosts: []string{"www.zhihu.com", "zhihu.com"}, path: regexp.MustCompile(`^/answer/([0-9]+)/?$`), kind: crawler.KindAnswer},
	{hosts: []string{"www.zhihu.com", "zhihu.com"}, path: regexp.MustCompile(`^/question/([0-9]+)/?$`), kind: crawler.KindQuestion},
	{hosts: []string{"zhuanlan.zhihu.com"}, path: regexp.MustCompile(`^/p/([0-9]+)/?$`), kind: crawler.KindArticle},
	{hosts: []string{"www.zhihu.com", "zhihu.com"}, path: regexp.MustCompile(`^/pin/([0-9]+)/?$`), kind: crawler.KindPin},
	{hosts: []string{"www.zhihu.com", "zhihu.com"}, path: regexp.MustCompile(`^/collection/([0-9]+)/?$`), kind: crawler.KindCollection},
	{hosts: []string{"www.zhihu.com", "zhihu.com"}, path: regexp.MustCompile(`^/(?:people|org)/([A-Za-z0-9_.-]+)(?:/[a-z]*)?/?$`), kind: crawler.KindUser},
	{hosts: []string{"api.zhihu.com", "www.zhihu.com"}, path: regexp.MustCompile(`^/api/v4/answers/([0-9]+)$`), kind: crawler.KindAnswer},
}

// Resolver implements crawler.Resolver over the pattern table.
type Resolver struct{}

// New returns a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve returns the distinct items doc refers to, sorted by ID. Links that
// match no pattern and links back to source are dropped.
func (*Resolver) Resolve(source crawler.ItemID, doc *document.Document) []crawler.Reference {
	seen := make(map[crawler.ItemID]bool)
	var targets []crawler.ItemID
	for _, link := range candidates(doc) {
		id, ok := Match(link)
		if !ok || id == source || seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, id)
	}
	crawler.SortIDs(targets)

	refs := make([]crawler.Reference, 0, len(targets))
	for _, id := range targets {
		refs = append(refs, crawler.Reference{Target: id, Source: source})
	}
	return refs
}

// candidates lists links, link cards, embeds and related links. Footnotes
// and media sources are citations, not navigation, so they are left out.
func candidates(doc *document.Document) []string {
	if doc == nil {
		return nil
	}
	var out []string
	document.Walk(doc, func(b document.Block, in document.Inline) {
		switch v := b.(type) {
		case document.LinkCard:
			out = append(out, v.Link.Target)
		case document.Embed:
			out = append(out, v.URL)
		}
		if link, ok := in.(document.Link); ok {
			out = append(out, link.Target)
		}
	})
	for _, l := range doc.Related {
		out = append(out, l.Target)
	}
	return out
}

// Match classifies a single link. Redirect wrappers are unwrapped and
// relative links resolve against the platform origin.
func Match(raw string) (crawler.ItemID, bool) {
	raw = crawler.UnwrapRedirect(raw)
	if raw == "" {
		return crawler.ItemID{}, false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return crawler.ItemID{}, false
	}
	if !u.IsAbs() {
		if !strings.HasPrefix(u.Path, "/") {
			return crawler.ItemID{}, false
		}
		u.Scheme, u.Host = "https", "www.zhihu.com"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return crawler.ItemID{}, false
	}
	canonical, err := crawler.NormalizeURL(u.String())
	if err != nil {
		return crawler.ItemID{}, false
	}
	if u, err = url.Parse(canonical); err != nil {
		return crawler.ItemID{}, false
	}
	host := u.Hostname()
	for _, p := range patterns {
		if !hostMatches(p.hosts, host) {
			continue
		}
		if m := p.path.FindStringSubmatch(u.Path); m != nil {
			return crawler.ItemID{Kind: p.kind, Key: m[1]}, true
		}
	}
	return crawler.ItemID{}, false
}

func hostMatches(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}

// ParseSeed accepts either kind:key or a platform URL.
func ParseSeed(raw string) (crawler.ItemID, error) {
	raw = strings.TrimSpace(raw)
	if id, ok := Match(raw); ok {
		return id, nil
	}
	id, err := crawler.ParseItemID(raw)
	if err != nil {
		return crawler.ItemID{}, fmt.Errorf("seed %q is neither kind:key nor a known platform url: %w", raw, err)
	}
	return id, nil
}

var _ crawler.Resolver = (*Resolver)(nil)
