package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultAPIBase is the platform API origin.
const DefaultAPIBase = "https://www.zhihu.com"

// endpointPaths maps every kind to its API path template. The table is total
// over Kinds.
var endpointPaths = map[Kind]string{
	KindAnswer:     "/api/v4/answers/%s?include=content,question,excerpt",
	KindArticle:    "/api/v4/articles/%s",
	KindPin:        "/api/v4/v2/pins/%s",
	KindCollection: "/api/v4/collections/%s",
	KindQuestion:   "/api/v4/questions/%s?include=detail",
	KindUser:       "/api/v4/members/%s?include=description,headline",
}

// listingPaths maps container kinds to the first page of their member
// listing. Kinds without members are absent.
var listingPaths = map[Kind]string{
	KindQuestion:   "/api/v4/questions/%s/answers?limit=20",
	KindCollection: "/api/v4/collections/%s/items?limit=20",
	KindUser:       "/api/v4/moments/%s/activities?limit=20",
}

var (
	numericKey = regexp.MustCompile(`^[0-9]+$`)
	tokenKey   = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Endpoints builds API URLs for items.
type Endpoints struct {
	base string
}

// NewEndpoints returns Endpoints rooted at base; an empty base uses DefaultAPIBase.
func NewEndpoints(base string) (Endpoints, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultAPIBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return Endpoints{}, fmt.Errorf("parse api base: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Endpoints{}, fmt.Errorf("api base %q must be absolute", base)
	}
	return Endpoints{base: base}, nil
}

// URL returns the API URL for id. A malformed key is a permanent network error
// so it is never retried.
func (e Endpoints) URL(id ItemID) (string, error) {
	tmpl, ok := endpointPaths[id.Kind]
	if !ok {
		return "", &NetworkError{URL: id.String(), Err: fmt.Errorf("no endpoint for kind %q", id.Kind)}
	}
	if !validKey(id) {
		return "", &NetworkError{URL: id.String(), Err: fmt.Errorf("malformed key %q", id.Key)}
	}
	return e.root() + fmt.Sprintf(tmpl, url.PathEscape(id.Key)), nil
}

// ListURL returns the first listing page of id's members. ok is false for
// kinds that have no members.
func (e Endpoints) ListURL(id ItemID) (string, bool, error) {
	tmpl, ok := listingPaths[id.Kind]
	if !ok {
		return "", false, nil
	}
	if !validKey(id) {
		return "", false, &NetworkError{URL: id.String(), Err: fmt.Errorf("malformed key %q", id.Key)}
	}
	return e.root() + fmt.Sprintf(tmpl, url.PathEscape(id.Key)), true, nil
}

// Rebase moves a URL handed out by the API, such as a paging cursor, onto the
// configured origin and canonicalizes it. Relative URLs resolve against the
// origin.
func (e Endpoints) Rebase(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	root, err := url.Parse(e.root())
	if err != nil {
		return "", fmt.Errorf("parse api base: %w", err)
	}
	rebased := root.ResolveReference(&url.URL{Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery})
	return NormalizeURL(rebased.String())
}

func (e Endpoints) root() string {
	if e.base == "" {
		return DefaultAPIBase
	}
	return e.base
}

// Users are addressed by url token, everything else by numeric id.
func validKey(id ItemID) bool {
	if id.Kind == KindUser {
		return tokenKey.MatchString(id.Key)
	}
	return numericKey.MatchString(id.Key)
}
