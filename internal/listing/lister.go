// Package listing walks the paged member listings of container items: the
// answers of a question, the items of a collection and the activity feed of a
// user. Pages are followed through paging.next until the API reports is_end.
package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
)

// Options wires a Lister.
type Options struct {
	Fetcher   crawler.Fetcher
	Endpoints crawler.Endpoints
	// MaxPages bounds the pages read per container; zero reads to the end.
	MaxPages int
	Logger   *zap.Logger
}

// Lister implements crawler.Lister over the platform listing API.
type Lister struct {
	fetcher   crawler.Fetcher
	endpoints crawler.Endpoints
	maxPages  int
	logger    *zap.Logger
}

// New validates opts and builds a Lister.
func New(opts Options) (*Lister, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("listing: fetcher is required")
	}
	if opts.MaxPages < 0 {
		return nil, fmt.Errorf("listing: max pages must be >= 0, got %d", opts.MaxPages)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{
		fetcher:   opts.Fetcher,
		endpoints: opts.Endpoints,
		maxPages:  opts.MaxPages,
		logger:    logger,
	}, nil
}

type page struct {
	Data   []json.RawMessage `json:"data"`
	Paging *paging           `json:"paging"`
}

type paging struct {
	IsEnd  bool   `json:"is_end"`
	Next   string `json:"next"`
	Totals *int64 `json:"totals"`
}

// member is the identifying part of any listed object.
type member struct {
	ID       flexID `json:"id"`
	Type     string `json:"type"`
	URLToken string `json:"url_token"`
}

// entry is one listing element. Collection items wrap the member in content
// and activities in target; the answers of a question are listed bare.
type entry struct {
	member
	Content *member `json:"content"`
	Target  *member `json:"target"`
}

type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexID(strings.Trim(string(b), `"`))
	return nil
}

// Members returns the distinct items listed under id in listing order. Kinds
// without a listing have no members. Fetch errors are returned unchanged so
// the caller can tell an AuthError from a failed page; undecodable pages are
// a *crawler.ParseError.
func (l *Lister) Members(ctx context.Context, id crawler.ItemID) ([]crawler.ItemID, error) {
	next, ok, err := l.endpoints.ListURL(id)
	if err != nil || !ok {
		return nil, err
	}

	seen := make(map[crawler.ItemID]bool)
	visited := make(map[string]bool)
	var (
		out     []crawler.ItemID
		skipped int
		pages   int
		totals  int64 = -1
	)
	for next != "" {
		if l.maxPages > 0 && pages >= l.maxPages {
			l.logger.Info("listing truncated",
				zap.String("item", id.String()),
				zap.Int("pages", pages),
				zap.Int("members", len(out)),
			)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited[next] = true
		payload, err := l.fetcher.Fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		pages++

		var pg page
		if err := json.Unmarshal(payload.Body, &pg); err != nil {
			return nil, &crawler.ParseError{Item: id, Err: fmt.Errorf("decode listing page %s: %w", next, err)}
		}
		if pg.Paging != nil && pg.Paging.Totals != nil && totals < 0 {
			totals = *pg.Paging.Totals
		}
		for _, raw := range pg.Data {
			m, ok := decodeMember(id.Kind, raw)
			if !ok {
				skipped++
				continue
			}
			if m == id || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}

		next, err = l.nextPage(pg.Paging)
		if err != nil {
			return nil, &crawler.ParseError{Item: id, Err: err}
		}
		if visited[next] {
			l.logger.Warn("listing cursor repeats", zap.String("item", id.String()), zap.String("next", next))
			break
		}
	}

	l.logger.Debug("listed members",
		zap.String("item", id.String()),
		zap.Int("pages", pages),
		zap.Int("members", len(out)),
		zap.Int("skipped", skipped),
		zap.Int64("totals", totals),
	)
	return out, nil
}

func (l *Lister) nextPage(p *paging) (string, error) {
	if p == nil || p.IsEnd || strings.TrimSpace(p.Next) == "" {
		return "", nil
	}
	next, err := l.endpoints.Rebase(p.Next)
	if err != nil {
		return "", fmt.Errorf("paging cursor %q: %w", p.Next, err)
	}
	return next, nil
}

// decodeMember maps one listing element to an item. Elements of kinds the
// archiver does not know, such as columns or videos, are skipped.
func decodeMember(container crawler.Kind, raw json.RawMessage) (crawler.ItemID, bool) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return crawler.ItemID{}, false
	}
	m := e.member
	switch {
	case e.Content != nil:
		m = *e.Content
	case e.Target != nil:
		m = *e.Target
	}
	if m.Type == "" && container == crawler.KindQuestion {
		m.Type = string(crawler.KindAnswer)
	}

	var id crawler.ItemID
	switch m.Type {
	case "people", "member":
		id = crawler.ItemID{Kind: crawler.KindUser, Key: m.URLToken}
	default:
		kind, err := crawler.ParseKind(m.Type)
		if err != nil {
			return crawler.ItemID{}, false
		}
		id = crawler.ItemID{Kind: kind, Key: string(m.ID)}
	}
	if id.Validate() != nil {
		return crawler.ItemID{}, false
	}
	return id, true
}

var _ crawler.Lister = (*Lister)(nil)
