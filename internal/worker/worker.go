// Package worker implements the per-item crawl pipeline: fetch, normalize,
// resolve and store, with the item's status written at every transition.
package worker

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/qa-archiver/internal/clock/system"
	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
	"github.com/JakeFAU/qa-archiver/internal/frontier"
	"github.com/JakeFAU/qa-archiver/internal/progress"
)

// Options wires a Pipeline.
type Options struct {
	Fetcher    crawler.Fetcher
	Endpoints  crawler.Endpoints
	Normalizer crawler.Normalizer
	Resolver   crawler.Resolver
	// Lister is optional; without it container members are not enumerated.
	Lister   crawler.Lister
	Items    crawler.ItemStore
	Clock    crawler.Clock
	Reporter *progress.Reporter
	Logger   *zap.Logger
}

// Pipeline processes one item at a time. It is safe for concurrent use as long
// as no two goroutines process the same item, which the frontier guarantees.
type Pipeline struct {
	fetcher    crawler.Fetcher
	endpoints  crawler.Endpoints
	normalizer crawler.Normalizer
	resolver   crawler.Resolver
	lister     crawler.Lister
	items      crawler.ItemStore
	clock      crawler.Clock
	reporter   *progress.Reporter
	logger     *zap.Logger
}

// Result is what one Process call hands back to the dispatcher.
type Result struct {
	Entry      frontier.Entry
	Item       crawler.Item
	References []crawler.Reference
	// Err is the failure reason. An AuthError is also Interrupted.
	Err error
	// Interrupted items were left pending for a later run.
	Interrupted bool
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Fetcher == nil:
		return nil, errors.New("worker: fetcher is required")
	case opts.Normalizer == nil:
		return nil, errors.New("worker: normalizer is required")
	case opts.Resolver == nil:
		return nil, errors.New("worker: resolver is required")
	case opts.Items == nil:
		return nil, errors.New("worker: item store is required")
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:    opts.Fetcher,
		endpoints:  opts.Endpoints,
		normalizer: opts.Normalizer,
		resolver:   opts.Resolver,
		lister:     opts.Lister,
		items:      opts.Items,
		clock:      opts.Clock,
		reporter:   opts.Reporter,
		logger:     opts.Logger,
	}, nil
}

// Process runs the pipeline for one frontier entry. It never panics; a panic
// in any stage marks the item failed.
func (p *Pipeline) Process(ctx context.Context, entry frontier.Entry) (res Result) {
	start := p.clock.Now()
	item := crawler.Item{ID: entry.ID, Depth: entry.Depth}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic",
				zap.String("item", entry.ID.String()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			res = p.fail(ctx, entry, item, fmt.Errorf("pipeline panic: %v", r), start)
		}
	}()

	if ctx.Err() != nil {
		return p.interrupt(ctx, entry, item, nil)
	}
	p.reporter.ItemStarted(entry.ID.String(), string(entry.ID.Kind), entry.Depth)

	item.Status = crawler.StatusFetching
	if err := p.save(ctx, &item); err != nil {
		return p.fail(ctx, entry, item, err, start)
	}

	target, err := p.endpoints.URL(entry.ID)
	if err != nil {
		return p.fail(ctx, entry, item, err, start)
	}
	payload, err := p.fetcher.Fetch(ctx, target)
	if err != nil {
		if crawler.IsAuth(err) {
			p.logger.Error("session rejected", zap.String("item", entry.ID.String()), zap.Error(err))
			return p.interrupt(ctx, entry, item, err)
		}
		if ctx.Err() != nil {
			return p.interrupt(ctx, entry, item, nil)
		}
		return p.fail(ctx, entry, item, err, start)
	}
	item.SourceURL = target
	item.ContentType = payload.ContentType
	item.RawPayload = payload.Body

	doc, err := p.normalizer.Normalize(ctx, entry.ID, payload)
	if err != nil {
		var parseErr *crawler.ParseError
		if errors.As(err, &parseErr) {
			// The raw payload stands in for the document it could not become.
			item.Document = placeholder(payload)
		}
		return p.fail(ctx, entry, item, err, start)
	}
	if ctx.Err() != nil {
		return p.interrupt(ctx, entry, item, nil)
	}
	item.Document = doc
	item.Status = crawler.StatusParsed
	if err := p.save(ctx, &item); err != nil {
		return p.fail(ctx, entry, item, err, start)
	}

	refs := p.resolver.Resolve(entry.ID, doc)
	if p.lister != nil {
		members, err := p.lister.Members(ctx, entry.ID)
		if err != nil {
			if crawler.IsAuth(err) {
				p.logger.Error("session rejected", zap.String("item", entry.ID.String()), zap.Error(err))
				return p.interrupt(ctx, entry, item, err)
			}
			if ctx.Err() != nil {
				return p.interrupt(ctx, entry, item, nil)
			}
			return p.fail(ctx, entry, item, fmt.Errorf("list members: %w", err), start)
		}
		refs = withMembers(entry.ID, refs, members)
	}
	item.References = make([]crawler.ItemID, 0, len(refs))
	for _, ref := range refs {
		item.References = append(item.References, ref.Target)
	}

	if ctx.Err() != nil {
		return p.interrupt(ctx, entry, item, nil)
	}
	item.Status = crawler.StatusDone
	if err := p.save(ctx, &item); err != nil {
		return p.fail(ctx, entry, item, err, start)
	}

	dur := p.clock.Now().Sub(start)
	p.reporter.ItemDone(entry.ID.String(), string(entry.ID.Kind), entry.Depth, int64(len(payload.Body)), dur)
	p.logger.Debug("item done",
		zap.String("item", entry.ID.String()),
		zap.Int("depth", entry.Depth),
		zap.Int("references", len(refs)),
		zap.Duration("duration", dur),
	)
	return Result{Entry: entry, Item: item, References: refs}
}

func (p *Pipeline) save(ctx context.Context, item *crawler.Item) error {
	item.UpdatedAt = p.clock.Now()
	if err := p.items.Put(ctx, *item); err != nil {
		return fmt.Errorf("record %s as %s: %w", item.ID, item.Status, err)
	}
	return nil
}

// fail records the item as failed. The write ignores cancellation so the
// outcome of finished work is never lost.
func (p *Pipeline) fail(ctx context.Context, entry frontier.Entry, item crawler.Item, cause error, start time.Time) Result {
	item.Status = crawler.StatusFailed
	item.Reason = cause.Error()
	item.References = nil
	if err := p.save(context.WithoutCancel(ctx), &item); err != nil {
		p.logger.Error("record failure", zap.String("item", entry.ID.String()), zap.Error(err))
	}
	p.reporter.ItemFailed(entry.ID.String(), string(entry.ID.Kind), entry.Depth, item.Reason, p.clock.Now().Sub(start))
	p.logger.Warn("item failed",
		zap.String("item", entry.ID.String()),
		zap.Int("depth", entry.Depth),
		zap.Error(cause),
	)
	return Result{Entry: entry, Item: item, Err: cause}
}

// interrupt puts the item back to pending.
func (p *Pipeline) interrupt(ctx context.Context, entry frontier.Entry, item crawler.Item, cause error) Result {
	item.Status = crawler.StatusPending
	item.Document = nil
	item.References = nil
	item.RawPayload = nil
	if err := p.save(context.WithoutCancel(ctx), &item); err != nil {
		p.logger.Error("record pending", zap.String("item", entry.ID.String()), zap.Error(err))
	}
	return Result{Entry: entry, Item: item, Err: cause, Interrupted: true}
}

// withMembers merges listed members into the resolved references, keeping
// them distinct and sorted by ID.
func withMembers(source crawler.ItemID, refs []crawler.Reference, members []crawler.ItemID) []crawler.Reference {
	if len(members) == 0 {
		return refs
	}
	seen := make(map[crawler.ItemID]bool, len(refs)+len(members))
	targets := make([]crawler.ItemID, 0, len(refs)+len(members))
	for _, ref := range refs {
		seen[ref.Target] = true
		targets = append(targets, ref.Target)
	}
	for _, id := range members {
		if id == source || seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, id)
	}
	crawler.SortIDs(targets)

	merged := make([]crawler.Reference, 0, len(targets))
	for _, id := range targets {
		merged = append(merged, crawler.Reference{Target: id, Source: source})
	}
	return merged
}

func placeholder(payload crawler.Payload) *document.Document {
	return &document.Document{
		Version: document.Version,
		Blocks: document.Blocks{document.Raw{
			Tag:  "payload",
			HTML: "<pre>" + html.EscapeString(string(payload.Body)) + "</pre>",
		}},
	}
}
