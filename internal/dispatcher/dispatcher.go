// Package dispatcher drives a crawl run. A single coordinator goroutine owns
// the frontier, hands entries to a fixed pool of workers and folds their
// results back into the traversal.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/qa-archiver/internal/clock/system"
	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/frontier"
	"github.com/JakeFAU/qa-archiver/internal/progress"
	"github.com/JakeFAU/qa-archiver/internal/worker"
)

// Processor runs the pipeline for one entry.
type Processor interface {
	Process(ctx context.Context, entry frontier.Entry) worker.Result
}

// MediaIndex lists stored media digests for the run report.
type MediaIndex interface {
	Digests() []string
}

// Options wires a Dispatcher.
type Options struct {
	Config    crawler.Config
	Processor Processor
	Items     crawler.ItemStore
	Media     MediaIndex
	Reporter  *progress.Reporter
	Clock     crawler.Clock
	Logger    *zap.Logger
	// ResumePending re-seeds items an earlier run left unfinished, at the
	// depth they were discovered at.
	ResumePending bool
}

// Dispatcher runs crawls.
type Dispatcher struct {
	cfg           crawler.Config
	processor     Processor
	items         crawler.ItemStore
	media         MediaIndex
	reporter      *progress.Reporter
	clock         crawler.Clock
	logger        *zap.Logger
	resumePending bool
}

// New validates opts and creates a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("dispatcher config: %w", err)
	}
	if opts.Processor == nil {
		return nil, errors.New("dispatcher: processor is required")
	}
	if opts.Items == nil {
		return nil, errors.New("dispatcher: item store is required")
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:           opts.Config,
		processor:     opts.Processor,
		items:         opts.Items,
		media:         opts.Media,
		reporter:      opts.Reporter,
		clock:         opts.Clock,
		logger:        opts.Logger,
		resumePending: opts.ResumePending,
	}, nil
}

// Report summarizes one run. Items is the item table as the run left it and
// Media every stored digest; the counters cover this run only.
type Report struct {
	RunID string
	Items []crawler.Item
	Media []string

	Done          int
	Failed        int
	Pending       int
	Skipped       int
	DepthExceeded int
	Visited       int
	ItemLimitHit  bool
	Duration      time.Duration

	failures []Failure
}

// Failure is one item that failed during the run.
type Failure struct {
	ID     crawler.ItemID
	Reason string
}

// Failures returns the run's failed items sorted by ID.
func (r Report) Failures() []Failure {
	out := append([]Failure(nil), r.failures...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID.Kind != out[j].ID.Kind {
			return out[i].ID.Kind < out[j].ID.Kind
		}
		return out[i].ID.Key < out[j].ID.Key
	})
	return out
}

// SoftStops lists the bounds that cut the run short.
func (r Report) SoftStops() []error {
	var out []error
	if r.DepthExceeded > 0 {
		out = append(out, crawler.ErrDepthExceeded)
	}
	if r.ItemLimitHit {
		out = append(out, crawler.ErrItemLimitExceeded)
	}
	return out
}

// run is the coordinator state of one Run call. Only the coordinator
// goroutine touches it.
type run struct {
	d       *Dispatcher
	state   *frontier.State
	report  Report
	started int
}

// Run crawls breadth-first from seeds. It returns the AuthError that aborted
// the crawl, the context error when the caller canceled it, or nil. The
// report is valid in every case.
func (d *Dispatcher) Run(ctx context.Context, seeds []crawler.ItemID) (Report, error) {
	start := d.clock.Now()
	for _, id := range seeds {
		if err := id.Validate(); err != nil {
			return Report{}, fmt.Errorf("seed %s: %w", id, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{d: d, state: frontier.New(d.cfg.MaxDepth)}
	if d.reporter != nil {
		r.report.RunID = d.reporter.RunID().String()
	}
	d.reporter.RunStarted(len(seeds))
	d.logger.Info("crawl started",
		zap.String("run_id", r.report.RunID),
		zap.Int("seeds", len(seeds)),
		zap.Int("max_concurrency", d.cfg.MaxConcurrency),
		zap.Int("max_depth", d.cfg.MaxDepth),
		zap.Int("max_items", d.cfg.MaxItems),
	)

	for _, id := range seeds {
		r.offer(runCtx, id, 0)
	}
	if d.resumePending {
		r.resume(runCtx)
	}

	err := r.loop(runCtx, cancel)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	left := r.state.Drain()
	r.report.Pending += len(left)
	r.report.Visited = r.state.VisitedCount()
	r.finish(context.WithoutCancel(ctx), start)

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	d.reporter.RunDone(r.report.Done+r.report.Failed, r.report.Duration, reason)
	d.logger.Info("crawl finished",
		zap.String("run_id", r.report.RunID),
		zap.Int("done", r.report.Done),
		zap.Int("failed", r.report.Failed),
		zap.Int("pending", r.report.Pending),
		zap.Int("skipped", r.report.Skipped),
		zap.Int("visited", r.report.Visited),
		zap.Int("depth_exceeded", r.report.DepthExceeded),
		zap.Bool("item_limit_hit", r.report.ItemLimitHit),
		zap.Int("media", len(r.report.Media)),
		zap.Duration("duration", r.report.Duration),
		zap.Error(err),
	)
	return r.report, err
}

// loop feeds the worker pool until the frontier is exhausted or the run is
// stopped. It returns the fatal error, if any.
func (r *run) loop(ctx context.Context, cancel context.CancelFunc) error {
	size := r.d.cfg.MaxConcurrency
	jobs := make(chan frontier.Entry)
	results := make(chan worker.Result, size)

	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				results <- r.d.processor.Process(ctx, entry)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	var fatal error
	inflight := 0
	for {
		// inflight < size means at least one worker is parked on jobs.
		for fatal == nil && ctx.Err() == nil && inflight < size {
			entry, ok := r.next(ctx)
			if !ok {
				break
			}
			jobs <- entry
			inflight++
		}
		if inflight == 0 {
			return fatal
		}
		res := <-results
		inflight--
		if err := r.absorb(ctx, res); err != nil && fatal == nil {
			fatal = err
			cancel()
		}
	}
}

// next pops the next entry that needs work. Items already done in the table
// are not fetched again; their stored references are followed instead.
func (r *run) next(ctx context.Context) (frontier.Entry, bool) {
	for {
		if limit := r.d.cfg.MaxItems; limit > 0 && r.started >= limit {
			if r.state.Len() > 0 && !r.report.ItemLimitHit {
				r.report.ItemLimitHit = true
				r.d.logger.Info("item limit reached", zap.Int("max_items", limit), zap.Error(crawler.ErrItemLimitExceeded))
			}
			return frontier.Entry{}, false
		}
		entry, ok := r.state.Next()
		if !ok {
			return frontier.Entry{}, false
		}
		if r.alreadyDone(ctx, entry) {
			continue
		}
		r.started++
		return entry, true
	}
}

func (r *run) alreadyDone(ctx context.Context, entry frontier.Entry) bool {
	existing, err := r.d.items.Get(ctx, entry.ID)
	if err != nil {
		if !errors.Is(err, crawler.ErrNotFound) {
			r.d.logger.Warn("item lookup failed", zap.String("item", entry.ID.String()), zap.Error(err))
		}
		return false
	}
	if existing.Status != crawler.StatusDone {
		return false
	}
	r.report.Skipped++
	for _, ref := range existing.References {
		r.offer(ctx, ref, entry.Depth+1)
	}
	return true
}

// absorb folds one worker result into the run. It returns a non-nil error
// only for the fatal AuthError.
func (r *run) absorb(ctx context.Context, res worker.Result) error {
	switch {
	case crawler.IsAuth(res.Err):
		r.report.Pending++
		return res.Err
	case res.Interrupted:
		r.report.Pending++
		return nil
	case res.Err != nil:
		r.report.Failed++
		r.report.failures = append(r.report.failures, Failure{ID: res.Entry.ID, Reason: res.Err.Error()})
		return nil
	}

	r.report.Done++
	if ctx.Err() != nil {
		return nil
	}
	for _, ref := range res.References {
		r.offer(ctx, ref.Target, res.Entry.Depth+1)
	}
	return nil
}

// offer queues id and records it pending in the item table when it is new.
func (r *run) offer(ctx context.Context, id crawler.ItemID, depth int) {
	switch r.state.Offer(id, depth) {
	case frontier.TooDeep:
		r.report.DepthExceeded++
		r.d.logger.Debug("reference not followed",
			zap.String("item", id.String()),
			zap.Int("depth", depth),
			zap.Error(crawler.ErrDepthExceeded),
		)
	case frontier.Enqueued:
		r.markPending(ctx, id, depth)
	case frontier.AlreadySeen:
	}
}

func (r *run) markPending(ctx context.Context, id crawler.ItemID, depth int) {
	_, err := r.d.items.Get(ctx, id)
	if err == nil {
		return
	}
	if !errors.Is(err, crawler.ErrNotFound) {
		r.d.logger.Warn("item lookup failed", zap.String("item", id.String()), zap.Error(err))
		return
	}
	item := crawler.Item{ID: id, Status: crawler.StatusPending, Depth: depth, UpdatedAt: r.d.clock.Now()}
	if err := r.d.items.Put(ctx, item); err != nil {
		r.d.logger.Warn("record pending item", zap.String("item", id.String()), zap.Error(err))
	}
}

// resume offers every unfinished item of an earlier run at its stored depth.
func (r *run) resume(ctx context.Context) {
	items, err := r.d.items.List(ctx)
	if err != nil {
		r.d.logger.Warn("list unfinished items", zap.Error(err))
		return
	}
	resumed := 0
	for _, item := range items {
		if item.Status.Terminal() {
			continue
		}
		if r.state.Offer(item.ID, item.Depth) == frontier.Enqueued {
			resumed++
		}
	}
	if resumed > 0 {
		r.d.logger.Info("resuming unfinished items", zap.Int("items", resumed))
	}
}

func (r *run) finish(ctx context.Context, start time.Time) {
	items, err := r.d.items.List(ctx)
	if err != nil {
		r.d.logger.Warn("list items for report", zap.Error(err))
	}
	r.report.Items = items
	if r.d.media != nil {
		r.report.Media = r.d.media.Digests()
	}
	r.report.Duration = r.d.clock.Now().Sub(start)
}
