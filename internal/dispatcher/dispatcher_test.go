package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-archiver/internal/clock/system"
	"github.com/JakeFAU/qa-archiver/internal/contentstore"
	"github.com/JakeFAU/qa-archiver/internal/crawler"
	"github.com/JakeFAU/qa-archiver/internal/document"
	"github.com/JakeFAU/qa-archiver/internal/frontier"
	"github.com/JakeFAU/qa-archiver/internal/hash/sha256"
	"github.com/JakeFAU/qa-archiver/internal/listing"
	"github.com/JakeFAU/qa-archiver/internal/normalize"
	"github.com/JakeFAU/qa-archiver/internal/progress"
	"github.com/JakeFAU/qa-archiver/internal/resolve"
	"github.com/JakeFAU/qa-archiver/internal/storage/memory"
	"github.com/JakeFAU/qa-archiver/internal/worker"
)

const apiBase = "https://api.test"

var endpoints = func() crawler.Endpoints {
	e, err := crawler.NewEndpoints(apiBase)
	if err != nil {
		panic(err)
	}
	return e
}()

func itemURL(id crawler.ItemID) string {
	u, err := endpoints.URL(id)
	if err != nil {
		panic(err)
	}
	return u
}

func answer(key string) crawler.ItemID {
	return crawler.ItemID{Kind: crawler.KindAnswer, Key: key}
}

func question(key string) crawler.ItemID {
	return crawler.ItemID{Kind: crawler.KindQuestion, Key: key}
}

func article(key string) crawler.ItemID {
	return crawler.ItemID{Kind: crawler.KindArticle, Key: key}
}

// siteFetcher serves canned payloads by URL and counts every call.
type siteFetcher struct {
	mu     sync.Mutex
	pages  map[string]crawler.Payload
	errs   map[string]error
	calls  map[string]int
	delay  time.Duration
	block  chan struct{}
	active chan struct{}
}

func newSite() *siteFetcher {
	return &siteFetcher{
		pages: make(map[string]crawler.Payload),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (s *siteFetcher) item(id crawler.ItemID, body string) *siteFetcher {
	s.pages[itemURL(id)] = crawler.Payload{StatusCode: http.StatusOK, ContentType: "application/json", Body: []byte(body)}
	return s
}

func (s *siteFetcher) page(url, body string) *siteFetcher {
	s.pages[url] = crawler.Payload{StatusCode: http.StatusOK, ContentType: "application/json", Body: []byte(body)}
	return s
}

func (s *siteFetcher) image(url string, data []byte) *siteFetcher {
	s.pages[url] = crawler.Payload{StatusCode: http.StatusOK, ContentType: "image/png", Body: data}
	return s
}

func (s *siteFetcher) Fetch(ctx context.Context, url string) (crawler.Payload, error) {
	s.mu.Lock()
	s.calls[url]++
	page, ok := s.pages[url]
	err := s.errs[url]
	s.mu.Unlock()

	if s.active != nil {
		select {
		case s.active <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return crawler.Payload{}, ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err != nil {
		return crawler.Payload{}, err
	}
	if !ok {
		return crawler.Payload{}, &crawler.NetworkError{URL: url, StatusCode: http.StatusNotFound, Err: errors.New("Not Found")}
	}
	return page, nil
}

func (s *siteFetcher) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *siteFetcher) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) stages() map[progress.Stage]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[progress.Stage]int)
	for _, e := range r.events {
		out[e.Stage]++
	}
	return out
}

// countingProcessor tracks how many pipelines run at once.
type countingProcessor struct {
	next    Processor
	current atomic.Int32
	peak    atomic.Int32
}

func (c *countingProcessor) Process(ctx context.Context, entry frontier.Entry) worker.Result {
	n := c.current.Add(1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	defer c.current.Add(-1)
	return c.next.Process(ctx, entry)
}

type harness struct {
	site      *siteFetcher
	blobs     *memory.BlobStore
	media     *contentstore.Store
	items     crawler.ItemStore
	events    *recorder
	processor *countingProcessor
	dispatch  *Dispatcher
}

type harnessConfig struct {
	dispatch []func(*Options)
	backend  func(*memory.BlobStore) contentstore.Backend
	listing  bool
}

type harnessOption func(*harnessConfig)

func withDispatch(f func(*Options)) harnessOption {
	return func(c *harnessConfig) { c.dispatch = append(c.dispatch, f) }
}

// withBackend puts wrap between the content store and the in-memory blobs.
func withBackend(wrap func(*memory.BlobStore) contentstore.Backend) harnessOption {
	return func(c *harnessConfig) { c.backend = wrap }
}

// withListing enumerates container members through the site's listing pages.
func withListing() harnessOption {
	return func(c *harnessConfig) { c.listing = true }
}

func newHarness(t *testing.T, site *siteFetcher, items crawler.ItemStore, cfg crawler.Config, opts ...harnessOption) *harness {
	t.Helper()
	var hc harnessConfig
	for _, opt := range opts {
		opt(&hc)
	}
	if items == nil {
		items = memory.NewItemStore()
	}
	events := &recorder{}
	reporter := progress.NewReporter(events, uuid.New(), nil)
	blobs := memory.NewBlobStore()
	var backend contentstore.Backend = blobs
	if hc.backend != nil {
		backend = hc.backend(blobs)
	}
	media, err := contentstore.New(context.Background(), contentstore.Options{
		Backend:  backend,
		Hasher:   sha256.New(),
		Fetcher:  site,
		Reporter: reporter,
	})
	require.NoError(t, err)

	var lister crawler.Lister
	if hc.listing {
		lister, err = listing.New(listing.Options{Fetcher: site, Endpoints: endpoints})
		require.NoError(t, err)
	}

	clock := system.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)
	pipeline, err := worker.New(worker.Options{
		Fetcher:    site,
		Endpoints:  endpoints,
		Normalizer: normalize.New(normalize.Options{Media: media}),
		Resolver:   resolve.New(),
		Lister:     lister,
		Items:      items,
		Clock:      clock,
		Reporter:   reporter,
	})
	require.NoError(t, err)
	processor := &countingProcessor{next: pipeline}

	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 4
	}
	o := Options{
		Config:    cfg,
		Processor: processor,
		Items:     items,
		Media:     media,
		Reporter:  reporter,
		Clock:     clock,
		Logger:    zap.NewNop(),
	}
	for _, f := range hc.dispatch {
		f(&o)
	}
	d, err := New(o)
	require.NoError(t, err)
	return &harness{site: site, blobs: blobs, media: media, items: items, events: events, processor: processor, dispatch: d}
}

func (h *harness) item(t *testing.T, id crawler.ItemID) crawler.Item {
	t.Helper()
	it, err := h.items.Get(context.Background(), id)
	require.NoError(t, err)
	return it
}

func digestOf(t *testing.T, data []byte) string {
	t.Helper()
	d, err := sha256.New().Hash(data)
	require.NoError(t, err)
	return d
}

func answerJSON(questionID, html string) string {
	return fmt.Sprintf(`{"id":1,"content":%q,"question":{"id":%q,"title":"Q"}}`, html, questionID)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nknown image bytes")

func TestRunAnswerQuestionExternalLinkAndImage(t *testing.T) {
	t.Parallel()

	site := newSite().
		item(answer("1"), answerJSON("2", `<p>See <a href="https://example.com/elsewhere">this</a></p><figure><img src="https://pic.test/cat.png"></figure>`)).
		item(question("2"), `{"id":2,"title":"Q","detail":"<p>why</p>"}`).
		image("https://pic.test/cat.png", pngBytes)
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 2, MaxDepth: 3})

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1")})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Done)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Pending)
	require.Len(t, report.Items, 2)
	for _, it := range report.Items {
		assert.Equal(t, crawler.StatusDone, it.Status, it.ID.String())
	}

	want := digestOf(t, pngBytes)
	assert.Equal(t, []string{want}, report.Media)

	ans := h.item(t, answer("1"))
	refs := document.MediaRefs(ans.Document)
	require.Len(t, refs, 1)
	assert.Equal(t, want, refs[0].Digest)
	assert.Equal(t, []crawler.ItemID{question("2")}, ans.References)

	stored, err := h.media.Get(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	stages := h.events.stages()
	assert.Equal(t, 1, stages[progress.StageRunStart])
	assert.Equal(t, 2, stages[progress.StageItemStarted])
	assert.Equal(t, 2, stages[progress.StageItemDone])
	assert.Equal(t, 1, stages[progress.StageMediaStored])
	assert.Equal(t, 1, stages[progress.StageRunDone])
}

func TestRunDeduplicatesIdenticalImages(t *testing.T) {
	t.Parallel()

	site := newSite().
		item(answer("1"), answerJSON("", `<figure><img src="https://pic.test/a.png"></figure>`)).
		item(answer("3"), answerJSON("", `<figure><img src="https://pic.test/b.png"></figure>`)).
		item(answer("4"), answerJSON("", `<p><img src="https://pic.test/a.png"></p>`)).
		image("https://pic.test/a.png", pngBytes).
		image("https://pic.test/b.png", append([]byte(nil), pngBytes...))
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 3, MaxDepth: 1})

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1"), answer("3"), answer("4")})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Done)

	want := digestOf(t, pngBytes)
	assert.Equal(t, []string{want}, report.Media)
	assert.Equal(t, 1, h.blobs.TotalWrites())
	for _, key := range []string{"1", "3", "4"} {
		refs := document.MediaRefs(h.item(t, answer(key)).Document)
		require.Len(t, refs, 1, key)
		assert.Equal(t, want, refs[0].Digest, key)
	}
	assert.Equal(t, 1, h.events.stages()[progress.StageMediaStored])
}

func TestRunTerminatesOnCycles(t *testing.T) {
	t.Parallel()

	site := newSite().
		item(answer("1"), answerJSON("", `<p><a href="https://zhuanlan.zhihu.com/p/5">article</a></p>`)).
		item(article("5"), `{"id":5,"title":"A","content":"<p>back to <a href=\"https://www.zhihu.com/answer/1\">answer</a></p>"}`)
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 2, MaxDepth: 10})

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1")})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Done)
	assert.Equal(t, 1, site.count(itemURL(answer("1"))))
	assert.Equal(t, 1, site.count(itemURL(article("5"))))
	assert.Equal(t, crawler.StatusDone, h.item(t, answer("1")).Status)
	assert.Equal(t, crawler.StatusDone, h.item(t, article("5")).Status)
}

func TestRunResumeOverDoneTableFetchesNothing(t *testing.T) {
	t.Parallel()

	items := memory.NewItemStore()
	site := newSite().
		item(answer("1"), answerJSON("2", `<p>hi</p>`)).
		item(question("2"), `{"id":2,"title":"Q","detail":"<p>why</p>"}`)
	first := newHarness(t, site, items, crawler.Config{MaxDepth: 2})
	report, err := first.dispatch.Run(context.Background(), []crawler.ItemID{answer("1")})
	require.NoError(t, err)
	require.Equal(t, 2, report.Done)

	again := newSite()
	second := newHarness(t, again, items, crawler.Config{MaxDepth: 2})
	report, err = second.dispatch.Run(context.Background(), []crawler.ItemID{answer("1")})
	require.NoError(t, err)
	assert.Zero(t, again.total())
	assert.Zero(t, report.Done)
	assert.Equal(t, 2, report.Skipped)
	assert.Len(t, report.Items, 2)
}

func TestRunNeverExceedsMaxConcurrency(t *testing.T) {
	t.Parallel()

	site := newSite()
	site.delay = 10 * time.Millisecond
	var seeds []crawler.ItemID
	for i := 1; i <= 24; i++ {
		id := answer(fmt.Sprint(i))
		site.item(id, answerJSON("", "<p>x</p>"))
		seeds = append(seeds, id)
	}
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 3, MaxDepth: 0})

	report, err := h.dispatch.Run(context.Background(), seeds)
	require.NoError(t, err)
	assert.Equal(t, 24, report.Done)
	assert.LessOrEqual(t, h.processor.peak.Load(), int32(3))
	assert.Positive(t, h.processor.peak.Load())
}

func TestRunIsolatesPermanentFailures(t *testing.T) {
	t.Parallel()

	site := newSite().
		item(answer("1"), answerJSON("", "<p>ok</p>")).
		item(answer("3"), answerJSON("", "<p>ok</p>"))
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 1, MaxDepth: 0})

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1"), answer("404"), answer("3")})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Done)
	assert.Equal(t, 1, report.Failed)

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, answer("404"), failures[0].ID)
	assert.Contains(t, failures[0].Reason, "404")
	assert.Equal(t, crawler.StatusFailed, h.item(t, answer("404")).Status)
	assert.Equal(t, crawler.StatusDone, h.item(t, answer("3")).Status)
}

func TestRunMaxDepthZeroFetchesOnlySeed(t *testing.T) {
	t.Parallel()

	site := newSite().
		item(answer("1"), answerJSON("2", `<p><a href="https://zhuanlan.zhihu.com/p/5">a</a></p>`)).
		item(question("2"), `{"id":2,"detail":"<p>q</p>"}`).
		item(article("5"), `{"id":5,"content":"<p>a</p>"}`)
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 2, MaxDepth: 0})

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1")})
	require.NoError(t, err)
	assert.Equal(t, 1, site.total())
	assert.Equal(t, 1, report.Done)
	assert.Equal(t, 2, report.DepthExceeded)
	assert.Len(t, report.Items, 1)
	assert.Contains(t, report.SoftStops(), crawler.ErrDepthExceeded)
}

func TestRunAbortsOnAuthError(t *testing.T) {
	t.Parallel()

	site := newSite().item(answer("3"), answerJSON("", "<p>ok</p>"))
	site.errs[itemURL(answer("1"))] = &crawler.AuthError{URL: itemURL(answer("1")), StatusCode: http.StatusUnauthorized}
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 1, MaxDepth: 1})

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1"), answer("3")})
	require.Error(t, err)
	assert.True(t, crawler.IsAuth(err))
	assert.Zero(t, site.count(itemURL(answer("3"))))
	assert.Zero(t, report.Done)
	assert.Equal(t, 2, report.Pending)
	assert.Equal(t, crawler.StatusPending, h.item(t, answer("1")).Status)
	assert.Equal(t, crawler.StatusPending, h.item(t, answer("3")).Status)
	assert.Equal(t, 1, h.events.stages()[progress.StageRunError])
}

func TestRunCancellationLeavesItemsPending(t *testing.T) {
	t.Parallel()

	site := newSite().
		item(answer("1"), answerJSON("", "<p>1</p>")).
		item(answer("3"), answerJSON("", "<p>3</p>"))
	site.block = make(chan struct{})
	site.active = make(chan struct{}, 1)
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 1, MaxDepth: 1})

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		report Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := h.dispatch.Run(ctx, []crawler.ItemID{answer("1"), answer("3")})
		done <- outcome{report, err}
	}()

	select {
	case <-site.active:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	cancel()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	require.ErrorIs(t, out.err, context.Canceled)
	assert.Zero(t, out.report.Done)
	assert.Zero(t, out.report.Failed)
	assert.Equal(t, 2, out.report.Pending)
	for _, it := range out.report.Items {
		assert.Equal(t, crawler.StatusPending, it.Status, it.ID.String())
		assert.Nil(t, it.Document)
	}
}

func TestRunStopsAtItemLimit(t *testing.T) {
	t.Parallel()

	site := newSite()
	for _, key := range []string{"1", "3", "5"} {
		site.item(answer(key), answerJSON("", "<p>x</p>"))
	}
	h := newHarness(t, site, nil, crawler.Config{MaxConcurrency: 1, MaxDepth: 0, MaxItems: 2})

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1"), answer("3"), answer("5")})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Done)
	assert.True(t, report.ItemLimitHit)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, crawler.StatusPending, h.item(t, answer("5")).Status)
	assert.Equal(t, []error{crawler.ErrItemLimitExceeded}, report.SoftStops())
}

func TestRunResumesPendingItems(t *testing.T) {
	t.Parallel()

	items := memory.NewItemStore()
	require.NoError(t, items.Put(context.Background(), crawler.Item{ID: question("2"), Status: crawler.StatusPending, Depth: 1}))
	site := newSite().item(question("2"), `{"id":2,"detail":"<p>q</p>"}`)
	h := newHarness(t, site, items, crawler.Config{MaxDepth: 1}, withDispatch(func(o *Options) { o.ResumePending = true }))

	report, err := h.dispatch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Done)
	it := h.item(t, question("2"))
	assert.Equal(t, crawler.StatusDone, it.Status)
	assert.Equal(t, 1, it.Depth)
}

func TestRunRetriesItemsFailedInEarlierRuns(t *testing.T) {
	t.Parallel()

	items := memory.NewItemStore()
	require.NoError(t, items.Put(context.Background(), crawler.Item{ID: answer("1"), Status: crawler.StatusFailed, Reason: "earlier"}))
	site := newSite().item(answer("1"), answerJSON("", "<p>ok</p>"))
	h := newHarness(t, site, items, crawler.Config{MaxDepth: 0})

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Done)
	assert.Equal(t, crawler.StatusDone, h.item(t, answer("1")).Status)
	assert.Empty(t, h.item(t, answer("1")).Reason)
}

// failingPuts refuses every write.
type failingPuts struct {
	*memory.BlobStore
	err error
}

func (f failingPuts) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", f.err
}

func TestRunFailsItemsWhoseMediaCannotBeStored(t *testing.T) {
	t.Parallel()

	items := memory.NewItemStore()
	site := newSite().
		item(answer("1"), answerJSON("", `<figure><img src="https://pic1.zhimg.com/a.png"></figure>`)).
		image("https://pic1.zhimg.com/a.png", pngBytes)
	h := newHarness(t, site, items, crawler.Config{MaxDepth: 0},
		withBackend(func(b *memory.BlobStore) contentstore.Backend {
			return failingPuts{BlobStore: b, err: errors.New("disk full")}
		}))

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{answer("1")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Done)
	assert.Empty(t, report.Media)
	require.Len(t, report.Failures(), 1)
	assert.Contains(t, report.Failures()[0].Reason, "disk full")

	it := h.item(t, answer("1"))
	assert.Equal(t, crawler.StatusFailed, it.Status)
	assert.Contains(t, it.Reason, "disk full")
	assert.Nil(t, it.Document)

	retry := newHarness(t, site, items, crawler.Config{MaxDepth: 0})
	report, err = retry.dispatch.Run(context.Background(), []crawler.ItemID{answer("1")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Done)
	assert.Len(t, report.Media, 1)
	assert.Equal(t, crawler.StatusDone, retry.item(t, answer("1")).Status)
}

func TestRunFollowsCollectionMembers(t *testing.T) {
	t.Parallel()

	collection := crawler.ItemID{Kind: crawler.KindCollection, Key: "3"}
	site := newSite().
		item(collection, `{"collection":{"id":3,"title":"Saved","description":"things"}}`).
		page(apiBase+"/api/v4/collections/3/items?limit=20", `{
			"data": [{"content": {"type": "answer", "id": 11}}, {"content": {"type": "zvideo", "id": 99}}],
			"paging": {"is_end": false, "next": "https://www.zhihu.com/api/v4/collections/3/items?limit=20&offset=20"}}`).
		page(apiBase+"/api/v4/collections/3/items?limit=20&offset=20", `{
			"data": [{"content": {"type": "article", "id": "12"}}],
			"paging": {"is_end": true}}`).
		item(answer("11"), answerJSON("", "<p>one</p>")).
		item(article("12"), `{"id":12,"title":"Post","content":"<p>two</p>"}`)
	h := newHarness(t, site, nil, crawler.Config{MaxDepth: 1}, withListing())

	report, err := h.dispatch.Run(context.Background(), []crawler.ItemID{collection})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Done)
	assert.Equal(t, 3, report.Visited)

	saved := h.item(t, collection)
	assert.Equal(t, crawler.StatusDone, saved.Status)
	assert.Equal(t, "Saved", saved.Document.Title)
	assert.Equal(t, []crawler.ItemID{answer("11"), article("12")}, saved.References)
	assert.Equal(t, crawler.StatusDone, h.item(t, answer("11")).Status)
	assert.Equal(t, crawler.StatusDone, h.item(t, article("12")).Status)
}

func TestRunRejectsInvalidSeeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, newSite(), nil, crawler.Config{})
	_, err := h.dispatch.Run(context.Background(), []crawler.ItemID{{Kind: "topic", Key: "1"}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "topic"))
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Config: crawler.Config{MaxConcurrency: 0}})
	require.Error(t, err)
	_, err = New(Options{Config: crawler.Config{MaxConcurrency: 1}})
	require.ErrorContains(t, err, "processor")
}
