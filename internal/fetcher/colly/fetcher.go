// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultMaxOutstanding = 4
	defaultMaxBodyBytes   = 32 << 20
)

// Waiter spaces requests; ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	// Session is attached to every request. It is copied, never shared.
	Session crawler.Session
	Timeout time.Duration
	// MaxOutstanding caps concurrent HTTP requests across all callers.
	MaxOutstanding int64
	MaxBodyBytes   int
	Retry          crawler.RetryPolicy
	Limiter        Waiter
	Logger         *zap.Logger
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	sem           *semaphore.Weighted
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = defaultMaxOutstanding
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Retry == nil {
		cfg.Retry = crawler.NewExponentialRetryPolicy(crawler.DefaultRetryLimit, 0, 0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	// Clones share the HTTP backend, so transport and timeout are set once here.
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		sem:           semaphore.NewWeighted(cfg.MaxOutstanding),
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch GETs url, retrying transient failures per the retry policy. Errors are
// classified into crawler.NetworkError and crawler.AuthError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Payload, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return crawler.Payload{}, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer f.sem.Release(1)

	for attempt := 0; ; attempt++ {
		if f.cfg.Limiter != nil {
			if err := f.cfg.Limiter.Wait(ctx, url); err != nil {
				return crawler.Payload{}, err
			}
		}
		payload, err := f.fetchOnce(ctx, url)
		if err == nil {
			return payload, nil
		}
		if !f.cfg.Retry.ShouldRetry(err, attempt) {
			return crawler.Payload{}, err
		}
		wait := f.cfg.Retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return crawler.Payload{}, fmt.Errorf("fetch backoff canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// fetchOnce performs exactly one request.
func (f *Fetcher) fetchOnce(ctx context.Context, url string) (crawler.Payload, error) {
	var (
		result   crawler.Payload
		status   int
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, start, &result, &status, &fetchErr)

	visitErr := f.runCollector(ctx, collector, url)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return crawler.Payload{}, fmt.Errorf("colly fetch canceled: %w", ctxErr)
	}
	cause := fetchErr
	if cause == nil {
		cause = visitErr
	}
	if status == 0 && cause == nil {
		cause = errors.New("no response")
	}
	if err := crawler.ClassifyStatus(url, status, cause); err != nil {
		return crawler.Payload{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	// Clones share the visited set; every fetch and retry must go out.
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = f.cfg.MaxBodyBytes
	collector.Context = ctx
	if f.cfg.Session.UserAgent != "" {
		collector.UserAgent = f.cfg.Session.UserAgent
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.Payload,
	status *int,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.applySession(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.Payload{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: headers.Get("Content-Type"),
			Headers:     headers,
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

func (f *Fetcher) applySession(r *colly.Request) {
	if r.Headers == nil {
		h := http.Header{}
		r.Headers = &h
	}
	f.cfg.Session.Apply(*r.Headers)
	if r.Headers.Get("Accept") == "" {
		r.Headers.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ crawler.Fetcher = (*Fetcher)(nil)
