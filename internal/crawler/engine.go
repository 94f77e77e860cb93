// Package crawler walks an issue hierarchy on the remote tracker and
// fills the local cache. The walk runs in two passes: a concurrent
// breadth-first crawl, then one retry pass over everything that failed.
// Keys that fail both passes land in the failure log.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RalfNiem/business-epic-analyzer/internal/faillog"
	"github.com/RalfNiem/business-epic-analyzer/internal/freshness"
	"github.com/RalfNiem/business-epic-analyzer/internal/jira"
	"github.com/RalfNiem/business-epic-analyzer/internal/storage"
	"github.com/RalfNiem/business-epic-analyzer/internal/transform"
	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// DefaultWorkers is the crawl pool size when none is configured.
const DefaultWorkers = 4

// Mode selects how aggressively the crawl refetches cached issues.
type Mode string

// Crawl modes
const (
	// ModeFull refetches every reachable issue from the tracker.
	ModeFull Mode = "full"

	// ModeDelta refetches only issues that are new or stale; fresh
	// issues are served from the cache.
	ModeDelta Mode = "delta"
)

// IsValid checks if the mode is one of the known constants.
func (m Mode) IsValid() bool {
	return m == ModeFull || m == ModeDelta
}

// ParseMode converts a raw mode string, rejecting unknown values.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown crawl mode %q (want full or delta)", s)
	}
	return m, nil
}

// Tracker is the slice of the remote client the engine needs.
type Tracker interface {
	FetchIssue(ctx context.Context, key string) (*jira.RawIssue, error)
	FindChildren(ctx context.Context, parentKey, parentType string) ([]jira.ChildRef, error)
	BulkUpdatedTimes(ctx context.Context, keys []string) (map[string]time.Time, error)
}

// Report summarizes one crawl run.
type Report struct {
	Root      string
	Mode      Mode
	Fetched   int      // issues fetched from the tracker
	CacheHits int      // issues served from the local cache
	Retried   int      // keys that needed the second pass
	Failed    []string // keys that failed both passes
	Elapsed   time.Duration
}

// Options tunes an Engine.
type Options struct {
	Workers   int
	Hierarchy types.Hierarchy
}

// Engine crawls hierarchies into a cache store.
type Engine struct {
	remote    Tracker
	store     storage.Store
	recon     *freshness.Reconciler
	failures  *faillog.Log
	hierarchy types.Hierarchy
	workers   int
	log       *slog.Logger
}

// New wires an engine. failures may be nil to disable the failure log.
func New(remote Tracker, store storage.Store, failures *faillog.Log, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	hierarchy := opts.Hierarchy
	if hierarchy == nil {
		hierarchy = types.FullHierarchy()
	}
	return &Engine{
		remote:    remote,
		store:     store,
		recon:     freshness.New(store, remote, log),
		failures:  failures,
		hierarchy: hierarchy,
		workers:   workers,
		log:       log,
	}
}

// Run crawls the hierarchy below rootKey. The root is always fetched
// from the tracker, regardless of mode, so the run starts from current
// link data.
func (e *Engine) Run(ctx context.Context, rootKey string, mode Mode) (*Report, error) {
	if err := types.ValidateKey(rootKey); err != nil {
		return nil, err
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown crawl mode %q", mode)
	}

	start := time.Now()
	state := newCrawlState()
	e.log.Info("crawl started", "root", rootKey, "mode", mode, "workers", e.workers)

	if err := e.runPass(ctx, state, mode, false, task{key: rootKey, full: true}); err != nil {
		return nil, err
	}

	retries := state.takeRetries()
	report := &Report{Root: rootKey, Mode: mode, Retried: len(retries)}
	if len(retries) > 0 {
		e.log.Warn("retrying failed keys", "count", len(retries))
		tasks := make([]task, 0, len(retries))
		for key := range retries {
			tasks = append(tasks, task{key: key, full: true})
		}
		if err := e.runPass(ctx, state, mode, true, tasks...); err != nil {
			return nil, err
		}

		for key, reason := range state.takeRetries() {
			report.Failed = append(report.Failed, key)
			e.log.Error("giving up on issue", "key", key, "reason", reason)
			if e.failures != nil {
				if err := e.failures.Record(key, reason); err != nil {
					e.log.Error("failure log write failed", "key", key, "error", err)
				}
			}
		}
	}

	report.Fetched, report.CacheHits = state.counts()
	report.Elapsed = time.Since(start)
	e.log.Info("crawl finished",
		"root", rootKey,
		"fetched", report.Fetched,
		"cache_hits", report.CacheHits,
		"retried", report.Retried,
		"failed", len(report.Failed),
		"elapsed", report.Elapsed)
	return report, nil
}

// runPass drains one work queue with the worker pool.
func (e *Engine) runPass(ctx context.Context, state *crawlState, mode Mode, retryPass bool, seed ...task) error {
	q := newWorkQueue(e.workers)
	q.push(seed...)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.workers; i++ {
		g.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				t, ok := q.tryPop()
				if !ok {
					select {
					case <-q.wakeCh():
						continue
					case <-q.waitCh():
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				e.process(ctx, t, q, state, mode, retryPass)
				q.taskDone()
			}
		})
	}
	return g.Wait()
}

func (e *Engine) process(ctx context.Context, t task, q *workQueue, state *crawlState, mode Mode, retryPass bool) {
	if !state.claim(t.key) {
		return
	}

	if !t.full {
		issue, _, ok, err := e.store.Get(ctx, t.key)
		if err == nil && ok {
			state.countCacheHit()
			e.enqueueChildren(ctx, issue, q, mode)
			return
		}
		if err != nil {
			e.log.Warn("cache read failed, fetching instead", "key", t.key, "error", err)
		} else {
			e.log.Debug("cache miss on fresh key, fetching instead", "key", t.key)
		}
		// Fall through to a full load.
	}

	raw, err := e.remote.FetchIssue(ctx, t.key)
	if err != nil {
		e.fail(state, t.key, fmt.Sprintf("fetch issue: %v", err), retryPass)
		return
	}

	children, err := e.remote.FindChildren(ctx, t.key, raw.TypeName())
	if err != nil {
		e.fail(state, t.key, fmt.Sprintf("find children: %v", err), retryPass)
		return
	}

	issue := transform.Transform(raw, children)
	if _, err := e.store.Upsert(ctx, issue); err != nil {
		e.fail(state, t.key, fmt.Sprintf("cache write: %v", err), retryPass)
		return
	}
	state.countFetch()
	e.log.Debug("issue crawled", "key", issue.Key, "type", issue.Type, "links", len(issue.Links))

	e.enqueueChildren(ctx, issue, q, mode)
}

// fail routes a failed key: pass one marks it for retry, the retry pass
// leaves it in the retry set for Run to log and record.
func (e *Engine) fail(state *crawlState, key, reason string, retryPass bool) {
	if !retryPass {
		e.log.Warn("issue failed, queued for retry", "key", key, "reason", reason)
	}
	state.markRetry(key, reason)
}

// enqueueChildren pushes the hierarchy-relevant children of issue. In
// delta mode children are classified first: new and stale keys get full
// loads, fresh keys are served from the cache.
func (e *Engine) enqueueChildren(ctx context.Context, issue *types.Issue, q *workQueue, mode Mode) {
	seen := map[string]bool{issue.Key: true}
	var keys []string
	for _, l := range issue.Links {
		if !e.hierarchy.Allows(issue.Type, l.Relation) || seen[l.Key] {
			continue
		}
		seen[l.Key] = true
		keys = append(keys, l.Key)
	}
	if len(keys) == 0 {
		return
	}

	if mode == ModeFull {
		tasks := make([]task, len(keys))
		for i, k := range keys {
			tasks[i] = task{key: k, full: true}
		}
		q.push(tasks...)
		return
	}

	res, err := e.recon.Classify(ctx, keys)
	if err != nil {
		// Only context cancellation lands here; the queue drains via
		// the workers' ctx check.
		return
	}
	var tasks []task
	for _, k := range res.New {
		tasks = append(tasks, task{key: k, full: true})
	}
	for _, k := range res.Stale {
		tasks = append(tasks, task{key: k, full: true})
	}
	for _, k := range res.Fresh {
		tasks = append(tasks, task{key: k, full: false})
	}
	q.push(tasks...)
}
