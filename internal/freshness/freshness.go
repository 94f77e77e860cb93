// Package freshness decides, per issue key, whether the local cache can
// be trusted or the remote tracker has newer data.
package freshness

import (
	"context"
	"log/slog"
	"time"
)

// LocalTimes is the slice of the cache the reconciler needs.
type LocalTimes interface {
	BatchModified(ctx context.Context, keys []string) (map[string]time.Time, error)
}

// RemoteTimes is the slice of the tracker client the reconciler needs.
type RemoteTimes interface {
	BulkUpdatedTimes(ctx context.Context, keys []string) (map[string]time.Time, error)
}

// Result partitions keys into the three crawl classes. Input order is
// preserved within each class.
type Result struct {
	New   []string // not cached locally, must be fetched
	Stale []string // cached but the tracker has a newer version
	Fresh []string // cached and at least as new as the tracker
}

// Reconciler classifies keys by comparing local last-write times with
// the tracker's last-updated times.
type Reconciler struct {
	local  LocalTimes
	remote RemoteTimes
	log    *slog.Logger
}

// New builds a reconciler.
func New(local LocalTimes, remote RemoteTimes, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{local: local, remote: remote, log: log}
}

// Classify partitions keys. The comparison degrades safely in both
// directions: if the local batch query fails, everything counts as new
// and gets refetched; if the tracker cannot answer for a key, the cached
// copy counts as fresh rather than triggering a pointless refetch.
func (r *Reconciler) Classify(ctx context.Context, keys []string) (Result, error) {
	if len(keys) == 0 {
		return Result{}, nil
	}

	local, err := r.local.BatchModified(ctx, keys)
	if err != nil {
		r.log.Warn("local timestamp query failed, refetching everything", "keys", len(keys), "error", err)
		return Result{New: append([]string(nil), keys...)}, nil
	}

	var res Result
	var known []string
	for _, k := range keys {
		if _, ok := local[k]; ok {
			known = append(known, k)
		} else {
			res.New = append(res.New, k)
		}
	}
	if len(known) == 0 {
		return res, nil
	}

	remote, err := r.remote.BulkUpdatedTimes(ctx, known)
	if err != nil {
		// Partial results are still usable; unanswered keys fall
		// through to fresh below.
		r.log.Warn("remote timestamp query degraded", "keys", len(known), "error", err)
	}

	for _, k := range known {
		remoteTS, ok := remote[k]
		if !ok || !remoteTS.After(local[k]) {
			res.Fresh = append(res.Fresh, k)
			continue
		}
		res.Stale = append(res.Stale, k)
	}
	return res, ctx.Err()
}
