package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// Mirror keeps two backends in lockstep: every write goes to both, reads
// prefer the primary and fall back to the secondary. The usual pairing is
// a database primary mirrored into flat files so either side can rebuild
// the other.
type Mirror struct {
	primary   Store
	secondary Store
	log       *slog.Logger
}

// NewMirror wires a write-through pair. The primary's timestamps are
// authoritative for freshness checks.
func NewMirror(primary, secondary Store, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	return &Mirror{primary: primary, secondary: secondary, log: log}
}

// Get reads from the primary and falls back to the secondary when the
// key is absent or the primary errors.
func (m *Mirror) Get(ctx context.Context, key string) (*types.Issue, time.Time, bool, error) {
	issue, ts, ok, err := m.primary.Get(ctx, key)
	if err == nil && ok {
		return issue, ts, true, nil
	}
	if err != nil {
		m.log.Warn("primary read failed, falling back", "key", key, "error", err)
	}
	return m.secondary.Get(ctx, key)
}

// BatchModified queries the primary and fills gaps from the secondary.
func (m *Mirror) BatchModified(ctx context.Context, keys []string) (map[string]time.Time, error) {
	out, err := m.primary.BatchModified(ctx, keys)
	if err != nil {
		m.log.Warn("primary batch query failed, falling back", "keys", len(keys), "error", err)
		return m.secondary.BatchModified(ctx, keys)
	}

	var missing []string
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		rest, err := m.secondary.BatchModified(ctx, missing)
		if err != nil {
			return out, nil
		}
		for k, t := range rest {
			out[k] = t
		}
	}
	return out, nil
}

// Upsert writes to both sides. The write fails only if the primary
// fails; a secondary failure is logged and the write still counts.
func (m *Mirror) Upsert(ctx context.Context, issue *types.Issue) (time.Time, error) {
	ts, err := m.primary.Upsert(ctx, issue)
	if err != nil {
		return time.Time{}, err
	}
	if _, serr := m.secondary.Upsert(ctx, issue); serr != nil {
		m.log.Warn("mirror write failed", "key", issue.Key, "error", serr)
	}
	return ts, nil
}

// Ready requires only the primary; the mirror degrades without the
// secondary.
func (m *Mirror) Ready(ctx context.Context) bool {
	return m.primary.Ready(ctx)
}

// Close closes both sides and joins the errors.
func (m *Mirror) Close() error {
	return errors.Join(m.primary.Close(), m.secondary.Close())
}
