package metrics

import (
	"context"
	"time"

	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/invalidation"
	"github.com/go-mizu/rippledb/logbroker"
	"github.com/go-mizu/rippledb/store"
)

// observedDb counts and times every Append and Pull on the wrapped Db.
type observedDb struct {
	inner logbroker.Db
}

// Db wraps inner so its appends and pulls are counted and timed per
// stream. The same wrapper instruments a replicator's Remote, since
// the contracts share method shapes.
func Db(inner logbroker.Db) logbroker.Db {
	return &observedDb{inner: inner}
}

func (o *observedDb) Append(ctx context.Context, req logbroker.AppendRequest) (logbroker.AppendResult, error) {
	start := time.Now()
	res, err := o.inner.Append(ctx, req)
	if err != nil {
		appendErrors.WithLabelValues(req.Stream).Inc()
		return res, err
	}
	appendDurations.WithLabelValues(req.Stream).Observe(time.Since(start).Seconds())
	if res.Accepted == 0 && len(req.Changes) > 0 {
		appendReplays.WithLabelValues(req.Stream).Inc()
	}
	appendCount.WithLabelValues(req.Stream).Add(float64(res.Accepted))
	return res, nil
}

func (o *observedDb) Pull(ctx context.Context, req logbroker.PullRequest) (logbroker.PullResult, error) {
	start := time.Now()
	res, err := o.inner.Pull(ctx, req)
	if err != nil {
		pullErrors.WithLabelValues(req.Stream).Inc()
		return res, err
	}
	pullDurations.WithLabelValues(req.Stream).Observe(time.Since(start).Seconds())
	pullCount.WithLabelValues(req.Stream).Add(float64(len(res.Changes)))
	return res, nil
}

// observedStore counts and times Apply on the wrapped Store; reads and
// subscriptions pass through untouched.
type observedStore struct {
	store.Store
}

// Store wraps inner so its Apply batches are counted and timed.
func Store(inner store.Store) store.Store {
	return &observedStore{Store: inner}
}

func (o *observedStore) Apply(ctx context.Context, batch []change.Change) error {
	start := time.Now()
	if err := o.Store.Apply(ctx, batch); err != nil {
		applyErrors.Inc()
		return err
	}
	applyDurations.Observe(time.Since(start).Seconds())
	applyBatches.Inc()
	applyChanges.Add(float64(len(batch)))
	return nil
}

// Invalidator wraps inner so every issued invalidation is counted.
func Invalidator(inner invalidation.Invalidator) invalidation.Invalidator {
	return func(ctx context.Context, key invalidation.Key) {
		invalidationCount.Inc()
		inner(ctx, key)
	}
}
