package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lostfound-api/internal/domain"
)

// ItemQuery describes a watchable item filter. Zero values mean "all items".
type ItemQuery struct {
	Status domain.ItemStatus
	UserID string
}

// Snapshot is one observation of a query's full result set.
type Snapshot struct {
	Items []domain.Item
	At    time.Time
}

// itemLister is the query surface the watcher needs from the item repo.
type itemLister interface {
	Scan(ctx context.Context) ([]domain.Item, error)
	ListByStatus(ctx context.Context, status domain.ItemStatus) ([]domain.Item, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Item, error)
}

// Watcher turns point-in-time queries into a stream of snapshots by
// re-running them on an interval and emitting only when the result set
// changed. It stands in for the document store's native listener API.
type Watcher struct {
	repo     itemLister
	interval time.Duration
}

func NewWatcher(repo itemLister, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{repo: repo, interval: interval}
}

// Subscription is a cancellable stream of query snapshots. Snapshots stop
// and the channel closes as soon as Cancel is called or the subscribing
// context ends; no background work continues after that.
type Subscription struct {
	ch     chan Snapshot
	cancel context.CancelFunc
}

// Snapshots is the stream of result-set observations. Closed on cancellation.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.ch
}

// Cancel detaches the subscriber. Idempotent.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Subscribe starts watching the query. The first snapshot is emitted as soon
// as the initial query completes; later ones only when the result set differs
// from the previous observation.
func (w *Watcher) Subscribe(ctx context.Context, q ItemQuery) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ch:     make(chan Snapshot, 1),
		cancel: cancel,
	}

	go func() {
		defer close(sub.ch)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		var last string
		for {
			items, err := w.run(ctx, q)
			if err == nil {
				fp := fingerprint(items)
				if fp != last {
					last = fp
					select {
					case sub.ch <- Snapshot{Items: items, At: time.Now().UTC()}:
					case <-ctx.Done():
						return
					}
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub
}

func (w *Watcher) run(ctx context.Context, q ItemQuery) ([]domain.Item, error) {
	switch {
	case q.UserID != "":
		return w.repo.ListByUser(ctx, q.UserID)
	case q.Status != "":
		return w.repo.ListByStatus(ctx, q.Status)
	default:
		return w.repo.Scan(ctx)
	}
}

// fingerprint summarizes a result set by id, status and last-modified time,
// which is enough to detect any lifecycle transition.
func fingerprint(items []domain.Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		mod := ""
		if it.LastModifiedAt != nil {
			mod = it.LastModifiedAt.UTC().Format(time.RFC3339Nano)
		}
		parts[i] = fmt.Sprintf("%s|%s|%s", it.ItemID, it.Status, mod)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
