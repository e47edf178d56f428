// Package realtime keeps live, read-only snapshots of stored collections.
//
// A [Projection] holds the latest complete, ordered copy of one collection.
// Whenever the store reports a change it re-reads the whole collection and
// replaces the snapshot wholesale; it never patches entries in place. Change
// signals that describe individual records (such as SurrealDB live query
// notifications) are treated purely as "something changed".
//
// Snapshots are ordered by the store-assigned creation time, newest first, with
// ties broken by ID. Client-supplied timestamps play no part in ordering.
package realtime

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

// Lister reads a complete collection.
type Lister[T any] func(ctx context.Context) ([]T, error)

// Snapshot is one complete, immutable view of a collection. Callers must not
// modify Items.
type Snapshot[T any] struct {
	Items     []T       `json:"items"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Len returns the number of items.
func (s Snapshot[T]) Len() int { return len(s.Items) }

type config struct {
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

// Option configures a Projection.
type Option func(*config)

func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithBackoff bounds the delay before a failed watch is restarted.
func WithBackoff(min, max time.Duration) Option {
	return func(c *config) {
		if min > 0 {
			c.minBackoff = min
		}
		if max >= c.minBackoff {
			c.maxBackoff = max
		}
	}
}

// Projection maintains the latest snapshot of one collection.
type Projection[T models.Record] struct {
	collection store.Collection
	list       Lister[T]
	watcher    store.Watcher
	cfg        config

	// refreshMu orders refreshes so a slower, older read never replaces a newer one.
	refreshMu sync.Mutex

	mu      sync.Mutex
	current Snapshot[T]
	subs    map[int]chan Snapshot[T]
	nextSub int
}

func NewProjection[T models.Record](c store.Collection, list Lister[T], w store.Watcher, opts ...Option) *Projection[T] {
	cfg := config{
		logger:     zerolog.Nop(),
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.logger.With().Str("component", "projection").Str("collection", string(c)).Logger()
	return &Projection[T]{
		collection: c,
		list:       list,
		watcher:    w,
		cfg:        cfg,
		current:    Snapshot[T]{Items: []T{}},
		subs:       make(map[int]chan Snapshot[T]),
	}
}

// Collection returns the collection this projection follows.
func (p *Projection[T]) Collection() store.Collection { return p.collection }

// Current returns the latest snapshot.
func (p *Projection[T]) Current() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe returns a channel that receives the current snapshot immediately and
// every replacement after it. A slow subscriber skips to the newest snapshot. The
// returned func unsubscribes and closes the channel.
func (p *Projection[T]) Subscribe(buffer int) (<-chan Snapshot[T], func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot[T], buffer)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.current
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Refresh re-reads the collection and replaces the snapshot. On error the
// previous snapshot is kept.
func (p *Projection[T]) Refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	items, err := p.list(ctx)
	if err != nil {
		return err
	}
	items = slices.Clone(items)
	if items == nil {
		items = []T{}
	}
	store.SortNewestFirst(items)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = Snapshot[T]{
		Items:     items,
		Version:   p.current.Version + 1,
		UpdatedAt: p.cfg.now(),
	}
	for _, ch := range p.subs {
		offer(ch, p.current)
	}
	return nil
}

// Run watches the collection until ctx ends, refreshing on every change.
//
// The watch is opened before the initial load so no change between the two is
// missed. When the watch fails or its stream ends, Run reopens it after a backoff
// and reloads, since changes may have been lost in between.
func (p *Projection[T]) Run(ctx context.Context) error {
	backoff := p.cfg.minBackoff
	for {
		changes, err := p.watcher.Watch(ctx, p.collection)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.cfg.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("watch failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, p.cfg.maxBackoff)
			continue
		}
		backoff = p.cfg.minBackoff

		p.refreshLogged(ctx)
		for range changes {
			p.refreshLogged(ctx)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		p.cfg.logger.Info().Msg("watch stream ended, restarting")
	}
}

func (p *Projection[T]) refreshLogged(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.cfg.logger.Error().Err(err).Msg("refresh failed; keeping previous snapshot")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// offer sends v without blocking, evicting the oldest buffered value if needed.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
