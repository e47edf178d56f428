package timecode

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Clock supplies wall-clock time to a Generator.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local system time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Reading is one observation of a Generator: the value and whether it is pinned.
type Reading struct {
	Timecode Timecode `json:"timecode"`
	Manual   bool     `json:"manual"`
}

// Generator produces a continuously advancing timecode.
//
// It has two states. In the synced state every tick recomputes the value from the
// clock and pushes it to subscribers. In the manual state the value is frozen at an
// operator-supplied timecode; ticks leave it alone until Resync is called.
//
// A Generator is safe for concurrent use. Reads are atomic: Current returns the
// value and mode observed together.
type Generator struct {
	clock  Clock
	fps    int
	period time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	current Reading
	subs    map[int]chan Reading
	nextSub int

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithFrameRate sets the frame rate. Values <= 0 are ignored.
func WithFrameRate(fps int) Option {
	return func(g *Generator) {
		if fps > 0 {
			g.fps = fps
		}
	}
}

// WithTickPeriod overrides the tick period, which defaults to one frame.
func WithTickPeriod(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.period = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a stopped generator in the synced state.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		clock:  SystemClock{},
		fps:    DefaultFrameRate,
		logger: zerolog.Nop(),
		subs:   make(map[int]chan Reading),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.period == 0 {
		g.period = time.Second / time.Duration(g.fps)
	}
	g.current = Reading{Timecode: FromTime(g.clock.Now(), g.fps)}
	return g
}

// FrameRate returns the configured frame rate.
func (g *Generator) FrameRate() int { return g.fps }

// Start begins ticking. It is a no-op if the generator is already running.
// The generator stops when ctx is cancelled or Stop is called.
func (g *Generator) Start(ctx context.Context) {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	go g.loop(ctx, done)
	g.logger.Debug().Int("fps", g.fps).Dur("period", g.period).Msg("timecode generator started")
}

// Stop halts ticking and waits for the tick goroutine to exit. Safe to call repeatedly.
// Subscriptions stay open; a stopped generator still pushes edits and resyncs.
func (g *Generator) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	g.logger.Debug().Msg("timecode generator stopped")
}

// Running reports whether the tick loop is active.
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancel != nil
}

func (g *Generator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}

// Tick recomputes the value from the clock when synced. In manual mode it does nothing.
// The tick loop calls it; tests may call it directly with a fake clock.
func (g *Generator) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current.Manual {
		return
	}
	next := Reading{Timecode: FromTime(g.clock.Now(), g.fps)}
	if next == g.current {
		return
	}
	g.current = next
	g.publishLocked()
}

// Current returns the value and mode observed together.
func (g *Generator) Current() Reading {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Edit pins the generator to candidate. On a malformed or out-of-range candidate
// the prior value and mode are kept and a *ParseError is returned.
func (g *Generator) Edit(candidate string) error {
	tc, err := Parse(candidate, g.fps)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = Reading{Timecode: tc, Manual: true}
	g.publishLocked()
	return nil
}

// Resync discards any manual value and recomputes from the clock immediately.
func (g *Generator) Resync() Reading {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = Reading{Timecode: FromTime(g.clock.Now(), g.fps)}
	g.publishLocked()
	return g.current
}

// Subscribe returns a channel that receives the current reading immediately and
// then every change. Delivery is latest-value-wins: a subscriber that falls behind
// sees the newest reading, never a backlog. The returned func unsubscribes and
// closes the channel.
func (g *Generator) Subscribe(buffer int) (<-chan Reading, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Reading, buffer)

	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = ch
	ch <- g.current
	g.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
			close(ch)
		})
	}
}

// publishLocked pushes g.current to every subscriber. Must hold g.mu.
func (g *Generator) publishLocked() {
	for _, ch := range g.subs {
		offer(ch, g.current)
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
