package logbook

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/selection"
	"github.com/realitylog/realitylog/pkg/timecode"
)

// Console is one operator's logging session: what they have picked, the notes
// they are typing, and their timecode. All methods are serialized by one mutex,
// so selection changes, timecode edits and submits are totally ordered.
type Console struct {
	mu        sync.Mutex
	sel       *selection.Selection
	gen       *timecode.Generator
	clock     timecode.Clock
	submitter *Submitter
	notes     string
	inFlight  bool
}

// ConsoleState is a point-in-time view of a Console.
type ConsoleState struct {
	Selection selection.Snapshot `json:"selection"`
	Notes     string             `json:"notes"`
	Timecode  timecode.Reading   `json:"timecode"`
	InFlight  bool               `json:"in_flight"`
}

// ConsoleOptions configures consoles created by a registry.
type ConsoleOptions struct {
	FrameRate int
	Clock     timecode.Clock
	Logger    zerolog.Logger
}

func (o ConsoleOptions) clock() timecode.Clock {
	if o.Clock == nil {
		return timecode.SystemClock{}
	}
	return o.Clock
}

// NewConsole creates a console with an empty selection and a generator that is
// not yet running.
func NewConsole(submitter *Submitter, opts ConsoleOptions) *Console {
	clock := opts.clock()
	return &Console{
		sel:   selection.New(),
		clock: clock,
		gen: timecode.NewGenerator(
			timecode.WithClock(clock),
			timecode.WithFrameRate(opts.FrameRate),
			timecode.WithLogger(opts.Logger),
		),
		submitter: submitter,
	}
}

// Generator exposes the console's timecode for subscriptions and lifecycle.
func (c *Console) Generator() *timecode.Generator { return c.gen }

func (c *Console) ToggleParticipant(id models.ParticipantID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel.ToggleParticipant(id)
}

func (c *Console) ToggleTag(id models.TagID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel.ToggleTag(id)
}

// SetLocation replaces the location. The zero ID clears it.
func (c *Console) SetLocation(id models.LocationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id.IsZero() {
		c.sel.ClearLocation()
		return
	}
	c.sel.SetLocation(id)
}

// SetActionCategory replaces the action category. The zero ID clears it.
func (c *Console) SetActionCategory(id models.ActionCategoryID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id.IsZero() {
		c.sel.ClearActionCategory()
		return
	}
	c.sel.SetActionCategory(id)
}

func (c *Console) SetNotes(notes string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = notes
}

func (c *Console) Notes() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notes
}

func (c *Console) Selection() selection.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel.Snapshot()
}

func (c *Console) Timecode() timecode.Reading {
	return c.gen.Current()
}

// EditTimecode pins the timecode. A malformed value leaves the current one in
// place and returns a ValidationError for the timecode field.
func (c *Console) EditTimecode(candidate string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gen.Edit(candidate); err != nil {
		return &ValidationError{Fields: []string{FieldTimecode}, Err: err}
	}
	return nil
}

func (c *Console) ResyncTimecode() timecode.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen.Resync()
}

func (c *Console) State() ConsoleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConsoleState{
		Selection: c.sel.Snapshot(),
		Notes:     c.notes,
		Timecode:  c.gen.Current(),
		InFlight:  c.inFlight,
	}
}

// Submit turns the current selection, notes and timecode into a log entry.
//
// The candidate is built under the lock from one timecode reading and a snapshot
// of the selection; the store call runs without the lock so the operator can keep
// picking. Only one submit may be pending per console. On success the notes draft
// is cleared if the operator has not changed it meanwhile, and the selection is
// kept for the next entry. On failure nothing is cleared.
func (c *Console) Submit(ctx context.Context, identity *models.User) (*models.LogEntry, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	draft := c.notes
	candidate, err := BuildCandidate(c.sel.Snapshot(), draft, c.gen.Current(), c.clock.Now())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.inFlight = true
	c.mu.Unlock()

	entry, err := c.submitter.Submit(ctx, identity, candidate)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		return nil, err
	}
	if c.notes == draft {
		c.notes = ""
	}
	return entry, nil
}

// Close stops the console's timecode generator.
func (c *Console) Close() {
	c.gen.Stop()
}

// ConsoleRegistry holds one Console per session.
type ConsoleRegistry struct {
	ctx       context.Context
	submitter *Submitter
	opts      ConsoleOptions

	mu       sync.Mutex
	consoles map[string]*Console
}

// NewConsoleRegistry creates a registry whose consoles' generators run until ctx
// ends or the console is closed.
func NewConsoleRegistry(ctx context.Context, submitter *Submitter, opts ConsoleOptions) *ConsoleRegistry {
	return &ConsoleRegistry{
		ctx:       ctx,
		submitter: submitter,
		opts:      opts,
		consoles:  make(map[string]*Console),
	}
}

// Get returns the console for session, creating and starting it on first use.
func (r *ConsoleRegistry) Get(session string) (*Console, error) {
	if session == "" {
		return nil, errors.New("console: empty session")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.consoles[session]; ok {
		return c, nil
	}
	c := NewConsole(r.submitter, r.opts)
	c.gen.Start(r.ctx)
	r.consoles[session] = c
	return c, nil
}

// Lookup returns the console for session without creating one.
func (r *ConsoleRegistry) Lookup(session string) (*Console, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consoles[session]
	return c, ok
}

// Close stops and forgets the console for session, if any.
func (r *ConsoleRegistry) Close(session string) {
	r.mu.Lock()
	c, ok := r.consoles[session]
	delete(r.consoles, session)
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Rename moves a console to a new session key, used when a token is refreshed.
func (r *ConsoleRegistry) Rename(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.consoles[from]; ok {
		delete(r.consoles, from)
		r.consoles[to] = c
	}
}

// CloseAll stops every console.
func (r *ConsoleRegistry) CloseAll() {
	r.mu.Lock()
	consoles := r.consoles
	r.consoles = make(map[string]*Console)
	r.mu.Unlock()
	for _, c := range consoles {
		c.Close()
	}
}

// Len reports how many consoles are open.
func (r *ConsoleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consoles)
}

// Prune closes every console whose session keep rejects and reports how many
// were closed.
func (r *ConsoleRegistry) Prune(keep func(session string) bool) int {
	r.mu.Lock()
	var stale []*Console
	for session, c := range r.consoles {
		if !keep(session) {
			stale = append(stale, c)
			delete(r.consoles, session)
		}
	}
	r.mu.Unlock()
	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}
