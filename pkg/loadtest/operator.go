// Package loadtest drives a running realitylog server with simulated logging
// operators.
//
// A [VirtualOperator] is a logger account working one console: it picks
// participants, a location and an action, types notes and submits, then goes
// back to correct or remove some of its own entries. Its choices come from a
// random source seeded with its index, so a run can be replayed.
//
// Even-indexed operators mostly submit. Odd-indexed operators also delete
// some of what they submit.
//
//	admin := client.NewClient(baseURL)
//	_, _ = admin.Login(ctx, "admin@example.com", "secret-password")
//	op := loadtest.NewVirtualOperator(0, baseURL)
//	if err := op.Provision(ctx, admin); err != nil {
//		return err
//	}
//	if err := op.RunScenario(ctx, 20); err != nil {
//		return err
//	}
package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/models"
)

// VirtualOperator is one simulated logger session.
type VirtualOperator struct {
	Index    int // operator index (0, 1, 2...), not the user ID
	Name     string
	Email    string
	Password string
	Client   *client.Client
	RNG      *rand.Rand

	User *models.User

	// Reference data seen at sign-in.
	participants []*models.Participant
	locations    []*models.Location
	actions      []*models.ActionCategory
	tags         []*models.Tag

	// Entries submitted and deleted by this operator.
	Entries map[models.LogEntryID]*models.LogEntry
	Deleted []models.LogEntryID

	mu sync.RWMutex
}

func NewVirtualOperator(index int, baseURL string) *VirtualOperator {
	// Timestamp keeps emails unique across runs against the same database.
	timestamp := time.Now().UnixNano()
	return &VirtualOperator{
		Index:    index,
		Name:     fmt.Sprintf("Virtual Operator %d", index),
		Email:    fmt.Sprintf("operator%d-%d@loadtest.invalid", index, timestamp),
		Password: fmt.Sprintf("password%d", index),
		Client:   client.NewClient(baseURL),
		RNG:      rand.New(rand.NewSource(int64(index))),
		Entries:  make(map[models.LogEntryID]*models.LogEntry),
	}
}

// Provision creates the operator's logger account through an admin client.
func (vo *VirtualOperator) Provision(ctx context.Context, admin *client.Client) error {
	_, err := admin.CreateUser(ctx, client.CreateUserRequest{
		Email:       vo.Email,
		Password:    vo.Password,
		DisplayName: vo.Name,
		Role:        string(models.RoleLogger),
	})
	if err != nil {
		return fmt.Errorf("virtual operator %d provisioning failed: %w", vo.Index, err)
	}
	return nil
}

// SignIn logs in and loads the reference data the operator chooses from.
func (vo *VirtualOperator) SignIn(ctx context.Context) error {
	sess, err := vo.Client.Login(ctx, vo.Email, vo.Password)
	if err != nil {
		return fmt.Errorf("virtual operator %d login failed: %w", vo.Index, err)
	}

	participants, err := vo.Client.ListParticipants(ctx)
	if err != nil {
		return fmt.Errorf("virtual operator %d failed to list participants: %w", vo.Index, err)
	}
	locations, err := vo.Client.ListLocations(ctx)
	if err != nil {
		return fmt.Errorf("virtual operator %d failed to list locations: %w", vo.Index, err)
	}
	actions, err := vo.Client.ListActionCategories(ctx)
	if err != nil {
		return fmt.Errorf("virtual operator %d failed to list action categories: %w", vo.Index, err)
	}
	tags, err := vo.Client.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("virtual operator %d failed to list tags: %w", vo.Index, err)
	}
	if len(locations) == 0 || len(actions) == 0 {
		return fmt.Errorf("virtual operator %d: server has no reference data; run seed first", vo.Index)
	}

	vo.mu.Lock()
	vo.User = sess.User
	vo.participants, vo.locations, vo.actions, vo.tags = participants, locations, actions, tags
	vo.mu.Unlock()
	return nil
}

func (vo *VirtualOperator) SignOut(ctx context.Context) error {
	if err := vo.Client.Logout(ctx); err != nil {
		return fmt.Errorf("virtual operator %d logout failed: %w", vo.Index, err)
	}
	vo.mu.Lock()
	vo.User = nil
	vo.mu.Unlock()
	return nil
}

// prepare fills the console with a random selection. Previous choices are kept,
// the way a real operator leaves the cast selected between entries.
func (vo *VirtualOperator) prepare(ctx context.Context, seq int) error {
	state, err := vo.Client.Console(ctx)
	if err != nil {
		return err
	}

	// Toggle one participant; make sure at least one stays selected.
	// Entries without participants are valid, so a cast-less show skips this.
	if len(vo.participants) > 0 {
		p := vo.participants[vo.RNG.Intn(len(vo.participants))]
		selected := state.Selection.HasParticipant(p.ID)
		if !selected || len(state.Selection.Participants) > 1 {
			if state, err = vo.Client.ToggleParticipant(ctx, p.ID); err != nil {
				return err
			}
		}
	}

	if !state.Selection.HasLocation() || vo.RNG.Float32() < 0.3 {
		loc := vo.locations[vo.RNG.Intn(len(vo.locations))]
		if _, err := vo.Client.SetLocation(ctx, loc.ID); err != nil {
			return err
		}
	}
	action := vo.actions[vo.RNG.Intn(len(vo.actions))]
	if _, err := vo.Client.SetActionCategory(ctx, action.ID); err != nil {
		return err
	}

	if len(vo.tags) > 0 && vo.RNG.Float32() < 0.25 {
		tag := vo.tags[vo.RNG.Intn(len(vo.tags))]
		if _, err := vo.Client.ToggleTag(ctx, tag.ID); err != nil {
			return err
		}
	}

	// Occasionally pin the timecode by hand, then go back to the clock.
	if vo.RNG.Float32() < 0.1 {
		tc := fmt.Sprintf("%02d:%02d:%02d:%02d", vo.RNG.Intn(24), vo.RNG.Intn(60), vo.RNG.Intn(60), vo.RNG.Intn(24))
		if _, err := vo.Client.EditTimecode(ctx, tc); err != nil {
			return err
		}
		if vo.RNG.Float32() < 0.5 {
			if _, err := vo.Client.ResyncTimecode(ctx); err != nil {
				return err
			}
		}
	}

	_, err = vo.Client.SetNotes(ctx, fmt.Sprintf("Observation %d-%d", vo.Index, seq))
	return err
}

// SubmitEntry prepares the console and submits one entry.
func (vo *VirtualOperator) SubmitEntry(ctx context.Context, seq int) (*models.LogEntry, error) {
	if err := vo.prepare(ctx, seq); err != nil {
		return nil, fmt.Errorf("virtual operator %d failed to prepare entry %d: %w", vo.Index, seq, err)
	}
	entry, err := vo.Client.Submit(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("virtual operator %d failed to submit entry %d: %w", vo.Index, seq, err)
	}

	vo.mu.Lock()
	vo.Entries[entry.ID] = entry
	vo.mu.Unlock()
	return entry, nil
}

func (vo *VirtualOperator) EditEntry(ctx context.Context, entry *models.LogEntry, notes string) error {
	updated, err := vo.Client.EditLogEntryNotes(ctx, entry.ID, notes)
	if err != nil {
		return fmt.Errorf("virtual operator %d failed to edit entry %s: %w", vo.Index, entry.ID, err)
	}
	vo.mu.Lock()
	vo.Entries[entry.ID] = updated
	vo.mu.Unlock()
	return nil
}

func (vo *VirtualOperator) DeleteEntry(ctx context.Context, id models.LogEntryID) error {
	if err := vo.Client.DeleteLogEntry(ctx, id); err != nil {
		return fmt.Errorf("virtual operator %d failed to delete entry %s: %w", vo.Index, id, err)
	}
	vo.mu.Lock()
	delete(vo.Entries, id)
	vo.Deleted = append(vo.Deleted, id)
	vo.mu.Unlock()
	return nil
}

// VerifyAllData checks that the server holds exactly the entries this operator
// kept, with the notes it last wrote, and none of the ones it deleted.
func (vo *VirtualOperator) VerifyAllData(ctx context.Context) error {
	me, err := vo.Client.Me(ctx)
	if err != nil {
		return fmt.Errorf("virtual operator %d failed to get current user: %w", vo.Index, err)
	}
	if me.ID != vo.User.ID {
		return fmt.Errorf("virtual operator %d ID mismatch: expected %s, got %s", vo.Index, vo.User.ID, me.ID)
	}

	vo.mu.RLock()
	defer vo.mu.RUnlock()

	page, err := vo.Client.ListLogEntries(ctx, client.LogEntryQuery{CreatedBy: vo.User.ID, Limit: 500})
	if err != nil {
		return fmt.Errorf("virtual operator %d failed to list entries: %w", vo.Index, err)
	}
	if page.Total != len(vo.Entries) {
		return fmt.Errorf("virtual operator %d entry count mismatch: expected %d, got %d", vo.Index, len(vo.Entries), page.Total)
	}
	for _, got := range page.Entries {
		want, ok := vo.Entries[got.ID]
		if !ok {
			return fmt.Errorf("virtual operator %d: unexpected entry %s", vo.Index, got.ID)
		}
		if got.Notes != want.Notes {
			return fmt.Errorf("virtual operator %d: entry %s notes %q, expected %q", vo.Index, got.ID, got.Notes, want.Notes)
		}
		if got.Timecode != want.Timecode {
			return fmt.Errorf("virtual operator %d: entry %s timecode changed", vo.Index, got.ID)
		}
	}

	for _, id := range vo.Deleted {
		_, err := vo.Client.GetLogEntry(ctx, id)
		if client.StatusCode(err) != http.StatusNotFound {
			return fmt.Errorf("virtual operator %d: deleted entry %s still exists (err=%v)", vo.Index, id, err)
		}
	}
	return nil
}

// RunScenario signs in, submits entries, edits and deletes some of them, and
// verifies the result.
func (vo *VirtualOperator) RunScenario(ctx context.Context, entries int) error {
	if err := vo.SignIn(ctx); err != nil {
		return err
	}

	deleteBias := vo.Index%2 == 1
	for i := 0; i < entries; i++ {
		entry, err := vo.SubmitEntry(ctx, i)
		if err != nil {
			return err
		}

		// Sometimes fix a typo (25% chance)
		if vo.RNG.Float32() < 0.25 {
			if err := vo.EditEntry(ctx, entry, entry.Notes+" (corrected)"); err != nil {
				return err
			}
		}

		deleteChance := float32(0.02)
		if deleteBias {
			deleteChance = 0.15
		}
		if vo.RNG.Float32() < deleteChance {
			if err := vo.DeleteEntry(ctx, entry.ID); err != nil {
				return err
			}
		}
	}

	return vo.VerifyAllData(ctx)
}
