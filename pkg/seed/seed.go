// Package seed loads reference data (participants, locations, action
// categories and tags) from YAML files.
//
// Applying a file is idempotent: records whose name already exists in the store
// (compared case-insensitively) are left alone.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

//go:embed default.yaml
var defaultSeed []byte

type Participant struct {
	Name           string `yaml:"name"`
	Bio            string `yaml:"bio,omitempty"`
	ProfilePicture string `yaml:"profile_picture,omitempty"`
	// Active defaults to true.
	Active *bool `yaml:"active,omitempty"`
}

type Location struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Color       string `yaml:"color,omitempty"`
}

type ActionCategory struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Color       string `yaml:"color,omitempty"`
	Icon        string `yaml:"icon,omitempty"`
}

type Tag struct {
	Name     string `yaml:"name"`
	Color    string `yaml:"color,omitempty"`
	Category string `yaml:"category,omitempty"`
}

// File is the document layout.
type File struct {
	Participants     []Participant    `yaml:"participants"`
	Locations        []Location       `yaml:"locations"`
	ActionCategories []ActionCategory `yaml:"action_categories"`
	Tags             []Tag            `yaml:"tags"`
}

// Decode parses a seed document. Unknown keys are errors.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ReadFile decodes the seed document at path.
func ReadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Decode(fh)
}

// Default returns the built-in starter set.
func Default() *File {
	f, err := Decode(strings.NewReader(string(defaultSeed)))
	if err != nil {
		panic(err)
	}
	return f
}

// Validate checks that every record has a name.
func (f *File) Validate() error {
	var errs []error
	check := func(kind string, i int, name string) {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("%s[%d]: name is required", kind, i))
		}
	}
	for i, p := range f.Participants {
		check("participants", i, p.Name)
	}
	for i, l := range f.Locations {
		check("locations", i, l.Name)
	}
	for i, a := range f.ActionCategories {
		check("action_categories", i, a.Name)
	}
	for i, t := range f.Tags {
		check("tags", i, t.Name)
	}
	return errors.Join(errs...)
}

// Result counts what Apply did per collection.
type Result struct {
	Created map[store.Collection]int
	Skipped map[store.Collection]int
}

func (r Result) String() string {
	var b strings.Builder
	for _, c := range []store.Collection{
		store.CollectionParticipants,
		store.CollectionLocations,
		store.CollectionActionCategories,
		store.CollectionTags,
	} {
		fmt.Fprintf(&b, "%s: %d created, %d skipped\n", c, r.Created[c], r.Skipped[c])
	}
	return b.String()
}

func existing[T any](ctx context.Context, list func(context.Context) ([]T, error), name func(T) string) (map[string]bool, error) {
	items, err := list(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		seen[strings.ToLower(name(it))] = true
	}
	return seen, nil
}

// apply creates each item whose name is not yet taken.
func apply[S any, T any](
	ctx context.Context,
	res *Result,
	c store.Collection,
	items []S,
	list func(context.Context) ([]T, error),
	storedName func(T) string,
	seedName func(S) string,
	create func(context.Context, S) error,
) error {
	seen, err := existing(ctx, list, storedName)
	if err != nil {
		return fmt.Errorf("list %s: %w", c, err)
	}
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(seedName(it)))
		if seen[key] {
			res.Skipped[c]++
			continue
		}
		if err := create(ctx, it); err != nil {
			return fmt.Errorf("create %s %q: %w", c, seedName(it), err)
		}
		seen[key] = true
		res.Created[c]++
	}
	return nil
}

// Apply writes f into s.
func Apply(ctx context.Context, s store.ReferenceStore, f *File) (Result, error) {
	res := Result{
		Created: make(map[store.Collection]int),
		Skipped: make(map[store.Collection]int),
	}

	err := apply(ctx, &res, store.CollectionParticipants, f.Participants, s.ListParticipants,
		func(p *models.Participant) string { return p.Name },
		func(p Participant) string { return p.Name },
		func(ctx context.Context, p Participant) error {
			active := p.Active == nil || *p.Active
			return s.CreateParticipant(ctx, &models.Participant{
				Name:           strings.TrimSpace(p.Name),
				Bio:            p.Bio,
				ProfilePicture: p.ProfilePicture,
				IsActive:       active,
			})
		})
	if err != nil {
		return res, err
	}

	err = apply(ctx, &res, store.CollectionLocations, f.Locations, s.ListLocations,
		func(l *models.Location) string { return l.Name },
		func(l Location) string { return l.Name },
		func(ctx context.Context, l Location) error {
			return s.CreateLocation(ctx, &models.Location{
				Name:        strings.TrimSpace(l.Name),
				Description: l.Description,
				Color:       l.Color,
			})
		})
	if err != nil {
		return res, err
	}

	err = apply(ctx, &res, store.CollectionActionCategories, f.ActionCategories, s.ListActionCategories,
		func(a *models.ActionCategory) string { return a.Name },
		func(a ActionCategory) string { return a.Name },
		func(ctx context.Context, a ActionCategory) error {
			return s.CreateActionCategory(ctx, &models.ActionCategory{
				Name:        strings.TrimSpace(a.Name),
				Description: a.Description,
				Color:       a.Color,
				Icon:        a.Icon,
			})
		})
	if err != nil {
		return res, err
	}

	err = apply(ctx, &res, store.CollectionTags, f.Tags, s.ListTags,
		func(t *models.Tag) string { return t.Name },
		func(t Tag) string { return t.Name },
		func(ctx context.Context, t Tag) error {
			return s.CreateTag(ctx, &models.Tag{
				Name:     strings.TrimSpace(t.Name),
				Color:    t.Color,
				Category: t.Category,
			})
		})
	return res, err
}
