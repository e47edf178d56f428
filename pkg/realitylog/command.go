package realitylog

import (
	"time"

	"github.com/realitylog/realitylog/pkg/config"
)

// Command is one CLI operation with its own options. Main builds a Command from
// the parsed flags and dispatches it to the matching App method.
type Command interface {
	// Name returns the CLI sub-command name.
	Name() string
}

// RunCommand starts the HTTP server and the realtime projections.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }

// MigrateCommand creates or upgrades the backend schema. It is idempotent.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }

// SeedCommand loads participants, locations, action categories and tags from a
// YAML file. With Default set, the built-in starter set is loaded instead.
type SeedCommand struct {
	File    string
	Default bool
}

func (c *SeedCommand) Name() string { return "seed" }

// UserCreateCommand creates a profile directly in the store, bypassing the
// admin check. It is how the first admin is made.
type UserCreateCommand struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

func (c *UserCreateCommand) Name() string { return "user create" }

// ExportCommand writes the whole log in Format to Out ("-" or empty is stdout).
type ExportCommand struct {
	Format string
	Out    string
	// Title defaults to "Production Log".
	Title string
}

func (c *ExportCommand) Name() string { return "export" }

// CopyCommand copies users, reference data and log entries from the configured
// backend into Target. Since and Until bound the copied entries.
type CopyCommand struct {
	Target config.Store
	Since  time.Time
	Until  time.Time
}

func (c *CopyCommand) Name() string { return "copy" }
