package loadtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/realitylog/realitylog/pkg/client"
)

type Options struct {
	BaseURL       string
	AdminEmail    string
	AdminPassword string
	// Operators is the number of concurrent virtual operators.
	Operators int
	// Entries is how many entries each operator submits.
	Entries int
	Logger  zerolog.Logger
}

// Report summarizes a finished run.
type Report struct {
	Operators int           `json:"operators"`
	Submitted int64         `json:"submitted"`
	Deleted   int64         `json:"deleted"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (r Report) String() string {
	return fmt.Sprintf("%d operators submitted %d entries (%d deleted) in %s\n",
		r.Operators, r.Submitted, r.Deleted, r.Elapsed.Round(time.Millisecond))
}

// Run provisions opts.Operators logger accounts and runs their scenarios
// concurrently. The first failing operator cancels the others.
func Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Operators < 1 || opts.Entries < 1 {
		return Report{}, fmt.Errorf("operators and entries must be positive")
	}
	start := time.Now()

	admin := client.NewClient(opts.BaseURL)
	if _, err := admin.Login(ctx, opts.AdminEmail, opts.AdminPassword); err != nil {
		return Report{}, fmt.Errorf("admin login failed: %w", err)
	}
	defer func() { _ = admin.Logout(context.WithoutCancel(ctx)) }()

	ops := make([]*VirtualOperator, opts.Operators)
	for i := range ops {
		ops[i] = NewVirtualOperator(i, opts.BaseURL)
		if err := ops[i].Provision(ctx, admin); err != nil {
			return Report{}, err
		}
	}

	var submitted, deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, op := range ops {
		g.Go(func() error {
			logger := opts.Logger.With().Int("operator", op.Index).Logger()
			if err := op.RunScenario(gctx, opts.Entries); err != nil {
				logger.Error().Err(err).Msg("scenario failed")
				return err
			}
			op.mu.RLock()
			submitted.Add(int64(len(op.Entries) + len(op.Deleted)))
			deleted.Add(int64(len(op.Deleted)))
			op.mu.RUnlock()
			logger.Debug().Int("kept", len(op.Entries)).Msg("scenario verified")
			return op.SignOut(gctx)
		})
	}
	err := g.Wait()

	return Report{
		Operators: opts.Operators,
		Submitted: submitted.Load(),
		Deleted:   deleted.Load(),
		Elapsed:   time.Since(start),
	}, err
}
