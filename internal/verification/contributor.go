package verification

import (
	"context"
	"fmt"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Contributor computes one scoring dimension for a report.
type Contributor func(ctx context.Context, report domain.HazardReport) (float64, error)

// namedContributor pairs a contributor with the dimension it fills.
type namedContributor struct {
	name string
	fn   Contributor
}

// runContributors evaluates every contributor concurrently. Either all values
// are returned (clamped, in input order) or the first error.
func runContributors(ctx context.Context, report domain.HazardReport, cs []namedContributor) ([]float64, error) {
	out := make([]float64, len(cs))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cs {
		g.Go(func() error {
			v, err := c.fn(gctx, report)
			if err != nil {
				return fmt.Errorf("%s score: %w", c.name, err)
			}
			out[i] = domain.Clamp01(v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
