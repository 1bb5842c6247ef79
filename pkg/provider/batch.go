package provider

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/3leaps/gostage/pkg/resource"
)

// Result is the outcome of one copy in a batch. Exactly one of
// Destination or Err is set.
type Result struct {
	Source      resource.Resource
	Destination resource.Resource
	Err         error
}

// OK reports whether the copy succeeded.
func (r Result) OK() bool { return r.Err == nil }

// CopyAllFromRemote copies every item into destinationDir, one at a time,
// and returns one Result per item in input order. A failed item does not
// stop the batch. A canceled context fails the remaining items.
func CopyAllFromRemote(ctx context.Context, p ResourceProvider, destinationDir resource.Resource, items []resource.Resource) []Result {
	return copyAll(ctx, items, func(item resource.Resource) (resource.Resource, error) {
		return p.CopyFromRemote(ctx, destinationDir, item)
	})
}

// CopyAllToRemote uploads every local item into destinationDir with the
// same semantics as CopyAllFromRemote.
func CopyAllToRemote(ctx context.Context, p ResourceProvider, destinationDir resource.Resource, items []resource.Resource) []Result {
	return copyAll(ctx, items, func(item resource.Resource) (resource.Resource, error) {
		return p.CopyToRemote(ctx, destinationDir, item)
	})
}

func copyAll(ctx context.Context, items []resource.Resource, copyFn func(resource.Resource) (resource.Resource, error)) []Result {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Source: item, Err: resource.NewCollectionError("Copy", item, err)})
			continue
		}
		dest, err := copyFn(item)
		if err != nil {
			results = append(results, Result{Source: item, Err: err})
			continue
		}
		results = append(results, Result{Source: item, Destination: dest})
	}
	return results
}

// Failed returns the failed results.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// ListMany lists independent scan locations concurrently. The result
// slice is indexed like locations. It is all-or-nothing: the first
// failure cancels the remaining listings and is returned alone.
//
// limit bounds the number of concurrent listings; <= 0 means one per
// location. Providers with a serialized session (FTP) still process the
// calls one after another.
func ListMany(ctx context.Context, p ResourceProvider, locations []resource.Resource, opts ListOptions, limit int) ([][]resource.Resource, error) {
	out := make([][]resource.Resource, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, loc := range locations {
		g.Go(func() error {
			items, err := p.List(gctx, loc, opts)
			if err != nil {
				return err
			}
			out[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
