package provider

import (
	"context"
	"sync"
	"sync/atomic"
)

// Caching memoizes the describe and project-number lookups of a Provider for
// the lifetime of one resolution batch. It is owned by a single batch and is
// never shared or persisted across batches; reservation state is assumed
// stable while one planning query runs, so entries are never invalidated.
//
// The cache is safe for concurrent use. Two goroutines missing the same key
// at the same time may both issue the underlying call, but the first stored
// result wins and every later reader observes that one value.
type Caching struct {
	Provider

	describes     sync.Map // describeKey -> *describeResult
	projects      sync.Map // project id -> *projectResult
	describeCalls atomic.Int64
}

type describeKey struct {
	project, zone, name string
}

type describeResult struct {
	desc *ReservationDescription
	err  error
}

type projectResult struct {
	number string
	err    error
}

// NewCaching wraps p with per-batch memoization. List calls pass through
// uncached.
func NewCaching(p Provider) *Caching {
	return &Caching{Provider: p}
}

func (c *Caching) DescribeReservation(ctx context.Context, project, zone, name string) (*ReservationDescription, error) {
	key := describeKey{project: project, zone: zone, name: name}
	if v, ok := c.describes.Load(key); ok {
		r := v.(*describeResult)
		return r.desc, r.err
	}

	c.describeCalls.Add(1)
	desc, err := c.Provider.DescribeReservation(ctx, project, zone, name)
	if err != nil && ctx.Err() != nil {
		// A cancelled call says nothing about the reservation; leave the
		// key unset so a later batch retry can still fill it.
		return nil, err
	}

	v, _ := c.describes.LoadOrStore(key, &describeResult{desc: desc, err: err})
	r := v.(*describeResult)
	return r.desc, r.err
}

func (c *Caching) LookupProjectNumber(ctx context.Context, project string) (string, error) {
	if v, ok := c.projects.Load(project); ok {
		r := v.(*projectResult)
		return r.number, r.err
	}

	number, err := c.Provider.LookupProjectNumber(ctx, project)
	if err != nil && ctx.Err() != nil {
		return "", err
	}

	v, _ := c.projects.LoadOrStore(project, &projectResult{number: number, err: err})
	r := v.(*projectResult)
	return r.number, r.err
}

// DescribeCalls returns how many describe calls reached the underlying
// provider. Exposed so tests can verify memoization.
func (c *Caching) DescribeCalls() int64 {
	return c.describeCalls.Load()
}
