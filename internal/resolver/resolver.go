package resolver

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	configv1 "github.com/clusterkit/reservation-capacity/api/config/v1"
	"github.com/clusterkit/reservation-capacity/internal/provider"
	"github.com/clusterkit/reservation-capacity/internal/reservation"
)

// maxExpansionDepth bounds the reservation -> blocks -> sub-blocks recursion.
// The hierarchy is fixed at three levels, so two expansions are ever needed.
const maxExpansionDepth = 2

// Resolver answers one batch of "how many workload slices can these
// reservation targets admit" queries. It owns a per-batch memoizing view of
// the provider and is not reused across batches.
//
// The resolver is strictly read-only and best-effort: every failure of an
// external call, hardware mismatch, or unhealthy target is absorbed as
// "zero capacity for that target, warning logged". An empty result is a
// fully successful outcome.
type Resolver struct {
	provider *provider.Caching
	req      *configv1.WorkloadRequirement
	settings *configv1.ResolveSettings
	batchID  string
}

// New builds a resolver for one batch. A nil settings uses the defaults.
func New(p provider.Provider, req *configv1.WorkloadRequirement, settings *configv1.ResolveSettings) *Resolver {
	if settings == nil {
		settings = configv1.GetDefaultResolveSettings()
	}
	if settings.MaxConcurrency <= 0 {
		settings = &configv1.ResolveSettings{
			ForceSubBlockTargeting: settings.ForceSubBlockTargeting,
			MaxConcurrency:         configv1.GetDefaultResolveSettings().MaxConcurrency,
		}
	}
	return &Resolver{
		provider: provider.NewCaching(p),
		req:      req,
		settings: settings,
		batchID:  uuid.NewString(),
	}
}

// ResolveBatch resolves every link in order, concatenates the per-link
// results and deduplicates them preserving first occurrence. Sibling links
// are resolved concurrently; the output order still follows the input order.
// Cancellation aborts in-flight provider calls and yields an empty result;
// callers that care must check ctx.Err() themselves.
func (r *Resolver) ResolveBatch(ctx context.Context, links []reservation.Link) []Capacity {
	return r.resolveBatch(ctx, links, 0)
}

func (r *Resolver) resolveBatch(ctx context.Context, links []reservation.Link, depth int) []Capacity {
	results := make([][]Capacity, len(links))

	var g errgroup.Group
	g.SetLimit(r.settings.MaxConcurrency)
	for i, link := range links {
		i, link := i, link
		g.Go(func() error {
			results[i] = r.resolveOne(ctx, link, depth)
			return nil
		})
	}
	_ = g.Wait()

	var merged []Capacity
	for _, res := range results {
		merged = append(merged, res...)
	}
	return dedupe(merged)
}

// resolveOne handles a single link. It never returns an error: anything that
// goes wrong contributes no capacity and logs why.
func (r *Resolver) resolveOne(ctx context.Context, link reservation.Link, depth int) []Capacity {
	root := link.Root()

	desc, err := r.provider.DescribeReservation(ctx, root.Project, root.Zone, root.Name)
	if err != nil {
		klog.Warningf("Could not describe reservation %s in zone %s: %v, skipping", root.Name, root.Zone, err)
		return nil
	}
	if !validateHardware(desc, r.req, root.Name) {
		return nil
	}

	switch l := link.(type) {
	case reservation.SubBlockLink:
		return r.resolveSubBlock(ctx, l)
	case reservation.BlockLink:
		if r.settings.ForceSubBlockTargeting {
			return r.expandBlock(ctx, l)
		}
	case reservation.ReservationLink:
		if r.settings.ForceSubBlockTargeting {
			return r.expandReservation(ctx, l, depth)
		}
	}

	// Resolve at the link's own granularity from the root description.
	free := r.freeHosts(ctx, root, desc)
	n := sliceCount(free, r.req.RequiredHosts)
	if n <= 0 {
		klog.InfoS("No usable capacity", "target", link.String(), "freeHosts", free, "requiredHosts", r.req.RequiredHosts, "batch", r.batchID)
		return nil
	}
	return []Capacity{{Link: link, Slices: n}}
}

// resolveSubBlock resolves one explicitly targeted sub-block. The healthy
// filter happens at the query layer, so zero results means the sub-block is
// unhealthy or does not exist. The two cases are indistinguishable on
// purpose.
func (r *Resolver) resolveSubBlock(ctx context.Context, link reservation.SubBlockLink) []Capacity {
	subBlocks, err := r.provider.ListHealthySubBlocks(ctx, link.Project, link.Zone, link.Name, link.Block, link.SubBlock)
	if err != nil {
		klog.Warningf("Could not list sub-blocks of %s: %v, skipping", link.BlockLink.String(), err)
		return nil
	}
	if len(subBlocks) == 0 {
		klog.Warningf("Sub-block %s is unhealthy or does not fit, skipping", link.String())
		return nil
	}

	n := subBlockSlices(subBlocks[0], r.req.RequiredHosts)
	if n <= 0 {
		return nil
	}
	return []Capacity{{Link: link, Slices: n}}
}

// expandBlock turns one block into a capacity entry per healthy sub-block.
// Zero-slice sub-blocks are still included at this level: callers targeting
// sub-blocks want the full healthy inventory, not just the non-empty part.
func (r *Resolver) expandBlock(ctx context.Context, link reservation.BlockLink) []Capacity {
	subBlocks, err := r.provider.ListHealthySubBlocks(ctx, link.Project, link.Zone, link.Name, link.Block, "")
	if err != nil {
		klog.Warningf("Could not list sub-blocks of %s: %v, skipping", link.String(), err)
		return nil
	}

	capacities := make([]Capacity, 0, len(subBlocks))
	for _, sb := range subBlocks {
		capacities = append(capacities, Capacity{
			Link:   reservation.SubBlockLink{BlockLink: link, SubBlock: sb.Name},
			Slices: subBlockSlices(sb, r.req.RequiredHosts),
		})
	}
	return capacities
}

// expandReservation lists the blocks of a reservation and feeds them back
// through the batch entry point, so synthesized blocks follow the exact same
// validation, arithmetic and memoization path as explicitly targeted ones.
func (r *Resolver) expandReservation(ctx context.Context, link reservation.ReservationLink, depth int) []Capacity {
	if depth >= maxExpansionDepth {
		klog.Warningf("Reservation %s: expansion depth %d exceeded, skipping", link.Name, depth)
		return nil
	}

	blocks, err := r.provider.ListBlocks(ctx, link.Project, link.Zone, link.Name)
	if err != nil {
		klog.Warningf("Could not list blocks of reservation %s: %v, skipping", link.Name, err)
		return nil
	}
	if len(blocks) == 0 {
		klog.Warningf("No blocks found under reservation %s, skipping", link.Name)
		return nil
	}

	blockLinks := make([]reservation.Link, 0, len(blocks))
	for _, name := range blocks {
		blockLinks = append(blockLinks, reservation.BlockLink{ReservationLink: link, Block: name})
	}
	return r.resolveBatch(ctx, blockLinks, depth+1)
}

// dedupe removes duplicate (link, slices) pairs, keeping the first
// occurrence in place.
func dedupe(in []Capacity) []Capacity {
	seen := make(map[Capacity]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
