package resolver

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	configv1 "github.com/clusterkit/reservation-capacity/api/config/v1"
	"github.com/clusterkit/reservation-capacity/internal/provider"
	"github.com/clusterkit/reservation-capacity/internal/reservation"
)

// freeHosts extracts the number of unallocated hosts from a description.
// For aggregate reservations the counts are keyed by accelerator type, so
// the requirement's key is built first; a key that matches nothing yields
// zero, which downstream treats as "no capacity here".
func (r *Resolver) freeHosts(ctx context.Context, link reservation.ReservationLink, desc *provider.ReservationDescription) int64 {
	if spec := desc.Specific; spec != nil {
		free := spec.Count - spec.InUseCount
		if free < 0 {
			free = 0
		}
		return free
	}

	agg := desc.Aggregate
	if agg == nil {
		return 0
	}

	key, err := r.aggregateKey(ctx, link)
	if err != nil {
		klog.Warningf("Reservation %s: could not build accelerator resource key: %v", link.Name, err)
		return 0
	}

	free := sumResources(agg.ReservedResources, key) - sumResources(agg.InUseResources, key)
	if free < 0 {
		free = 0
	}
	return free
}

// aggregateKey is the acceleratorType value aggregate resource entries are
// matched on. Homogeneous-machine workloads use the fully qualified path,
// which needs the numeric project number rather than the project id.
func (r *Resolver) aggregateKey(ctx context.Context, link reservation.ReservationLink) (string, error) {
	if r.req.Category == configv1.CategoryDiscreteAccelerator {
		return r.req.Type, nil
	}

	number, err := r.provider.LookupProjectNumber(ctx, link.Project)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("projects/%s/zones/%s/acceleratorTypes/%s", number, link.Zone, r.req.Type), nil
}

func sumResources(resources []provider.AllocatedResource, key string) int64 {
	var sum int64
	for _, res := range resources {
		if res.Accelerator.Type == key {
			sum += res.Accelerator.Count
		}
	}
	return sum
}

// sliceCount converts free hosts into whole workload slices. Zero means the
// target must not be emitted at all.
func sliceCount(freeHosts, requiredHosts int64) int64 {
	return freeHosts / requiredHosts
}

func subBlockSlices(sb provider.SubBlock, requiredHosts int64) int64 {
	return sliceCount(sb.FreeHosts(), requiredHosts)
}
