package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	configv1 "github.com/clusterkit/reservation-capacity/api/config/v1"
	"github.com/clusterkit/reservation-capacity/internal/provider"
	"github.com/clusterkit/reservation-capacity/internal/reservation"
)

// fakeProvider is an in-memory Provider recording call counts.
type fakeProvider struct {
	mu            sync.Mutex
	describeCalls int

	descriptions  map[string]*provider.ReservationDescription // reservation name -> description
	blocks        map[string][]string                         // reservation name -> block names
	subBlocks     map[string][]provider.SubBlock              // "reservation/block" -> healthy sub-blocks
	projectNumber string

	describeErr  error
	blocksErr    error
	subBlocksErr error
}

func (f *fakeProvider) DescribeReservation(ctx context.Context, project, zone, name string) (*provider.ReservationDescription, error) {
	f.mu.Lock()
	f.describeCalls++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	desc, ok := f.descriptions[name]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return desc, nil
}

func (f *fakeProvider) ListBlocks(ctx context.Context, project, zone, res string) ([]string, error) {
	if f.blocksErr != nil {
		return nil, f.blocksErr
	}
	return f.blocks[res], nil
}

func (f *fakeProvider) ListHealthySubBlocks(ctx context.Context, project, zone, res, block, subBlock string) ([]provider.SubBlock, error) {
	if f.subBlocksErr != nil {
		return nil, f.subBlocksErr
	}
	var out []provider.SubBlock
	for _, sb := range f.subBlocks[res+"/"+block] {
		if subBlock != "" && sb.Name != subBlock {
			continue
		}
		out = append(out, sb)
	}
	return out, nil
}

func (f *fakeProvider) LookupProjectNumber(ctx context.Context, project string) (string, error) {
	if f.projectNumber == "" {
		return "", errors.New("no project number configured")
	}
	return f.projectNumber, nil
}

func specificDescription(count, inUse int64, machineType string) *provider.ReservationDescription {
	return &provider.ReservationDescription{
		Status: provider.StatusReady,
		Specific: &provider.SpecificReservation{
			Count:              count,
			InUseCount:         inUse,
			InstanceProperties: &provider.InstanceProperties{MachineType: machineType},
		},
	}
}

func tpuRequirement(requiredHosts int64) *configv1.WorkloadRequirement {
	return &configv1.WorkloadRequirement{
		Category:      configv1.CategoryHomogeneousMachine,
		Type:          "ct5p-hightpu-4t",
		RequiredHosts: requiredHosts,
	}
}

var (
	resLink = reservation.ReservationLink{Project: "proj", Zone: "zone-a", Name: "res-1"}
	blkLink = reservation.BlockLink{ReservationLink: resLink, Block: "block-1"}
	subLink = reservation.SubBlockLink{BlockLink: blkLink, SubBlock: "sub-1"}
)

func TestResolveBatch_SpecificReservation(t *testing.T) {
	f := &fakeProvider{descriptions: map[string]*provider.ReservationDescription{
		"res-1": specificDescription(48, 2, "ct5p-hightpu-4t"),
	}}

	got := New(f, tpuRequirement(16), nil).ResolveBatch(context.Background(), []reservation.Link{resLink})
	if len(got) != 1 {
		t.Fatalf("expected one capacity entry, got %v", got)
	}
	if got[0].Link != reservation.Link(resLink) || got[0].Slices != 2 {
		t.Fatalf("unexpected capacity: %+v", got[0])
	}

	// One host per slice: every free host is a slice.
	got = New(f, tpuRequirement(1), nil).ResolveBatch(context.Background(), []reservation.Link{resLink})
	if len(got) != 1 || got[0].Slices != 46 {
		t.Fatalf("expected 46 slices, got %v", got)
	}
}

func TestResolveBatch_NoFreeHosts(t *testing.T) {
	f := &fakeProvider{descriptions: map[string]*provider.ReservationDescription{
		"res-1": specificDescription(8, 8, "ct5p-hightpu-4t"),
	}}

	got := New(f, tpuRequirement(4), nil).ResolveBatch(context.Background(), []reservation.Link{resLink})
	if len(got) != 0 {
		t.Fatalf("expected no entries for a fully used reservation, got %v", got)
	}
}

func TestResolveBatch_HardwareMismatch(t *testing.T) {
	f := &fakeProvider{descriptions: map[string]*provider.ReservationDescription{
		"res-1": specificDescription(100, 0, "a3-highgpu-8g"),
	}}

	got := New(f, tpuRequirement(1), nil).ResolveBatch(context.Background(), []reservation.Link{resLink})
	if len(got) != 0 {
		t.Fatalf("expected no entries for a machine type mismatch, got %v", got)
	}
}

func TestResolveBatch_GuestAcceleratorMatch(t *testing.T) {
	desc := specificDescription(10, 0, "a3-highgpu-8g")
	desc.Specific.InstanceProperties.GuestAccelerators = []provider.Accelerator{
		{Type: "nvidia-h100-80gb", Count: 8},
	}
	f := &fakeProvider{descriptions: map[string]*provider.ReservationDescription{"res-1": desc}}

	req := &configv1.WorkloadRequirement{
		Category:      configv1.CategoryDiscreteAccelerator,
		Type:          "nvidia-h100-80gb",
		RequiredHosts: 2,
	}
	got := New(f, req, nil).ResolveBatch(context.Background(), []reservation.Link{resLink})
	if len(got) != 1 || got[0].Slices != 5 {
		t.Fatalf("expected one entry with 5 slices, got %v", got)
	}

	req.Type = "nvidia-b200"
	got = New(f, req, nil).ResolveBatch(context.Background(), []reservation.Link{resLink})
	if len(got) != 0 {
		t.Fatalf("expected no entries for an accelerator type mismatch, got %v", got)
	}
}

func TestResolveBatch_NotFoundAndNotReady(t *testing.T) {
	f := &fakeProvider{descriptions: map[string]*provider.ReservationDescription{
		"res-1": {Status: "CREATING", Specific: &provider.SpecificReservation{Count: 10}},
	}}
	r := New(f, tpuRequirement(1), nil)

	missing := reservation.ReservationLink{Project: "proj", Zone: "zone-a", Name: "no-such"}
	got := r.ResolveBatch(context.Background(), []reservation.Link{missing, resLink})
	if len(got) != 0 {
		t.Fatalf("expected no entries for missing or not-ready reservations, got %v", got)
	}
}

func TestResolveBatch_SubBlock(t *testing.T) {
	f := &fakeProvider{
		descriptions: map[string]*provider.ReservationDescription{
			"res-1": specificDescription(64, 0, "ct5p-hightpu-4t"),
		},
		subBlocks: map[string][]provider.SubBlock{
			"res-1/block-1": {{Name: "sub-1", Count: 16, InUseCount: 4}},
		},
	}

	got := New(f, tpuRequirement(4), nil).ResolveBatch(context.Background(), []reservation.Link{subLink})
	if len(got) != 1 {
		t.Fatalf("expected one entry, got %v", got)
	}
	if got[0].Link != reservation.Link(subLink) || got[0].Slices != 3 {
		t.Fatalf("unexpected capacity: %+v", got[0])
	}
}

func TestResolveBatch_SubBlockUnhealthyOrMissing(t *testing.T) {
	f := &fakeProvider{
		descriptions: map[string]*provider.ReservationDescription{
			"res-1": specificDescription(64, 0, "ct5p-hightpu-4t"),
		},
		// The healthy filter returns nothing for sub-1.
		subBlocks: map[string][]provider.SubBlock{
			"res-1/block-1": {{Name: "sub-2", Count: 16, InUseCount: 0}},
		},
	}

	got := New(f, tpuRequirement(4), nil).ResolveBatch(context.Background(), []reservation.Link{subLink})
	if len(got) != 0 {
		t.Fatalf("expected no entries for an unhealthy sub-block, got %v", got)
	}
}

func TestResolveBatch_MemoizesDescribe(t *testing.T) {
	other := reservation.SubBlockLink{BlockLink: blkLink, SubBlock: "sub-2"}
	f := &fakeProvider{
		descriptions: map[string]*provider.ReservationDescription{
			"res-1": specificDescription(64, 0, "ct5p-hightpu-4t"),
		},
		subBlocks: map[string][]provider.SubBlock{
			"res-1/block-1": {
				{Name: "sub-1", Count: 16, InUseCount: 0},
				{Name: "sub-2", Count: 16, InUseCount: 0},
			},
		},
	}

	// Sequential resolution so the cold cache cannot race: repeated targets
	// under the same parent must reuse one describe result.
	settings := &configv1.ResolveSettings{MaxConcurrency: 1}
	got := New(f, tpuRequirement(4), settings).ResolveBatch(context.Background(), []reservation.Link{subLink, other, subLink})
	if len(got) != 2 {
		t.Fatalf("expected two deduplicated entries, got %v", got)
	}
	if f.describeCalls != 1 {
		t.Fatalf("expected a single describe call for the shared parent reservation, got %d", f.describeCalls)
	}
}

func TestResolveBatch_DedupeKeepsFirstOccurrence(t *testing.T) {
	otherRes := reservation.ReservationLink{Project: "proj", Zone: "zone-a", Name: "res-2"}
	f := &fakeProvider{descriptions: map[string]*provider.ReservationDescription{
		"res-1": specificDescription(32, 0, "ct5p-hightpu-4t"),
		"res-2": specificDescription(16, 0, "ct5p-hightpu-4t"),
	}}

	got := New(f, tpuRequirement(16), nil).ResolveBatch(context.Background(),
		[]reservation.Link{resLink, otherRes, resLink})
	if len(got) != 2 {
		t.Fatalf("expected two entries after dedup, got %v", got)
	}
	if got[0].Link != reservation.Link(resLink) || got[1].Link != reservation.Link(otherRes) {
		t.Fatalf("dedup reordered results: %v", got)
	}
}

func TestResolveBatch_BlockExpansion(t *testing.T) {
	f := &fakeProvider{
		descriptions: map[string]*provider.ReservationDescription{
			"res-1": specificDescription(64, 0, "ct5p-hightpu-4t"),
		},
		subBlocks: map[string][]provider.SubBlock{
			"res-1/block-1": {
				{Name: "sub-1", Count: 16, InUseCount: 0},
				{Name: "sub-2", Count: 16, InUseCount: 16}, // no free hosts, still listed
				{Name: "sub-3", Count: 16, InUseCount: 8},
			},
		},
	}
	settings := &configv1.ResolveSettings{ForceSubBlockTargeting: true, MaxConcurrency: 2}

	got := New(f, tpuRequirement(8), settings).ResolveBatch(context.Background(), []reservation.Link{blkLink})
	if len(got) != 3 {
		t.Fatalf("expected one entry per healthy sub-block, got %v", got)
	}
	for i, want := range []int64{2, 0, 1} {
		sub, ok := got[i].Link.(reservation.SubBlockLink)
		if !ok || sub.BlockLink != blkLink {
			t.Fatalf("entry %d is not a sub-block of %s: %+v", i, blkLink.String(), got[i])
		}
		if got[i].Slices != want {
			t.Fatalf("entry %d: expected %d slices, got %d", i, want, got[i].Slices)
		}
	}
}

func TestResolveBatch_ReservationExpansion(t *testing.T) {
	f := &fakeProvider{
		descriptions: map[string]*provider.ReservationDescription{
			"res-1": specificDescription(64, 0, "ct5p-hightpu-4t"),
		},
		blocks: map[string][]string{"res-1": {"block-1", "block-2"}},
		subBlocks: map[string][]provider.SubBlock{
			"res-1/block-1": {{Name: "sub-1", Count: 16, InUseCount: 0}},
			"res-1/block-2": {{Name: "sub-1", Count: 16, InUseCount: 0}},
		},
	}
	settings := &configv1.ResolveSettings{ForceSubBlockTargeting: true, MaxConcurrency: 2}

	got := New(f, tpuRequirement(16), settings).ResolveBatch(context.Background(), []reservation.Link{resLink})
	if len(got) != 2 {
		t.Fatalf("expected one entry per block's sub-block, got %v", got)
	}
	for _, c := range got {
		if _, ok := c.Link.(reservation.SubBlockLink); !ok {
			t.Fatalf("expected sub-block entries, got %+v", c)
		}
		if c.Slices != 1 {
			t.Fatalf("expected 1 slice per sub-block, got %+v", c)
		}
	}
	if f.describeCalls != 1 {
		t.Fatalf("expansion re-described the reservation: %d describe calls", f.describeCalls)
	}
}

func TestResolveBatch_ReservationExpansionWithoutBlocks(t *testing.T) {
	f := &fakeProvider{
		descriptions: map[string]*provider.ReservationDescription{
			"res-1": specificDescription(64, 0, "ct5p-hightpu-4t"),
		},
	}
	settings := &configv1.ResolveSettings{ForceSubBlockTargeting: true, MaxConcurrency: 2}

	got := New(f, tpuRequirement(16), settings).ResolveBatch(context.Background(), []reservation.Link{resLink})
	if len(got) != 0 {
		t.Fatalf("expected empty result when the reservation has no blocks, got %v", got)
	}
}

func TestResolveBatch_SubBlockListFailureIsSoft(t *testing.T) {
	ok := reservation.ReservationLink{Project: "proj", Zone: "zone-a", Name: "res-2"}
	// res-1 describes fine, so resolution reaches the sub-block listing and
	// hits the failure there.
	f := &fakeProvider{descriptions: map[string]*provider.ReservationDescription{
		"res-1": specificDescription(64, 0, "ct5p-hightpu-4t"),
		"res-2": specificDescription(16, 0, "ct5p-hightpu-4t"),
	}}
	f.subBlocksErr = errors.New("backend unavailable")

	// A failing sub-block listing must not take down the rest of the batch.
	got := New(f, tpuRequirement(16), nil).ResolveBatch(context.Background(), []reservation.Link{subLink, ok})
	if len(got) != 1 || got[0].Link != reservation.Link(ok) {
		t.Fatalf("expected the healthy reservation to survive the batch, got %v", got)
	}
	if f.describeCalls != 2 {
		t.Fatalf("expected both reservations described before the listing failed, got %d describes", f.describeCalls)
	}
}

func TestResolveBatch_BlockListFailureIsSoft(t *testing.T) {
	ok := reservation.ReservationLink{Project: "proj", Zone: "zone-a", Name: "res-2"}
	f := &fakeProvider{
		descriptions: map[string]*provider.ReservationDescription{
			"res-1": specificDescription(64, 0, "ct5p-hightpu-4t"),
			"res-2": specificDescription(16, 0, "ct5p-hightpu-4t"),
		},
		blocks: map[string][]string{"res-2": {"block-1"}},
		subBlocks: map[string][]provider.SubBlock{
			"res-2/block-1": {{Name: "sub-1", Count: 16, InUseCount: 0}},
		},
	}
	f.blocksErr = errors.New("backend unavailable")
	settings := &configv1.ResolveSettings{ForceSubBlockTargeting: true, MaxConcurrency: 2}

	// With block expansion forced, a failing block listing contributes
	// nothing for either reservation; this stays a warning, not an error.
	got := New(f, tpuRequirement(16), settings).ResolveBatch(context.Background(), []reservation.Link{resLink, ok})
	if len(got) != 0 {
		t.Fatalf("expected no entries when block listings fail, got %v", got)
	}

	// Once the listing recovers, the same inputs expand normally.
	f.blocksErr = nil
	got = New(f, tpuRequirement(16), settings).ResolveBatch(context.Background(), []reservation.Link{resLink, ok})
	if len(got) != 1 {
		t.Fatalf("expected res-2 to expand to its sub-block, got %v", got)
	}
	if _, isSubBlock := got[0].Link.(reservation.SubBlockLink); !isSubBlock {
		t.Fatalf("expected a sub-block entry, got %+v", got[0])
	}
}

func TestResolveBatch_Cancelled(t *testing.T) {
	f := &fakeProvider{descriptions: map[string]*provider.ReservationDescription{
		"res-1": specificDescription(16, 0, "ct5p-hightpu-4t"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := New(f, tpuRequirement(16), nil).ResolveBatch(ctx, []reservation.Link{resLink})
	if len(got) != 0 {
		t.Fatalf("expected empty result after cancellation, got %v", got)
	}
	if ctx.Err() == nil {
		t.Fatalf("callers must be able to distinguish cancellation via ctx.Err()")
	}
}
