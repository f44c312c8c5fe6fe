package provider

import (
	"context"
	"errors"
)

// ErrNotFound is returned by DescribeReservation when the reservation does
// not exist in the given project and zone.
var ErrNotFound = errors.New("reservation not found")

// Provider is the read-only boundary to the cloud reservation API. All calls
// are assumed to be network-latency-bound; none of them mutate anything.
// Implementations do not retry; interpreting a failed call is the caller's
// job.
type Provider interface {
	// DescribeReservation returns the current description of a reservation,
	// or ErrNotFound.
	DescribeReservation(ctx context.Context, project, zone, name string) (*ReservationDescription, error)

	// ListBlocks returns the names of all blocks under a reservation.
	ListBlocks(ctx context.Context, project, zone, reservation string) ([]string, error)

	// ListHealthySubBlocks returns the healthy sub-blocks of a block. When
	// subBlock is non-empty the result is additionally restricted to that
	// name; an unhealthy or absent sub-block simply does not appear.
	ListHealthySubBlocks(ctx context.Context, project, zone, reservation, block, subBlock string) ([]SubBlock, error)

	// LookupProjectNumber resolves a project id to its numeric project
	// number, as used in fully qualified accelerator type paths.
	LookupProjectNumber(ctx context.Context, project string) (string, error)
}
