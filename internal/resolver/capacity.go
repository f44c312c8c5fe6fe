package resolver

import "github.com/clusterkit/reservation-capacity/internal/reservation"

// Capacity is one unit of resolver output: a capacity target and the number
// of whole workload slices it can admit. Values are immutable once produced
// and comparable, so a batch can deduplicate them by value.
type Capacity struct {
	Link   reservation.Link
	Slices int64
}
