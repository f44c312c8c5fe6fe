package reservation

import "fmt"

// Link identifies a capacity target at one of three granularities: a whole
// reservation, one block inside it, or one sub-block inside a block. The set
// of implementations is closed so that callers can branch exhaustively on the
// dynamic type. All implementations are comparable value types and may be
// used as map keys.
type Link interface {
	// Root returns the reservation that contains this target.
	Root() ReservationLink
	// String renders the canonical resource path.
	String() string

	sealed()
}

// ReservationLink identifies a whole reservation.
type ReservationLink struct {
	Project string
	Zone    string
	Name    string
}

func (l ReservationLink) Root() ReservationLink { return l }

func (l ReservationLink) String() string {
	return fmt.Sprintf("projects/%s/reservations/%s", l.Project, l.Name)
}

func (ReservationLink) sealed() {}

// BlockLink identifies one block of a reservation. Blocks are
// placement-isolated subdivisions; each can be targeted independently.
type BlockLink struct {
	ReservationLink
	Block string
}

func (l BlockLink) Root() ReservationLink { return l.ReservationLink }

func (l BlockLink) String() string {
	return l.ReservationLink.String() + "/reservationBlocks/" + l.Block
}

// SubBlockLink identifies one sub-block of a block, the finest targetable
// granularity. Sub-blocks carry their own health status.
type SubBlockLink struct {
	BlockLink
	SubBlock string
}

func (l SubBlockLink) Root() ReservationLink { return l.ReservationLink }

func (l SubBlockLink) String() string {
	return l.BlockLink.String() + "/reservationSubBlocks/" + l.SubBlock
}
