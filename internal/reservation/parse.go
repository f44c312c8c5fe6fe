package reservation

import (
	"fmt"
	"strings"
)

const (
	segProjects     = "projects"
	segReservations = "reservations"
	segBlocks       = "reservationBlocks"
	segSubBlocks    = "reservationSubBlocks"
)

// Parse turns a user-supplied reservation path into a Link. Accepted forms:
//
//	NAME
//	NAME/reservationBlocks/BLOCK
//	NAME/reservationBlocks/BLOCK/reservationSubBlocks/SUBBLOCK
//
// each optionally prefixed with projects/PROJECT/reservations/. When the
// prefix is absent the defaultProject is used. The zone is never part of the
// path and is always taken from the caller. Any other shape is an error.
func Parse(path, defaultProject, zone string) (Link, error) {
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("invalid reservation path %q: empty segment", path)
		}
	}

	project := defaultProject
	if segs[0] == segProjects {
		if len(segs) < 4 || segs[2] != segReservations {
			return nil, fmt.Errorf("invalid reservation path %q: expected projects/PROJECT/reservations/NAME prefix", path)
		}
		project = segs[1]
		segs = segs[3:]
	}
	if project == "" {
		return nil, fmt.Errorf("invalid reservation path %q: no project given and no default project set", path)
	}

	root := ReservationLink{Project: project, Zone: zone, Name: segs[0]}
	switch len(segs) {
	case 1:
		return root, nil
	case 3:
		if segs[1] != segBlocks {
			return nil, fmt.Errorf("invalid reservation path %q: expected %q, got %q", path, segBlocks, segs[1])
		}
		return BlockLink{ReservationLink: root, Block: segs[2]}, nil
	case 5:
		if segs[1] != segBlocks {
			return nil, fmt.Errorf("invalid reservation path %q: expected %q, got %q", path, segBlocks, segs[1])
		}
		if segs[3] != segSubBlocks {
			return nil, fmt.Errorf("invalid reservation path %q: expected %q, got %q", path, segSubBlocks, segs[3])
		}
		return SubBlockLink{
			BlockLink: BlockLink{ReservationLink: root, Block: segs[2]},
			SubBlock:  segs[4],
		}, nil
	default:
		return nil, fmt.Errorf("invalid reservation path %q: expected 1, 3 or 5 segments after the project prefix, got %d", path, len(segs))
	}
}

// ParseList parses a comma-separated list of reservation paths. The first
// malformed path fails the whole list.
func ParseList(paths, defaultProject, zone string) ([]Link, error) {
	var links []Link
	for _, p := range strings.Split(paths, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		link, err := Parse(p, defaultProject, zone)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}
