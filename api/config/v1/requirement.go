package v1

import "fmt"

// AcceleratorCategory selects how a workload's accelerator requirement is
// matched against a reservation's hardware.
type AcceleratorCategory string

const (
	// CategoryHomogeneousMachine is a fixed-shape accelerator pod: the whole
	// machine is the accelerator, so compatibility is matched on the machine
	// type. Aggregate reservations key these by the fully qualified
	// projects/{number}/zones/{zone}/acceleratorTypes/{type} path.
	CategoryHomogeneousMachine AcceleratorCategory = "homogeneous-machine"
	// CategoryDiscreteAccelerator is a machine with attached accelerator
	// cards: compatibility is matched on the guest accelerator type.
	// Aggregate reservations key these by the bare type string.
	CategoryDiscreteAccelerator AcceleratorCategory = "discrete-accelerator"
)

// WorkloadRequirement describes the hardware one workload slice needs.
type WorkloadRequirement struct {
	// Category determines which field of a reservation description the Type
	// is matched against
	Category AcceleratorCategory `json:"category" yaml:"category"`
	// Type is the exact machine or accelerator type string required
	Type string `json:"type" yaml:"type"`
	// RequiredHosts is the number of physical hosts one workload slice
	// consumes; free host counts are divided by it to obtain slices
	RequiredHosts int64 `json:"requiredHosts" yaml:"requiredHosts"`
}

// Validate checks the requirement before any resolution is attempted.
func (r *WorkloadRequirement) Validate() error {
	switch r.Category {
	case CategoryHomogeneousMachine, CategoryDiscreteAccelerator:
	default:
		return fmt.Errorf("unknown accelerator category %q", r.Category)
	}
	if r.Type == "" {
		return fmt.Errorf("accelerator type must not be empty")
	}
	if r.RequiredHosts <= 0 {
		return fmt.Errorf("requiredHosts must be positive, got %d", r.RequiredHosts)
	}
	return nil
}
