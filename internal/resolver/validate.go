package resolver

import (
	"k8s.io/klog/v2"

	configv1 "github.com/clusterkit/reservation-capacity/api/config/v1"
	"github.com/clusterkit/reservation-capacity/internal/provider"
)

// validateHardware checks a reservation description against the workload
// requirement. A mismatch is a soft failure: it logs a warning naming the
// reservation and contributes no capacity, but never aborts the batch.
//
// Aggregate reservations carry no machine shape to check; they validate
// implicitly because the arithmetic yields zero when no resource entry
// matches the required type.
func validateHardware(desc *provider.ReservationDescription, req *configv1.WorkloadRequirement, name string) bool {
	if !desc.Ready() {
		status := ""
		if desc != nil {
			status = desc.Status
		}
		klog.Warningf("Reservation %s is not ready (status %q), skipping", name, status)
		return false
	}

	spec := desc.Specific
	if spec == nil {
		return true
	}
	props := spec.InstanceProperties

	switch req.Category {
	case configv1.CategoryHomogeneousMachine:
		if props == nil || props.MachineType != req.Type {
			got := ""
			if props != nil {
				got = props.MachineType
			}
			klog.Warningf("Reservation %s has machine type %q, workload requires %q, skipping", name, got, req.Type)
			return false
		}
	case configv1.CategoryDiscreteAccelerator:
		if props != nil {
			for _, acc := range props.GuestAccelerators {
				if acc.Type == req.Type {
					return true
				}
			}
		}
		klog.Warningf("Reservation %s has no guest accelerator of type %q, skipping", name, req.Type)
		return false
	}
	return true
}
