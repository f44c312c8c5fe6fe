package provider

// StatusReady is the only reservation status that admits capacity planning.
const StatusReady = "READY"

// Accelerator is one guest accelerator attachment or aggregate resource key.
type Accelerator struct {
	Type  string `json:"acceleratorType"`
	Count int64  `json:"acceleratorCount,omitempty"`
}

// InstanceProperties describes the machine shape of a specific reservation.
type InstanceProperties struct {
	MachineType         string        `json:"machineType"`
	GuestAccelerators   []Accelerator `json:"guestAccelerators,omitempty"`
	MaintenanceInterval string        `json:"maintenanceInterval,omitempty"`
}

// SpecificReservation is a dense reservation of one homogeneous machine
// shape, tracked by raw instance counts. The compute API serializes the
// counts as quoted strings.
type SpecificReservation struct {
	Count              int64               `json:"count,string"`
	InUseCount         int64               `json:"inUseCount,string"`
	InstanceProperties *InstanceProperties `json:"instanceProperties,omitempty"`
}

// AllocatedResource is one reserved or in-use entry of an aggregate
// reservation.
type AllocatedResource struct {
	Accelerator Accelerator `json:"accelerator"`
}

// AggregateReservation is a pooled reservation tracked per accelerator type
// rather than per machine instance.
type AggregateReservation struct {
	ReservedResources []AllocatedResource `json:"reservedResources,omitempty"`
	InUseResources    []AllocatedResource `json:"inUseResources,omitempty"`
}

// ReservationDescription is a point-in-time description of one reservation.
// Exactly one of Specific and Aggregate is populated.
type ReservationDescription struct {
	Name      string                `json:"name,omitempty"`
	Zone      string                `json:"zone,omitempty"`
	Status    string                `json:"status,omitempty"`
	Specific  *SpecificReservation  `json:"specificReservation,omitempty"`
	Aggregate *AggregateReservation `json:"aggregateReservation,omitempty"`
}

// Ready reports whether the reservation is usable for capacity planning.
// Any status other than READY (CREATING, UPDATING, DELETING, ...) means the
// counts cannot be trusted.
func (d *ReservationDescription) Ready() bool {
	return d != nil && d.Status == StatusReady
}

// SubBlock is the host accounting of one healthy sub-block. Unhealthy
// sub-blocks are filtered out at the query layer and never surface here.
type SubBlock struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	InUseCount int64  `json:"inUseCount"`
}

// FreeHosts returns the number of unallocated hosts in the sub-block.
func (s SubBlock) FreeHosts() int64 {
	free := s.Count - s.InUseCount
	if free < 0 {
		free = 0
	}
	return free
}
