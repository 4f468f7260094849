package models

import "time"

// ResourceType names a kind of resource a task declares it needs.
type ResourceType string

const (
	ResourceTypeCPU     ResourceType = "cpu"
	ResourceTypeMemory  ResourceType = "memory"
	ResourceTypeDisk    ResourceType = "disk"
	ResourceTypeNetwork ResourceType = "network"
	ResourceTypeCustom  ResourceType = "custom"
)

// ResourceRequirement is a declared need of a task, e.g. 0.5 cpu cores or 128 MB of memory.
type ResourceRequirement struct {
	Type   ResourceType `json:"type"           validate:"required,oneof=cpu memory disk network custom"`
	Amount float64      `json:"amount"         validate:"gt=0"`
	Unit   string       `json:"unit,omitempty"`
}

// ResourceAllocation is a bookkeeping snapshot of the resources an execution holds.
// Nothing enforces capacity; allocating always succeeds.
type ResourceAllocation struct {
	ID          string                `json:"id"`
	ExecutionID string                `json:"executionId"`
	Resources   []ResourceRequirement `json:"resources"`
	AllocatedAt time.Time             `json:"allocatedAt"`
	ReleasedAt  *time.Time            `json:"releasedAt,omitempty"`
}

// Released reports whether the allocation has been given back.
func (a *ResourceAllocation) Released() bool {
	return a != nil && a.ReleasedAt != nil
}

// ResourceUsage aggregates resource counters recorded against an execution.
type ResourceUsage struct {
	CPU     float64 `json:"cpu"`
	Memory  float64 `json:"memory"`
	Disk    float64 `json:"disk"`
	Network float64 `json:"network"`
}

// UsageFrom sums the resources of an allocation per resource type. Custom resources are
// not counted.
func UsageFrom(resources []ResourceRequirement) ResourceUsage {
	var usage ResourceUsage

	for _, r := range resources {
		switch r.Type {
		case ResourceTypeCPU:
			usage.CPU += r.Amount
		case ResourceTypeMemory:
			usage.Memory += r.Amount
		case ResourceTypeDisk:
			usage.Disk += r.Amount
		case ResourceTypeNetwork:
			usage.Network += r.Amount
		case ResourceTypeCustom:
		}
	}

	return usage
}
