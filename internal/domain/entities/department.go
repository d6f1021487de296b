package entities

// CrowdLevel is the discretized utilization classification of a department.
type CrowdLevel string

const (
	CrowdNormal     CrowdLevel = "normal"
	CrowdBusy       CrowdLevel = "busy"
	CrowdOverloaded CrowdLevel = "overloaded"
)

// Department describes a hospital department served by its own priority
// queue.
type Department struct {
	Name          string `json:"name"`
	Code          string `json:"code"`
	Capacity      int    `json:"capacity"`
	ActiveDoctors int    `json:"active_doctors"`
}

// DepartmentStatus is a point-in-time view of a department used by
// dashboards and the allocator.
type DepartmentStatus struct {
	Department     string     `json:"department"`
	Code           string     `json:"code"`
	QueueDepth     int        `json:"queue_depth"`
	Capacity       int        `json:"capacity"`
	ActiveDoctors  int        `json:"active_doctors"`
	SpareAssigned  int        `json:"spare_assigned"`
	BusySlots      int        `json:"busy_slots"`
	Utilization    float64    `json:"utilization"`
	CrowdLevel     CrowdLevel `json:"crowd_level"`
	AvgWaitMinutes float64    `json:"avg_wait_minutes"`
}

// TotalDoctors returns permanent plus spare doctors currently serving the
// department.
func (s *DepartmentStatus) TotalDoctors() int {
	return s.ActiveDoctors + s.SpareAssigned
}
