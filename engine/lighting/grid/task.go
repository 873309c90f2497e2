package grid

import "math"

// TaskType tags a queued indirect lighting task.
type TaskType int

const (
	TaskUnassigned TaskType = iota
	// TaskReassignRSMs asks the lighting manager to recover or assign the
	// reflective shadow maps of the task's lights.
	TaskReassignRSMs
	// TaskFillRSMs asks the lighting manager to fill the reflective shadow maps.
	TaskFillRSMs
	TaskInjectRSMs
	TaskGatherRSMs
	TaskReprojectGrid
	TaskBounce
	TaskPropagate
)

func (t TaskType) String() string {
	switch t {
	case TaskReassignRSMs:
		return "ReassignRSMs"
	case TaskFillRSMs:
		return "FillRSMs"
	case TaskInjectRSMs:
		return "InjectRSMs"
	case TaskGatherRSMs:
		return "GatherRSMs"
	case TaskReprojectGrid:
		return "ReprojectGrid"
	case TaskBounce:
		return "Bounce"
	case TaskPropagate:
		return "Propagate"
	}
	return "Unassigned"
}

// IsManagerTask reports whether the lighting manager, not the grid, runs the task.
func (t TaskType) IsManagerTask() bool {
	return t == TaskReassignRSMs || t == TaskFillRSMs
}

// AllLights is the LightEnd of a task that covers the whole light list. AddTask
// clamps it to the last light.
const AllLights = math.MaxInt32

// Task is one unit of indirect lighting work due on a frame.
type Task struct {
	Type       TaskType
	Frame      int64
	Static     bool
	LightStart int
	LightEnd   int
}

func (t Task) matches(o Task) bool {
	return t.Type == o.Type && t.Frame == o.Frame && t.Static == o.Static &&
		t.LightStart == o.LightStart && t.LightEnd == o.LightEnd
}
