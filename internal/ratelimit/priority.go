package ratelimit

import "fmt"

// Priority orders queued work and relaxes admission for urgent fetches.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// drainOrder is the strict tier order DrainNext scans.
var drainOrder = [...]Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// admissionFactor scales the hourly limit per priority. Only the hourly
// window relaxes; the minute window holds for everyone.
var admissionFactor = map[Priority]float64{
	PriorityCritical: 1.2,
	PriorityHigh:     1.1,
	PriorityNormal:   1.0,
	PriorityLow:      1.0,
}

// waitScale adjusts the advisory wait hint handed back on denial.
var waitScale = map[Priority]float64{
	PriorityCritical: 1.0,
	PriorityHigh:     0.5,
	PriorityNormal:   1.0,
	PriorityLow:      2.0,
}

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority maps the config spelling to a Priority.
func ParsePriority(s string) (Priority, error) {
	for p, n := range priorityNames {
		if n == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}
