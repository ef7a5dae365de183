package domain

// Status is the lifecycle state of a deployment record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDeploying Status = "deploying"
	StatusRunning   Status = "running"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusDeploying, StatusRunning, StatusFailed, StatusStopped}

// transitions maps a status to the statuses it may move to.
// Running and Failed only ever move to Stopped; Stopped is absorbing.
var transitions = map[Status][]Status{
	StatusPending:   {StatusPending, StatusDeploying, StatusFailed, StatusStopped},
	StatusDeploying: {StatusDeploying, StatusRunning, StatusFailed, StatusStopped},
	StatusRunning:   {StatusStopped},
	StatusFailed:    {StatusStopped},
	StatusStopped:   {StatusStopped},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether the background task is finished with the record.
func (s Status) IsTerminal() bool {
	return s == StatusRunning || s == StatusFailed || s == StatusStopped
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Predecessors returns every status from which next is reachable, in
// lifecycle order. The store uses it to guard conditional updates.
func Predecessors(next Status) []Status {
	var from []Status
	for _, s := range AllStatuses {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}
