package domain

import "time"

// HealthCheckSummary is the probe configuration kept on a record.
type HealthCheckSummary struct {
	Enabled       bool
	LivenessPath  string
	ReadinessPath string
}

// Record is the persisted state of one deployment. Records are never removed;
// deleting a deployment moves it to StatusStopped.
type Record struct {
	ID             string
	ProjectID      string
	ProjectName    string
	Owner          string
	ServiceName    string
	DisplayName    string
	Description    string
	ImageReference string
	Namespace      string

	Status          Status
	ReplicasDesired int32
	ReplicasReady   int32
	ManifestTypes   []string
	AccessURL       string
	HealthCheck     HealthCheckSummary
	ErrorMessage    string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Patch is a partial update of a Record. Nil fields are left untouched.
// Applying a patch always refreshes UpdatedAt.
type Patch struct {
	Status          *Status
	ReplicasDesired *int32
	ReplicasReady   *int32
	AccessURL       *string
	ErrorMessage    *string
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Apply copies the set fields of p onto r. It does not check the transition;
// callers that need the guard use Status.CanTransitionTo first.
func (p Patch) Apply(r *Record, now time.Time) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.ReplicasDesired != nil {
		r.ReplicasDesired = *p.ReplicasDesired
	}
	if p.ReplicasReady != nil {
		r.ReplicasReady = *p.ReplicasReady
	}
	if p.AccessURL != nil {
		r.AccessURL = *p.AccessURL
	}
	if p.ErrorMessage != nil {
		r.ErrorMessage = *p.ErrorMessage
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		r.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		r.CompletedAt = &t
	}
	r.UpdatedAt = now
}

// PatchStatus returns a patch that only moves the record to s.
func PatchStatus(s Status) Patch {
	return Patch{Status: &s}
}

// WithError sets the error message on the patch.
func (p Patch) WithError(msg string) Patch {
	p.ErrorMessage = &msg
	return p
}

// WithReplicas sets the desired and ready replica counts on the patch.
func (p Patch) WithReplicas(desired, ready int32) Patch {
	p.ReplicasDesired = &desired
	p.ReplicasReady = &ready
	return p
}

// WithStarted stamps the start time on the patch.
func (p Patch) WithStarted(t time.Time) Patch {
	p.StartedAt = &t
	return p
}

// WithCompleted stamps the completion time on the patch.
func (p Patch) WithCompleted(t time.Time) Patch {
	p.CompletedAt = &t
	return p
}

// StatusCount is the number of records in one status.
type StatusCount struct {
	Status Status
	Count  int
}
