package model

// JobStatus is the normalized status of a generation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusExpired    JobStatus = "expired"
)

// StatusNoRun is reported by get-response when a thread has no job yet.
const StatusNoRun = "no run found"

// Terminal reports whether the remote service will not move the job further.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusExpired:
		return true
	}
	return false
}

// CreateThreadRequest is the request to start a new recommendation thread.
type CreateThreadRequest struct {
	City        string        `json:"city"`
	Expertise   []string      `json:"expertise,omitempty"`
	Preferences SurveyAnswers `json:"preferences"`
}

// ToPreferences converts the request into the thread seed.
func (r *CreateThreadRequest) ToPreferences() Preferences {
	return Preferences{
		City:        r.City,
		Expertise:   r.Expertise,
		Preferences: r.Preferences,
	}
}

// SubmitPreferencesRequest submits a new survey to an existing thread.
type SubmitPreferencesRequest struct {
	ThreadID string `json:"threadId"`
	CreateThreadRequest
}

// CreateThreadResponse identifies the thread and the job started on it.
type CreateThreadResponse struct {
	ThreadID string `json:"threadId"`
	RunID    string `json:"runId,omitempty"`
}

// GetResponseResponse is the result of get-response.
type GetResponseResponse struct {
	Status          string           `json:"status"`
	Recommendations []Recommendation `json:"recommendations"`
}

// CheckStatusResponse is the result of check-status.
type CheckStatusResponse struct {
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
}
