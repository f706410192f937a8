package client

// Reporter is used by generation jobs to report progress back to the
// platform. It authenticates with the job token issued when the run was
// created, so a job can only touch its own run.
type Reporter struct {
	BaseClient
}

func NewReporter(endpoint, jobToken string) Reporter {
	return Reporter{BaseClient: NewBaseClient(endpoint, jobToken)}
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (r *Reporter) UpdateRunStatus(status, message string) error {
	return r.Post("/api/v1/runs/update-status").Json(updateStatusRequest{Status: status, Message: message}).Do(nil)
}

type jobLogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (r *Reporter) Log(level, message string) error {
	return r.Post("/api/v1/runs/log").Json(jobLogRequest{Level: level, Message: message}).Do(nil)
}
