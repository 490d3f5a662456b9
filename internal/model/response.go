package model

type DeployResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId,omitempty"`
	Message string `json:"message,omitempty"`
}

type ProgressResponse struct {
	Success     bool     `json:"success"`
	TaskID      string   `json:"taskId"`
	Environment string   `json:"environment"`
	Action      string   `json:"action"`
	Progress    float64  `json:"progress"`
	Status      string   `json:"status"`
	Step        string   `json:"step,omitempty"`
	Logs        []string `json:"logs"`
	Error       string   `json:"error,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type StreamEventType string

const (
	StreamStepStarted  StreamEventType = "step_started"
	StreamOutput       StreamEventType = "output"
	StreamStepFinished StreamEventType = "step_finished"
	StreamDone         StreamEventType = "done"
)

// StreamEvent is one websocket message for a running task.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Label    string          `json:"label,omitempty"`
	Line     string          `json:"line,omitempty"`
	ExitCode int             `json:"exitCode,omitempty"`
	Status   string          `json:"status,omitempty"`
	Error    string          `json:"error,omitempty"`
}
