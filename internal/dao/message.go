package dao

import "genie/internal/supervisor"

// SubmitMessage is the body of a job submission read from the queue.
type SubmitMessage struct {
	RequestId string                `json:"requestId,omitempty"`
	Timestamp int64                 `json:"timestamp"`
	Job       supervisor.JobRequest `json:"job"`
}
