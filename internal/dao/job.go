package dao

import (
	"errors"
	"time"

	"genie/internal/model"
)

type JobSpec struct {
	Id          string              `json:"id"`
	Name        string              `json:"name,omitempty"`
	User        string              `json:"user"`
	Group       string              `json:"group,omitempty"`
	CommandArgs string              `json:"commandArgs"`
	Criteria    []model.CriteriaSet `json:"criteria"`
	Timeout     int                 `json:"timeout,omitempty"`
	Status      string              `json:"status"`
	StatusMsg   string              `json:"statusMsg,omitempty"`
	FailureKind string              `json:"failureKind,omitempty"`
	ExitCode    int                 `json:"exitCode"`
	ClusterId   string              `json:"clusterId,omitempty"`
	ClusterName string              `json:"clusterName,omitempty"`
	CommandId   string              `json:"commandId,omitempty"`
	CommandName string              `json:"commandName,omitempty"`
	ProcessId   int                 `json:"processId,omitempty"`
	CreateTime  string              `json:"createTime"`
	StartTime   string              `json:"startTime,omitempty"`
	FinishTime  string              `json:"finishTime,omitempty"`
	UpdateTime  string              `json:"updateTime"`
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func FromJobModel(job *model.Job) (*JobSpec, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	return &JobSpec{
		Id:          job.Id,
		Name:        job.Name,
		User:        job.User,
		Group:       job.Group,
		CommandArgs: job.CommandArgs,
		Criteria:    job.Criteria,
		Timeout:     job.Timeout,
		Status:      job.Status.String(),
		StatusMsg:   job.StatusMsg,
		FailureKind: job.FailureKind,
		ExitCode:    job.ExitCode,
		ClusterId:   job.ClusterId,
		ClusterName: job.ClusterName,
		CommandId:   job.CommandId,
		CommandName: job.CommandName,
		ProcessId:   job.ProcessId,
		CreateTime:  formatTime(&job.CreateTime),
		StartTime:   formatTime(job.StartTime),
		FinishTime:  formatTime(job.FinishTime),
		UpdateTime:  formatTime(&job.UpdateTime),
	}, nil
}

type SubmitJobResponse struct {
	Id string `json:"id"`
}

type ListJobsRequest struct {
	Status []string `json:"status" form:"status"`
	Start  int      `json:"start" form:"start" binding:"min=0"`
	Limit  int      `json:"limit" form:"limit" binding:"min=0,max=100"`
}

// Statuses parses the status filter, rejecting unknown values.
func (req *ListJobsRequest) Statuses() ([]model.JobStatus, error) {
	out := make([]model.JobStatus, 0, len(req.Status))
	for _, s := range req.Status {
		st := model.JobStatus(s)
		switch st {
		case model.JobStatusInit, model.JobStatusRunning, model.JobStatusSucceeded,
			model.JobStatusFailed, model.JobStatusKilled, model.JobStatusLost:
			out = append(out, st)
		default:
			return nil, errors.New("unknown job status " + s)
		}
	}
	return out, nil
}

type ListJobsResponse struct {
	Items []JobSpec `json:"items"`
	Total int64     `json:"total"`
}
