package model

import (
	"time"
)

type JobStatus string

const (
	JobStatusInit      JobStatus = "INIT"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusKilled    JobStatus = "KILLED"
	JobStatusLost      JobStatus = "LOST"
)

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusKilled, JobStatusLost:
		return true
	}
	return false
}

func (s JobStatus) String() string {
	return string(s)
}

// CriteriaSet is one alternative set of tags a cluster and command must
// both carry for the job to run there.
type CriteriaSet []string

type Job struct {
	Id          string        `json:"id" gorm:"primaryKey;type:varchar(255)"`
	Name        string        `json:"name,omitempty" gorm:"type:varchar(255)"`
	User        string        `json:"user" gorm:"type:varchar(255);index"`
	Group       string        `json:"group,omitempty" gorm:"type:varchar(255)"`
	CommandArgs string        `json:"commandArgs" gorm:"type:text"`
	Criteria    []CriteriaSet `json:"criteria" gorm:"serializer:json"`
	Environment string        `json:"environment,omitempty" gorm:"type:varchar(64)"`
	Timeout     int           `json:"timeout,omitempty" gorm:"default:0"`
	ClusterId   string        `json:"clusterId,omitempty" gorm:"type:varchar(255)"`
	ClusterName string        `json:"clusterName,omitempty" gorm:"type:varchar(255)"`
	CommandId   string        `json:"commandId,omitempty" gorm:"type:varchar(255)"`
	CommandName string        `json:"commandName,omitempty" gorm:"type:varchar(255)"`
	WorkDir     string        `json:"workDir,omitempty" gorm:"type:text"`
	Status      JobStatus     `json:"status" gorm:"type:varchar(20);index"`
	StatusMsg   string        `json:"statusMsg,omitempty" gorm:"type:text"`
	FailureKind string        `json:"failureKind,omitempty" gorm:"type:varchar(32)"`
	ExitCode    int           `json:"exitCode" gorm:"default:-1"`
	ProcessId   int           `json:"processId,omitempty" gorm:"default:0"`
	CreateTime  time.Time     `json:"createTime" gorm:"datetime"`
	StartTime   *time.Time    `json:"startTime,omitempty" gorm:"datetime"`
	FinishTime  *time.Time    `json:"finishTime,omitempty" gorm:"datetime"`
	UpdateTime  time.Time     `json:"updateTime" gorm:"datetime"`
}

func (j *Job) Clone() *Job {
	n := *j
	if j.Criteria != nil {
		n.Criteria = make([]CriteriaSet, len(j.Criteria))
		for i, c := range j.Criteria {
			n.Criteria[i] = append(CriteriaSet(nil), c...)
		}
	}
	if j.StartTime != nil {
		t := *j.StartTime
		n.StartTime = &t
	}
	if j.FinishTime != nil {
		t := *j.FinishTime
		n.FinishTime = &t
	}
	return &n
}

// Bind records the resolved cluster and command. A job is bound once.
func (j *Job) Bind(cluster *Cluster, command *Command) bool {
	if j.ClusterId != "" || j.CommandId != "" {
		return false
	}
	j.ClusterId = cluster.Id
	j.ClusterName = cluster.Name
	j.CommandId = command.Id
	j.CommandName = command.Name
	return true
}
