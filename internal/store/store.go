// Package store persists job records. The supervisor writes every status
// transition through a JobStore; a record that reached a terminal status is
// never overwritten.
package store

import (
	"context"

	"genie/internal/config"
	"genie/internal/model"
	"genie/pkg/log"
)

type JobStore interface {
	// CreateJob stores a new job and fails with errs.ErrDuplicateJob when the
	// id is already known.
	CreateJob(ctx context.Context, job *model.Job) error
	// SaveJob overwrites a job unless the stored record is terminal, in which
	// case it fails with errs.ErrJobFinished.
	SaveJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// ListJobs returns jobs with one of the given statuses, all jobs when
	// none are given, ordered by create time.
	ListJobs(ctx context.Context, statuses ...model.JobStatus) ([]*model.Job, error)
	Close() error
}

// Open builds the store selected in the configuration.
func Open(ctx context.Context, conf *config.Config) (JobStore, error) {
	logger := log.GetLogger(ctx).WithField("component", "store")
	switch conf.Store.Driver {
	case config.StoreMySQL:
		db, err := model.InitDB(conf.DB)
		if err != nil {
			return nil, err
		}
		logger.Info("using mysql job store")
		return NewGormStore(db), nil
	default:
		logger.Infof("using badger job store in %s", conf.DataDir())
		return NewBadgerStore(conf.DataDir(), logger)
	}
}

func matchStatus(s model.JobStatus, statuses []model.JobStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}
