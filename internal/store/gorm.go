package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"genie/internal/errs"
	"genie/internal/model"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Close() error {
	model.CloseDB(g.db)
	return nil
}

func (g *GormStore) CreateJob(ctx context.Context, job *model.Job) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Job{}).Where("id = ?", job.Id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errs.ErrDuplicateJob
		}
		return tx.Create(job).Error
	})
}

func (g *GormStore) SaveJob(ctx context.Context, job *model.Job) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old := &model.Job{}
		err := tx.Select("status").Where("id = ?", job.Id).First(old).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && old.Status.IsTerminal() {
			return errs.ErrJobFinished
		}
		return tx.Save(job).Error
	})
}

func (g *GormStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job := &model.Job{}
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("job %s", id)
		}
		return nil, err
	}
	return job, nil
}

func (g *GormStore) ListJobs(ctx context.Context, statuses ...model.JobStatus) ([]*model.Job, error) {
	var jobs []*model.Job
	query := g.db.WithContext(ctx).Model(&model.Job{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Order("create_time").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
