package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"genie/internal/errs"
	"genie/internal/model"
)

const jobKeyPrefix = "job:"

type BadgerStore struct {
	db     *badger.DB
	logger *logrus.Entry
}

func NewBadgerStore(dir string, logger *logrus.Entry) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir), logger)
}

// NewMemoryStore keeps everything in memory; used by tests and dry runs.
func NewMemoryStore(logger *logrus.Entry) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true), logger)
}

func openBadger(opts badger.Options, logger *logrus.Entry) (*BadgerStore, error) {
	db, err := badger.Open(opts.WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, err
	}
	return &BadgerStore{
		db:     db,
		logger: logger,
	}, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func jobKey(id string) []byte {
	return []byte(jobKeyPrefix + id)
}

func getJob(txn *badger.Txn, id string) (*model.Job, error) {
	item, err := txn.Get(jobKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errs.NotFound("job %s", id)
		}
		return nil, err
	}
	job := &model.Job{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func setJob(txn *badger.Txn, job *model.Job) error {
	val, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return txn.Set(jobKey(job.Id), val)
}

func (b *BadgerStore) CreateJob(ctx context.Context, job *model.Job) error {
	return b.db.Update(func(txn *badger.Txn) error {
		_, err := getJob(txn, job.Id)
		if err == nil {
			return errs.ErrDuplicateJob
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		return setJob(txn, job)
	})
}

func (b *BadgerStore) SaveJob(ctx context.Context, job *model.Job) error {
	return b.db.Update(func(txn *badger.Txn) error {
		old, err := getJob(txn, job.Id)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		if old != nil && old.Status.IsTerminal() {
			return errs.ErrJobFinished
		}
		return setJob(txn, job)
	})
}

func (b *BadgerStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		job, err = getJob(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (b *BadgerStore) ListJobs(ctx context.Context, statuses ...model.JobStatus) ([]*model.Job, error) {
	prefix := []byte(jobKeyPrefix)
	jobs := make([]*model.Job, 0, 10)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			job := &model.Job{}
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, job)
			})
			if err != nil {
				b.logger.WithError(err).Errorf("unmarshal job %s", item.Key())
				continue
			}
			if matchStatus(job.Status, statuses) {
				jobs = append(jobs, job)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreateTime.Before(jobs[j].CreateTime)
	})
	return jobs, nil
}
