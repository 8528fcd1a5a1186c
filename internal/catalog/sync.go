package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"genie/internal/model"
	"genie/pkg/log"
)

// Source produces a full catalog description, typically from the store the
// administrative layer writes to.
type Source interface {
	Load(ctx context.Context) (*Seed, error)
}

type GormSource struct {
	db *gorm.DB
}

func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db}
}

func (g *GormSource) Load(ctx context.Context) (*Seed, error) {
	db := g.db.WithContext(ctx)
	seed := &Seed{}
	if err := db.Find(&seed.Applications).Error; err != nil {
		return nil, fmt.Errorf("load applications: %w", err)
	}
	if err := db.Find(&seed.Commands).Error; err != nil {
		return nil, fmt.Errorf("load commands: %w", err)
	}
	if err := db.Find(&seed.Clusters).Error; err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}
	if err := db.Find(&seed.Links).Error; err != nil {
		return nil, fmt.Errorf("load cluster commands: %w", err)
	}
	return seed, nil
}

// SaveSeed writes a seed into the relational store, used by updatedb to
// import a catalog file.
func SaveSeed(ctx context.Context, db *gorm.DB, seed *Seed) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, app := range seed.Applications {
			n, err := normalizeApplication(app)
			if err != nil {
				return err
			}
			if err := tx.Save(n).Error; err != nil {
				return err
			}
		}
		for _, cmd := range seed.Commands {
			n, err := normalizeCommand(cmd)
			if err != nil {
				return err
			}
			if err := tx.Save(n).Error; err != nil {
				return err
			}
		}
		for _, cluster := range seed.Clusters {
			n, err := normalizeCluster(cluster)
			if err != nil {
				return err
			}
			if err := tx.Save(n).Error; err != nil {
				return err
			}
			for _, cmdId := range cluster.CommandIds {
				link := &model.ClusterCommand{ClusterId: cluster.Id, CommandId: cmdId}
				if err := tx.Save(link).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Syncer refreshes a Catalog from a Source. Load failures are retried with
// exponential backoff up to maxElapsed; until a load succeeds the catalog
// keeps serving its previous snapshot.
type Syncer struct {
	catalog    *Catalog
	source     Source
	interval   time.Duration
	maxElapsed time.Duration
	logger     *logrus.Entry

	initialInterval time.Duration
}

func NewSyncer(ctx context.Context, catalog *Catalog, source Source, interval, maxElapsed time.Duration) *Syncer {
	return &Syncer{
		catalog:         catalog,
		source:          source,
		interval:        interval,
		maxElapsed:      maxElapsed,
		logger:          log.GetLogger(ctx).WithField("component", "catalog-sync"),
		initialInterval: backoff.DefaultInitialInterval,
	}
}

// WithInitialInterval changes the first retry delay.
func (s *Syncer) WithInitialInterval(d time.Duration) *Syncer {
	s.initialInterval = d
	return s
}

// SyncOnce loads the source and replaces the catalog.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialInterval
	b.MaxElapsedTime = s.maxElapsed

	var seed *Seed
	op := func() error {
		var err error
		seed, err = s.source.Load(ctx)
		return err
	}
	notify := func(err error, next time.Duration) {
		s.logger.WithError(err).Warnf("load catalog failed, retry in %v", next)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	return s.catalog.Replace(seed)
}

// Run syncs every interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("catalog sync stopped")
			return
		case <-ticker.C:
			s.logger.Debug("sync tick")
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.WithError(err).Error("sync catalog failed")
			}
		}
	}
}
