// Package catalog keeps the in-memory view of applications, commands and
// clusters that job resolution reads from.
//
// The view is an immutable snapshot published through an atomic pointer, so
// readers never take a lock and never observe a half-applied edit. Writers
// serialise on a mutex, copy what they change and publish a new snapshot.
// The cluster/command relation is stored on both sides and only changed by
// AttachCommand, DetachCommand and the delete operations, each of which
// updates both sides in the same snapshot.
package catalog

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"genie/internal/errs"
	"genie/internal/model"
	"genie/pkg/log"
)

// Reader is the read contract the resolver and the execution managers use.
type Reader interface {
	FindClusters(tags []string) []*model.Cluster
	FindCommandsOnCluster(clusterId string, statuses ...model.Status) ([]*model.Command, error)
	Application(id string) (*model.Application, error)
	Command(id string) (*model.Command, error)
	Cluster(id string) (*model.Cluster, error)
}

type snapshot struct {
	applications map[string]*model.Application
	commands     map[string]*model.Command
	clusters     map[string]*model.Cluster
}

func emptySnapshot() *snapshot {
	return &snapshot{
		applications: make(map[string]*model.Application),
		commands:     make(map[string]*model.Command),
		clusters:     make(map[string]*model.Cluster),
	}
}

// clone copies the maps only; entities are shared until a writer replaces them.
func (s *snapshot) clone() *snapshot {
	n := &snapshot{
		applications: make(map[string]*model.Application, len(s.applications)),
		commands:     make(map[string]*model.Command, len(s.commands)),
		clusters:     make(map[string]*model.Cluster, len(s.clusters)),
	}
	for k, v := range s.applications {
		n.applications[k] = v
	}
	for k, v := range s.commands {
		n.commands[k] = v
	}
	for k, v := range s.clusters {
		n.clusters[k] = v
	}
	return n
}

type Catalog struct {
	mu     sync.Mutex
	snap   atomic.Pointer[snapshot]
	logger *logrus.Entry
}

func New(ctx context.Context) *Catalog {
	c := &Catalog{
		logger: log.GetLogger(ctx).WithField("component", "catalog"),
	}
	c.snap.Store(emptySnapshot())
	return c
}

func (c *Catalog) load() *snapshot {
	return c.snap.Load()
}

// update runs fn on a private copy of the current snapshot and publishes it
// when fn succeeds.
func (c *Catalog) update(fn func(s *snapshot) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.load().clone()
	if err := fn(next); err != nil {
		return err
	}
	c.snap.Store(next)
	return nil
}

func (c *Catalog) Application(id string) (*model.Application, error) {
	app, ok := c.load().applications[id]
	if !ok {
		return nil, errs.NotFound("application %s", id)
	}
	return app.Clone(), nil
}

func (c *Catalog) Command(id string) (*model.Command, error) {
	cmd, ok := c.load().commands[id]
	if !ok {
		return nil, errs.NotFound("command %s", id)
	}
	return cmd.Clone(), nil
}

func (c *Catalog) Cluster(id string) (*model.Cluster, error) {
	cluster, ok := c.load().clusters[id]
	if !ok {
		return nil, errs.NotFound("cluster %s", id)
	}
	return cluster.Clone(), nil
}

func (c *Catalog) Applications() []*model.Application {
	s := c.load()
	out := make([]*model.Application, 0, len(s.applications))
	for _, app := range s.applications {
		out = append(out, app.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (c *Catalog) Commands() []*model.Command {
	s := c.load()
	out := make([]*model.Command, 0, len(s.commands))
	for _, cmd := range s.commands {
		out = append(out, cmd.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (c *Catalog) Clusters() []*model.Cluster {
	s := c.load()
	out := make([]*model.Cluster, 0, len(s.clusters))
	for _, cluster := range s.clusters {
		out = append(out, cluster.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// FindClusters returns the active clusters whose tags contain all of tags,
// ordered by id.
func (c *Catalog) FindClusters(tags []string) []*model.Cluster {
	s := c.load()
	var out []*model.Cluster
	for _, cluster := range s.clusters {
		if cluster.Status != model.StatusActive {
			continue
		}
		if model.ContainsAll(cluster.Tags, tags) {
			out = append(out, cluster.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// FindCommandsOnCluster returns the commands attached to the cluster, keeping
// only the given statuses when any are passed.
func (c *Catalog) FindCommandsOnCluster(clusterId string, statuses ...model.Status) ([]*model.Command, error) {
	s := c.load()
	cluster, ok := s.clusters[clusterId]
	if !ok {
		return nil, errs.NotFound("cluster %s", clusterId)
	}
	var out []*model.Command
	for _, id := range cluster.CommandIds {
		cmd, ok := s.commands[id]
		if !ok {
			continue
		}
		if len(statuses) > 0 && !hasStatus(cmd.Status, statuses) {
			continue
		}
		out = append(out, cmd.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (c *Catalog) CommandsForApplication(appId string, statuses ...model.Status) ([]*model.Command, error) {
	s := c.load()
	if _, ok := s.applications[appId]; !ok {
		return nil, errs.NotFound("application %s", appId)
	}
	var out []*model.Command
	for _, cmd := range s.commands {
		if cmd.ApplicationId != appId {
			continue
		}
		if len(statuses) > 0 && !hasStatus(cmd.Status, statuses) {
			continue
		}
		out = append(out, cmd.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func hasStatus(s model.Status, statuses []model.Status) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}
