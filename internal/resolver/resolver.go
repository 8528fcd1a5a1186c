// Package resolver turns a job's ordered criteria sets into one concrete
// (cluster, command) pair from the catalog.
package resolver

import (
	"context"
	"sort"
	"strings"

	"genie/internal/catalog"
	"genie/internal/errs"
	"genie/internal/model"
	"genie/pkg/log"
)

type Candidate struct {
	Cluster *model.Cluster
	Command *model.Command
}

type Resolver struct {
	catalog  catalog.Reader
	balancer Balancer
}

func New(reader catalog.Reader, balancer Balancer) *Resolver {
	if balancer == nil {
		balancer = NewRandomBalancer(0)
	}
	return &Resolver{catalog: reader, balancer: balancer}
}

// Resolve walks the criteria sets in order and stops at the first one that
// yields at least one (cluster, command) candidate.
func (r *Resolver) Resolve(ctx context.Context, criteria []model.CriteriaSet) (*Candidate, error) {
	if len(criteria) == 0 {
		return nil, errs.Precondition("no cluster criteria given")
	}
	for i, set := range criteria {
		if len(set) == 0 {
			return nil, errs.Precondition("criteria set %d is empty", i)
		}
	}

	logger := log.GetLogger(ctx).WithField("component", "resolver")
	clusterMatched := false
	for _, set := range criteria {
		candidates, matched, err := r.candidates(set)
		if err != nil {
			return nil, err
		}
		clusterMatched = clusterMatched || matched
		if len(candidates) == 0 {
			logger.Debugf("criteria [%s] yielded no candidate", strings.Join(set, ","))
			continue
		}

		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Cluster.Id != candidates[j].Cluster.Id {
				return candidates[i].Cluster.Id < candidates[j].Cluster.Id
			}
			return candidates[i].Command.Id < candidates[j].Command.Id
		})
		picked := candidates[r.balancer.Pick(len(candidates))]
		logger.Infof("resolved criteria [%s] to cluster %s command %s (%d candidates)",
			strings.Join(set, ","), picked.Cluster.Id, picked.Command.Id, len(candidates))
		return picked, nil
	}

	if clusterMatched {
		return nil, errs.ErrNoCommandFound
	}
	return nil, errs.ErrNoClusterFound
}

// candidates returns the pairs of one criteria set. A cluster takes part when
// every tag of the set is carried by the cluster itself or by one of its
// active commands; a pair is eligible when the cluster and command tags
// together cover the set.
func (r *Resolver) candidates(set model.CriteriaSet) ([]*Candidate, bool, error) {
	var out []*Candidate
	matched := false
	for _, cluster := range r.catalog.FindClusters(nil) {
		cmds, err := r.catalog.FindCommandsOnCluster(cluster.Id, model.StatusActive)
		if errs.IsKind(err, errs.KindNotFound) {
			// removed between the two reads
			continue
		}
		if err != nil {
			return nil, matched, err
		}

		offered := append([]string(nil), cluster.Tags...)
		for _, cmd := range cmds {
			offered = append(offered, cmd.Tags...)
		}
		if !model.ContainsAll(offered, set) {
			continue
		}
		matched = true

		for _, cmd := range cmds {
			covered := append(append([]string(nil), cluster.Tags...), cmd.Tags...)
			if model.ContainsAll(covered, set) {
				out = append(out, &Candidate{Cluster: cluster, Command: cmd})
			}
		}
	}
	return out, matched, nil
}
