package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"genie/internal/errs"
	"genie/internal/model"
)

// Seed is a complete catalog description. It is what the YAML catalog file
// decodes into and what the database source produces.
type Seed struct {
	Applications []*model.Application    `yaml:"applications"`
	Commands     []*model.Command        `yaml:"commands"`
	Clusters     []*model.Cluster        `yaml:"clusters"`
	Links        []*model.ClusterCommand `yaml:"-"`
}

func LoadSeedFile(filename string) (*Seed, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	seed := &Seed{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, fmt.Errorf("unmarshal catalog file: %w", err)
	}
	return seed, nil
}

// Replace swaps the whole catalog for the content of seed in one step.
// Cluster/command links come from Links and from each cluster's CommandIds.
func (c *Catalog) Replace(seed *Seed) error {
	next := emptySnapshot()

	for _, in := range seed.Applications {
		app, err := normalizeApplication(in)
		if err != nil {
			return err
		}
		next.applications[app.Id] = app
	}
	for _, in := range seed.Commands {
		cmd, err := normalizeCommand(in)
		if err != nil {
			return err
		}
		if cmd.ApplicationId != "" {
			if _, ok := next.applications[cmd.ApplicationId]; !ok {
				return errs.NotFound("application %s referenced by command %s", cmd.ApplicationId, cmd.Id)
			}
		}
		cmd.ClusterIds = nil
		next.commands[cmd.Id] = cmd
	}

	links := append([]*model.ClusterCommand(nil), seed.Links...)
	for _, in := range seed.Clusters {
		cluster, err := normalizeCluster(in)
		if err != nil {
			return err
		}
		for _, cmdId := range cluster.CommandIds {
			links = append(links, &model.ClusterCommand{ClusterId: cluster.Id, CommandId: cmdId})
		}
		cluster.CommandIds = nil
		next.clusters[cluster.Id] = cluster
	}
	for _, l := range links {
		if err := attach(next, l.ClusterId, l.CommandId); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.snap.Store(next)
	c.mu.Unlock()

	c.logger.Infof("catalog replaced: %d applications, %d commands, %d clusters",
		len(next.applications), len(next.commands), len(next.clusters))
	return nil
}
