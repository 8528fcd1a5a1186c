package catalog

import (
	"sort"
	"strings"

	"genie/internal/errs"
	"genie/internal/model"
)

type EntityKind string

const (
	KindApplication EntityKind = "application"
	KindCommand     EntityKind = "command"
	KindCluster     EntityKind = "cluster"
)

func validateEntity(id, name string, status model.Status) (model.Status, error) {
	if strings.TrimSpace(id) == "" {
		return "", errs.Precondition("id is required")
	}
	if strings.TrimSpace(name) == "" {
		return "", errs.Precondition("name is required for %s", id)
	}
	st, err := model.ParseStatus(string(status))
	if err != nil {
		return "", errs.Precondition("%s: %v", id, err)
	}
	return st, nil
}

func normalizeApplication(in *model.Application) (*model.Application, error) {
	app := in.Clone()
	st, err := validateEntity(app.Id, app.Name, app.Status)
	if err != nil {
		return nil, err
	}
	app.Status = st
	app.Tags = model.WithSystemTags(app.Tags, app.Id, app.Name)
	return app, nil
}

func normalizeCommand(in *model.Command) (*model.Command, error) {
	cmd := in.Clone()
	st, err := validateEntity(cmd.Id, cmd.Name, cmd.Status)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.Executable) == "" {
		return nil, errs.Precondition("executable is required for command %s", cmd.Id)
	}
	cmd.Status = st
	cmd.Tags = model.WithSystemTags(cmd.Tags, cmd.Id, cmd.Name)
	return cmd, nil
}

func normalizeCluster(in *model.Cluster) (*model.Cluster, error) {
	cluster := in.Clone()
	st, err := validateEntity(cluster.Id, cluster.Name, cluster.Status)
	if err != nil {
		return nil, err
	}
	cluster.Status = st
	cluster.Tags = model.WithSystemTags(cluster.Tags, cluster.Id, cluster.Name)
	return cluster, nil
}

// PutApplication creates or replaces an application.
func (c *Catalog) PutApplication(in *model.Application) error {
	app, err := normalizeApplication(in)
	if err != nil {
		return err
	}
	return c.update(func(s *snapshot) error {
		s.applications[app.Id] = app
		return nil
	})
}

// PutCommand creates or replaces a command. Cluster membership is kept from
// the existing entry; use AttachCommand to change it.
func (c *Catalog) PutCommand(in *model.Command) error {
	cmd, err := normalizeCommand(in)
	if err != nil {
		return err
	}
	return c.update(func(s *snapshot) error {
		if cmd.ApplicationId != "" {
			if _, ok := s.applications[cmd.ApplicationId]; !ok {
				return errs.NotFound("application %s", cmd.ApplicationId)
			}
		}
		cmd.ClusterIds = nil
		if old, ok := s.commands[cmd.Id]; ok {
			cmd.ClusterIds = append([]string(nil), old.ClusterIds...)
		}
		s.commands[cmd.Id] = cmd
		return nil
	})
}

// PutCluster creates or replaces a cluster. Command membership is kept from
// the existing entry.
func (c *Catalog) PutCluster(in *model.Cluster) error {
	cluster, err := normalizeCluster(in)
	if err != nil {
		return err
	}
	return c.update(func(s *snapshot) error {
		cluster.CommandIds = nil
		if old, ok := s.clusters[cluster.Id]; ok {
			cluster.CommandIds = append([]string(nil), old.CommandIds...)
		}
		s.clusters[cluster.Id] = cluster
		return nil
	})
}

// DeleteApplication removes the application and clears it from the commands
// that referenced it.
func (c *Catalog) DeleteApplication(id string) error {
	return c.update(func(s *snapshot) error {
		if _, ok := s.applications[id]; !ok {
			return errs.NotFound("application %s", id)
		}
		delete(s.applications, id)
		for cid, cmd := range s.commands {
			if cmd.ApplicationId == id {
				n := cmd.Clone()
				n.ApplicationId = ""
				s.commands[cid] = n
			}
		}
		return nil
	})
}

func (c *Catalog) DeleteCommand(id string) error {
	return c.update(func(s *snapshot) error {
		cmd, ok := s.commands[id]
		if !ok {
			return errs.NotFound("command %s", id)
		}
		for _, clusterId := range cmd.ClusterIds {
			if cluster, ok := s.clusters[clusterId]; ok {
				n := cluster.Clone()
				n.CommandIds = removeString(n.CommandIds, id)
				s.clusters[clusterId] = n
			}
		}
		delete(s.commands, id)
		return nil
	})
}

func (c *Catalog) DeleteCluster(id string) error {
	return c.update(func(s *snapshot) error {
		cluster, ok := s.clusters[id]
		if !ok {
			return errs.NotFound("cluster %s", id)
		}
		for _, cmdId := range cluster.CommandIds {
			if cmd, ok := s.commands[cmdId]; ok {
				n := cmd.Clone()
				n.ClusterIds = removeString(n.ClusterIds, id)
				s.commands[cmdId] = n
			}
		}
		delete(s.clusters, id)
		return nil
	})
}

// AttachCommand makes the command available on the cluster. Both sides of
// the relation change in one snapshot.
func (c *Catalog) AttachCommand(clusterId, commandId string) error {
	return c.update(func(s *snapshot) error {
		return attach(s, clusterId, commandId)
	})
}

func attach(s *snapshot, clusterId, commandId string) error {
	cluster, ok := s.clusters[clusterId]
	if !ok {
		return errs.NotFound("cluster %s", clusterId)
	}
	cmd, ok := s.commands[commandId]
	if !ok {
		return errs.NotFound("command %s", commandId)
	}
	nc := cluster.Clone()
	nc.CommandIds = addString(nc.CommandIds, commandId)
	nm := cmd.Clone()
	nm.ClusterIds = addString(nm.ClusterIds, clusterId)
	s.clusters[clusterId] = nc
	s.commands[commandId] = nm
	return nil
}

// DetachCommand removes the command from the cluster on both sides.
func (c *Catalog) DetachCommand(clusterId, commandId string) error {
	return c.update(func(s *snapshot) error {
		cluster, ok := s.clusters[clusterId]
		if !ok {
			return errs.NotFound("cluster %s", clusterId)
		}
		cmd, ok := s.commands[commandId]
		if !ok {
			return errs.NotFound("command %s", commandId)
		}
		nc := cluster.Clone()
		nc.CommandIds = removeString(nc.CommandIds, commandId)
		nm := cmd.Clone()
		nm.ClusterIds = removeString(nm.ClusterIds, clusterId)
		s.clusters[clusterId] = nc
		s.commands[commandId] = nm
		return nil
	})
}

// SetCommandApplication points the command at appId; an empty appId clears it.
func (c *Catalog) SetCommandApplication(commandId, appId string) error {
	return c.update(func(s *snapshot) error {
		cmd, ok := s.commands[commandId]
		if !ok {
			return errs.NotFound("command %s", commandId)
		}
		if appId != "" {
			if _, ok := s.applications[appId]; !ok {
				return errs.NotFound("application %s", appId)
			}
		}
		n := cmd.Clone()
		n.ApplicationId = appId
		s.commands[commandId] = n
		return nil
	})
}

// AddTags adds tags to an entity and returns the resulting tag set. System
// tags in the input are ignored.
func (c *Catalog) AddTags(kind EntityKind, id string, tags ...string) ([]string, error) {
	return c.mutateTags(kind, id, func(cur []string) []string {
		return append(cur, tags...)
	})
}

// ReplaceTags swaps the user tags of an entity; the system tags survive.
func (c *Catalog) ReplaceTags(kind EntityKind, id string, tags []string) ([]string, error) {
	return c.mutateTags(kind, id, func([]string) []string {
		return append([]string(nil), tags...)
	})
}

// RemoveTag removes one tag. Requests naming a system tag are ignored.
func (c *Catalog) RemoveTag(kind EntityKind, id string, tag string) ([]string, error) {
	return c.mutateTags(kind, id, func(cur []string) []string {
		if model.IsSystemTag(tag) {
			return cur
		}
		return removeString(cur, tag)
	})
}

func (c *Catalog) RemoveAllTags(kind EntityKind, id string) ([]string, error) {
	return c.mutateTags(kind, id, func([]string) []string {
		return nil
	})
}

func (c *Catalog) Tags(kind EntityKind, id string) ([]string, error) {
	s := c.load()
	switch kind {
	case KindApplication:
		if app, ok := s.applications[id]; ok {
			return append([]string(nil), app.Tags...), nil
		}
	case KindCommand:
		if cmd, ok := s.commands[id]; ok {
			return append([]string(nil), cmd.Tags...), nil
		}
	case KindCluster:
		if cluster, ok := s.clusters[id]; ok {
			return append([]string(nil), cluster.Tags...), nil
		}
	default:
		return nil, errs.Precondition("unknown entity kind %q", kind)
	}
	return nil, errs.NotFound("%s %s", kind, id)
}

// mutateTags applies fn to the current tags and re-applies the system tags
// afterwards, so no mutation can drop or forge them.
func (c *Catalog) mutateTags(kind EntityKind, id string, fn func(cur []string) []string) ([]string, error) {
	var result []string
	err := c.update(func(s *snapshot) error {
		switch kind {
		case KindApplication:
			app, ok := s.applications[id]
			if !ok {
				return errs.NotFound("application %s", id)
			}
			n := app.Clone()
			n.Tags = model.WithSystemTags(fn(n.Tags), n.Id, n.Name)
			s.applications[id] = n
			result = n.Tags
		case KindCommand:
			cmd, ok := s.commands[id]
			if !ok {
				return errs.NotFound("command %s", id)
			}
			n := cmd.Clone()
			n.Tags = model.WithSystemTags(fn(n.Tags), n.Id, n.Name)
			s.commands[id] = n
			result = n.Tags
		case KindCluster:
			cluster, ok := s.clusters[id]
			if !ok {
				return errs.NotFound("cluster %s", id)
			}
			n := cluster.Clone()
			n.Tags = model.WithSystemTags(fn(n.Tags), n.Id, n.Name)
			s.clusters[id] = n
			result = n.Tags
		default:
			return errs.Precondition("unknown entity kind %q", kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), result...), nil
}

func addString(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	list = append(list, v)
	sort.Strings(list)
	return list
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
