package model

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusDeprecated Status = "DEPRECATED"
	StatusInactive   Status = "INACTIVE"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusDeprecated, StatusInactive:
		return Status(s), nil
	case "":
		return StatusActive, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

type Application struct {
	Id         string    `json:"id" yaml:"id" gorm:"primaryKey;type:varchar(255)"`
	Name       string    `json:"name" yaml:"name" gorm:"type:varchar(255);NOT NULL"`
	User       string    `json:"user,omitempty" yaml:"user" gorm:"type:varchar(255)"`
	Version    string    `json:"version,omitempty" yaml:"version" gorm:"type:varchar(255)"`
	Status     Status    `json:"status" yaml:"status" gorm:"type:varchar(20);index"`
	SetupFile  string    `json:"setupFile,omitempty" yaml:"setupFile" gorm:"type:text"`
	Configs    []string  `json:"configs,omitempty" yaml:"configs" gorm:"serializer:json"`
	Jars       []string  `json:"jars,omitempty" yaml:"jars" gorm:"serializer:json"`
	Tags       []string  `json:"tags" yaml:"tags" gorm:"serializer:json"`
	CreateTime time.Time `json:"createTime" yaml:"-" gorm:"datetime;autoCreateTime"`
	UpdateTime time.Time `json:"updateTime" yaml:"-" gorm:"datetime;autoCreateTime;autoUpdateTime"`
}

type Command struct {
	Id            string    `json:"id" yaml:"id" gorm:"primaryKey;type:varchar(255)"`
	Name          string    `json:"name" yaml:"name" gorm:"type:varchar(255);NOT NULL"`
	User          string    `json:"user,omitempty" yaml:"user" gorm:"type:varchar(255)"`
	Version       string    `json:"version,omitempty" yaml:"version" gorm:"type:varchar(255)"`
	Status        Status    `json:"status" yaml:"status" gorm:"type:varchar(20);index"`
	Executable    string    `json:"executable" yaml:"executable" gorm:"type:varchar(255);NOT NULL"`
	SetupFile     string    `json:"setupFile,omitempty" yaml:"setupFile" gorm:"type:text"`
	JobType       string    `json:"jobType,omitempty" yaml:"jobType" gorm:"type:varchar(255)"`
	Configs       []string  `json:"configs,omitempty" yaml:"configs" gorm:"serializer:json"`
	Tags          []string  `json:"tags" yaml:"tags" gorm:"serializer:json"`
	ApplicationId string    `json:"applicationId,omitempty" yaml:"applicationId" gorm:"type:varchar(255);index"`
	ClusterIds    []string  `json:"clusterIds,omitempty" yaml:"-" gorm:"-"`
	CreateTime    time.Time `json:"createTime" yaml:"-" gorm:"datetime;autoCreateTime"`
	UpdateTime    time.Time `json:"updateTime" yaml:"-" gorm:"datetime;autoCreateTime;autoUpdateTime"`
}

type Cluster struct {
	Id         string    `json:"id" yaml:"id" gorm:"primaryKey;type:varchar(255)"`
	Name       string    `json:"name" yaml:"name" gorm:"type:varchar(255);NOT NULL"`
	User       string    `json:"user,omitempty" yaml:"user" gorm:"type:varchar(255)"`
	Version    string    `json:"version,omitempty" yaml:"version" gorm:"type:varchar(255)"`
	Status     Status    `json:"status" yaml:"status" gorm:"type:varchar(20);index"`
	Configs    []string  `json:"configs,omitempty" yaml:"configs" gorm:"serializer:json"`
	Tags       []string  `json:"tags" yaml:"tags" gorm:"serializer:json"`
	CommandIds []string  `json:"commandIds,omitempty" yaml:"commands" gorm:"-"`
	CreateTime time.Time `json:"createTime" yaml:"-" gorm:"datetime;autoCreateTime"`
	UpdateTime time.Time `json:"updateTime" yaml:"-" gorm:"datetime;autoCreateTime;autoUpdateTime"`
}

// ClusterCommand is the adjacency row of the cluster/command relation.
type ClusterCommand struct {
	ClusterId string `gorm:"primaryKey;type:varchar(255)"`
	CommandId string `gorm:"primaryKey;type:varchar(255);index"`
}

func (a *Application) Clone() *Application {
	c := *a
	c.Configs = cloneStrings(a.Configs)
	c.Jars = cloneStrings(a.Jars)
	c.Tags = cloneStrings(a.Tags)
	return &c
}

func (c *Command) Clone() *Command {
	n := *c
	n.Configs = cloneStrings(c.Configs)
	n.Tags = cloneStrings(c.Tags)
	n.ClusterIds = cloneStrings(c.ClusterIds)
	return &n
}

func (c *Cluster) Clone() *Cluster {
	n := *c
	n.Configs = cloneStrings(c.Configs)
	n.Tags = cloneStrings(c.Tags)
	n.CommandIds = cloneStrings(c.CommandIds)
	return &n
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
