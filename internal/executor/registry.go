package executor

import (
	"strings"

	"genie/internal/errs"
	"genie/internal/model"
)

type Constructor func(settings Settings, fetcher Fetcher) Manager

// Registry maps a command's engine kind to the manager that runs it.
type Registry struct {
	settings     Settings
	fetcher      Fetcher
	constructors map[string]Constructor
}

func NewRegistry(settings Settings, fetcher Fetcher) *Registry {
	r := &Registry{
		settings:     settings,
		fetcher:      fetcher,
		constructors: make(map[string]Constructor),
	}
	r.Register(NewShellManager, "", KindShell)
	r.Register(NewYarnManager, KindYarn, "hadoop", "hive", "pig")
	return r
}

func (r *Registry) Register(ctor Constructor, kinds ...string) {
	for _, kind := range kinds {
		r.constructors[strings.ToLower(kind)] = ctor
	}
}

// NewManager returns a fresh manager for the command's engine kind.
func (r *Registry) NewManager(cmd *model.Command) (Manager, error) {
	ctor, ok := r.constructors[strings.ToLower(strings.TrimSpace(cmd.JobType))]
	if !ok {
		return nil, errs.ServerConfiguration("no execution manager for job type %q of command %s", cmd.JobType, cmd.Id)
	}
	return ctor(r.settings, r.fetcher), nil
}
