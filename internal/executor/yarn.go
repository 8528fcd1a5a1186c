package executor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"genie/internal/config"
	"genie/internal/errs"
	"genie/pkg/log"
)

const (
	KindYarn  = "yarn"
	KindShell = "shell"

	DefaultGroupName = "hadoop"
	forceCopyFlag    = "-f"
)

func NewYarnManager(settings Settings, fetcher Fetcher) Manager {
	m := &manager{kind: KindYarn, settings: settings, fetcher: fetcher}
	m.hook = m.yarnEnv
	return m
}

func (m *manager) yarnEnv(ctx context.Context, req *Request, plan *LaunchPlan) error {
	job, cluster := req.Job, req.Cluster
	hadoop := m.settings.Hadoop

	home, err := HadoopHome(hadoop, cluster.Version)
	if err != nil {
		return err
	}
	log.GetLogger(ctx).WithField("component", "executor").
		Infof("HADOOP_HOME for cluster %s (version %q): %s", cluster.Id, cluster.Version, home)

	group := job.Group
	if group == "" {
		group = hadoop.GroupName
	}
	if group == "" {
		group = DefaultGroupName
	}
	env := job.Environment
	if env == "" {
		env = m.settings.Environment
	}
	cpTimeout := hadoop.CopyTimeout
	if cpTimeout == "" {
		cpTimeout = config.DefaultHadoopConfig().CopyTimeout
	}

	plan.Vars["HADOOP_CONF_DIR"] = plan.ConfDir
	plan.Vars["HADOOP_USER_NAME"] = job.User
	plan.Vars["HADOOP_GROUP_NAME"] = group
	plan.Vars["HADOOP_HOME"] = home
	plan.Vars["CORE_SITE_XML_ARGS"] = CoreSiteXMLArgs(job.Id, env, hadoop.LipstickEnable, hadoop.LipstickPropName)
	plan.Vars["CP_TIMEOUT"] = cpTimeout
	plan.Vars["COPY_COMMAND"] = fmt.Sprintf("%s/bin/hadoop fs %s -cp %s", home, hadoop.CopyOpts, forceCopyFlag)
	plan.Vars["FORCE_COPY_FLAG"] = forceCopyFlag
	plan.Vars["MKDIR_COMMAND"] = fmt.Sprintf("%s/bin/hadoop fs %s -mkdir", home, hadoop.CopyOpts)
	return nil
}

// CoreSiteXMLArgs builds the ;-joined key=value list handed to the job's
// core-site.xml. Empty entries are left out.
func CoreSiteXMLArgs(jobId, environment string, lipstick bool, lipstickProp string) string {
	var parts []string
	if jobId != "" {
		parts = append(parts, GenieJobIdProp+"="+jobId)
	}
	if environment != "" {
		parts = append(parts, EnvironmentProp+"="+environment)
	}
	if lipstick && lipstickProp != "" {
		parts = append(parts, lipstickProp+"="+GenieJobIdProp)
	}
	return strings.Join(parts, ";")
}

// HadoopHome picks the engine installation for a cluster version: the exact
// version key, then the version trimmed to three components, then the
// default home. The first candidate that is an existing directory wins.
func HadoopHome(hadoop config.HadoopConfig, version string) (string, error) {
	var candidates []string
	if version != "" {
		if home := hadoop.Homes[version]; home != "" {
			candidates = append(candidates, home)
		}
		if trimmed := TrimVersion(version); trimmed != version {
			if home := hadoop.Homes[trimmed]; home != "" {
				candidates = append(candidates, home)
			}
		}
	}
	if hadoop.Home != "" {
		candidates = append(candidates, hadoop.Home)
	}

	for _, home := range candidates {
		if st, err := os.Stat(home); err == nil && st.IsDir() {
			return home, nil
		}
	}
	if version != "" {
		return "", errs.ServerConfiguration("this genie instance doesn't support hadoop version %s", version)
	}
	return "", errs.ServerConfiguration("hadoop.home is not set correctly")
}

// TrimVersion keeps the three most significant components of a version,
// e.g. 2.6.0-amzn-1 becomes 2.6.0.
func TrimVersion(version string) string {
	fields := strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
	if len(fields) <= 3 {
		return strings.Join(fields, ".")
	}
	return strings.Join(fields[:3], ".")
}
