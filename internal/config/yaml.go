package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LoadYAMLConfig load config from filename in YAML format
func LoadYAMLConfig(filename string, cfg interface{}) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("ReadFile: %v", err)
	}
	err = yaml.Unmarshal(data, cfg)
	return err
}

func LoadConfig(configPath string) (*Config, error) {
	conf := DefaultConfig()

	if err := LoadYAMLConfig(configPath, conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreBadger, StoreMySQL:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Jobs.Admission {
	case AdmissionQueue, AdmissionReject:
	default:
		return fmt.Errorf("unknown admission mode %q", c.Jobs.Admission)
	}
	switch c.Jobs.ShutdownMode {
	case ShutdownWait, ShutdownKill:
	default:
		return fmt.Errorf("unknown shutdown mode %q", c.Jobs.ShutdownMode)
	}
	switch c.Catalog.Balancer {
	case BalancerRandom, BalancerRoundRobin:
	default:
		return fmt.Errorf("unknown balancer %q", c.Catalog.Balancer)
	}
	if c.Jobs.MaxRunning <= 0 {
		return fmt.Errorf("jobs.maxRunning must be positive, got %d", c.Jobs.MaxRunning)
	}
	if c.Hadoop.Homes == nil {
		c.Hadoop.Homes = map[string]string{}
	}
	return nil
}
