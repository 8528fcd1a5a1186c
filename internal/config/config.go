package config

import (
	"os"
	"path"
	"time"

	"genie/internal/model"
)

const (
	StoreBadger = "badger"
	StoreMySQL  = "mysql"

	AdmissionQueue  = "queue"
	AdmissionReject = "reject"

	ShutdownWait = "wait"
	ShutdownKill = "kill"

	BalancerRandom     = "random"
	BalancerRoundRobin = "roundrobin"
)

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
}

type CatalogConfig struct {
	File            string `yaml:"file"`
	SyncFromDB      bool   `yaml:"syncFromDB"`
	RefreshInterval int    `yaml:"refreshInterval"`
	MaxRetryElapsed int    `yaml:"maxRetryElapsed"`
	Balancer        string `yaml:"balancer"`
	BalancerSeed    int64  `yaml:"balancerSeed"`
}

type JobsConfig struct {
	Dir             string `yaml:"dir"`
	MaxRunning      int    `yaml:"maxRunning"`
	Admission       string `yaml:"admission"`
	DefaultTimeout  int    `yaml:"defaultTimeout"`
	KillGrace       int    `yaml:"killGrace"`
	ShutdownMode    string `yaml:"shutdownMode"`
	ShutdownTimeout int    `yaml:"shutdownTimeout"`
}

type HadoopConfig struct {
	Home             string            `yaml:"home"`
	Homes            map[string]string `yaml:"homes"`
	CopyTimeout      string            `yaml:"copyTimeout"`
	CopyOpts         string            `yaml:"copyOpts"`
	LipstickEnable   bool              `yaml:"lipstickEnable"`
	LipstickPropName string            `yaml:"lipstickPropName"`
	GroupName        string            `yaml:"groupName"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	Region          string `yaml:"region"`
	ArchiveBucket   string `yaml:"archiveBucket"`
	ArchivePrefix   string `yaml:"archivePrefix"`
}

type NSQConfig struct {
	NSQDAddr    string   `yaml:"nsqdAddr"`
	NSQDAddrs   []string `yaml:"nsqdAddrs"`
	EventTopic  string   `yaml:"eventTopic"`
	SubmitTopic string   `yaml:"submitTopic"`
	Channel     string   `yaml:"channel"`
	Publish     bool     `yaml:"publish"`
	Consume     bool     `yaml:"consume"`
}

type Config struct {
	Addr        string         `yaml:"addr"`
	WorkDir     string         `yaml:"workDir"`
	Environment string         `yaml:"environment"`
	DB          model.DBConfig `yaml:"db"`
	Store       StoreConfig    `yaml:"store"`
	Catalog     CatalogConfig  `yaml:"catalog"`
	Jobs        JobsConfig     `yaml:"jobs"`
	Hadoop      HadoopConfig   `yaml:"hadoop"`
	S3          S3Config       `yaml:"s3"`
	NSQ         NSQConfig      `yaml:"nsq"`
}

func (c Config) JobDir() string {
	if c.Jobs.Dir != "" {
		return c.Jobs.Dir
	}
	return path.Join(c.WorkDir, "jobs")
}

func (c Config) DataDir() string {
	if c.Store.Dir != "" {
		return c.Store.Dir
	}
	return path.Join(c.WorkDir, "data")
}

func (c JobsConfig) KillGraceDuration() time.Duration {
	return time.Duration(c.KillGrace) * time.Second
}

func (c JobsConfig) DefaultTimeoutDuration() time.Duration {
	return time.Duration(c.DefaultTimeout) * time.Second
}

func (c JobsConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

func (c CatalogConfig) RefreshDuration() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

func (c CatalogConfig) MaxRetryDuration() time.Duration {
	return time.Duration(c.MaxRetryElapsed) * time.Second
}

func DefaultHadoopConfig() HadoopConfig {
	return HadoopConfig{
		Homes:            map[string]string{},
		CopyTimeout:      "1800",
		CopyOpts:         "",
		LipstickEnable:   false,
		LipstickPropName: "lipstick.uuid.prop.name",
		GroupName:        "hadoop",
	}
}

func DefaultConfig() *Config {
	cfg := &Config{
		Addr:        "127.0.0.1:8080",
		Environment: "test",
		DB:          *model.DefaultDBConfig(),
		Store: StoreConfig{
			Driver: StoreBadger,
		},
		Catalog: CatalogConfig{
			RefreshInterval: 30,
			MaxRetryElapsed: 60,
			Balancer:        BalancerRandom,
		},
		Jobs: JobsConfig{
			MaxRunning:      16,
			Admission:       AdmissionQueue,
			DefaultTimeout:  0,
			KillGrace:       10,
			ShutdownMode:    ShutdownWait,
			ShutdownTimeout: 60,
		},
		Hadoop: DefaultHadoopConfig(),
		S3: S3Config{
			Endpoint:      "127.0.0.1:9000",
			UseSSL:        false,
			Region:        "us-east-1",
			ArchivePrefix: "genie/jobs",
		},
		NSQ: NSQConfig{
			NSQDAddr:    "localhost:4150",
			NSQDAddrs:   []string{"localhost:4150"},
			EventTopic:  "genie_job_events",
			SubmitTopic: "genie_job_submissions",
			Channel:     "genie",
		},
	}

	dataDir := os.Getenv("GENIE_DATA")
	if dataDir != "" {
		cfg.WorkDir = dataDir
	} else {
		cfg.WorkDir = "./genie_dir"
	}

	return cfg
}
