package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"genie/internal/catalog"
	"genie/internal/config"
	"genie/internal/consumer"
	"genie/internal/executor"
	"genie/internal/model"
	"genie/internal/notify"
	"genie/internal/resolver"
	"genie/internal/server"
	"genie/internal/store"
	"genie/internal/supervisor"
	"genie/internal/utils"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Start genie server",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func loadCatalog(ctx context.Context, conf *config.Config) (*catalog.Catalog, func()) {
	cat := catalog.New(ctx)
	closeFn := func() {}

	if conf.Catalog.File != "" {
		seed, err := catalog.LoadSeedFile(conf.Catalog.File)
		if err != nil {
			logrus.Fatalf("load catalog file: %v", err)
		}
		if err := cat.Replace(seed); err != nil {
			logrus.Fatalf("invalid catalog file: %v", err)
		}
	}

	if conf.Catalog.SyncFromDB {
		db, err := model.InitDB(conf.DB)
		if err != nil {
			logrus.Fatal("failed to init database", err)
		}
		closeFn = func() { model.CloseDB(db) }

		syncer := catalog.NewSyncer(ctx, cat, catalog.NewGormSource(db),
			conf.Catalog.RefreshDuration(), conf.Catalog.MaxRetryDuration())
		if err := syncer.SyncOnce(ctx); err != nil {
			logrus.Fatalf("initial catalog sync: %v", err)
		}
		go syncer.Run(ctx)
	}
	return cat, closeFn
}

func runServe() {
	conf, err := config.LoadConfig(configFile)
	if err != nil {
		logrus.Fatal("initConfig error, ", err.Error())
	}

	logrus.Infof("config: %+v", conf)

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	jobStore, err := store.Open(ctx, conf)
	if err != nil {
		logrus.Fatalf("open job store: %v", err)
	}
	defer jobStore.Close()

	cat, closeCatalog := loadCatalog(ctx, conf)
	defer closeCatalog()

	balancer, err := resolver.NewBalancer(conf.Catalog.Balancer, conf.Catalog.BalancerSeed)
	if err != nil {
		logrus.Fatal(err)
	}

	var minioCli *minio.Client
	if conf.S3.Enabled {
		minioCli, err = utils.NewMinioClient(conf.S3)
		if err != nil {
			logrus.Fatalf("create minio client: %v", err)
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if conf.NSQ.Publish {
		nsqNotifier, err := notify.NewNSQNotifier(ctx, conf.NSQ.NSQDAddr, conf.NSQ.EventTopic)
		if err != nil {
			logrus.Fatalf("create nsq producer: %v", err)
		}
		notifier = nsqNotifier
	}
	defer notifier.Close()

	deps := supervisor.Deps{
		Resolver: resolver.New(cat, balancer),
		Catalog:  cat,
		Managers: executor.NewRegistry(executor.SettingsFromConfig(conf), executor.NewSchemeFetcher(minioCli)),
		Store:    jobStore,
		Notifier: notifier,
	}
	if minioCli != nil && conf.S3.ArchiveBucket != "" {
		deps.Archiver = supervisor.NewS3Archiver(minioCli, conf.S3.ArchiveBucket, conf.S3.ArchivePrefix)
	}
	sup := supervisor.New(ctx, deps, supervisor.OptionsFromConfig(conf.Jobs))

	lost, err := sup.Recover(ctx)
	if err != nil {
		logrus.Fatalf("recover jobs: %v", err)
	}
	if lost > 0 {
		logrus.Warnf("%d jobs from a previous run marked LOST", lost)
	}

	srv, err := server.NewServer(ctx, conf, sup, jobStore, cat)
	if err != nil {
		logrus.Fatalf("newServer error, %s", err.Error())
	}
	go srv.Start()

	var c *consumer.Consumer
	if conf.NSQ.Consume {
		c, err = consumer.NewConsumer(ctx, conf.NSQ, sup)
		if err != nil {
			logrus.Fatalf("Failed to create consumer: %v", err)
		}
		if err := c.Start(); err != nil {
			logrus.Fatal(err)
		}
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	<-termChan
	logrus.Infof("server is shutting down...")

	if c != nil {
		c.Stop()
	}
	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	srv.Shutdown(httpCtx)
	httpCancel()

	sup.Shutdown(ctx)
}
