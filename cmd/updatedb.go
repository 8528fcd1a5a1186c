package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"genie/internal/catalog"
	"genie/internal/config"
	"genie/internal/model"
)

var importCatalogFile string

var updateDBCommand = &cobra.Command{
	Use:   "updatedb",
	Short: "Update database tables",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := config.LoadConfig(configFile)
		if err != nil {
			logrus.Fatal("initConfig error, ", err.Error())
		}

		db, err := model.InitDB(conf.DB)
		if err != nil {
			logrus.Fatal("failed to init database", err)
		}
		defer model.CloseDB(db)

		err = model.AutoMigrate(db)
		if err != nil {
			logrus.Fatal("failed to auto migrate database", err)
		} else {
			logrus.Infof("Database tables update successfully")
		}

		if importCatalogFile != "" {
			seed, err := catalog.LoadSeedFile(importCatalogFile)
			if err != nil {
				logrus.Fatal(err)
			}
			if err := catalog.SaveSeed(context.Background(), db, seed); err != nil {
				logrus.Fatal("failed to import catalog", err)
			}
			logrus.Infof("imported %d clusters, %d commands, %d applications",
				len(seed.Clusters), len(seed.Commands), len(seed.Applications))
		}
	},
}

func init() {
	updateDBCommand.Flags().StringVarP(&importCatalogFile, "import-catalog", "i", "", "Import a YAML catalog file into the database")
}
