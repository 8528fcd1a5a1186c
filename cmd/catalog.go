package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"genie/internal/catalog"
	"genie/internal/model"
	"genie/internal/resolver"
)

var (
	catalogFile  string
	criteriaArgs []string
	balancerName string
)

var catalogCommand = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect a catalog file",
}

var catalogCheckCommand = &cobra.Command{
	Use:   "check",
	Short: "Validate a catalog file",
	Run: func(cmd *cobra.Command, args []string) {
		cat := mustLoadCatalogFile()
		for _, cluster := range cat.Clusters() {
			fmt.Printf("cluster %s (%s) status=%s tags=%s commands=%s\n", cluster.Id, cluster.Name,
				cluster.Status, strings.Join(cluster.Tags, ","), strings.Join(cluster.CommandIds, ","))
		}
		for _, c := range cat.Commands() {
			fmt.Printf("command %s (%s) status=%s executable=%s clusters=%s\n", c.Id, c.Name,
				c.Status, c.Executable, strings.Join(c.ClusterIds, ","))
		}
		fmt.Printf("%d applications, %d commands, %d clusters\n",
			len(cat.Applications()), len(cat.Commands()), len(cat.Clusters()))
	},
}

var catalogResolveCommand = &cobra.Command{
	Use:     "resolve",
	Short:   "Resolve criteria against a catalog file",
	Example: `  genie catalog resolve -f etc/catalog.yaml --criteria hadoop,prod,hive --criteria hive`,
	Run: func(cmd *cobra.Command, args []string) {
		cat := mustLoadCatalogFile()

		var criteria []model.CriteriaSet
		for _, arg := range criteriaArgs {
			criteria = append(criteria, model.CriteriaSet(splitTags(arg)))
		}

		balancer, err := resolver.NewBalancer(balancerName, 0)
		if err != nil {
			logrus.Fatal(err)
		}
		cand, err := resolver.New(cat, balancer).Resolve(context.Background(), criteria)
		if err != nil {
			logrus.Fatal(err)
		}
		fmt.Printf("cluster=%s command=%s\n", cand.Cluster.Id, cand.Command.Id)
	},
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func mustLoadCatalogFile() *catalog.Catalog {
	seed, err := catalog.LoadSeedFile(catalogFile)
	if err != nil {
		logrus.Fatal(err)
	}
	cat := catalog.New(context.Background())
	if err := cat.Replace(seed); err != nil {
		logrus.Fatal(err)
	}
	return cat
}

func init() {
	catalogCommand.PersistentFlags().StringVarP(&catalogFile, "file", "f", "etc/catalog.yaml", "Path to catalog file")
	catalogResolveCommand.Flags().StringArrayVar(&criteriaArgs, "criteria", nil, "Comma separated tags, repeat in priority order")
	catalogResolveCommand.Flags().StringVar(&balancerName, "balancer", "random", "Balancer used among candidates (random, roundrobin)")

	catalogCommand.AddCommand(catalogCheckCommand)
	catalogCommand.AddCommand(catalogResolveCommand)
}
