package cmd

import (
	"fmt"
	"os"

	"github.com/psds-microservice/cityfix-service/internal/application"
	"github.com/psds-microservice/cityfix-service/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var municipalityCmd = &cobra.Command{
	Use:     "municipality",
	Aliases: []string{"municipalities"},
	Short:   "Manage the municipality registry",
}

var municipalityImportCmd = &cobra.Command{
	Use:   "import <file.geojson>",
	Short: "Register every feature of a GeoJSON Feature or FeatureCollection",
	Long: `Each feature needs a "name" property and a Polygon or MultiPolygon geometry.
Optional "managerId" and "primaryColor" properties are stored as given.`,
	Args: cobra.ExactArgs(1),
	RunE: runMunicipalityImport,
}

var municipalityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered municipalities, oldest first",
	RunE:  runMunicipalityList,
}

func init() {
	municipalityCmd.AddCommand(municipalityImportCmd, municipalityListCmd)
}

func withMunicipalities(cmd *cobra.Command, fn func(svc *service.MunicipalityService, log *zap.Logger) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	stores, err := application.OpenStores(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()
	resolutions, rdb := application.OpenResolutionCache(cfg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	return fn(service.NewMunicipalityService(stores.Municipalities, resolutions), log)
}

func runMunicipalityImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	return withMunicipalities(cmd, func(svc *service.MunicipalityService, log *zap.Logger) error {
		created, err := svc.Import(cmd.Context(), raw)
		for _, m := range created {
			log.Info("municipality registered", zap.String("id", m.ID), zap.String("slug", m.Slug))
		}
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		return nil
	})
}

func runMunicipalityList(cmd *cobra.Command, args []string) error {
	return withMunicipalities(cmd, func(svc *service.MunicipalityService, log *zap.Logger) error {
		list, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range list {
			fmt.Fprintf(out, "%s\t%s\t%s\n", m.ID, m.Slug, m.Name)
		}
		return nil
	})
}
