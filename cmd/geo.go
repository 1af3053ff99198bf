package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Location identifier store",
	Long:  "Inspect and exercise the geo identifier store that maps location text to search provider IDs.",
}

var geoStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show geo store statistics by source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		counts, err := env.Store.CountGeoBySource(ctx)
		if err != nil {
			return eris.Wrap(err, "geo status: count by source")
		}

		total := 0
		for _, n := range counts {
			total += n
		}

		fmt.Printf("Geo identifier store\n")
		fmt.Printf("  static:     %d\n", counts[model.SourceStatic])
		fmt.Printf("  discovered: %d\n", counts[model.SourceDiscovered])
		fmt.Printf("  extracted:  %d\n", counts[model.SourceExtracted])
		fmt.Printf("  total:      %d\n", total)

		return nil
	},
}

var geoResolveDiscover bool

var geoResolveCmd = &cobra.Command{
	Use:   "resolve <location text>",
	Short: "Resolve location text to a search identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Resolver.Resolve(ctx, args[0], geoResolveDiscover)
		if err != nil {
			return eris.Wrapf(err, "resolve %q", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	geoResolveCmd.Flags().BoolVar(&geoResolveDiscover, "discover", true, "query discovery sources on a cache miss")
	geoCmd.AddCommand(geoStatusCmd)
	geoCmd.AddCommand(geoResolveCmd)
	rootCmd.AddCommand(geoCmd)
}
