package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkpellow/brainscraper.io-sub002/internal/search"
)

var (
	runKeywords string
	runTitle    string
	runCompany  string
	runIndustry string
	runLocation string
	runPage     int
	runNoEnrich bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search for leads, post-filter, and enrich the survivors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req, err := search.BuildRequest(ctx, search.SimpleParams{
			Keywords: runKeywords,
			Title:    runTitle,
			Company:  runCompany,
			Industry: runIndustry,
			Location: runLocation,
			Page:     runPage,
			PageSize: cfg.PeopleSearch.PageSize,
		}, env.Resolver)
		if err != nil {
			return err
		}

		leads, page, err := env.People.Search(ctx, req)
		if err != nil {
			return eris.Wrap(err, "lead search")
		}
		zap.L().Info("search complete",
			zap.Int("returned", len(leads)),
			zap.Int("total", page.Total),
			zap.Int("page", runPage),
		)

		// Leads that carry their own geo identifier feed the store for free.
		if err := env.Resolver.ExtractFromLeads(ctx, leads); err != nil {
			zap.L().Warn("geo extraction from leads failed", zap.Error(err))
		}

		if runNoEnrich {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(leads)
		}

		job, err := env.Orchestrator.RunBatch(ctx, leads, runLocation)
		if err != nil {
			return eris.Wrap(err, "enrich batch")
		}

		zap.L().Info("enrichment complete",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	runCmd.Flags().StringVar(&runKeywords, "keywords", "", "free-text search keywords")
	runCmd.Flags().StringVar(&runTitle, "title", "", "current title filter")
	runCmd.Flags().StringVar(&runCompany, "company", "", "current company filter")
	runCmd.Flags().StringVar(&runIndustry, "industry", "", "industry filter")
	runCmd.Flags().StringVar(&runLocation, "location", "", "location filter, e.g. \"Austin, Texas\"")
	runCmd.Flags().IntVar(&runPage, "page", 1, "result page to fetch")
	runCmd.Flags().BoolVar(&runNoEnrich, "no-enrich", false, "print raw search results without enriching")
	rootCmd.AddCommand(runCmd)
}
