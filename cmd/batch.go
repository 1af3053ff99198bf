package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkpellow/brainscraper.io-sub002/internal/model"
)

var (
	batchFile     string
	batchLocation string
	batchLimit    int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Post-filter and enrich a batch of leads from a JSON file",
	Long:  "Reads a JSON array of lead records from a file (or stdin with -), filters them against the requested location, and enriches the kept leads with bounded concurrency.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		leads, err := readLeads(batchFile)
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(leads) > batchLimit {
			leads = leads[:batchLimit]
		}
		zap.L().Info("batch loaded", zap.Int("leads", len(leads)))

		if err := env.Resolver.ExtractFromLeads(ctx, leads); err != nil {
			zap.L().Warn("geo extraction from leads failed", zap.Error(err))
		}

		job, err := env.Orchestrator.RunBatch(ctx, leads, batchLocation)
		if err != nil {
			return eris.Wrap(err, "enrich batch")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func readLeads(path string) ([]model.LeadRecord, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "open leads file")
		}
		defer f.Close()
		r = f
	}

	var leads []model.LeadRecord
	if err := json.NewDecoder(r).Decode(&leads); err != nil {
		return nil, eris.Wrap(err, "decode leads")
	}
	return leads, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "-", "path to JSON lead array, or - for stdin")
	batchCmd.Flags().StringVar(&batchLocation, "location", "", "requested location to filter against")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of leads to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}
