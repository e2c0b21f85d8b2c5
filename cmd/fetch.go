package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"carimages/internal/fetch"
	fileutil "carimages/internal/file"
	runpkg "carimages/internal/run"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newFetchCommand(a *app) *cobra.Command {
	var (
		all       bool
		strict    bool
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "fetch [catalog...]",
		Short: "Fetch the images of the given catalogs, in order",
		Long: `Fetch every image of the given catalogs that is not already present.
Catalogs are named by file name (without extension) inside the catalog
directory, or given as a path to a YAML file. Files already above the size
threshold are skipped without any network call, so the command is safe to
re-run. Interrupting stops the batch between two images.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errors.New("name at least one catalog or pass --all")
			}
			if outputDir != "" {
				a.cfg.OutputDir = outputDir
			}
			catalogs, err := a.selectCatalogs(args)
			if err != nil {
				return err
			}
			if len(catalogs) == 0 {
				return fmt.Errorf("no catalogs found in %s", a.cfg.CatalogDir)
			}
			if err := fileutil.EnsureDir(a.cfg.OutputDir); err != nil {
				return fmt.Errorf("output dir: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			batch := runpkg.NewBatch(a.cfg, nil)
			result, err := batch(ctx, catalogs, nil)
			renderSummary(cmd.OutOrStdout(), result)
			if err != nil {
				if fetch.IsCancelled(err) {
					log.Warn().Msg("interrupted, partial result above")
				}
				return err
			}
			if strict && result.Failed > 0 {
				return fmt.Errorf("%w: %d failed", errTasksFailed, result.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "fetch every catalog in the catalog directory")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any image failed")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "override the output directory")
	return cmd
}
