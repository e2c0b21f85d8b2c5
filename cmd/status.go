package main

import (
	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	var showMissing bool
	cmd := &cobra.Command{
		Use:   "status [catalog...]",
		Short: "Show how many catalog images are already present (no network)",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogs, err := a.selectCatalogs(args)
			if err != nil {
				return err
			}
			rows := make([]coverageRow, 0, len(catalogs))
			for _, c := range catalogs {
				present, missing := c.Coverage(a.cfg.OutputDir, a.cfg.MinBytes)
				rows = append(rows, coverageRow{
					Name:    c.Name,
					Images:  len(c.Images),
					Present: present,
					Missing: missing,
				})
			}
			renderCoverage(cmd.OutOrStdout(), rows, showMissing)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showMissing, "missing", "m", false, "list missing file names")
	return cmd
}
