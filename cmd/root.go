package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"carimages/internal/catalog"
	"carimages/internal/config"
	"carimages/internal/logging"

	"github.com/spf13/cobra"
)

var errTasksFailed = errors.New("some images could not be fetched")

// app carries state shared by all sub-commands once the config is loaded.
type app struct {
	configPath string
	cfg        config.Config
	closeLog   func() error
}

func newApp() *app {
	return &app{closeLog: func() error { return nil }}
}

// newRootCommand builds the command tree around a. The caller closes the log
// through a.closeLog once Execute returns, whatever the outcome.
func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "carimages",
		Short:         "Fetch catalog car images into the public image directory",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initialize(cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yml", "path to the YAML config file")

	rootCmd.AddCommand(
		newFetchCommand(a),
		newStatusCommand(a),
		newServeCommand(a),
	)
	return rootCmd
}

// initialize loads the config and sets up logging before any sub-command runs.
func (a *app) initialize(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closeLog, err := logging.Setup(cfg.Log, stderr)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	a.cfg = cfg
	a.closeLog = closeLog
	return nil
}

// selectCatalogs resolves args to catalogs. An arg with a YAML extension that
// names an existing file is loaded directly; anything else is looked up by
// name in the catalog directory. No args selects every catalog.
func (a *app) selectCatalogs(args []string) ([]catalog.Catalog, error) {
	var fromDir []catalog.Catalog
	loadDir := func() ([]catalog.Catalog, error) {
		if fromDir != nil {
			return fromDir, nil
		}
		all, err := catalog.LoadDir(a.cfg.CatalogDir, a.cfg.AllowedExtensions)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		fromDir = all
		return all, nil
	}

	if len(args) == 0 {
		return loadDir()
	}

	selected := make([]catalog.Catalog, 0, len(args))
	for _, arg := range args {
		if isCatalogPath(arg) {
			c, err := catalog.Load(arg, a.cfg.AllowedExtensions)
			if err != nil {
				return nil, err //nolint:wrapcheck
			}
			selected = append(selected, c)
			continue
		}
		all, err := loadDir()
		if err != nil {
			return nil, err
		}
		found, err := catalog.Select(all, []string{arg})
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		selected = append(selected, found...)
	}
	return selected, nil
}

func isCatalogPath(arg string) bool {
	ext := strings.ToLower(filepath.Ext(arg))
	if ext != ".yml" && ext != ".yaml" {
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && info.Mode().IsRegular()
}
