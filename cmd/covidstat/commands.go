package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/covidstat/internal/catalog"
	"github.com/JonMunkholm/covidstat/internal/config"
	"github.com/JonMunkholm/covidstat/internal/logging"
	"github.com/JonMunkholm/covidstat/internal/output"
	"github.com/JonMunkholm/covidstat/internal/pipeline"
	"github.com/JonMunkholm/covidstat/internal/repo"
)

// runFlags override the environment for one invocation.
type runFlags struct {
	catalogFile string
	noPull      bool
	noPublish   bool
	noPush      bool
}

func newRootCmd() *cobra.Command {
	var flags runFlags

	root := &cobra.Command{
		Use:   "covidstat",
		Short: "Regenerate COVID-19 JSON-stat datasets from the upstream CSV files",
		Long: `covidstat pulls the upstream dataset repository, rebuilds every dataset
listed in the artifact catalog and commits the results to the site repository.

Settings come from the environment (and a .env file); see SOURCE, REPOSITORY,
OUTPUT_PATH and CATALOG_FILE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), flags, false)
		},
	}
	root.PersistentFlags().StringVar(&flags.catalogFile, "catalog", "", "artifact catalog file (overrides CATALOG_FILE)")

	run := &cobra.Command{
		Use:   "run",
		Short: "Pull, rebuild every dataset, write and publish (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), flags, false)
		},
	}
	for _, c := range []*cobra.Command{root, run} {
		c.Flags().BoolVar(&flags.noPull, "no-pull", false, "do not pull the source repository")
		c.Flags().BoolVar(&flags.noPublish, "no-publish", false, "write outputs but do not commit them")
		c.Flags().BoolVar(&flags.noPush, "no-push", false, "commit but do not push")
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Load the sources and build every dataset without writing or touching git",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), flags, true)
		},
	}

	artifacts := &cobra.Command{
		Use:   "artifacts",
		Short: "List the output files the catalog produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadCatalog(flags.catalogFile)
			if err != nil {
				return err
			}
			for _, a := range cat.Artifacts {
				if a.Label != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a.Output, a.Label)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), a.Output)
				}
			}
			return nil
		},
	}

	root.AddCommand(run, check, artifacts)
	return root
}

// loadCatalog resolves the catalog from the flag, then CATALOG_FILE, then
// the embedded default.
func loadCatalog(flagPath string) (*catalog.Catalog, error) {
	path := flagPath
	if path == "" {
		cfg, err := config.Read()
		if err == nil {
			path = cfg.Catalog.File
		}
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	return cat, nil
}

// runPipeline performs one run. dryRun is the check command: no pull, no
// writes, no commit.
func runPipeline(ctx context.Context, flags runFlags, dryRun bool) error {
	cfg, err := config.Read()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return &exitError{code: exitConfig, err: err}
	}
	if flags.catalogFile != "" {
		cfg.Catalog.File = flags.catalogFile
	}
	if flags.noPull || dryRun {
		cfg.Source.Pull = false
	}
	if flags.noPublish || dryRun {
		cfg.Repository.Publish = false
	}
	if flags.noPush {
		cfg.Repository.Push = false
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return &exitError{code: exitConfig, err: fmt.Errorf("config validation: %w", err)}
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.FromContext(ctx)
	log.Info("configuration loaded", "config", cfg.String(), "check", dryRun)

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		log.Error("invalid catalog", "code", pipeline.Describe(err).Code, "error", err)
		return &exitError{code: exitConfig, err: err}
	}

	deps, err := openDeps(cfg, dryRun)
	if err != nil {
		log.Error("failed to open repositories", "error", err)
		return &exitError{code: exitConfig, err: err}
	}

	report, err := pipeline.Run(ctx, pipeline.Options{
		SourceDir:    cfg.Source.Dir(),
		Delimiter:    cfg.Source.DelimiterRune(),
		Pull:         cfg.Source.Pull,
		SourceRemote: cfg.Source.Remote,
		Publish:      cfg.Repository.Publish,
		Publication: repo.PublishOptions{
			Message:     cfg.Commit.Message,
			AuthorName:  cfg.Commit.AuthorName,
			AuthorEmail: cfg.Commit.AuthorEmail,
			RunID:       runID,
			Remote:      cfg.Repository.Remote,
			Push:        cfg.Repository.Push,
		},
		ContinueOnError: cfg.Pipeline.ContinueOnError,
		MetadataSource:  cfg.Catalog.MetadataSource,
		DryRun:          dryRun,
	}, cat, deps)

	log.Info("run finished",
		"built", len(report.Built),
		"written", len(report.Written),
		"failed", len(report.Failed),
		"committed", report.Committed,
	)

	if err != nil {
		msg := pipeline.Describe(err)
		log.Error(msg.Message, "code", msg.Code, "action", msg.Action, "error", err)

		var many *pipeline.ArtifactErrors
		if errors.As(err, &many) {
			return &exitError{code: exitArtifacts, err: err}
		}
		return &exitError{code: exitFailure, err: err}
	}
	return nil
}

// openDeps opens only the collaborators the configuration asks for.
func openDeps(cfg *config.Config, dryRun bool) (pipeline.Deps, error) {
	var deps pipeline.Deps

	if cfg.Source.Pull {
		src, err := repo.Open(cfg.Source.Path)
		if err != nil {
			return deps, err
		}
		deps.Source = src
	}

	if dryRun {
		return deps, nil
	}

	w, err := output.New(cfg.OutputDir())
	if err != nil {
		return deps, err
	}
	deps.Output = w

	if cfg.Repository.Publish {
		dst, err := repo.Open(cfg.Repository.Path)
		if err != nil {
			return deps, err
		}
		deps.Target = dst
	}
	return deps, nil
}
