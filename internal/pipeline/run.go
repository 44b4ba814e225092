// Package pipeline runs one regeneration of the published cubes: pull the
// upstream dataset, load its CSV files, build every catalog artifact,
// write the documents and publish the output repository.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/covidstat/internal/catalog"
	"github.com/JonMunkholm/covidstat/internal/cube"
	"github.com/JonMunkholm/covidstat/internal/logging"
	"github.com/JonMunkholm/covidstat/internal/repo"
	"github.com/JonMunkholm/covidstat/internal/source"
	"github.com/JonMunkholm/covidstat/internal/tabular"
)

// ErrPublish wraps failures of the final commit or push.
var ErrPublish = errors.New("publish failed")

// Puller refreshes the source working copy.
type Puller interface {
	Pull(ctx context.Context, remote string) error
}

// Publisher commits (and pushes) the output working copy.
type Publisher interface {
	Publish(ctx context.Context, opts repo.PublishOptions) (bool, error)
}

// Writer stores one finished document under its output name.
type Writer interface {
	Write(ctx context.Context, name string, data []byte) error
}

// Options configures a run.
type Options struct {
	SourceDir       string
	Delimiter       rune
	Pull            bool
	SourceRemote    string
	Publish         bool
	Publication     repo.PublishOptions
	ContinueOnError bool
	// MetadataSource overrides the catalog's attribution when set.
	MetadataSource string
	// DryRun builds and encodes every artifact but writes nothing and
	// leaves both repositories alone.
	DryRun bool
	// Now stamps the datasets; time.Now when nil.
	Now func() time.Time
}

// Deps are the side-effecting collaborators of a run. Source is required
// only when Options.Pull is set, Output unless DryRun, Target only when
// Options.Publish is set.
type Deps struct {
	Source Puller
	Output Writer
	Target Publisher
}

// Report summarises a run.
type Report struct {
	Built     []string // encoded successfully
	Written   []string // written to disk
	Failed    []string
	Committed bool
}

// ArtifactError is the failure of a single artifact.
type ArtifactError struct {
	Output string
	Err    error
}

func (e *ArtifactError) Error() string { return e.Output + ": " + e.Err.Error() }
func (e *ArtifactError) Unwrap() error { return e.Err }

// ArtifactErrors collects every artifact that failed in a run.
type ArtifactErrors struct {
	Errs []*ArtifactError
}

func (e *ArtifactErrors) Error() string {
	names := make([]string, len(e.Errs))
	for i, ae := range e.Errs {
		names[i] = ae.Output
	}
	return fmt.Sprintf("%d artifact(s) failed: %s", len(e.Errs), strings.Join(names, ", "))
}

func (e *ArtifactErrors) Unwrap() []error {
	errs := make([]error, len(e.Errs))
	for i, ae := range e.Errs {
		errs[i] = ae
	}
	return errs
}

// Run executes the pipeline once. Source failures abort before any artifact
// is built. Artifact failures are collected; with ContinueOnError the
// remaining artifacts still run and the successful ones are published
// before Run returns an *ArtifactErrors.
func Run(ctx context.Context, opts Options, cat *catalog.Catalog, deps Deps) (Report, error) {
	var report Report
	log := logging.FromContext(ctx)

	if err := checkDeps(opts, deps); err != nil {
		return report, err
	}

	if opts.Pull && !opts.DryRun {
		log.Info("pulling source", slog.String("dir", opts.SourceDir), slog.String("remote", opts.SourceRemote))
		if err := deps.Source.Pull(ctx, opts.SourceRemote); err != nil {
			return report, fmt.Errorf("%w: pull: %w", source.ErrSourceUnavailable, err)
		}
	}

	tables, err := source.Load(ctx, opts.SourceDir, opts.Delimiter, cat.SourceSpecs())
	if err != nil {
		return report, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	updated := now().UTC()

	attribution := cat.Metadata.Source
	if opts.MetadataSource != "" {
		attribution = opts.MetadataSource
	}

	resolver := catalog.NewResolver(cat, tables)
	var failures []*ArtifactError

	for _, a := range cat.Artifacts {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		written, err := runArtifact(ctx, opts, deps, resolver, a, cube.Options{
			Source:  attribution,
			Label:   a.Label,
			Units:   a.Units,
			Updated: &updated,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			msg := Describe(err)
			log.Error("artifact failed",
				slog.String("artifact", a.Output),
				slog.String("code", msg.Code),
				slog.String("error", err.Error()),
			)
			report.Failed = append(report.Failed, a.Output)
			failures = append(failures, &ArtifactError{Output: a.Output, Err: err})
			if !opts.ContinueOnError {
				return report, &ArtifactErrors{Errs: failures}
			}
			continue
		}

		report.Built = append(report.Built, a.Output)
		if written {
			report.Written = append(report.Written, a.Output)
		}
	}

	if opts.Publish && !opts.DryRun && len(report.Written) > 0 {
		pub := opts.Publication
		if pub.RunID == "" {
			pub.RunID = logging.RunID(ctx)
		}
		committed, err := deps.Target.Publish(ctx, pub)
		report.Committed = committed
		if err != nil {
			return report, fmt.Errorf("%w: %w", ErrPublish, err)
		}
		if committed {
			log.Info("published outputs", slog.Int("written", len(report.Written)))
		} else {
			log.Info("outputs unchanged, nothing to commit")
		}
	}

	if len(failures) > 0 {
		return report, &ArtifactErrors{Errs: failures}
	}
	return report, nil
}

// runArtifact builds, encodes and (unless dry-running) writes one artifact.
func runArtifact(ctx context.Context, opts Options, deps Deps, r *catalog.Resolver, a catalog.Artifact, co cube.Options) (bool, error) {
	start := time.Now()
	log := logging.WithFields(ctx, slog.String("artifact", a.Output))
	log.Debug("building artifact")

	t, err := r.Build(a)
	if err != nil {
		return false, err
	}

	ds, err := cube.Encode(t, tabular.ValueColumn, co)
	if err != nil {
		return false, fmt.Errorf("encode: %w", err)
	}

	data, err := json.Marshal(ds)
	if err != nil {
		return false, fmt.Errorf("marshal: %w", err)
	}

	if opts.DryRun {
		log.Info("artifact checked",
			slog.Int("rows", t.Len()),
			slog.Duration("duration", time.Since(start)),
		)
		return false, nil
	}

	if err := deps.Output.Write(ctx, a.Output, data); err != nil {
		return false, fmt.Errorf("write: %w", err)
	}

	log.Info("artifact written",
		slog.Int("rows", t.Len()),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)
	return true, nil
}

func checkDeps(opts Options, deps Deps) error {
	if opts.DryRun {
		return nil
	}
	switch {
	case opts.Pull && deps.Source == nil:
		return errors.New("pipeline: pull enabled without a source repository")
	case deps.Output == nil:
		return errors.New("pipeline: no output writer")
	case opts.Publish && deps.Target == nil:
		return errors.New("pipeline: publish enabled without an output repository")
	}
	return nil
}
