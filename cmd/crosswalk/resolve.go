package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"crosswalk/internal/export"
	"crosswalk/pkg/domain"
)

type resolveFlags struct {
	since       string
	to          string
	cantons     string
	changesOnly bool
	format      string
	out         string
	store       bool
	source      sourceFlags
}

func newResolveCmd(a *app) *cobra.Command {
	var f resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the crosswalk for a date window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runResolve(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.since, "since", "", "start of the window (YYYY-MM-DD, DD.MM.YYYY or MM/DD/YYYY)")
	fl.StringVar(&f.to, "to", "", "end of the window (default today)")
	fl.StringVar(&f.cantons, "cantons", "", "comma separated canton abbreviations (default all)")
	fl.BoolVar(&f.changesOnly, "changes-only", false, "omit municipalities without mutations")
	fl.StringVar(&f.format, "format", "csv", "output format: csv, json or xlsx")
	fl.StringVarP(&f.out, "out", "o", "-", "output file or directory; - for stdout")
	fl.BoolVar(&f.store, "store", false, "also store the export in the blob store")
	addSourceFlags(cmd, &f.source)
	return cmd
}

func addSourceFlags(cmd *cobra.Command, f *sourceFlags) {
	fl := cmd.Flags()
	fl.StringVar(&f.kind, "source", sourceLive, "record source: live, store or file")
	fl.StringVar(&f.mutationsFile, "mutations-file", "", "mutation list (xlsx or csv) for --source file")
	fl.StringVar(&f.rosterFile, "roster-file", "", "roster (xlsx or csv) for --source file")
}

func (a *app) runResolve(cmd *cobra.Command, f resolveFlags) error {
	ctx := cmd.Context()
	scope, err := parseScope(f, a.svc.Now())
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(f.format)
	if err != nil {
		return err
	}
	src, err := a.source(ctx, f.source)
	if err != nil {
		return err
	}
	res, err := a.svc.Resolve(ctx, src, scope)
	if err != nil {
		return err
	}
	rendered, err := a.svc.Render(ctx, format, res)
	if err != nil {
		return err
	}
	if f.store {
		art, err := a.svc.Export(ctx, format, res)
		if err != nil {
			return err
		}
		a.logger.Info("export stored", "key", art.Key, "url", art.URL)
	}
	return a.writeOutput(f.out, rendered)
}

func parseScope(f resolveFlags, now time.Time) (domain.Scope, error) {
	var scope domain.Scope
	if f.since == "" {
		return scope, usageError{errors.New("--since is required")}
	}
	since, err := domain.ParseDate(f.since)
	if err != nil {
		return scope, usageError{fmt.Errorf("--since: %w", err)}
	}
	to := domain.Day(now)
	if f.to != "" {
		if to, err = domain.ParseDate(f.to); err != nil {
			return scope, usageError{fmt.Errorf("--to: %w", err)}
		}
	}
	cantons, err := domain.ParseCantonSubset(domain.SplitCantonList(f.cantons))
	if err != nil {
		return scope, err
	}
	return domain.Scope{Since: since, To: to, Cantons: cantons, IncludeUnchanged: !f.changesOnly}, nil
}

func (a *app) writeOutput(out string, r export.Rendered) error {
	if out == "" || out == "-" {
		_, err := a.stdout.Write(r.Payload)
		return err
	}
	path := out
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		path = filepath.Join(out, r.Artifact.FileName)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat output: %w", err)
	}
	if err := os.WriteFile(path, r.Payload, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	a.logger.Info("crosswalk written", "path", path, "rows", r.Artifact.Rows, "bytes", len(r.Payload))
	return nil
}
