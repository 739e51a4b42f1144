package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crosswalk/internal/core"
	"crosswalk/pkg/domain"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		to string
		sf sourceFlags
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Download the register and cache it in the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var req core.ImportRequest
			if to != "" {
				t, err := domain.ParseDate(to)
				if err != nil {
					return usageError{fmt.Errorf("--to: %w", err)}
				}
				req.To = t
			}
			if sf.kind == sourceStore {
				return usageError{errors.New("cannot import from the record store into itself")}
			}
			src, err := a.source(ctx, sf)
			if err != nil {
				return err
			}
			store, err := a.openRecordStore(ctx)
			if err != nil {
				return err
			}
			summary, err := a.svc.Import(ctx, src, store, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(importOutput{
				Source:      summary.Source,
				LastUpdated: isoOrEmpty(summary.LastUpdated),
				Snapshot:    isoOrEmpty(summary.Snapshot),
				Mutations:   summary.Mutations,
				Roster:      summary.Roster,
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "roster snapshot date (default today)")
	addSourceFlags(cmd, &sf)
	return cmd
}

type importOutput struct {
	Source      string `json:"source"`
	LastUpdated string `json:"last_updated,omitempty"`
	Snapshot    string `json:"snapshot"`
	Mutations   int    `json:"mutations"`
	Roster      int    `json:"roster"`
}

func isoOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return domain.FormatISO(t)
}
