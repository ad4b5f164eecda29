package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"venuefinds/internal/domain"
	"venuefinds/internal/report"
	"venuefinds/internal/storage/sqlite"
)

// resolveListing accepts a slug or a listing ID.
func resolveListing(ctx context.Context, store *sqlite.Store, ref string) (domain.Listing, error) {
	l, err := store.GetListingBySlug(ctx, ref)
	if errors.Is(err, sqlite.ErrNotFound) {
		l, err = store.GetListing(ctx, ref)
	}
	if errors.Is(err, sqlite.ErrNotFound) {
		return l, fmt.Errorf("no listing with slug or id %q", ref)
	}
	if errors.Is(err, sqlite.ErrAmbiguousSlug) {
		return l, fmt.Errorf("%w; pass the listing id instead", err)
	}
	return l, err
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug|listing-id>",
		Short: "Print a listing and its entity record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			l, err := resolveListing(cmd.Context(), rt.store, args[0])
			if err != nil {
				return err
			}
			e, err := rt.store.GetEntity(cmd.Context(), l.ListingID)
			if err != nil && !errors.Is(err, sqlite.ErrNotFound) {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"listing": l, "entity": e})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <slug|listing-id>",
		Short: "Show the per-field merge decisions of a listing, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			l, err := resolveListing(cmd.Context(), rt.store, args[0])
			if err != nil {
				return err
			}
			entries, err := rt.store.History(cmd.Context(), l.ListingID, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MERGED\tFIELD\tACTION\tOLD CONF\tNEW CONF\tFINAL\tSOURCE")
			for _, h := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
					h.MergedAt.In(rt.cfg.Location).Format("2006-01-02 15:04"),
					h.Field, h.Action, h.OldConfidence, h.NewConfidence, h.FinalConfidence, h.Source)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries (0 for all)")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var f sqlite.ListFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			listings, err := rt.store.ListListings(cmd.Context(), f)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tSLUG\tCATEGORIES")
			for _, l := range listings {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", l.ListingID, l.EntityName, l.EntityType, l.Slug, l.CanonicalCategories)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&f.EntityType, "entity-type", "", "Only this entity type")
	cmd.Flags().StringVar(&f.Category, "category", "", "Only listings with this canonical category")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "Maximum listings (0 for all)")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print listing and merge history counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			st, err := rt.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		f           sqlite.ListFilter
		outDir      string
		title       string
		reviewBelow float64
		stdout      bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a markdown directory report grouped by canonical category",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			listings, err := rt.store.ListListings(cmd.Context(), f)
			if err != nil {
				return err
			}
			entries := make([]report.Entry, 0, len(listings))
			for _, l := range listings {
				e, err := rt.store.GetEntity(cmd.Context(), l.ListingID)
				if err != nil && !errors.Is(err, sqlite.ErrNotFound) {
					return err
				}
				entries = append(entries, report.Entry{Listing: l, Entity: e})
			}
			if !cmd.Flags().Changed("review-below") {
				reviewBelow = rt.cfg.MergeConfidenceThreshold
			}
			content := report.RenderMarkdown(entries, report.Options{Title: title, ReviewBelow: reviewBelow})
			if stdout {
				_, err := fmt.Fprint(cmd.OutOrStdout(), content)
				return err
			}

			if outDir == "" {
				outDir = filepath.Join(rt.cfg.DataDir, "reports")
			}
			path, err := report.WriteReportFile(content, outDir, time.Now().In(rt.cfg.Location), "directory")
			if err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s (%d listings)\n", path, len(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&f.EntityType, "entity-type", "", "Only this entity type")
	cmd.Flags().StringVar(&f.Category, "category", "", "Only listings with this canonical category")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default <data_dir>/reports)")
	cmd.Flags().StringVar(&title, "title", "Venue directory", "Report title")
	cmd.Flags().Float64Var(&reviewBelow, "review-below", 0, "Flag fields under this confidence (default merge_confidence_threshold)")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print the report instead of writing a file")
	return cmd
}
