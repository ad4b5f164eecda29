package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"venuefinds/internal/pipeline"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var (
		entityName string
		entityType string
		file       string
		sourceType string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract one entity from a text file (or stdin) and merge it into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if file == "" || file == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if entityName == "" && file != "" && file != "-" {
				entityName = pipeline.EntityNameFromPath(file)
			}

			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()
			p, err := rt.pipeline()
			if err != nil {
				return err
			}

			res, err := p.ProcessRawText(cmd.Context(), pipeline.Input{
				EntityName: entityName,
				EntityType: entityType,
				RawText:    string(raw),
				SourceType: sourceType,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&entityName, "entity-name", "", "Entity name (defaults to the file name)")
	cmd.Flags().StringVar(&entityType, "entity-type", "venue", "Entity type")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Raw text file; stdin when empty or -")
	cmd.Flags().StringVar(&sourceType, "source-type", "manual_file", "Source label recorded in source_info and merge history")
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var dir, pattern, entityType string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process every matching file in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()
			p, err := rt.pipeline()
			if err != nil {
				return err
			}
			dir, pattern, entityType = inboxDefaults(rt, dir, pattern, entityType)
			if dir == "" {
				return fmt.Errorf("--dir is required when inbox_dir is not configured")
			}

			res, err := p.ProcessDir(cmd.Context(), dir, pattern, entityType)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d, failed %d\n", len(res.Processed), len(res.Failed))
			for _, r := range res.Processed {
				fmt.Fprintf(cmd.OutOrStdout(), "  ok    %s %s (changes: %d, rejected: %d)\n",
					r.Report.ListingID, r.Listing.EntityName,
					len(r.Report.ListingChanges)+len(r.Report.EntityChanges), len(r.Report.Rejected))
			}
			for _, f := range res.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  fail  %s\n", f.Error())
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d file(s) failed", len(res.Failed))
			}
			return nil
		},
	}
	addInboxFlags(cmd, &dir, &pattern, &entityType)
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var dir, pattern, entityType string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process files as they appear in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()
			p, err := rt.pipeline()
			if err != nil {
				return err
			}
			dir, pattern, entityType = inboxDefaults(rt, dir, pattern, entityType)
			if dir == "" {
				return fmt.Errorf("--dir is required when inbox_dir is not configured")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return p.Watch(ctx, dir, pattern, entityType)
		},
	}
	addInboxFlags(cmd, &dir, &pattern, &entityType)
	return cmd
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the inbox batch on batch_schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open()
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.cfg.BatchSchedule == "" || rt.cfg.InboxDir == "" {
				return fmt.Errorf("batch_schedule and inbox_dir must both be configured")
			}
			p, err := rt.pipeline()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if _, err := p.StartBatchScheduler(ctx, rt.cfg.BatchSchedule, rt.cfg.Location,
				rt.cfg.InboxDir, rt.cfg.InboxPattern, rt.cfg.InboxEntityType); err != nil {
				return err
			}
			if watch {
				return p.Watch(ctx, rt.cfg.InboxDir, rt.cfg.InboxPattern, rt.cfg.InboxEntityType)
			}
			<-ctx.Done()
			rt.logger.Info("scheduler stopped", zap.String("reason", context.Cause(ctx).Error()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Also process new inbox files as they appear")
	return cmd
}

func addInboxFlags(cmd *cobra.Command, dir, pattern, entityType *string) {
	cmd.Flags().StringVar(dir, "dir", "", "Directory to read (default inbox_dir)")
	cmd.Flags().StringVar(pattern, "pattern", "", "Doublestar file pattern (default inbox_pattern)")
	cmd.Flags().StringVar(entityType, "entity-type", "", "Entity type (default inbox_entity_type)")
}

func inboxDefaults(rt *runtime, dir, pattern, entityType string) (string, string, string) {
	if dir == "" {
		dir = rt.cfg.InboxDir
	}
	if pattern == "" {
		pattern = rt.cfg.InboxPattern
	}
	if entityType == "" {
		entityType = rt.cfg.InboxEntityType
	}
	return dir, pattern, entityType
}
