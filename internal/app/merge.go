package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"venuefinds/internal/domain"
	"venuefinds/internal/merge"
	"venuefinds/internal/schema"
)

type mergeOutput struct {
	Record    domain.Record        `json:"record"`
	Decisions []mergeDecisionOut   `json:"decisions"`
	Warnings  []domain.FieldWarning `json:"warnings,omitempty"`
}

type mergeDecisionOut struct {
	Field      string  `json:"field"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
}

func readRecord(path string) (domain.Record, error) {
	rec := domain.NewRecord()
	if path == "" {
		return rec, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse %s: %w", path, err)
	}
	if rec.Values == nil {
		rec.Values = domain.FieldValues{}
	}
	if rec.Confidence == nil {
		rec.Confidence = domain.Confidences{}
	}
	return rec, nil
}

// newMergeCmd runs the field merger on two JSON records without touching the
// store. Each file holds {"values": {...}, "field_confidence": {...}}.
func newMergeCmd() *cobra.Command {
	var (
		existingPath  string
		candidatePath string
		threshold     float64
		entityType    string
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a candidate record into an existing one and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			existing, err := readRecord(existingPath)
			if err != nil {
				return err
			}
			candidate, err := readRecord(candidatePath)
			if err != nil {
				return err
			}

			opts := merge.Options{Threshold: threshold}
			if entityType != "" {
				reg, err := schema.For(entityType)
				if err != nil {
					return err
				}
				opts.Checker = reg
			}
			res, err := merge.Merge(existing, candidate, opts)
			if err != nil {
				return err
			}

			out := mergeOutput{Record: res.Record}
			for _, d := range res.Decisions {
				out.Decisions = append(out.Decisions, mergeDecisionOut{Field: d.Field, Action: string(d.Action), Confidence: d.Confidence})
			}
			for _, w := range res.Warnings {
				out.Warnings = append(out.Warnings, domain.FieldWarning{Field: w.Field, Message: w.Err.Error()})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&existingPath, "existing", "", "Existing record JSON (empty record when omitted)")
	cmd.Flags().StringVar(&candidatePath, "candidate", "", "Candidate record JSON")
	cmd.Flags().Float64Var(&threshold, "threshold", merge.DefaultThreshold, "Confidence at which a differing value always wins")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "Check values against this entity type's field kinds")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}
