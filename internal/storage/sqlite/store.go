// Package sqlite persists listings, their entity-specific records and the
// per-field merge history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"venuefinds/internal/categories"
	"venuefinds/internal/domain"
	"venuefinds/internal/logging"
	"venuefinds/internal/merge"
	"venuefinds/internal/normalize"
	"venuefinds/internal/schema"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyEntityName = errors.New("entity name is required")
	ErrAmbiguousSlug   = errors.New("slug matches more than one listing")
)

type Store struct {
	db        *sql.DB
	threshold float64
	logger    *zap.Logger
	now       func() time.Time
}

type Options struct {
	// Threshold is the merge confidence threshold; nil means
	// merge.DefaultThreshold. A pointer to 0 adopts every differing value.
	Threshold *float64
	Logger    *zap.Logger
}

func New(db *sql.DB, opts Options) *Store {
	threshold := merge.DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	return &Store{
		db:        db,
		threshold: threshold,
		logger:    logging.OrNop(opts.Logger),
		now:       time.Now,
	}
}

// Open is InitDB followed by New.
func Open(path string, opts Options) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return New(db, opts), nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Threshold() float64 { return s.threshold }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Upsert creates or merges the listing identified by (entity name, entity
// type) inside one write transaction. The first extraction seeds every
// usable field; later ones go through merge.Merge field by field.
func (s *Store) Upsert(ctx context.Context, in domain.UpsertInput) (domain.UpsertResult, error) {
	reg, err := schema.For(in.EntityType)
	if err != nil {
		return domain.UpsertResult{}, err
	}
	name := strings.TrimSpace(in.EntityName)
	if name == "" {
		return domain.UpsertResult{}, ErrEmptyEntityName
	}
	entityType := reg.EntityType()
	listingPart, entityPart, unknown := reg.Split(in.Candidate.Record)
	opts := merge.Options{Threshold: s.threshold, Checker: reg}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	report := domain.UpsertReport{Threshold: s.threshold}

	listing, err := scanListing(tx.QueryRowContext(ctx, listingSelect+` WHERE entity_name = ? AND entity_type = ?`, name, entityType))
	var listingRes merge.Result
	switch {
	case errors.Is(err, ErrNotFound):
		listing = domain.Listing{
			ListingID:  normalize.ListingID(entityType),
			EntityName: name,
			EntityType: entityType,
			Slug:       normalize.Slug(name),
			SourceInfo: domain.SourceInfo{},
			CreatedAt:  now,
		}
		report.ListingCreated = true
		listingRes, err = merge.Seed(listingPart, opts)
	case err != nil:
		return domain.UpsertResult{}, fmt.Errorf("load listing: %w", err)
	default:
		listingRes, err = merge.Merge(domain.Record{Values: listing.Fields, Confidence: listing.FieldConfidence}, listingPart, opts)
	}
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("merge listing %q: %w", name, err)
	}

	entity, err := scanEntity(tx.QueryRowContext(ctx, entitySelect+` WHERE listing_id = ?`, listing.ListingID))
	var entityRes merge.Result
	switch {
	case errors.Is(err, ErrNotFound):
		entity = domain.EntityRecord{ListingID: listing.ListingID, EntityType: entityType}
		report.EntityCreated = true
		entityRes, err = merge.Seed(entityPart, opts)
	case err != nil:
		return domain.UpsertResult{}, fmt.Errorf("load entity: %w", err)
	default:
		entityRes, err = merge.Merge(domain.Record{Values: entity.Fields, Confidence: entity.FieldConfidence}, entityPart, opts)
	}
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("merge %s %q: %w", entityType, name, err)
	}

	listing.Fields = listingRes.Record.Values
	listing.FieldConfidence = listingRes.Record.Confidence
	listing.CanonicalCategories = categories.Strings(listing.Fields[schema.CanonicalCategories])
	if listing.CanonicalCategories == nil {
		listing.CanonicalCategories = []string{}
	}
	listing.SourceInfo = mergeSourceInfo(listing.SourceInfo, in.Candidate.SourceInfo)
	listing.UpdatedAt = now
	entity.Fields = entityRes.Record.Values
	entity.FieldConfidence = entityRes.Record.Confidence
	entity.UpdatedAt = now

	if err := writeListing(ctx, tx, listing, report.ListingCreated, in.Source); err != nil {
		return domain.UpsertResult{}, err
	}
	if err := writeEntity(ctx, tx, entity, report.EntityCreated); err != nil {
		return domain.UpsertResult{}, err
	}

	var entries []domain.MergeHistoryEntry
	for _, res := range []merge.Result{listingRes, entityRes} {
		entries = append(entries, historyEntries(listing.ListingID, in.Source, s.threshold, now, res)...)
		for _, w := range res.Warnings {
			report.Warnings = append(report.Warnings, domain.FieldWarning{Field: w.Field, Message: w.Err.Error()})
		}
		report.Rejected = append(report.Rejected, res.Rejected()...)
	}
	for _, field := range unknown {
		report.Warnings = append(report.Warnings, domain.FieldWarning{Field: field, Message: fmt.Sprintf("%v for %s", schema.ErrUnknownField, entityType)})
	}
	if err := insertHistory(ctx, tx, entries); err != nil {
		return domain.UpsertResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("commit upsert: %w", err)
	}

	report.ListingID = listing.ListingID
	report.ListingChanges = listingRes.Changed()
	report.EntityChanges = entityRes.Changed()
	sort.Strings(report.Rejected)

	s.logger.Info("listing upserted",
		zap.String("listing_id", listing.ListingID),
		zap.String("entity_name", name),
		zap.String("entity_type", entityType),
		zap.Bool("created", report.ListingCreated),
		zap.Int("listing_changes", len(report.ListingChanges)),
		zap.Int("entity_changes", len(report.EntityChanges)),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("warnings", len(report.Warnings)),
	)
	for _, w := range report.Warnings {
		s.logger.Warn("field skipped", zap.String("listing_id", listing.ListingID), zap.String("field", w.Field), zap.String("reason", w.Message))
	}

	return domain.UpsertResult{Listing: listing, Entity: entity, Report: report}, nil
}

// mergeSourceInfo overlays incoming keys onto existing. List values are
// unioned so repeated extractions accumulate their sources.
func mergeSourceInfo(existing, incoming domain.SourceInfo) domain.SourceInfo {
	out := domain.SourceInfo{}
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		if old, ok := out[k]; ok {
			if merged, ok := unionLists(old, v); ok {
				out[k] = merged
				continue
			}
		}
		out[k] = v
	}
	return out
}

func unionLists(a, b any) ([]any, bool) {
	la, okA := a.([]any)
	lb, okB := b.([]any)
	if sb, ok := b.([]string); ok {
		lb, okB = make([]any, len(sb)), true
		for i, s := range sb {
			lb[i] = s
		}
	}
	if !okA || !okB {
		return nil, false
	}
	out := append([]any{}, la...)
	for _, v := range lb {
		dup := false
		for _, e := range out {
			if merge.Equal(e, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, true
}

func historyEntries(listingID, source string, threshold float64, at time.Time, res merge.Result) []domain.MergeHistoryEntry {
	messages := make(map[string]string, len(res.Warnings))
	for _, w := range res.Warnings {
		messages[w.Field] = w.Err.Error()
	}
	out := make([]domain.MergeHistoryEntry, 0, len(res.Decisions))
	for _, d := range res.Decisions {
		out = append(out, domain.MergeHistoryEntry{
			ListingID:       listingID,
			Field:           d.Field,
			Action:          string(d.Action),
			OldValue:        d.OldValue,
			NewValue:        d.NewValue,
			OldConfidence:   d.OldConfidence,
			NewConfidence:   d.NewConfidence,
			FinalConfidence: d.Confidence,
			Threshold:       threshold,
			Source:          source,
			Message:         messages[d.Field],
			MergedAt:        at,
		})
	}
	return out
}
