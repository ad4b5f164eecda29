package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"venuefinds/internal/domain"
)

const listingSelect = `SELECT listing_id, entity_name, entity_type, slug, fields, field_confidence,
	source_info, canonical_categories, created_at, updated_at FROM listings`

const entitySelect = `SELECT listing_id, entity_type, fields, field_confidence, updated_at FROM entities`

const historySelect = `SELECT id, listing_id, field, action, old_value, new_value, old_confidence,
	new_confidence, final_confidence, threshold, source, message, merged_at FROM merge_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (domain.Listing, error) {
	var l domain.Listing
	var fields, conf, sourceInfo, cats string
	err := row.Scan(&l.ListingID, &l.EntityName, &l.EntityType, &l.Slug, &fields, &conf,
		&sourceInfo, &cats, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if err := decodeJSON(fields, &l.Fields); err != nil {
		return l, fmt.Errorf("listing %s fields: %w", l.ListingID, err)
	}
	if err := decodeJSON(conf, &l.FieldConfidence); err != nil {
		return l, fmt.Errorf("listing %s field_confidence: %w", l.ListingID, err)
	}
	if err := decodeJSON(sourceInfo, &l.SourceInfo); err != nil {
		return l, fmt.Errorf("listing %s source_info: %w", l.ListingID, err)
	}
	if err := decodeJSON(cats, &l.CanonicalCategories); err != nil {
		return l, fmt.Errorf("listing %s canonical_categories: %w", l.ListingID, err)
	}
	if l.Fields == nil {
		l.Fields = domain.FieldValues{}
	}
	if l.FieldConfidence == nil {
		l.FieldConfidence = domain.Confidences{}
	}
	if l.SourceInfo == nil {
		l.SourceInfo = domain.SourceInfo{}
	}
	if l.CanonicalCategories == nil {
		l.CanonicalCategories = []string{}
	}
	return l, nil
}

func scanEntity(row rowScanner) (domain.EntityRecord, error) {
	var e domain.EntityRecord
	var fields, conf string
	err := row.Scan(&e.ListingID, &e.EntityType, &fields, &conf, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if err := decodeJSON(fields, &e.Fields); err != nil {
		return e, fmt.Errorf("entity %s fields: %w", e.ListingID, err)
	}
	if err := decodeJSON(conf, &e.FieldConfidence); err != nil {
		return e, fmt.Errorf("entity %s field_confidence: %w", e.ListingID, err)
	}
	if e.Fields == nil {
		e.Fields = domain.FieldValues{}
	}
	if e.FieldConfidence == nil {
		e.FieldConfidence = domain.Confidences{}
	}
	return e, nil
}

func decodeJSON(raw string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeListing(ctx context.Context, q queryer, l domain.Listing, create bool, source string) error {
	fields, err := encodeJSON(l.Fields)
	if err != nil {
		return fmt.Errorf("encode listing fields: %w", err)
	}
	conf, err := encodeJSON(l.FieldConfidence)
	if err != nil {
		return fmt.Errorf("encode listing confidence: %w", err)
	}
	sourceInfo, err := encodeJSON(l.SourceInfo)
	if err != nil {
		return fmt.Errorf("encode source_info: %w", err)
	}
	cats, err := encodeJSON(l.CanonicalCategories)
	if err != nil {
		return fmt.Errorf("encode canonical_categories: %w", err)
	}

	if create {
		_, err = q.ExecContext(ctx, `INSERT INTO listings
			(listing_id, entity_name, entity_type, slug, fields, field_confidence, source_info,
			 canonical_categories, created_at, updated_at, last_source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ListingID, l.EntityName, l.EntityType, l.Slug, fields, conf, sourceInfo,
			cats, l.CreatedAt, l.UpdatedAt, source)
	} else {
		_, err = q.ExecContext(ctx, `UPDATE listings SET fields = ?, field_confidence = ?, source_info = ?,
			canonical_categories = ?, updated_at = ?, last_source = ? WHERE listing_id = ?`,
			fields, conf, sourceInfo, cats, l.UpdatedAt, source, l.ListingID)
	}
	if err != nil {
		return fmt.Errorf("write listing %s: %w", l.ListingID, err)
	}
	return nil
}

func writeEntity(ctx context.Context, q queryer, e domain.EntityRecord, create bool) error {
	fields, err := encodeJSON(e.Fields)
	if err != nil {
		return fmt.Errorf("encode entity fields: %w", err)
	}
	conf, err := encodeJSON(e.FieldConfidence)
	if err != nil {
		return fmt.Errorf("encode entity confidence: %w", err)
	}
	if create {
		_, err = q.ExecContext(ctx, `INSERT INTO entities (listing_id, entity_type, fields, field_confidence, updated_at)
			VALUES (?, ?, ?, ?, ?)`, e.ListingID, e.EntityType, fields, conf, e.UpdatedAt)
	} else {
		_, err = q.ExecContext(ctx, `UPDATE entities SET fields = ?, field_confidence = ?, updated_at = ?
			WHERE listing_id = ?`, fields, conf, e.UpdatedAt, e.ListingID)
	}
	if err != nil {
		return fmt.Errorf("write entity %s: %w", e.ListingID, err)
	}
	return nil
}

func insertHistory(ctx context.Context, q queryer, entries []domain.MergeHistoryEntry) error {
	for _, h := range entries {
		oldValue, err := encodeJSON(h.OldValue)
		if err != nil {
			return fmt.Errorf("encode history old value for %s: %w", h.Field, err)
		}
		newValue, err := encodeJSON(h.NewValue)
		if err != nil {
			return fmt.Errorf("encode history new value for %s: %w", h.Field, err)
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO merge_history
			(listing_id, field, action, old_value, new_value, old_confidence, new_confidence,
			 final_confidence, threshold, source, message, merged_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ListingID, h.Field, h.Action, oldValue, newValue, h.OldConfidence, h.NewConfidence,
			h.FinalConfidence, h.Threshold, h.Source, h.Message, h.MergedAt); err != nil {
			return fmt.Errorf("insert merge history for %s: %w", h.Field, err)
		}
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	return scanListing(s.db.QueryRowContext(ctx, listingSelect+` WHERE listing_id = ?`, listingID))
}

// GetListingBySlug fails with ErrAmbiguousSlug when several names share the
// slug; callers then have to use the listing ID.
func (s *Store) GetListingBySlug(ctx context.Context, slug string) (domain.Listing, error) {
	rows, err := s.db.QueryContext(ctx, listingSelect+` WHERE slug = ? ORDER BY created_at, listing_id LIMIT 2`, slug)
	if err != nil {
		return domain.Listing{}, err
	}
	defer rows.Close()

	var matches []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return domain.Listing{}, err
		}
		matches = append(matches, l)
	}
	if err := rows.Err(); err != nil {
		return domain.Listing{}, err
	}
	switch len(matches) {
	case 0:
		return domain.Listing{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return domain.Listing{}, fmt.Errorf("%w: %q matches %s and %s", ErrAmbiguousSlug, slug, matches[0].ListingID, matches[1].ListingID)
	}
}

func (s *Store) FindListing(ctx context.Context, entityName, entityType string) (domain.Listing, error) {
	return scanListing(s.db.QueryRowContext(ctx, listingSelect+` WHERE entity_name = ? AND entity_type = ?`,
		strings.TrimSpace(entityName), strings.ToLower(strings.TrimSpace(entityType))))
}

func (s *Store) GetEntity(ctx context.Context, listingID string) (domain.EntityRecord, error) {
	return scanEntity(s.db.QueryRowContext(ctx, entitySelect+` WHERE listing_id = ?`, listingID))
}

type ListFilter struct {
	EntityType string
	// Category matches one of the listing's canonical categories.
	Category string
	Limit    int
}

func (s *Store) ListListings(ctx context.Context, f ListFilter) ([]domain.Listing, error) {
	query := listingSelect
	var where []string
	var args []any
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, strings.ToLower(f.EntityType))
	}
	if f.Category != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(listings.canonical_categories) WHERE value = ?)")
		args = append(args, f.Category)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY entity_name"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// History returns merge decisions for a listing, newest first. A limit of
// zero returns everything.
func (s *Store) History(ctx context.Context, listingID string, limit int) ([]domain.MergeHistoryEntry, error) {
	query := historySelect + ` WHERE listing_id = ? ORDER BY merged_at DESC, id DESC`
	args := []any{listingID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MergeHistoryEntry
	for rows.Next() {
		var h domain.MergeHistoryEntry
		var oldValue, newValue sql.NullString
		var source, message sql.NullString
		if err := rows.Scan(&h.ID, &h.ListingID, &h.Field, &h.Action, &oldValue, &newValue,
			&h.OldConfidence, &h.NewConfidence, &h.FinalConfidence, &h.Threshold,
			&source, &message, &h.MergedAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(oldValue.String, &h.OldValue); err != nil {
			return nil, fmt.Errorf("history %d old value: %w", h.ID, err)
		}
		if err := decodeJSON(newValue.String, &h.NewValue); err != nil {
			return nil, fmt.Errorf("history %d new value: %w", h.ID, err)
		}
		h.Source = source.String
		h.Message = message.String
		out = append(out, h)
	}
	return out, rows.Err()
}

type Stats struct {
	Listings       int            `json:"listings"`
	ByEntityType   map[string]int `json:"by_entity_type"`
	HistoryEntries int            `json:"history_entries"`
	Rejections     int            `json:"rejections"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByEntityType: map[string]int{}}
	rows, err := s.db.QueryContext(ctx, `SELECT entity_type, COUNT(*) FROM listings GROUP BY entity_type`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var et string
		var n int
		if err := rows.Scan(&et, &n); err != nil {
			return st, err
		}
		st.ByEntityType[et] = n
		st.Listings += n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN action = 'rejected' THEN 1 ELSE 0 END), 0)
		FROM merge_history`).Scan(&st.HistoryEntries, &st.Rejections)
	return st, err
}
