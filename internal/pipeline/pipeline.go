// Package pipeline runs raw text through extraction, normalisation and the
// confidence-weighted store upsert, and keeps debug snapshots on disk.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"venuefinds/internal/categories"
	"venuefinds/internal/domain"
	"venuefinds/internal/integrations/llm"
	"venuefinds/internal/logging"
	"venuefinds/internal/normalize"
	"venuefinds/internal/schema"
)

const snapshotTimeFormat = "20060102T150405"

var ErrEmptyEntityName = errors.New("entity name is required")

type Store interface {
	Upsert(ctx context.Context, in domain.UpsertInput) (domain.UpsertResult, error)
}

type Notifier interface {
	NotifyUpsert(ctx context.Context, res domain.UpsertResult) error
	NotifyBatch(ctx context.Context, dir string, processed, failed int) error
}

type Options struct {
	Extractor llm.Extractor
	Store     Store
	// Taxonomy defaults to categories.Default().
	Taxonomy *categories.Taxonomy
	// Notifier is optional.
	Notifier Notifier
	// DataDir receives raw and processed snapshots; empty disables them.
	DataDir     string
	PhoneRegion string
	Logger      *zap.Logger
}

type Pipeline struct {
	extractor   llm.Extractor
	store       Store
	taxonomy    *categories.Taxonomy
	notifier    Notifier
	dataDir     string
	phoneRegion string
	logger      *zap.Logger
	now         func() time.Time
	// debounce is how long Watch waits for writes to a file to settle.
	debounce time.Duration
}

func New(opts Options) (*Pipeline, error) {
	if opts.Extractor == nil {
		return nil, errors.New("pipeline: extractor is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	p := &Pipeline{
		extractor:   opts.Extractor,
		store:       opts.Store,
		taxonomy:    opts.Taxonomy,
		notifier:    opts.Notifier,
		dataDir:     opts.DataDir,
		phoneRegion: opts.PhoneRegion,
		logger:      logging.OrNop(opts.Logger),
		now:         time.Now,
		debounce:    500 * time.Millisecond,
	}
	if p.taxonomy == nil {
		p.taxonomy = categories.Default()
	}
	return p, nil
}

type Input struct {
	EntityName string
	EntityType string
	RawText    string
	// SourceType labels where the text came from ("manual_file", "inbox", ...).
	SourceType string
}

type Result struct {
	domain.UpsertResult
	Usage llm.Usage `json:"usage"`
	// JSONPath and RawPath are the snapshot files, empty when snapshots are off.
	JSONPath string `json:"json_path,omitempty"`
	RawPath  string `json:"raw_path,omitempty"`
}

// ProcessRawText extracts one entity from raw text and merges it into the store.
func (p *Pipeline) ProcessRawText(ctx context.Context, in Input) (Result, error) {
	name := strings.TrimSpace(in.EntityName)
	if name == "" {
		return Result{}, ErrEmptyEntityName
	}
	if strings.TrimSpace(in.RawText) == "" {
		return Result{}, llm.ErrEmptyRawText
	}
	reg, err := schema.For(in.EntityType)
	if err != nil {
		return Result{}, err
	}
	source := in.SourceType
	if source == "" {
		source = "manual"
	}

	extraction, err := p.extractor.Extract(ctx, llm.Request{EntityName: name, EntityType: reg.EntityType(), RawText: in.RawText})
	if err != nil {
		return Result{}, fmt.Errorf("extract %q: %w", name, err)
	}

	candidate := extraction.Candidate
	p.prepare(candidate.Record)
	candidate.SourceInfo = domain.SourceInfo{
		"sources": []any{source},
		"note":    fmt.Sprintf("extracted by %s/%s", extraction.Provider, extraction.Model),
	}

	upsert, err := p.store.Upsert(ctx, domain.UpsertInput{
		EntityName: name,
		EntityType: reg.EntityType(),
		Candidate:  candidate,
		Source:     source,
	})
	if err != nil {
		return Result{}, fmt.Errorf("upsert %q: %w", name, err)
	}
	res := Result{UpsertResult: upsert, Usage: extraction.Usage}

	if p.dataDir != "" {
		res.RawPath, res.JSONPath, err = p.writeSnapshots(name, reg.EntityType(), in.RawText, res)
		if err != nil {
			// The upsert is committed; a missing snapshot is not worth failing for.
			p.logger.Warn("snapshot write failed", zap.String("entity_name", name), zap.Error(err))
		}
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyUpsert(ctx, upsert); err != nil {
			p.logger.Warn("notify failed", zap.String("listing_id", upsert.Report.ListingID), zap.Error(err))
		}
	}

	p.logger.Info("processed",
		zap.String("entity_name", name),
		zap.String("listing_id", upsert.Report.ListingID),
		zap.String("source", source),
		zap.Int64("tokens", extraction.Usage.TotalTokens()),
	)
	return res, nil
}

// prepare derives canonical categories and normalises phone and
// coordinates in place. Derived categories are certain (confidence 1).
func (p *Pipeline) prepare(rec domain.Record) {
	if raw, ok := rec.Values["categories"]; ok && raw != nil {
		mapped := p.taxonomy.Map(categories.Strings(raw))
		canonical := make([]any, len(mapped))
		for i, c := range mapped {
			canonical[i] = c
		}
		rec.Set(schema.CanonicalCategories, canonical, 1.0)
	}
	if phone, ok := rec.Values["phone"].(string); ok {
		rec.Values["phone"] = normalize.Phone(phone, p.phoneRegion)
	}
	for _, field := range []string{"latitude", "longitude"} {
		if v, ok := rec.Values[field].(float64); ok {
			rec.Values[field] = normalize.Coordinate(v)
		}
	}
}

func (p *Pipeline) writeSnapshots(name, entityType, rawText string, res Result) (string, string, error) {
	slug := normalize.DirSlug(name)
	base := filepath.Join(p.dataDir, entityType+"s", slug)
	ts := p.now().UTC().Format(snapshotTimeFormat)

	rawDir := filepath.Join(base, "raw")
	processedDir := filepath.Join(base, "processed")
	for _, dir := range []string{rawDir, processedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("create %s: %w", dir, err)
		}
	}

	rawPath := filepath.Join(rawDir, fmt.Sprintf("%s__raw__%s.txt", slug, ts))
	if err := os.WriteFile(rawPath, []byte(rawText), 0o644); err != nil {
		return "", "", fmt.Errorf("write raw snapshot: %w", err)
	}

	data, err := json.MarshalIndent(res.UpsertResult, "", "  ")
	if err != nil {
		return rawPath, "", fmt.Errorf("marshal processed snapshot: %w", err)
	}
	jsonPath := filepath.Join(processedDir, fmt.Sprintf("%s__processed__%s.json", slug, ts))
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return rawPath, "", fmt.Errorf("write processed snapshot: %w", err)
	}
	return rawPath, jsonPath, nil
}
