package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

type BatchResult struct {
	Processed []Result
	Failed    []FileError
}

// EntityNameFromPath derives the entity name from a file name:
// "inbox/Game4Padel_Edinburgh.txt" -> "Game4Padel Edinburgh".
func EntityNameFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.ReplaceAll(stem, "_", " ")
	return strings.Join(strings.Fields(stem), " ")
}

// ProcessDir processes every file under dir matching the doublestar pattern.
// Per-file failures are collected; only a bad pattern or a cancelled
// context stop the run.
func (p *Pipeline) ProcessDir(ctx context.Context, dir, pattern, entityType string) (BatchResult, error) {
	if pattern == "" {
		pattern = "**/*.txt"
	}
	if !doublestar.ValidatePattern(pattern) {
		return BatchResult{}, fmt.Errorf("invalid pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return BatchResult{}, fmt.Errorf("glob %s in %s: %w", pattern, dir, err)
	}
	sort.Strings(matches)
	p.logger.Info("batch started", zap.String("dir", dir), zap.String("pattern", pattern), zap.Int("files", len(matches)))

	var out BatchResult
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))
		res, err := p.ProcessFile(ctx, path, entityType, "inbox")
		if err != nil {
			p.logger.Warn("batch file failed", zap.String("path", path), zap.Error(err))
			out.Failed = append(out.Failed, FileError{Path: path, Err: err})
			continue
		}
		out.Processed = append(out.Processed, res)
	}

	p.logger.Info("batch finished", zap.String("dir", dir), zap.Int("processed", len(out.Processed)), zap.Int("failed", len(out.Failed)))
	if p.notifier != nil {
		if err := p.notifier.NotifyBatch(ctx, dir, len(out.Processed), len(out.Failed)); err != nil {
			p.logger.Warn("batch notify failed", zap.Error(err))
		}
	}
	return out, nil
}

// ProcessFile reads one file and processes it under the name derived from
// its path.
func (p *Pipeline) ProcessFile(ctx context.Context, path, entityType, sourceType string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	return p.ProcessRawText(ctx, Input{
		EntityName: EntityNameFromPath(path),
		EntityType: entityType,
		RawText:    string(data),
		SourceType: sourceType,
	})
}
