package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venuefinds/internal/domain"
	"venuefinds/internal/integrations/llm"
	"venuefinds/internal/schema"
	"venuefinds/internal/storage/sqlite"
)

type fakeExtractor struct {
	mu    sync.Mutex
	calls []llm.Request
	// byName overrides the default candidate for one entity name.
	byName map[string]domain.Candidate
	called chan string
}

func (f *fakeExtractor) Extract(_ context.Context, req llm.Request) (llm.Extraction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.called != nil {
		f.called <- req.EntityName
	}
	if strings.Contains(req.RawText, "FAIL") {
		return llm.Extraction{}, errors.New("model refused")
	}
	c, ok := f.byName[req.EntityName]
	if !ok {
		c = domain.Candidate{Record: domain.NewRecord()}
		c.Set("summary", strings.TrimSpace(req.RawText), 0.8)
	}
	return llm.Extraction{Candidate: c, Provider: "fake", Model: "fake-1", Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	upserts []domain.UpsertResult
	batches []int
}

func (n *recordingNotifier) NotifyUpsert(_ context.Context, res domain.UpsertResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.upserts = append(n.upserts, res)
	return nil
}

func (n *recordingNotifier) NotifyBatch(_ context.Context, _ string, processed, failed int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, processed, failed)
	return nil
}

func newTestPipeline(t *testing.T, ex *fakeExtractor) (*Pipeline, *sqlite.Store, *recordingNotifier, string) {
	t.Helper()
	tmp := t.TempDir()
	store, err := sqlite.Open(filepath.Join(tmp, "venuefinds-test.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	notifier := &recordingNotifier{}
	dataDir := filepath.Join(tmp, "data")
	p, err := New(Options{
		Extractor:   ex,
		Store:       store,
		Notifier:    notifier,
		DataDir:     dataDir,
		PhoneRegion: "GB",
	})
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	p.debounce = 50 * time.Millisecond
	return p, store, notifier, dataDir
}

func TestProcessRawText(t *testing.T) {
	c := domain.Candidate{Record: domain.NewRecord()}
	c.Set("categories", []any{"Padel Tennis", "Coffee", "darts"}, 0.9)
	c.Set("phone", "0131 225 2468", 0.8)
	c.Set("latitude", 55.9533123456, 0.9)
	c.Set("padel_total_courts", float64(4), 0.85)
	ex := &fakeExtractor{byName: map[string]domain.Candidate{"Game4Padel Edinburgh": c}}
	p, store, notifier, dataDir := newTestPipeline(t, ex)

	res, err := p.ProcessRawText(context.Background(), Input{
		EntityName: " Game4Padel Edinburgh ",
		EntityType: "venue",
		RawText:    "Four indoor padel courts and a coffee bar.",
		SourceType: "manual_file",
	})
	require.NoError(t, err)

	fields := res.Listing.Fields
	assert.Equal(t, []any{"cafe", "padel"}, fields[schema.CanonicalCategories])
	assert.Equal(t, 1.0, res.Listing.FieldConfidence[schema.CanonicalCategories])
	assert.Equal(t, []string{"cafe", "padel"}, res.Listing.CanonicalCategories)
	assert.Equal(t, "+441312252468", fields["phone"])
	assert.Equal(t, 55.95331, fields["latitude"])
	assert.Equal(t, float64(4), res.Entity.Fields["padel_total_courts"])
	assert.Equal(t, []any{"manual_file"}, res.Listing.SourceInfo["sources"])
	assert.Equal(t, int64(15), res.Usage.TotalTokens())

	require.Len(t, ex.calls, 1)
	assert.Equal(t, "Game4Padel Edinburgh", ex.calls[0].EntityName)

	wantDir := filepath.Join(dataDir, "venues", "game4padel_edinburgh")
	assert.Equal(t, filepath.Join(wantDir, "raw", "game4padel_edinburgh__raw__20260301T093000.txt"), res.RawPath)
	assert.Equal(t, filepath.Join(wantDir, "processed", "game4padel_edinburgh__processed__20260301T093000.json"), res.JSONPath)
	raw, err := os.ReadFile(res.RawPath)
	require.NoError(t, err)
	assert.Equal(t, "Four indoor padel courts and a coffee bar.", string(raw))

	processed, err := os.ReadFile(res.JSONPath)
	require.NoError(t, err)
	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(processed, &snapshot))
	assert.Contains(t, snapshot, "listing")
	assert.Contains(t, snapshot, "extraction_report")

	require.Len(t, notifier.upserts, 1)
	assert.True(t, notifier.upserts[0].Report.ListingCreated)

	stored, err := store.FindListing(context.Background(), "Game4Padel Edinburgh", "venue")
	require.NoError(t, err)
	assert.Equal(t, res.Listing.ListingID, stored.ListingID)
}

func TestProcessRawTextRejectsBadInput(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, &fakeExtractor{})
	ctx := context.Background()

	_, err := p.ProcessRawText(ctx, Input{EntityName: "", EntityType: "venue", RawText: "x"})
	assert.ErrorIs(t, err, ErrEmptyEntityName)

	_, err = p.ProcessRawText(ctx, Input{EntityName: "X", EntityType: "venue", RawText: " \n"})
	assert.ErrorIs(t, err, llm.ErrEmptyRawText)

	_, err = p.ProcessRawText(ctx, Input{EntityName: "X", EntityType: "club", RawText: "x"})
	assert.ErrorIs(t, err, schema.ErrUnknownEntityType)
}

func TestProcessRawTextSecondPassMerges(t *testing.T) {
	ex := &fakeExtractor{}
	p, _, _, _ := newTestPipeline(t, ex)
	ctx := context.Background()

	_, err := p.ProcessRawText(ctx, Input{EntityName: "Oriam", EntityType: "venue", RawText: "National sports centre."})
	require.NoError(t, err)

	weak := domain.Candidate{Record: domain.NewRecord()}
	weak.Set("summary", "Maybe a gym.", 0.4)
	ex.byName = map[string]domain.Candidate{"Oriam": weak}

	res, err := p.ProcessRawText(ctx, Input{EntityName: "Oriam", EntityType: "venue", RawText: "gym?"})
	require.NoError(t, err)
	assert.Equal(t, "National sports centre.", res.Listing.Fields["summary"])
	assert.Equal(t, []string{"summary"}, res.Report.Rejected)
	assert.False(t, res.Report.Changed())
}

func TestEntityNameFromPath(t *testing.T) {
	assert.Equal(t, "Game4Padel Edinburgh", EntityNameFromPath("inbox/Game4Padel_Edinburgh.txt"))
	assert.Equal(t, "Oriam", EntityNameFromPath("/tmp/x/Oriam.md"))
	assert.Equal(t, "Craiglockhart Tennis", EntityNameFromPath("Craiglockhart__Tennis"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestProcessDir(t *testing.T) {
	ex := &fakeExtractor{}
	p, _, notifier, _ := newTestPipeline(t, ex)
	inbox := t.TempDir()
	writeFile(t, filepath.Join(inbox, "Alpha_Padel.txt"), "Padel club.")
	writeFile(t, filepath.Join(inbox, "nested", "Bravo_Leisure.txt"), "Leisure centre.")
	writeFile(t, filepath.Join(inbox, "nested", "Broken.txt"), "FAIL")
	writeFile(t, filepath.Join(inbox, "notes.md"), "not a venue")

	res, err := p.ProcessDir(context.Background(), inbox, "**/*.txt", "venue")
	require.NoError(t, err)

	var names []string
	for _, r := range res.Processed {
		names = append(names, r.Listing.EntityName)
	}
	assert.Equal(t, []string{"Alpha Padel", "Bravo Leisure"}, names)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.Join(inbox, "nested", "Broken.txt"), res.Failed[0].Path)
	assert.Equal(t, []int{2, 1}, notifier.batches)
}

func TestProcessDirInvalidPattern(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, &fakeExtractor{})
	_, err := p.ProcessDir(context.Background(), t.TempDir(), "[", "venue")
	assert.Error(t, err)
}

func TestWatchProcessesNewFiles(t *testing.T) {
	ex := &fakeExtractor{called: make(chan string, 4)}
	p, _, _, _ := newTestPipeline(t, ex)
	inbox := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, inbox, "**/*.txt", "venue") }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(inbox, "ignored.md"), "skip me")
	writeFile(t, filepath.Join(inbox, "Delta_Squash.txt"), "Squash courts.")

	select {
	case name := <-ex.called:
		assert.Equal(t, "Delta Squash", name)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not process the new file")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestStartBatchScheduler(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, &fakeExtractor{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := p.StartBatchScheduler(ctx, "every tuesday", time.UTC, t.TempDir(), "", "venue")
	assert.Error(t, err)

	_, err = p.StartBatchScheduler(ctx, "  ", time.UTC, t.TempDir(), "", "venue")
	assert.Error(t, err)

	c, err := p.StartBatchScheduler(ctx, "0 6 * * *", time.UTC, t.TempDir(), "", "venue")
	require.NoError(t, err)
	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 6, entries[0].Next.Hour())
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Extractor: &fakeExtractor{}})
	assert.Error(t, err)
}
