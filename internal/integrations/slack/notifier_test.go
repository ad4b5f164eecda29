package slackbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"venuefinds/internal/domain"
)

func newMockSlackServer(t *testing.T) (*httptest.Server, *int, *string) {
	t.Helper()

	postCalls := 0
	lastText := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		switch path {
		case "chat.postMessage":
			_ = r.ParseForm()
			postCalls++
			lastText = r.Form.Get("text")
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C123", "ts": "1.23"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)
	return server, &postCalls, &lastText
}

func sampleResult() domain.UpsertResult {
	return domain.UpsertResult{
		Listing: domain.Listing{EntityName: "Game4Padel", EntityType: "venue"},
		Report: domain.UpsertReport{
			ListingID:      "VEN-0190abcd",
			ListingChanges: []string{"summary"},
			EntityChanges:  []string{"padel_total_courts"},
			Rejected:       []string{"phone"},
			Warnings:       []domain.FieldWarning{{Field: "has_cafe", Message: "type mismatch"}},
		},
	}
}

func TestNotifyUpsertPostsSummary(t *testing.T) {
	server, calls, lastText := newMockSlackServer(t)
	n := NewNotifier("xoxb-test", "C123", nil, slack.OptionAPIURL(server.URL+"/api/"))

	if err := n.NotifyUpsert(context.Background(), sampleResult()); err != nil {
		t.Fatalf("NotifyUpsert failed: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("expected 1 postMessage call, got %d", *calls)
	}
	for _, want := range []string{"*Game4Padel*", "VEN-0190abcd", "updated", "summary, padel_total_courts", "phone", "has_cafe"} {
		if !strings.Contains(*lastText, want) {
			t.Fatalf("summary %q missing %q", *lastText, want)
		}
	}
}

func TestNotifyUpsertSkipsUnchanged(t *testing.T) {
	server, calls, _ := newMockSlackServer(t)
	n := NewNotifier("xoxb-test", "C123", nil, slack.OptionAPIURL(server.URL+"/api/"))

	res := sampleResult()
	res.Report.ListingChanges = nil
	res.Report.EntityChanges = nil
	if err := n.NotifyUpsert(context.Background(), res); err != nil {
		t.Fatalf("NotifyUpsert failed: %v", err)
	}
	if *calls != 0 {
		t.Fatalf("expected no post for an unchanged listing, got %d", *calls)
	}
}

func TestDisabledNotifierIsNoop(t *testing.T) {
	for _, n := range []*Notifier{nil, {}, NewNotifier("", "C123", nil)} {
		if n.Enabled() {
			t.Fatal("expected notifier to be disabled")
		}
		if err := n.NotifyUpsert(context.Background(), sampleResult()); err != nil {
			t.Fatalf("disabled NotifyUpsert returned %v", err)
		}
		if err := n.NotifyBatch(context.Background(), "inbox", 1, 0); err != nil {
			t.Fatalf("disabled NotifyBatch returned %v", err)
		}
	}
}

func TestNotifyBatch(t *testing.T) {
	server, calls, lastText := newMockSlackServer(t)
	n := NewNotifier("xoxb-test", "C123", nil, slack.OptionAPIURL(server.URL+"/api/"))

	if err := n.NotifyBatch(context.Background(), "./inbox", 3, 1); err != nil {
		t.Fatalf("NotifyBatch failed: %v", err)
	}
	if *calls != 1 || !strings.Contains(*lastText, "3 processed, 1 failed") {
		t.Fatalf("unexpected batch post: calls=%d text=%q", *calls, *lastText)
	}
}

func TestFormatUpsertSummaryCreated(t *testing.T) {
	res := domain.UpsertResult{
		Listing: domain.Listing{EntityName: "Oriam", EntityType: "venue"},
		Report:  domain.UpsertReport{ListingID: "VEN-1", ListingCreated: true},
	}
	got := FormatUpsertSummary(res)
	if got != "*Oriam* (venue, `VEN-1`) created" {
		t.Fatalf("unexpected summary %q", got)
	}
}
