package slackbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"venuefinds/internal/domain"
	"venuefinds/internal/httpx"
	"venuefinds/internal/logging"
)

// Notifier posts upsert summaries to a channel. The zero value and a
// notifier built without a token are disabled and never call Slack.
type Notifier struct {
	api       *slack.Client
	channelID string
	logger    *zap.Logger
}

func NewNotifier(token, channelID string, logger *zap.Logger, opts ...slack.Option) *Notifier {
	n := &Notifier{channelID: channelID, logger: logging.OrNop(logger)}
	if token == "" || channelID == "" {
		return n
	}
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	n.api = slack.New(token, opts...)
	return n
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.api != nil
}

// NotifyUpsert posts a summary when the upsert created or changed something.
func (n *Notifier) NotifyUpsert(ctx context.Context, res domain.UpsertResult) error {
	if !n.Enabled() || !res.Report.Changed() {
		return nil
	}
	return n.post(ctx, FormatUpsertSummary(res))
}

// NotifyBatch posts the outcome of an inbox run.
func (n *Notifier) NotifyBatch(ctx context.Context, dir string, processed, failed int) error {
	if !n.Enabled() || processed+failed == 0 {
		return nil
	}
	return n.post(ctx, fmt.Sprintf(":inbox_tray: Inbox run over `%s`: %d processed, %d failed", dir, processed, failed))
}

func (n *Notifier) post(ctx context.Context, text string) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("slack notify failed", zap.String("channel", n.channelID), zap.Error(err))
		return fmt.Errorf("post slack message: %w", err)
	}
	return nil
}

func FormatUpsertSummary(res domain.UpsertResult) string {
	r := res.Report
	var b strings.Builder
	verb := "updated"
	if r.ListingCreated {
		verb = "created"
	}
	fmt.Fprintf(&b, "*%s* (%s, `%s`) %s", res.Listing.EntityName, res.Listing.EntityType, r.ListingID, verb)

	changes := append(append([]string{}, r.ListingChanges...), r.EntityChanges...)
	if len(changes) > 0 {
		fmt.Fprintf(&b, "\n• changed: %s", strings.Join(changes, ", "))
	}
	if len(r.Rejected) > 0 {
		fmt.Fprintf(&b, "\n• kept existing (low confidence): %s", strings.Join(r.Rejected, ", "))
	}
	if len(r.Warnings) > 0 {
		fields := make([]string, 0, len(r.Warnings))
		for _, w := range r.Warnings {
			fields = append(fields, w.Field)
		}
		fmt.Fprintf(&b, "\n• skipped: %s", strings.Join(fields, ", "))
	}
	return b.String()
}
