// Package notify posts analysis digests to Slack so operators see new
// pending suggestions without polling the API.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/opsengine/internal/suggest"
)

// maxDigestItems caps the titles listed per digest message.
const maxDigestItems = 5

// SlackAPI is the subset of the Slack client the notifier uses.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts a short digest after each analysis that produced
// new items.
type SlackNotifier struct {
	api     SlackAPI
	channel string
	logger  zerolog.Logger
}

// NewSlackNotifier creates a notifier posting to channel.
func NewSlackNotifier(botToken, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:     slack.New(botToken),
		channel: channel,
		logger:  logger.With().Str("component", "slack_notifier").Logger(),
	}
}

// NewSlackNotifierWithAPI injects a client. Tests only.
func NewSlackNotifierWithAPI(api SlackAPI, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{api: api, channel: channel, logger: logger}
}

// NotifyAnalysis posts the digest for one stored batch.
func (n *SlackNotifier) NotifyAnalysis(ctx context.Context, batch suggest.Batch) error {
	pending := 0
	flagged := 0
	var titles []string
	for _, sg := range batch.Suggestions {
		if sg.Status != suggest.StatusPending {
			continue
		}
		pending++
		if len(sg.ValidationErrors) > 0 {
			flagged++
		}
		if len(titles) < maxDigestItems {
			titles = append(titles, sg.Title)
		}
	}

	autoApplied := 0
	pendingOpts := 0
	for _, opt := range batch.Optimizations {
		switch opt.Status {
		case suggest.OptAutoApplied:
			autoApplied++
		case suggest.OptPending:
			pendingOpts++
		}
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "New operations analysis", false, false),
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf(
				"*%d* suggestions pending review (%d flagged), *%d* optimizations awaiting approval, *%d* auto-applied.",
				pending, flagged, pendingOpts, autoApplied), false, false),
			nil, nil,
		),
	}
	if len(titles) > 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "• "+strings.Join(titles, "\n• "), false, false),
			nil, nil,
		))
	}

	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("posting analysis digest: %w", err)
	}

	n.logger.Debug().Str("channel", n.channel).Int("pending", pending).Msg("analysis digest posted")
	return nil
}
