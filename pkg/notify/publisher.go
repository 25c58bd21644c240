// Package notify implements the notification publisher boundary:
// publish(event_name, payload), fire-and-forget, failures logged and
// never fatal.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/wtthornton/homeiq-insight/pkg/shared/logging"
)

// Publisher is the narrow outbound notification contract.
type Publisher interface {
	Publish(ctx context.Context, eventName string, payload map[string]interface{})
}

// SlackPublisher publishes to a single Slack channel via slack-go/slack.
// Every call is fire-and-forget: errors are logged, never returned, so a
// notification failure can never abort the pipeline phase that triggered
// it.
type SlackPublisher struct {
	client  *slack.Client
	channel string
	log     *logrus.Logger
}

// NewSlackPublisher builds a publisher against the given bot token and
// target channel.
func NewSlackPublisher(token, channel string, log *logrus.Logger) *SlackPublisher {
	return &SlackPublisher{client: slack.New(token), channel: channel, log: log}
}

func (p *SlackPublisher) Publish(ctx context.Context, eventName string, payload map[string]interface{}) {
	fields := logging.NewFields().Component("notify").Operation(eventName)

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		p.log.WithFields(fields.Error(err).Logrus()).Warn("failed to marshal notification payload")
		return
	}

	text := fmt.Sprintf("*%s*\n```%s```", eventName, string(body))
	_, _, err = p.client.PostMessageContext(ctx, p.channel, slack.MsgOptionText(text, false))
	if err != nil {
		p.log.WithFields(fields.Error(err).Logrus()).Warn("notification publish failed")
	}
}

// NoopPublisher discards every notification; used when no channel is
// configured so the orchestrator never has to nil-check a collaborator
//.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, map[string]interface{}) {}
