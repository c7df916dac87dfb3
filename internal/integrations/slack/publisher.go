// Package slack posts insight digests to a channel.
package slack

import (
	"context"
	"fmt"
	"log"

	"kbengine/internal/httpx"

	"github.com/slack-go/slack"
)

// Slack section blocks reject text above this many characters.
const maxSectionChars = 3000

type Publisher struct {
	api       *slack.Client
	channelID string
}

func NewPublisher(token, channelID string, opts ...slack.Option) *Publisher {
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	return &Publisher{api: slack.New(token, opts...), channelID: channelID}
}

// Publish posts title and body as a header plus one or more section blocks
// and returns the message timestamp.
func (p *Publisher) Publish(ctx context.Context, title, body string) (string, error) {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false)),
	}
	for _, chunk := range chunkText(body, maxSectionChars) {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, chunk, false, false), nil, nil,
		))
	}

	_, ts, err := p.api.PostMessageContext(ctx, p.channelID,
		slack.MsgOptionText(title, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		log.Printf("slack publish error channel=%s: %v", p.channelID, err)
		return "", fmt.Errorf("posting digest to %s: %w", p.channelID, err)
	}
	log.Printf("slack publish channel=%s ts=%s blocks=%d", p.channelID, ts, len(blocks))
	return ts, nil
}

// chunkText splits on line boundaries where possible.
func chunkText(text string, max int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{"_no insights_"}
	}
	var out []string
	for len(runes) > max {
		cut := max
		for i := max - 1; i > max/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
