// Package notify delivers alerts to a Discord webhook and holds the
// hysteresis state that keeps battery alerts from bouncing.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/robotnikz/sunflow/pkg/log"
)

const requestTimeout = 5 * time.Second

// Embed colors used by the alerts.
const (
	ColorError = 15158332
	ColorGood  = 5763719
	ColorWarn  = 15105570
)

var (
	webhookPathPattern = regexp.MustCompile(`^/api/webhooks/(\d+)/([A-Za-z0-9_-]+)$`)
	allowedHosts       = map[string]bool{
		"discord.com":        true,
		"discordapp.com":     true,
		"canary.discord.com": true,
		"ptb.discord.com":    true,
	}
)

// ValidateWebhook checks that a webhook URL is an https Discord webhook and
// returns its canonical path. The request is later issued against a fixed
// Discord origin with this path, so a malicious config value cannot point
// the sender anywhere else.
func ValidateWebhook(webhook string) (string, error) {
	u, err := url.Parse(webhook)
	if err != nil {
		return "", fmt.Errorf("parsing webhook url: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("webhook must use https")
	}
	if !allowedHosts[u.Hostname()] {
		return "", fmt.Errorf("webhook host %q is not a Discord host", u.Hostname())
	}
	m := webhookPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("webhook path is not a Discord webhook path")
	}
	return "/api/webhooks/" + m[1] + "/" + m[2], nil
}

// Embed is one Discord embed.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Sender delivers an embed to a webhook. Satisfied by *Discord; tests swap
// in a recorder.
type Sender interface {
	Send(ctx context.Context, webhook string, embed Embed) error
}

// Discord posts embeds against the fixed discord.com origin.
type Discord struct {
	http *resty.Client
}

func NewDiscord() *Discord {
	return &Discord{http: resty.New().SetTimeout(requestTimeout).SetBaseURL("https://discord.com")}
}

func (d *Discord) Send(ctx context.Context, webhook string, embed Embed) error {
	path, err := ValidateWebhook(webhook)
	if err != nil {
		return err
	}
	embed.Footer.Text = "SunFlow"
	embed.Timestamp = time.Now().UTC().Format(time.RFC3339)

	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"embeds": []Embed{embed}}).
		Post(path)
	if err != nil {
		return fmt.Errorf("sending discord notification: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("discord webhook returned %s", resp.Status())
	}
	log.Ctx(ctx).InfoContext(ctx, "notification sent", "title", embed.Title)
	return nil
}
