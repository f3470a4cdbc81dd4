package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	discordMaxTitle       = 256
	discordMaxDescription = 4096
	colorAlert            = 0xE74C3C
	colorInfo             = 0x2ECC71
)

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender posts an embed to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: defaultClient}
}

// Send posts one embed. Alert and failure titles are coloured red.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	color := colorInfo
	if strings.HasPrefix(title, "ALERT") || strings.Contains(strings.ToLower(title), "fail") {
		color = colorAlert
	}
	payload := discordPayload{
		Username: "exit-engine",
		Embeds: []discordEmbed{{
			Title:       truncate(title, discordMaxTitle),
			Description: truncate(message, discordMaxDescription),
			Color:       color,
		}},
	}
	if err := postJSON(ctx, d.client, d.webhookURL, payload, nil); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
