package actions

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SlackClient posts notifications to a Slack incoming webhook.
type SlackClient struct {
	httpClient HTTPClient
	webhookURL string
}

func NewSlackClient(client HTTPClient, webhookURL string) *SlackClient {
	return &SlackClient{httpClient: client, webhookURL: webhookURL}
}

// SendMessage posts text (and optional Block Kit blocks) to the webhook.
func (c *SlackClient) SendMessage(ctx context.Context, text string, blocks []map[string]any) error {
	if c.webhookURL == "" {
		return fmt.Errorf("slack: no webhook url configured")
	}

	body := map[string]any{"text": text}
	if len(blocks) > 0 {
		body["blocks"] = blocks
	}
	return postJSON(ctx, c.httpClient, c.webhookURL, nil, body)
}

// CallNotificationBlocks builds the rich call summary notification.
func CallNotificationBlocks(payload map[string]any) []map[string]any {
	caller := str(payload, "caller_phone")
	if caller == "" {
		caller = "Unknown"
	}
	booked := "Not booked"
	if b, ok := payload["appointment_booked"].(bool); ok && b {
		booked = "Booked"
	}
	summary := str(payload, "summary")
	if summary == "" {
		summary = "No summary available"
	}
	summary = truncate(summary, 500)

	return []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": "New Call Completed"},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Caller:*\n%s", caller)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%v seconds", payload["duration"])},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Appointment:*\n%s", booked)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Time:*\n%s", str(payload, "timestamp"))},
			},
		},
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Summary:*\n%s", summary)},
		},
	}
}
