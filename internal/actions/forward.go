package actions

import (
	"context"
	"fmt"
)

// ForwardWebhook POSTs the event payload to a configured URL. Zapier and
// Make hooks speak plain JSON, so one adapter covers all three action types.
func ForwardWebhook(ctx context.Context, client HTTPClient, url string, payload map[string]any) error {
	if url == "" {
		return fmt.Errorf("forward webhook: no url configured")
	}
	return postJSON(ctx, client, url, nil, payload)
}
