package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/colin330smith/callbot-ai/internal/domain"
)

// Func executes one automation action with the triggering event payload.
// Params carry the rule's action configuration.
type Func func(ctx context.Context, params map[string]string, payload map[string]any) error

// Registry maps each action type to its handler. Built once at startup;
// the rule engine resolves through it instead of dispatching on strings.
type Registry map[domain.ActionType]Func

// DefaultRegistry wires every supported action type to its adapter.
func DefaultRegistry(client HTTPClient) Registry {
	forward := func(ctx context.Context, params map[string]string, payload map[string]any) error {
		return ForwardWebhook(ctx, client, params["url"], payload)
	}

	return Registry{
		domain.ActionForwardWebhook: forward,
		domain.ActionSendToZapier:   forward,
		domain.ActionSendToMake:     forward,

		domain.ActionCreateGHLContact: func(ctx context.Context, params map[string]string, payload map[string]any) error {
			var tags []string
			if t := params["tags"]; t != "" {
				tags = strings.Split(t, ",")
			}
			ghl := NewGoHighLevelClient(client, params["api_key"], params["location_id"])
			if base := params["base_url"]; base != "" {
				ghl.WithBaseURL(base)
			}
			return ghl.CreateContact(ctx, payload, tags)
		},

		domain.ActionCreateHubSpot: func(ctx context.Context, params map[string]string, payload map[string]any) error {
			hs := NewHubSpotClient(client, params["access_token"])
			if base := params["base_url"]; base != "" {
				hs.WithBaseURL(base)
			}
			return hs.CreateContact(ctx, payload)
		},

		domain.ActionNotifySlack: func(ctx context.Context, params map[string]string, payload map[string]any) error {
			slack := NewSlackClient(client, params["webhook_url"])
			text := fmt.Sprintf("New call from %s", str(payload, "caller_phone"))
			return slack.SendMessage(ctx, text, CallNotificationBlocks(payload))
		},
	}
}
