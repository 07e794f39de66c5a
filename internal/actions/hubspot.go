package actions

import (
	"context"
	"fmt"
	"strings"
)

const hubspotBaseURL = "https://api.hubapi.com"

// HubSpotClient is a minimal HubSpot CRM v3 client.
type HubSpotClient struct {
	httpClient  HTTPClient
	accessToken string
	baseURL     string
}

func NewHubSpotClient(client HTTPClient, accessToken string) *HubSpotClient {
	return &HubSpotClient{
		httpClient:  client,
		accessToken: accessToken,
		baseURL:     hubspotBaseURL,
	}
}

// WithBaseURL overrides the API base, used by tests.
func (c *HubSpotClient) WithBaseURL(u string) *HubSpotClient {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// CreateContact creates a CRM contact from event payload fields.
func (c *HubSpotClient) CreateContact(ctx context.Context, payload map[string]any) error {
	if c.accessToken == "" {
		return fmt.Errorf("hubspot: missing access token")
	}

	body := map[string]any{
		"properties": map[string]any{
			"firstname":      str(payload, "first_name"),
			"lastname":       str(payload, "last_name"),
			"phone":          str(payload, "phone"),
			"email":          str(payload, "email"),
			"hs_lead_status": "NEW",
			"leadsource":     "AI Phone",
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.accessToken}
	return postJSON(ctx, c.httpClient, c.baseURL+"/crm/v3/objects/contacts", headers, body)
}
