package actions

import (
	"context"
	"fmt"
	"strings"
)

const ghlBaseURL = "https://rest.gohighlevel.com/v1"

// GoHighLevelClient is a minimal GoHighLevel REST client.
type GoHighLevelClient struct {
	httpClient HTTPClient
	apiKey     string
	locationID string
	baseURL    string
}

func NewGoHighLevelClient(client HTTPClient, apiKey, locationID string) *GoHighLevelClient {
	return &GoHighLevelClient{
		httpClient: client,
		apiKey:     apiKey,
		locationID: locationID,
		baseURL:    ghlBaseURL,
	}
}

// WithBaseURL overrides the API base, used by tests.
func (c *GoHighLevelClient) WithBaseURL(u string) *GoHighLevelClient {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

func (c *GoHighLevelClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// CreateContact creates a contact from event payload fields. Tags default to
// marking the contact as an AI phone lead.
func (c *GoHighLevelClient) CreateContact(ctx context.Context, payload map[string]any, tags []string) error {
	if c.apiKey == "" || c.locationID == "" {
		return fmt.Errorf("gohighlevel: missing api key or location id")
	}
	if len(tags) == 0 {
		tags = []string{"AI Phone Lead"}
	}

	body := map[string]any{
		"locationId": c.locationID,
		"firstName":  str(payload, "first_name"),
		"lastName":   str(payload, "last_name"),
		"phone":      str(payload, "phone"),
		"email":      str(payload, "email"),
		"tags":       tags,
		"source":     "CallBotAI",
	}
	return postJSON(ctx, c.httpClient, c.baseURL+"/contacts/", c.headers(), body)
}
