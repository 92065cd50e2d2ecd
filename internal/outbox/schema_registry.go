package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

var errSubjectNotFound = errors.New("schema subject not found")

// SchemaRegistryClient provides minimal interactions with Confluent Schema Registry.
type SchemaRegistryClient struct {
	client *resty.Client
}

// NewSchemaRegistryClient constructs a client with sane defaults.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/vnd.schemaregistry.v1+json").
		SetTimeout(10 * time.Second)

	return &SchemaRegistryClient{client: c}
}

type schemaIDResponse struct {
	ID int `json:"id"`
}

// EnsureSchema ensures a schema subject exists and returns the schema ID.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.fetchLatest(ctx, subject)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, errSubjectNotFound) {
		return 0, err
	}
	return c.register(ctx, subject, schema)
}

func (c *SchemaRegistryClient) fetchLatest(ctx context.Context, subject string) (int, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/subjects/" + url.PathEscape(subject) + "/versions/latest")
	if err != nil {
		return 0, fmt.Errorf("schema registry request: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, errSubjectNotFound
	}
	if resp.StatusCode() >= 300 {
		return 0, fmt.Errorf("schema registry error: %s", resp.String())
	}

	var payload schemaIDResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return 0, err
	}
	return payload.ID, nil
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject string, schema string) (int, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/vnd.schemaregistry.v1+json").
		SetBody(map[string]any{
			"schemaType": "JSON",
			"schema":     schema,
		}).
		Post("/subjects/" + url.PathEscape(subject) + "/versions")
	if err != nil {
		return 0, fmt.Errorf("schema registry request: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return 0, fmt.Errorf("schema registry register error: %s", resp.String())
	}

	var payload schemaIDResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return 0, err
	}
	return payload.ID, nil
}
