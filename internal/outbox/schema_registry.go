package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

var errSubjectMissing = errors.New("subject not registered")

// RegistryClient speaks the Confluent Schema Registry REST protocol. The
// dispatcher only needs two calls: look up the latest version of an activity
// event subject, and register the JSON Schema when the subject is new.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRegistryClient constructs a client for the registry at baseURL.
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// EnsureSchema resolves the schema ID for a subject, registering the schema
// only when the subject does not exist yet. Any other lookup failure is
// returned as-is so a registry outage never triggers blind re-registration.
func (c *RegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.lookupLatest(ctx, subject)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, errSubjectMissing) {
		return 0, fmt.Errorf("lookup subject %s: %w", subject, err)
	}

	id, err = c.registerSchema(ctx, subject, schema)
	if err != nil {
		return 0, fmt.Errorf("register subject %s: %w", subject, err)
	}
	return id, nil
}

func (c *RegistryClient) lookupLatest(ctx context.Context, subject string) (int, error) {
	url := fmt.Sprintf("%s/subjects/%s/versions/latest", c.baseURL, subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, errSubjectMissing
	case resp.StatusCode >= 300:
		return 0, registryError(resp)
	}

	return decodeSchemaID(resp.Body)
}

func (c *RegistryClient) registerSchema(ctx context.Context, subject string, schema string) (int, error) {
	body, err := json.Marshal(map[string]any{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, subject)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", registryContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, registryError(resp)
	}

	return decodeSchemaID(resp.Body)
}

func decodeSchemaID(body io.Reader) (int, error) {
	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.ID, nil
}

func registryError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("registry responded %d: %s", resp.StatusCode, data)
}
