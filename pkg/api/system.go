package api

import "context"

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OllamaStatus reports availability of the local AI backend.
func (c *Client) OllamaStatus(ctx context.Context) (*OllamaStatus, error) {
	var out OllamaStatus
	if err := c.get(ctx, "/system/ollama/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
