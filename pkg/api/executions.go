package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// SubmitExecution starts a test run and blocks until the backend reports the
// terminal result. For step-level progress, open a realtime subscription for
// the returned execution id (the id is also streamed before completion).
// A client-generated idempotency key guards against duplicate submissions on
// ambiguous transport failures.
func (c *Client) SubmitExecution(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/executions"), bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Message: err.Error(), StatusCode: StatusTransport}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", uuid.NewString())

	// Execution submission deliberately bypasses the per-call deadline:
	// the backend holds the request open for the length of the run.
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Message: "execution submission deadline exceeded", StatusCode: http.StatusRequestTimeout}
		}
		return nil, &Error{Message: err.Error(), StatusCode: StatusTransport}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload := readBodyLimited(resp.Body, maxErrorBodyBytes)
		return nil, &Error{
			Message:    errorMessage(payload, resp.Status),
			StatusCode: resp.StatusCode,
			Payload:    payload,
		}
	}

	var out ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Message: fmt.Sprintf("decoding response: %v", err), StatusCode: StatusTransport}
	}
	return &out, nil
}

// ListExecutions returns execution history, newest first.
func (c *Client) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]ExecutionListItem, error) {
	q := url.Values{}
	if filter.ProjectID != "" {
		q.Set("project_id", filter.ProjectID)
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Skip > 0 {
		q.Set("skip", strconv.Itoa(filter.Skip))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/executions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []ExecutionListItem
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveExecutions returns executions currently running on the backend.
// Useful for discovering the id of a freshly submitted run so a realtime
// subscription can be attached while the submission call is still blocked.
func (c *Client) ListActiveExecutions(ctx context.Context) ([]ActiveExecution, error) {
	var out []ActiveExecution
	if err := c.get(ctx, "/executions/active/list", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetExecution fetches the complete result of one execution.
func (c *Client) GetExecution(ctx context.Context, id string) (*ExecutionResult, error) {
	var out ExecutionResult
	if err := c.get(ctx, "/executions/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
