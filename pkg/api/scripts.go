package api

import (
	"context"
	"net/url"
)

// GenerateScript asks the AI engine for a test script built from a natural
// language description and the project's indexed library.
func (c *Client) GenerateScript(ctx context.Context, req ScriptGenerationRequest) (*ScriptGenerationResponse, error) {
	var out ScriptGenerationResponse
	if err := c.post(ctx, "/scripts/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateScript runs the code guardrail over a script without saving it.
func (c *Client) ValidateScript(ctx context.Context, req ScriptValidationRequest) (*ScriptValidationResponse, error) {
	var out ScriptValidationResponse
	if err := c.post(ctx, "/scripts/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveTestCase persists a generated script as a test case.
func (c *Client) SaveTestCase(ctx context.Context, req TestCaseCreate) (*TestCase, error) {
	var out TestCase
	if err := c.post(ctx, "/scripts/save", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTestCases returns stored test cases.
func (c *Client) ListTestCases(ctx context.Context) ([]TestCase, error) {
	var out []TestCase
	if err := c.get(ctx, "/scripts/test-cases", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTestCase fetches a single test case by id.
func (c *Client) GetTestCase(ctx context.Context, id string) (*TestCase, error) {
	var out TestCase
	if err := c.get(ctx, "/scripts/test-cases/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeFailure asks the AI failure analyst to translate a technical error
// into a user-facing explanation.
func (c *Client) AnalyzeFailure(ctx context.Context, traceback string) (*FailureAnalysis, error) {
	var out FailureAnalysis
	body := map[string]string{"error_traceback": traceback}
	if err := c.post(ctx, "/scripts/analyze-failure", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
