package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInbound(t *testing.T) {
	msg, err := parseInbound([]byte(`{"type":"step_complete","execution_id":"exec-1","data":{"step_number":1,"action":"click"}}`))
	require.NoError(t, err)
	assert.Equal(t, "step_complete", msg.Type)
	assert.Equal(t, "exec-1", msg.ExecutionID)
	assert.NotEmpty(t, msg.Data)

	_, err = parseInbound([]byte("not json"))
	assert.Error(t, err)

	_, err = parseInbound([]byte(`{"execution_id":"exec-1"}`))
	assert.Error(t, err, "missing type must be rejected")
}

func TestParseStep(t *testing.T) {
	step, err := parseStep(json.RawMessage(`{"step_number":3,"action":"fill login form","result":true,"latency":120.5}`))
	require.NoError(t, err)
	assert.Equal(t, 3, step.StepNumber)
	assert.Equal(t, "fill login form", step.Action)
	assert.True(t, step.Result)
	assert.Equal(t, 120.5, step.LatencyMS)

	_, err = parseStep(nil)
	assert.Error(t, err)

	_, err = parseStep(json.RawMessage(`{"step_number":1}`))
	assert.Error(t, err, "missing action must be rejected")

	_, err = parseStep(json.RawMessage(`{"step_number":-2,"action":"x"}`))
	assert.Error(t, err)
}

func TestParseResult(t *testing.T) {
	result, err := parseResult(json.RawMessage(`{"execution_id":"exec-42","status":"PASS","test_name":"login"}`))
	require.NoError(t, err)
	assert.Equal(t, "exec-42", result.ExecutionID)
	assert.True(t, result.Status.Terminal())

	_, err = parseResult(json.RawMessage(`{"status":"PASS"}`))
	assert.Error(t, err, "missing execution_id must be rejected")
}

func TestParseErrorMessage(t *testing.T) {
	assert.Equal(t, "device went offline", parseErrorMessage(json.RawMessage(`{"message":"device went offline"}`)))
	assert.Equal(t, "adapter crashed", parseErrorMessage(json.RawMessage(`{"error":"adapter crashed"}`)))
	assert.Equal(t, "unknown error", parseErrorMessage(json.RawMessage(`{}`)))
	assert.Equal(t, "unknown error", parseErrorMessage(nil))
	assert.Equal(t, "unknown error", parseErrorMessage(json.RawMessage(`"nope"`)))
}
