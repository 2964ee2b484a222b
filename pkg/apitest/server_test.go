package apitest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
	"github.com/khushibohraAcc/smartscript-builder/pkg/config"
	"github.com/khushibohraAcc/smartscript-builder/pkg/stream"
)

func newClient(t *testing.T, backend *Server) (*api.Client, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = backend.URL()
	cfg.Stream.BackoffBase = 10 * time.Millisecond
	client, err := api.New(cfg)
	require.NoError(t, err)
	return client, cfg
}

func TestRESTSurface(t *testing.T) {
	backend := New()
	t.Cleanup(backend.Close)
	client, _ := newClient(t, backend)
	ctx := context.Background()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	ollama, err := client.OllamaStatus(ctx)
	require.NoError(t, err)
	assert.True(t, ollama.Healthy)

	project, err := client.CreateProject(ctx, api.ProjectCreate{
		Name:        "storefront",
		LibraryPath: "/opt/libraries/storefront",
	})
	require.NoError(t, err)
	require.NoError(t, client.IndexProject(ctx, project.ID))

	fetched, err := client.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.NotNil(t, fetched.LastIndexedAt)

	newName := "storefront-v2"
	updated, err := client.UpdateProject(ctx, project.ID, api.ProjectUpdate{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "storefront-v2", updated.Name)

	devices, err := client.ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)

	validation, err := client.ValidateDevice(ctx, api.DeviceValidationRequest{
		DeviceType: api.DeviceWeb,
		Platform:   api.PlatformChrome,
	})
	require.NoError(t, err)
	assert.True(t, validation.IsValid)

	generated, err := client.GenerateScript(ctx, api.ScriptGenerationRequest{
		ProjectID:   project.ID,
		Description: "log in and check the cart",
		DeviceType:  api.DeviceWeb,
		Platform:    api.PlatformChrome,
		TestType:    api.TestSmoke,
	})
	require.NoError(t, err)
	assert.True(t, generated.IsValid)
	assert.NotEmpty(t, generated.ScriptCode)

	verdict, err := client.ValidateScript(ctx, api.ScriptValidationRequest{ScriptCode: generated.ScriptCode})
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)

	saved, err := client.SaveTestCase(ctx, api.TestCaseCreate{
		ProjectID:  project.ID,
		Name:       "cart smoke",
		DeviceType: api.DeviceWeb,
		Platform:   api.PlatformChrome,
		TestType:   api.TestSmoke,
		ScriptCode: generated.ScriptCode,
	})
	require.NoError(t, err)

	cases, err := client.ListTestCases(ctx)
	require.NoError(t, err)
	assert.Len(t, cases, 1)

	analysis, err := client.AnalyzeFailure(ctx, "TimeoutError: element #cart not found")
	require.NoError(t, err)
	assert.NotEmpty(t, analysis.Analysis)

	require.NoError(t, client.DeleteProject(ctx, project.ID))
	_, err = client.GetProject(ctx, project.ID)
	assert.True(t, api.IsNotFound(err))

	_, err = client.GetTestCase(ctx, "missing")
	assert.True(t, api.IsNotFound(err))
	assert.Equal(t, saved.ProjectID, project.ID)
}

func TestExecutionEndToEnd(t *testing.T) {
	backend := New()
	t.Cleanup(backend.Close)
	client, cfg := newClient(t, backend)
	ctx := context.Background()

	project := backend.SeedProject(api.Project{Name: "storefront"})
	tc := backend.SeedTestCase(api.TestCase{ProjectID: project.ID, Name: "checkout flow"})
	backend.ScriptRun(tc.ID, Run{
		WaitForWatcher: true,
		Steps: []api.StepUpdate{
			{StepNumber: 1, Action: "open checkout", Result: true, LatencyMS: 210},
			{StepNumber: 2, Action: "pay", Result: false, LatencyMS: 1800, Error: "card declined"},
		},
		Result: api.ExecutionResult{
			Status:  api.ExecutionFail,
			Metrics: api.ExecutionMetrics{TotalDuration: 2.0, StepSuccessRate: 0.5},
		},
	})

	var submitted *api.ExecutionResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := client.SubmitExecution(gctx, api.ExecutionRequest{TestCaseID: tc.ID})
		submitted = result
		return err
	})

	// The submission call blocks for the length of the run, so the id is
	// discovered from the active list and the realtime channel attached
	// while the run is in flight.
	var executionID string
	deadline := time.Now().Add(3 * time.Second)
	for executionID == "" && time.Now().Before(deadline) {
		active, err := client.ListActiveExecutions(ctx)
		require.NoError(t, err)
		if len(active) > 0 {
			executionID = active[0].ExecutionID
		} else {
			time.Sleep(5 * time.Millisecond)
		}
	}
	require.NotEmpty(t, executionID, "execution never appeared in the active list")

	sub := stream.New(cfg)
	events, err := sub.Connect(ctx, executionID)
	require.NoError(t, err)

	var steps []api.StepUpdate
	var completed *api.ExecutionResult
	for evt := range events {
		switch e := evt.(type) {
		case stream.StepEvent:
			steps = append(steps, e.Step)
		case stream.CompletedEvent:
			result := e.Result
			completed = &result
		}
	}

	require.NoError(t, g.Wait())
	require.NotNil(t, submitted)
	require.NotNil(t, completed)
	assert.Equal(t, submitted.ExecutionID, completed.ExecutionID)
	assert.Equal(t, api.ExecutionFail, completed.Status)
	assert.Equal(t, "checkout flow", completed.TestName)

	require.Len(t, steps, 2)
	assert.Equal(t, "open checkout", steps[0].Action)
	assert.False(t, steps[1].Result)
	assert.Equal(t, "card declined", steps[1].Error)

	stored, err := client.GetExecution(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, api.ExecutionFail, stored.Status)

	history, err := client.ListExecutions(ctx, api.ExecutionFilter{Status: api.ExecutionFail})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, executionID, history[0].ExecutionID)

	history, err = client.ListExecutions(ctx, api.ExecutionFilter{Status: api.ExecutionPass})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLateSubscriberGetsTerminalFrame(t *testing.T) {
	backend := New()
	t.Cleanup(backend.Close)
	client, cfg := newClient(t, backend)
	ctx := context.Background()

	project := backend.SeedProject(api.Project{Name: "storefront"})
	tc := backend.SeedTestCase(api.TestCase{ProjectID: project.ID, Name: "smoke"})

	result, err := client.SubmitExecution(ctx, api.ExecutionRequest{TestCaseID: tc.ID})
	require.NoError(t, err)

	sub := stream.New(cfg)
	events, err := sub.Connect(ctx, result.ExecutionID)
	require.NoError(t, err)

	var completed *api.ExecutionResult
	for evt := range events {
		if e, ok := evt.(stream.CompletedEvent); ok {
			r := e.Result
			completed = &r
		}
	}
	require.NotNil(t, completed)
	assert.Equal(t, result.ExecutionID, completed.ExecutionID)
}

func TestSubmitUnknownTestCase(t *testing.T) {
	backend := New()
	t.Cleanup(backend.Close)
	client, _ := newClient(t, backend)

	_, err := client.SubmitExecution(context.Background(), api.ExecutionRequest{TestCaseID: "missing"})
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Test case not found", apiErr.Message)
}
