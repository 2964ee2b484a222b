package api

import "time"

// ExecutionStatus is the lifecycle status of a test execution.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "PENDING"
	ExecutionRunning ExecutionStatus = "RUNNING"
	ExecutionPass    ExecutionStatus = "PASS"
	ExecutionFail    ExecutionStatus = "FAIL"
	ExecutionWarning ExecutionStatus = "WARNING"
)

// Terminal reports whether the status ends an execution.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionPass, ExecutionFail, ExecutionWarning:
		return true
	}
	return false
}

// DeviceType distinguishes web from mobile targets.
type DeviceType string

const (
	DeviceWeb    DeviceType = "web"
	DeviceMobile DeviceType = "mobile"
)

// Platform identifies the browser or mobile OS a test runs on.
type Platform string

const (
	PlatformChrome  Platform = "chrome"
	PlatformFirefox Platform = "firefox"
	PlatformSafari  Platform = "safari"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// TestType categorizes a test case.
type TestType string

const (
	TestFunctional  TestType = "functional"
	TestRegression  TestType = "regression"
	TestSmoke       TestType = "smoke"
	TestIntegration TestType = "integration"
)

// DeviceStatus is the availability of a connected device.
type DeviceStatus string

const (
	DeviceReady   DeviceStatus = "ready"
	DeviceBusy    DeviceStatus = "busy"
	DeviceOffline DeviceStatus = "offline"
)

// Project is an automation project with an indexed script library.
type Project struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	LibraryPath   string     `json:"library_path"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	IsActive      bool       `json:"is_active"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
}

// ProjectCreate is the payload for creating a project.
type ProjectCreate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LibraryPath string `json:"library_path"`
}

// ProjectUpdate is the partial payload for updating a project.
type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	LibraryPath *string `json:"library_path,omitempty"`
}

// Device is a connected automation target.
type Device struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	DeviceType DeviceType   `json:"device_type"`
	Platform   Platform     `json:"platform"`
	Status     DeviceStatus `json:"status"`
	LastSeen   *time.Time   `json:"last_seen,omitempty"`
}

// DeviceValidationRequest asks the backend to verify a device connection.
type DeviceValidationRequest struct {
	DeviceType DeviceType `json:"device_type"`
	Platform   Platform   `json:"platform"`
	DeviceID   string     `json:"device_id,omitempty"`
}

// DeviceValidationResponse reports the outcome of a device check.
type DeviceValidationResponse struct {
	IsValid    bool           `json:"is_valid"`
	DeviceType DeviceType     `json:"device_type"`
	Platform   Platform       `json:"platform"`
	DeviceID   string         `json:"device_id,omitempty"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// ScriptGenerationRequest asks the AI engine for a test script.
type ScriptGenerationRequest struct {
	ProjectID   string     `json:"project_id"`
	Description string     `json:"description"`
	DeviceType  DeviceType `json:"device_type"`
	Platform    Platform   `json:"platform"`
	TestType    TestType   `json:"test_type"`
}

// ScriptGenerationResponse carries a generated script and its validation.
type ScriptGenerationResponse struct {
	ScriptCode       string   `json:"script_code"`
	IsValid          bool     `json:"is_valid"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
	RAGContextUsed   []string `json:"rag_context_used"`
	GenerationTimeMS float64  `json:"generation_time_ms"`
}

// ScriptValidationRequest asks the guardrail to validate a script.
type ScriptValidationRequest struct {
	ScriptCode string `json:"script_code"`
}

// ScriptValidationResponse reports guardrail findings.
type ScriptValidationResponse struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// TestCaseCreate saves a generated script as a test case.
type TestCaseCreate struct {
	ProjectID   string     `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	DeviceType  DeviceType `json:"device_type"`
	Platform    Platform   `json:"platform"`
	TestType    TestType   `json:"test_type"`
	ScriptCode  string     `json:"script_code"`
}

// TestCase is a stored test case.
type TestCase struct {
	ID               string     `json:"id"`
	ProjectID        string     `json:"project_id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	DeviceType       DeviceType `json:"device_type"`
	Platform         Platform   `json:"platform"`
	TestType         TestType   `json:"test_type"`
	ScriptCode       string     `json:"script_code,omitempty"`
	ScriptValidated  bool       `json:"script_validated"`
	ValidationErrors []string   `json:"validation_errors,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ExecutionRequest submits a test case for execution.
type ExecutionRequest struct {
	TestCaseID string `json:"test_case_id"`
	// DeviceID selects a specific mobile device; empty for web runs.
	DeviceID string `json:"device_id,omitempty"`
}

// StepUpdate is one realtime step progress record. Latency is milliseconds.
type StepUpdate struct {
	StepNumber int     `json:"step_number"`
	Action     string  `json:"action"`
	Result     bool    `json:"result"`
	LatencyMS  float64 `json:"latency"`
	Error      string  `json:"error,omitempty"`
}

// ExecutionStep is one recorded step inside a finished execution.
type ExecutionStep struct {
	Action    string  `json:"action"`
	Result    bool    `json:"result"`
	LatencyMS float64 `json:"latency"`
	Error     string  `json:"error,omitempty"`
}

// ExecutionMetrics summarizes a finished execution.
type ExecutionMetrics struct {
	TotalDuration   float64 `json:"total_duration"`
	AvgResponseTime float64 `json:"avg_response_time"`
	StepSuccessRate float64 `json:"step_success_rate"`
}

// ExecutionArtifacts points at recordings captured during a run.
type ExecutionArtifacts struct {
	VideoPath         string `json:"video_path"`
	ScreenshotFailure string `json:"screenshot_failure,omitempty"`
}

// ExecutionResult is the terminal record of one execution. Exactly one is
// produced per run and it ends the realtime stream.
type ExecutionResult struct {
	ExecutionID string             `json:"execution_id"`
	Status      ExecutionStatus    `json:"status"`
	TestName    string             `json:"test_name"`
	ProjectName string             `json:"project_name"`
	Metrics     ExecutionMetrics   `json:"metrics"`
	Steps       []ExecutionStep    `json:"steps"`
	Artifacts   ExecutionArtifacts `json:"artifacts"`
	AIAnalysis  string             `json:"ai_analysis"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ExecutionListItem is a summary row in the execution history.
type ExecutionListItem struct {
	ExecutionID     string          `json:"execution_id"`
	TestName        string          `json:"test_name"`
	ProjectName     string          `json:"project_name"`
	Status          ExecutionStatus `json:"status"`
	TotalDuration   *float64        `json:"total_duration,omitempty"`
	StepSuccessRate *float64        `json:"step_success_rate,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ActiveExecution is a run currently in flight on the backend.
type ActiveExecution struct {
	ExecutionID string          `json:"execution_id"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   string          `json:"started_at"`
}

// ExecutionFilter narrows ListExecutions results.
type ExecutionFilter struct {
	ProjectID string
	Status    ExecutionStatus
	Skip      int
	Limit     int
}

// HealthResponse is the backend health probe payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// OllamaStatus describes the local AI backend.
type OllamaStatus struct {
	Healthy         bool     `json:"healthy"`
	Host            string   `json:"host"`
	ConfiguredModel string   `json:"configured_model"`
	AvailableModels []string `json:"available_models"`
}

// FailureAnalysis is the AI translation of a technical failure.
type FailureAnalysis struct {
	Analysis string `json:"analysis"`
}
