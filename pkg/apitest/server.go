// Package apitest provides an in-memory fake of the automation backend for
// integration tests and local development. It serves the same REST surface
// and realtime socket as the real service, backed by seeded fixtures and
// scripted execution runs instead of devices and an AI engine.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
)

// Run scripts the behavior of one execution: the step frames streamed over
// the realtime socket and the terminal result. Zero value runs a two-step
// passing execution.
type Run struct {
	Steps  []api.StepUpdate
	Result api.ExecutionResult

	// StepDelay is the pause before each step frame.
	StepDelay time.Duration

	// WaitForWatcher holds the run until a realtime subscriber attaches
	// (or a short timeout passes), so tests that discover the execution id
	// mid-flight observe every step.
	WaitForWatcher bool
}

// frame is the realtime wire shape.
type frame struct {
	Type        string `json:"type"`
	ExecutionID string `json:"execution_id"`
	Data        any    `json:"data"`
}

type watcher struct {
	ch   chan frame
	once sync.Once
}

func (w *watcher) close() { w.once.Do(func() { close(w.ch) }) }

// Server is the fake backend. Construct with New, point a client at URL(),
// and Close when done.
type Server struct {
	httpSrv  *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	seq       int
	projects  map[string]api.Project
	testCases map[string]api.TestCase
	devices   []api.Device
	runs      map[string]Run
	results   map[string]api.ExecutionResult
	active    map[string]api.ActiveExecution
	history   []api.ExecutionListItem
	watchers  map[string][]*watcher
}

// New constructs and starts the fake backend with a default device roster.
func New() *Server {
	now := time.Now().UTC()
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		projects:  make(map[string]api.Project),
		testCases: make(map[string]api.TestCase),
		devices: []api.Device{
			{ID: "web-chrome", Name: "Chrome", DeviceType: api.DeviceWeb, Platform: api.PlatformChrome, Status: api.DeviceReady, LastSeen: &now},
			{ID: "emulator-5554", Name: "Pixel emulator", DeviceType: api.DeviceMobile, Platform: api.PlatformAndroid, Status: api.DeviceReady, LastSeen: &now},
		},
		runs:     make(map[string]Run),
		results:  make(map[string]api.ExecutionResult),
		active:   make(map[string]api.ActiveExecution),
		watchers: make(map[string][]*watcher),
	}
	s.httpSrv = httptest.NewServer(s.router())
	return s
}

// URL returns the base URL clients should be configured with.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the backend down.
func (s *Server) Close() { s.httpSrv.Close() }

// SeedProject installs a project fixture and returns it with server fields
// filled in.
func (s *Server) SeedProject(p api.Project) api.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = s.nextIDLocked("proj")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	p.IsActive = true
	s.projects[p.ID] = p
	return p
}

// SeedTestCase installs a test case fixture.
func (s *Server) SeedTestCase(tc api.TestCase) api.TestCase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tc.ID == "" {
		tc.ID = s.nextIDLocked("tc")
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = time.Now().UTC()
	}
	s.testCases[tc.ID] = tc
	return tc
}

// ScriptRun registers the scripted run to replay when the given test case is
// executed.
func (s *Server) ScriptRun(testCaseID string, run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[testCaseID] = run
}

func (s *Server) nextIDLocked(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/system/ollama/status", s.handleOllamaStatus)

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleCreateProject)
		r.Get("/{id}", s.handleGetProject)
		r.Put("/{id}", s.handleUpdateProject)
		r.Delete("/{id}", s.handleDeleteProject)
		r.Post("/{id}/index", s.handleIndexProject)
	})

	r.Get("/devices", s.handleListDevices)
	r.Post("/devices/validate", s.handleValidateDevice)

	r.Route("/scripts", func(r chi.Router) {
		r.Post("/generate", s.handleGenerateScript)
		r.Post("/validate", s.handleValidateScript)
		r.Post("/save", s.handleSaveTestCase)
		r.Get("/test-cases", s.handleListTestCases)
		r.Get("/test-cases/{id}", s.handleGetTestCase)
		r.Post("/analyze-failure", s.handleAnalyzeFailure)
	})

	r.Route("/executions", func(r chi.Router) {
		r.Post("/", s.handleSubmitExecution)
		r.Get("/", s.handleListExecutions)
		r.Get("/active/list", s.handleActiveExecutions)
		r.Get("/{id}", s.handleGetExecution)
	})

	r.Get("/ws/execution/{id}", s.handleExecutionSocket)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "fake",
	})
}

func (s *Server) handleOllamaStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.OllamaStatus{
		Healthy:         true,
		Host:            "http://localhost:11434",
		ConfiguredModel: "qwen2.5-coder",
		AvailableModels: []string{"qwen2.5-coder", "llama3.1"},
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if p.IsActive {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req api.ProjectCreate
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "project name is required")
		return
	}
	s.mu.Lock()
	now := time.Now().UTC()
	p := api.Project{
		ID:          s.nextIDLocked("proj"),
		Name:        req.Name,
		Description: req.Description,
		LibraryPath: req.LibraryPath,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
	}
	s.projects[p.ID] = p
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p, ok := s.projects[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok || !p.IsActive {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req api.ProjectUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[chi.URLParam(r, "id")]
	if !ok || !p.IsActive {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.LibraryPath != nil {
		p.LibraryPath = *req.LibraryPath
	}
	p.UpdatedAt = time.Now().UTC()
	s.projects[p.ID] = p
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[chi.URLParam(r, "id")]
	if !ok || !p.IsActive {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return
	}
	// Soft delete, matching backend behavior.
	p.IsActive = false
	s.projects[p.ID] = p
	writeJSON(w, http.StatusOK, map[string]string{"message": "Project deleted"})
}

func (s *Server) handleIndexProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[chi.URLParam(r, "id")]
	if !ok || !p.IsActive {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return
	}
	now := time.Now().UTC()
	p.LastIndexedAt = &now
	s.projects[p.ID] = p
	writeJSON(w, http.StatusOK, map[string]any{"message": "Indexing complete", "methods_indexed": 12})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.devices)
}

func (s *Server) handleValidateDevice(w http.ResponseWriter, r *http.Request) {
	var req api.DeviceValidationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := api.DeviceValidationResponse{
		DeviceType: req.DeviceType,
		Platform:   req.Platform,
		DeviceID:   req.DeviceID,
	}
	for _, d := range s.devices {
		if d.DeviceType != req.DeviceType || d.Platform != req.Platform {
			continue
		}
		if req.DeviceID != "" && d.ID != req.DeviceID {
			continue
		}
		if d.Status != api.DeviceReady {
			continue
		}
		resp.IsValid = true
		resp.DeviceID = d.ID
		resp.Message = "Device connection validated"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Message = "No matching device is connected"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerateScript(w http.ResponseWriter, r *http.Request) {
	var req api.ScriptGenerationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	p, ok := s.projects[req.ProjectID]
	s.mu.Unlock()
	if !ok || !p.IsActive {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return
	}
	// Canned deterministic output: enough shape for clients to exercise the
	// generate, validate, save flow.
	script := fmt.Sprintf("def test_generated():\n    # %s\n    pass\n", req.Description)
	writeJSON(w, http.StatusOK, api.ScriptGenerationResponse{
		ScriptCode:       script,
		IsValid:          true,
		RAGContextUsed:   []string{"login_helper", "navigation_helper"},
		GenerationTimeMS: 42.0,
	})
}

func (s *Server) handleValidateScript(w http.ResponseWriter, r *http.Request) {
	var req api.ScriptValidationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp := api.ScriptValidationResponse{IsValid: true}
	if strings.TrimSpace(req.ScriptCode) == "" {
		resp.IsValid = false
		resp.Errors = append(resp.Errors, "script is empty")
	}
	if strings.Contains(req.ScriptCode, "__import__") {
		resp.IsValid = false
		resp.Errors = append(resp.Errors, "dynamic imports are not allowed")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveTestCase(w http.ResponseWriter, r *http.Request) {
	var req api.TestCaseCreate
	if !decodeJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[req.ProjectID]; !ok || !p.IsActive {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return
	}
	tc := api.TestCase{
		ID:              s.nextIDLocked("tc"),
		ProjectID:       req.ProjectID,
		Name:            req.Name,
		Description:     req.Description,
		DeviceType:      req.DeviceType,
		Platform:        req.Platform,
		TestType:        req.TestType,
		ScriptCode:      req.ScriptCode,
		ScriptValidated: true,
		CreatedAt:       time.Now().UTC(),
	}
	s.testCases[tc.ID] = tc
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.TestCase, 0, len(s.testCases))
	for _, tc := range s.testCases {
		out = append(out, tc)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTestCase(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	tc, ok := s.testCases[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Test case not found")
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (s *Server) handleAnalyzeFailure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ErrorTraceback string `json:"error_traceback"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, api.FailureAnalysis{
		Analysis: "The step failed because the target element never appeared.",
	})
}

func (s *Server) handleSubmitExecution(w http.ResponseWriter, r *http.Request) {
	var req api.ExecutionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	tc, ok := s.testCases[req.TestCaseID]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Test case not found")
		return
	}
	run, scripted := s.runs[req.TestCaseID]
	if !scripted {
		run = defaultRun()
	}
	id := s.nextIDLocked("exec")
	s.active[id] = api.ActiveExecution{
		ExecutionID: id,
		Status:      api.ExecutionRunning,
		StartedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	projectName := s.projects[tc.ProjectID].Name
	s.mu.Unlock()

	if run.WaitForWatcher {
		s.awaitWatcher(id, 2*time.Second)
	}

	for _, step := range run.Steps {
		if run.StepDelay > 0 {
			time.Sleep(run.StepDelay)
		}
		s.broadcast(id, frame{Type: "step_complete", ExecutionID: id, Data: step})
	}

	result := run.Result
	result.ExecutionID = id
	if result.Status == "" {
		result.Status = api.ExecutionPass
	}
	if result.TestName == "" {
		result.TestName = tc.Name
	}
	if result.ProjectName == "" {
		result.ProjectName = projectName
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	s.broadcast(id, frame{Type: "execution_complete", ExecutionID: id, Data: result})
	s.closeWatchers(id)

	s.mu.Lock()
	delete(s.active, id)
	s.results[id] = result
	duration := result.Metrics.TotalDuration
	rate := result.Metrics.StepSuccessRate
	s.history = append([]api.ExecutionListItem{{
		ExecutionID:     id,
		TestName:        result.TestName,
		ProjectName:     result.ProjectName,
		Status:          result.Status,
		TotalDuration:   &duration,
		StepSuccessRate: &rate,
		CreatedAt:       result.CreatedAt,
	}}, s.history...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

func defaultRun() Run {
	return Run{
		Steps: []api.StepUpdate{
			{StepNumber: 1, Action: "open application", Result: true, LatencyMS: 120},
			{StepNumber: 2, Action: "verify landing page", Result: true, LatencyMS: 80},
		},
		Result: api.ExecutionResult{
			Status: api.ExecutionPass,
			Metrics: api.ExecutionMetrics{
				TotalDuration:   0.2,
				AvgResponseTime: 100,
				StepSuccessRate: 1,
			},
		},
	}
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.ExecutionListItem, 0, len(s.history))
	project := r.URL.Query().Get("project_id")
	status := r.URL.Query().Get("status")
	for _, item := range s.history {
		if project != "" {
			if p, ok := s.projects[project]; !ok || p.Name != item.ProjectName {
				continue
			}
		}
		if status != "" && string(item.Status) != status {
			continue
		}
		out = append(out, item)
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	if skip > len(out) {
		skip = len(out)
	}
	out = out[skip:]
	if limit, _ := strconv.Atoi(r.URL.Query().Get("limit")); limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleActiveExecutions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.ActiveExecution, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	result, ok := s.results[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Execution not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExecutionSocket streams scripted frames to one realtime subscriber.
// Subscribers that attach after the run finished get the terminal frame and
// a normal close.
func (s *Server) handleExecutionSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	if result, done := s.results[id]; done {
		s.mu.Unlock()
		_ = conn.WriteJSON(frame{Type: "execution_complete", ExecutionID: id, Data: result})
		closeNormally(conn)
		return
	}
	wt := &watcher{ch: make(chan frame, 64)}
	s.watchers[id] = append(s.watchers[id], wt)
	s.mu.Unlock()

	// Discard client messages; a read error means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropWatcher(id, wt)
				return
			}
		}
	}()

	for f := range wt.ch {
		if err := conn.WriteJSON(f); err != nil {
			break
		}
	}
	closeNormally(conn)
}

func closeNormally(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "execution complete")
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}

func (s *Server) broadcast(id string, f frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wt := range s.watchers[id] {
		select {
		case wt.ch <- f:
		default:
		}
	}
}

// dropWatcher detaches one subscriber. Removal and close happen under the
// server lock so a concurrent broadcast never hits a closed channel.
func (s *Server) dropWatcher(id string, wt *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watchers[id]
	for i, cur := range list {
		if cur == wt {
			s.watchers[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
	wt.close()
}

func (s *Server) closeWatchers(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wt := range s.watchers[id] {
		wt.close()
	}
	delete(s.watchers, id)
}

func (s *Server) awaitWatcher(id string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.watchers[id])
		s.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
