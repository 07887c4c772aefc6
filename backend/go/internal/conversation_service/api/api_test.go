package api

import (
	"GeoCMS/backend/go/internal/conversation_service/knowledge"
	"GeoCMS/backend/go/internal/conversation_service/policy"
	"GeoCMS/backend/go/internal/conversation_service/service"
	"GeoCMS/backend/go/internal/conversation_service/store"
	"GeoCMS/backend/go/internal/conversation_service/verifier"
	"GeoCMS/backend/go/internal/conversation_service/writer"
	"GeoCMS/backend/go/internal/database/sqldb"
	"GeoCMS/backend/go/pkg/metrics"
	"GeoCMS/backend/go/pkg/runlock"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router    *gin.Engine
	knowledge *knowledge.StaticProvider
	metrics   *metrics.Metrics
}

func newTestServer(t *testing.T, secret string, checks map[string]HealthCheck) *testServer {
	t.Helper()
	policyPath := filepath.Join("..", "..", "..", "prompts", "planner_agent.yaml")
	p, err := policy.LoadFile(policyPath)
	require.NoError(t, err)
	holder := policy.NewHolder(p, policyPath)

	db := sqldb.OpenTestDB(t)
	runs := store.NewRunStore(db, holder)
	tasks := store.NewTaskLedger(db, nil)
	contents := store.NewContentStore(db, nil)
	static := knowledge.NewStaticProvider(nil)
	m := metrics.New()

	engine := service.NewDecisionEngine(runs, tasks, holder, static, m)
	executor := service.NewWorkflowExecutor(engine, runs, tasks, contents, writer.NewTemplateWriter(), verifier.NewRuleVerifier(), time.Second, m)
	coord := service.NewCoordinator(service.Dependencies{
		Runs:     runs,
		Tasks:    tasks,
		Contents: contents,
		Policies: holder,
		Engine:   engine,
		Executor: executor,
		Metrics:  m,
	})

	router := SetupRouter(NewHandler(coord, checks), RouterOptions{JWTSecret: secret, Metrics: m})
	return &testServer{router: router, knowledge: static, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, BasePath+path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (s *testServer) start(t *testing.T) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/conversations", gin.H{"user_intent": "帮我做一个企业官网"})
	require.Equal(t, http.StatusCreated, w.Code)
	return body["run_id"].(string)
}

func (s *testServer) answer(t *testing.T, runID, slot, value string) map[string]interface{} {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/conversations/"+runID+"/input", gin.H{
		"user_input": value,
		"context":    gin.H{"slot_name": slot},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body
}

func (s *testServer) readyRun(t *testing.T) string {
	t.Helper()
	s.knowledge.Set("company_info", map[string]interface{}{"name": "示例科技"})
	runID := s.start(t)
	s.answer(t, runID, "site_type", "企业官网")
	s.answer(t, runID, "brand_name", "示例科技")
	body := s.answer(t, runID, "target_audience", "中小企业")
	require.Equal(t, "plan", body["action"])
	return runID
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("x: %w", service.ErrRunNotFound), http.StatusNotFound},
		{service.ErrContentNotFound, http.StatusNotFound},
		{service.ErrInvalidSlot, http.StatusBadRequest},
		{service.ErrUnknownWorkflow, http.StatusBadRequest},
		{service.ErrInvalidInput, http.StatusBadRequest},
		{service.ErrRunNotActive, http.StatusConflict},
		{service.ErrGenerationFailed, http.StatusBadGateway},
		{runlock.ErrLockTimeout, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, _ := statusFor(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestStartConversation(t *testing.T) {
	s := newTestServer(t, "", nil)

	w, body := s.do(t, http.MethodPost, "/conversations", gin.H{"user_intent": "帮我做一个网站"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "conversation_started", body["status"])
	assert.NotEmpty(t, body["run_id"])
	next := body["next_action"].(map[string]interface{})
	assert.Equal(t, "ask_slot", next["action"])
	assert.Equal(t, "site_type", next["slot_name"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w, body = s.do(t, http.MethodPost, "/conversations", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, body["error"])

	w, _ = s.do(t, http.MethodPost, "/conversations", gin.H{
		"user_intent":   "网站",
		"initial_state": gin.H{"color": "red"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessInput_Errors(t *testing.T) {
	s := newTestServer(t, "", nil)
	runID := s.start(t)

	w, body := s.do(t, http.MethodPost, "/conversations/"+runID+"/input", gin.H{
		"user_input": "x",
		"context":    gin.H{"slot_name": "color"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "color")

	w, _ = s.do(t, http.MethodPost, "/conversations/missing/input", gin.H{"user_input": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/conversations/"+runID+"/input", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessInput_EmptyValue(t *testing.T) {
	s := newTestServer(t, "", nil)
	runID := s.start(t)

	body := s.answer(t, runID, "site_type", "")
	assert.Equal(t, "ask_slot", body["action"])
	assert.NotEqual(t, "site_type", body["slot_name"])

	w, body := s.do(t, http.MethodPost, "/conversations/"+runID+"/input", gin.H{"user_input": ""})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ask_slot", body["action"])

	w, body = s.do(t, http.MethodGet, "/conversations/"+runID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := body["current_state"].(map[string]interface{})
	assert.Equal(t, "", state["site_type"])
}

func TestFullFlow(t *testing.T) {
	s := newTestServer(t, "", nil)
	runID := s.readyRun(t)

	w, body := s.do(t, http.MethodGet, "/conversations/"+runID+"/next-action", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "plan", body["action"])

	w, body = s.do(t, http.MethodPost, "/conversations/"+runID+"/generate", gin.H{
		"task_data": gin.H{"page_type": "homepage"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "content_generated", body["status"])
	contentRef := body["content_ref"].(string)

	w, body = s.do(t, http.MethodPost, "/conversations/"+runID+"/verify/"+contentRef, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "content_verified", body["status"])

	w, body = s.do(t, http.MethodPost, "/conversations/"+runID+"/workflow", gin.H{"workflow_type": "with_verification"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "with_verification", body["workflow"])

	w, _ = s.do(t, http.MethodPost, "/conversations/"+runID+"/workflow", gin.H{"workflow_type": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodGet, "/conversations/"+runID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, 1.0, body["progress"])
	assert.NotEmpty(t, body["tasks"])

	w, body = s.do(t, http.MethodPost, "/conversations/"+runID+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["final_status"])

	w, _ = s.do(t, http.MethodPost, "/conversations/"+runID+"/generate", gin.H{"task_data": gin.H{}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/conversations/"+runID+"/fail", gin.H{"reason": "太晚了"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(t, http.MethodGet, "/conversations?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["conversations"], 1)
}

func TestVerify_UnknownContent(t *testing.T) {
	s := newTestServer(t, "", nil)
	runID := s.readyRun(t)
	w, _ := s.do(t, http.MethodPost, "/conversations/"+runID+"/verify/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFailConversation(t *testing.T) {
	s := newTestServer(t, "", nil)
	runID := s.start(t)

	w, body := s.do(t, http.MethodPost, "/conversations/"+runID+"/fail", gin.H{"reason": "用户放弃"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "conversation_failed", body["status"])

	w, _ = s.do(t, http.MethodPost, "/conversations/"+runID+"/input", gin.H{
		"user_input": "企业官网",
		"context":    gin.H{"slot_name": "site_type"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListConversations_InvalidLimit(t *testing.T) {
	s := newTestServer(t, "", nil)
	w, _ := s.do(t, http.MethodGet, "/conversations?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "", map[string]HealthCheck{
		"sql": func(context.Context) error { return nil },
	})
	w, body := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, serviceName, body["service"])

	s = newTestServer(t, "", map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	w, body = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestReloadConfig(t *testing.T) {
	s := newTestServer(t, "", nil)
	w, body := s.do(t, http.MethodPost, "/reload-config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reloaded", body["status"])
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, secret, nil)

	w, _ := s.do(t, http.MethodPost, "/conversations", gin.H{"user_intent": "网站"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/conversations", gin.H{"user_intent": "网站"}, "Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
	badToken, err := bad.SignedString([]byte("other"))
	require.NoError(t, err)
	w, _ = s.do(t, http.MethodPost, "/conversations", gin.H{"user_intent": "网站"}, "Authorization", "Bearer "+badToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	good := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": float64(42),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	goodToken, err := good.SignedString([]byte(secret))
	require.NoError(t, err)
	w, _ = s.do(t, http.MethodPost, "/conversations", gin.H{"user_intent": "网站"}, "Authorization", "Bearer "+goodToken)
	assert.Equal(t, http.StatusCreated, w.Code)

	// health 不需要认证
	w, _ = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, "", nil)
	s.start(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t, "", nil)
	runID := s.readyRun(t)
	other := s.start(t)
	w, _ := s.do(t, http.MethodPost, "/conversations/"+other+"/fail", gin.H{"reason": "放弃"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodGet, "/runs?status=active&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(1), body["active_count"])
	assert.Equal(t, float64(1), body["failed_count"])
	runs := body["runs"].([]interface{})
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].(map[string]interface{})["run_id"])
	assert.Equal(t, float64(1), runs[0].(map[string]interface{})["progress"])

	w, _ = s.do(t, http.MethodGet, "/runs?status=paused", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodGet, "/runs?offset=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodGet, "/runs/"+runID+"/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := body["tasks"].([]interface{})
	require.NotEmpty(t, tasks)
	taskID := tasks[0].(map[string]interface{})["id"].(string)

	w, body = s.do(t, http.MethodGet, "/tasks/"+taskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, runID, body["run_id"])

	w, _ = s.do(t, http.MethodGet, "/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/runs/missing/tasks", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	runStats := body["runs"].(map[string]interface{})
	assert.Equal(t, float64(2), runStats["total"])
	assert.Equal(t, float64(1), runStats["failed"])
	taskStats := body["tasks"].(map[string]interface{})
	assert.Equal(t, float64(len(tasks)), taskStats["total"])
}
