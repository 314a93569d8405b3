package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriweb/veriweb/pkg/models"
	"github.com/veriweb/veriweb/pkg/storage"
	"github.com/veriweb/veriweb/pkg/synthesis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*storage.MemoryStore, *gin.Engine) {
	t.Helper()
	store := storage.NewMemoryStore()
	server := NewServer(store, nil, nil, "trace-secret")
	return store, server.Router()
}

func doRequest(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitQuery(t *testing.T) {
	store, router := setupRouter(t)

	w := doRequest(router, http.MethodPost, "/api/query",
		`{"question": "When did Voyager 1 launch?"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp SubmitQueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, models.StatusInit, resp.Status)

	session, err := store.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "When did Voyager 1 launch?", session.Question)
}

func TestSubmitQueryRejectsBadBodies(t *testing.T) {
	_, router := setupRouter(t)

	w := doRequest(router, http.MethodPost, "/api/query", `{invalid`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/api/query", `{"question": "   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "question must not be empty")
}

func TestGetStatus(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "question")
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/query/"+session.ID+"/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusInit, resp.Status)
	assert.False(t, resp.IsComplete)

	require.NoError(t, store.UpdateSessionStatus(ctx, session.ID, models.StatusDone))
	w = doRequest(router, http.MethodGet, "/api/query/"+session.ID+"/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsComplete)
}

func TestGetStatusUnknownSession(t *testing.T) {
	_, router := setupRouter(t)
	w := doRequest(router, http.MethodGet, "/api/query/missing/status", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetResult(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "question")
	require.NoError(t, err)

	// Not terminal yet.
	w := doRequest(router, http.MethodGet, "/api/query/"+session.ID+"/result", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, store.WriteAnswer(ctx, &models.AnswerSnapshot{
		SessionID:        session.ID,
		AnswerText:       "Voyager 1 launched in 1977.",
		ConfidenceLevel:  models.ConfidenceHigh,
		ConfidenceReason: "claims verified across independent domains",
	}, []models.Evidence{
		{ClaimText: "Voyager 1 launched in 1977.", Status: models.ClaimVerified, DomainCount: 2},
	}))
	require.NoError(t, store.UpdateSessionStatus(ctx, session.ID, models.StatusDone))

	w = doRequest(router, http.MethodGet, "/api/query/"+session.ID+"/result", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ResultResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Voyager 1 launched in 1977.", resp.Answer)
	assert.Equal(t, models.ConfidenceHigh, resp.ConfidenceLevel)
	require.Len(t, resp.Evidence, 1)
	assert.Equal(t, models.ClaimVerified, resp.Evidence[0].Status)
}

func TestGetResultFailedSessionReturnsAbstention(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, store.WriteEvidence(ctx, session.ID, []models.Evidence{
		{ClaimText: "partial evidence from a failed run", Status: models.ClaimUnverified},
	}))
	require.NoError(t, store.UpdateSessionStatus(ctx, session.ID, models.StatusFailed))

	w := doRequest(router, http.MethodGet, "/api/query/"+session.ID+"/result", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ResultResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, synthesis.AbstentionAnswer, resp.Answer)
	assert.Equal(t, models.ConfidenceLow, resp.ConfidenceLevel)
	require.Len(t, resp.Evidence, 1)
}

func TestGetTraceRequiresToken(t *testing.T) {
	store, router := setupRouter(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "question")
	require.NoError(t, err)
	require.NoError(t, store.AppendPlannerTrace(ctx, &models.PlannerTrace{
		SessionID:    session.ID,
		AttemptNum:   1,
		PlannerState: models.StatusVerify,
		Strategy:     models.StrategyVerbatim,
		NumDocs:      5,
		Decision:     models.DecisionAccept,
	}))

	path := "/api/query/" + session.ID + "/trace"

	w := doRequest(router, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodGet, path, "", map[string]string{
		"X-Internal-Token": "wrong",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodGet, path, "", map[string]string{
		"X-Internal-Token": "trace-secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp TraceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.PlannerTraces, 1)
	assert.Equal(t, models.DecisionAccept, resp.PlannerTraces[0].Decision)
	assert.Empty(t, resp.SearchLogs)
}

func TestGetTraceClosedWhenTokenUnconfigured(t *testing.T) {
	store := storage.NewMemoryStore()
	server := NewServer(store, nil, nil, "")
	router := server.Router()

	session, err := store.CreateSession(context.Background(), "question")
	require.NoError(t, err)

	w := doRequest(router, http.MethodGet, "/api/query/"+session.ID+"/trace", "",
		map[string]string{"X-Internal-Token": ""})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthWithoutDependencies(t *testing.T) {
	_, router := setupRouter(t)
	w := doRequest(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
