package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authpkg "github.com/HaoYang670/rucat/internal/auth"
	"github.com/HaoYang670/rucat/internal/engine"
	"github.com/HaoYang670/rucat/internal/health"
	"github.com/HaoYang670/rucat/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	return NewHandler(memstore.New(), nil, health.NewChecker(nil))
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	handler.Livez(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response health.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, health.StatusHealthy, response.Status)
}

func TestHandler_Readyz_NoDependencies(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.Readyz(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_CreateEngine(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()

	body := `{"name":"etl-job","engine_type":"Spark","version":"3.5.3","configs":{"spark.executor.instances":"2"}}`
	req := httptest.NewRequest(http.MethodPost, "/engine", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	handler.CreateEngine(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp createEngineResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)

	rec, err := handler.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.WaitToStart, rec.State)
}

func TestHandler_CreateEngine_InvalidJSON(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/engine", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	handler.CreateEngine(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CreateEngine_ValidationError(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()

	body := `{"name":"","engine_type":"Spark","version":"3.5.3"}`
	req := httptest.NewRequest(http.MethodPost, "/engine", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	handler.CreateEngine(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetEngine_NotFound(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/engine/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	handler.GetEngine(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_GetEngine_Found(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()
	rec := engine.New("e1", engine.CreateRequest{Name: "n", EngineType: engine.Spark, Version: "3.5.3"}, time.Now())
	require.NoError(t, handler.store.Insert(context.Background(), rec))

	req := httptest.NewRequest(http.MethodGet, "/engine/e1", nil)
	req.SetPathValue("id", "e1")
	w := httptest.NewRecorder()
	handler.GetEngine(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp engineResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(engine.WaitToStart), resp.State)
}

func TestHandler_ListEngines(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()
	rec := engine.New("e1", engine.CreateRequest{Name: "n", EngineType: engine.Spark, Version: "3.5.3"}, time.Now())
	require.NoError(t, handler.store.Insert(context.Background(), rec))

	req := httptest.NewRequest(http.MethodGet, "/engines", nil)
	w := httptest.NewRecorder()
	handler.ListEngines(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp []engineRef
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp, 1)
}

func TestHandler_StopEngine_FromWaitToStart(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()
	rec := engine.New("e1", engine.CreateRequest{Name: "n", EngineType: engine.Spark, Version: "3.5.3"}, time.Now())
	require.NoError(t, handler.store.Insert(context.Background(), rec))

	req := httptest.NewRequest(http.MethodPost, "/engine/e1/stop", nil)
	req.SetPathValue("id", "e1")
	w := httptest.NewRecorder()
	handler.StopEngine(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	updated, err := handler.store.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, engine.Terminated, updated.State)
}

func TestHandler_StopEngine_InvalidState(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()
	rec := engine.New("e1", engine.CreateRequest{Name: "n", EngineType: engine.Spark, Version: "3.5.3"}, time.Now())
	rec.State = engine.Terminated
	require.NoError(t, handler.store.Insert(context.Background(), rec))

	req := httptest.NewRequest(http.MethodPost, "/engine/e1/stop", nil)
	req.SetPathValue("id", "e1")
	w := httptest.NewRecorder()
	handler.StopEngine(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_RestartEngine(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()
	rec := engine.New("e1", engine.CreateRequest{Name: "n", EngineType: engine.Spark, Version: "3.5.3"}, time.Now())
	rec.State = engine.Terminated
	require.NoError(t, handler.store.Insert(context.Background(), rec))

	req := httptest.NewRequest(http.MethodPost, "/engine/e1/restart", nil)
	req.SetPathValue("id", "e1")
	w := httptest.NewRecorder()
	handler.RestartEngine(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	updated, err := handler.store.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, engine.WaitToStart, updated.State)
}

func TestHandler_DeleteEngine(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()
	rec := engine.New("e1", engine.CreateRequest{Name: "n", EngineType: engine.Spark, Version: "3.5.3"}, time.Now())
	require.NoError(t, handler.store.Insert(context.Background(), rec))

	req := httptest.NewRequest(http.MethodDelete, "/engine/e1", nil)
	req.SetPathValue("id", "e1")
	w := httptest.NewRecorder()
	handler.DeleteEngine(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := handler.store.Get(context.Background(), "e1")
	assert.Error(t, err)
}

func TestHandler_DeleteEngine_WrongState(t *testing.T) {
	t.Parallel()
	handler := newTestHandler()
	rec := engine.New("e1", engine.CreateRequest{Name: "n", EngineType: engine.Spark, Version: "3.5.3"}, time.Now())
	rec.State = engine.Running
	require.NoError(t, handler.store.Insert(context.Background(), rec))

	req := httptest.NewRequest(http.MethodDelete, "/engine/e1", nil)
	req.SetPathValue("id", "e1")
	w := httptest.NewRecorder()
	handler.DeleteEngine(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMiddleware_Logging(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := LoggingMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMiddleware_ContentType(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	handler := ContentTypeMiddleware()(inner)

	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	called = false
	req = httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
}

func TestMiddleware_CORS(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORSMiddleware()(inner)

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddleware_Auth_Disabled(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	handler := AuthMiddleware(authpkg.Disabled{})(inner)

	req := httptest.NewRequest(http.MethodGet, "/engines", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
}

func TestMiddleware_Auth_Static(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := AuthMiddleware(authpkg.NewStatic("secret"))(inner)

	req := httptest.NewRequest(http.MethodGet, "/engines", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/engines", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddleware_ContentType_EmptyBodyAllowed(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := ContentTypeMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
}
