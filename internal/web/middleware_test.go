package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithExecutorInjectsAndGetExecutorRetrieves(t *testing.T) {
	srv := newTestServer(t)

	var got interface{}
	handler := WithExecutor(srv.executor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetExecutor(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, srv.executor, got)
}

func TestGetExecutorWithoutMiddlewareReturnsNil(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetExecutor(req))
}

func TestRequireExecutorRejectsMissingExecutor(t *testing.T) {
	handler := RequireExecutor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireExecutorPassesWhenPresent(t *testing.T) {
	srv := newTestServer(t)

	var called bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	handler := WithExecutor(srv.executor)(RequireExecutor(inner))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
