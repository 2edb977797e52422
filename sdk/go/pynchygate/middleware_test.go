package pynchygate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAllows(t *testing.T) {
	c := newTestClient(t)
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("GET", "/messages", nil)
	req.Header.Set(HeaderCapability, "inbox")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMiddlewareBlocksForbidden(t *testing.T) {
	c := newTestClient(t)
	called := false
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("POST", "/secrets", nil)
	req.Header.Set(HeaderCapability, "vault")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called, "next handler is not called")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "blocked", body["decision"])
}

func TestMiddlewareRequiresCapability(t *testing.T) {
	c := newTestClient(t)
	called := false
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestActionFromRequestOperation(t *testing.T) {
	req := httptest.NewRequest("HEAD", "http://api.example/x", nil)
	req.Header.Set(HeaderCapability, "api")
	a, _ := actionFromRequest(req)
	assert.Equal(t, "read", a.Operation, "HEAD reads")

	req = httptest.NewRequest("GET", "http://api.example/x", nil)
	req.Header.Set(HeaderCapability, "api")
	req.Header.Set(HeaderOperation, "write")
	a, _ = actionFromRequest(req)
	assert.Equal(t, "write", a.Operation, "header overrides method")
}
